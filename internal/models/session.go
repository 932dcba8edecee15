package models

import (
	"errors"
	"time"
)

// SessionStatus represents the pause state of a running session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusPaused SessionStatus = "paused"
)

// SubmissionType records how a session was finalized.
type SubmissionType string

const (
	SubmissionManual SubmissionType = "MANUAL"
	SubmissionAuto   SubmissionType = "AUTO_SUBMIT"
)

// InteractionType is the worker's answer to a check-in prompt, or the
// auto-submit marker when the prompt went unanswered.
type InteractionType string

const (
	InteractionYes        InteractionType = "YES"
	InteractionNo         InteractionType = "NO"
	InteractionAutoSubmit InteractionType = "AUTO_SUBMIT"
)

var (
	ErrInvalidBuild  = errors.New("invalid build")
	ErrBuildNotFound = errors.New("build not found")
	ErrLockHeld      = errors.New("session lock already held")
	ErrSessionActive = errors.New("a session is already active")
)

// PauseRecord is one {start, end} interval in the pause ledger. End is
// nil while the pause is still open.
type PauseRecord struct {
	Start time.Time  `json:"start" msgpack:"start"`
	End   *time.Time `json:"end,omitempty" msgpack:"end"`
}

// Open reports whether the record has not been closed yet.
func (r PauseRecord) Open() bool {
	return r.End == nil
}

// PopupInteraction is one entry in the append-only prompt audit log.
type PopupInteraction struct {
	Type      InteractionType `json:"type" msgpack:"type"`
	Timestamp time.Time       `json:"timestamp" msgpack:"timestamp"`
}

// Session is the aggregate root for one worker's production run. The
// scheduling fields track the check-in prompt state machine and are kept
// in the durable snapshot so an in-flight prompt survives a restart.
type Session struct {
	LoginID   string    `json:"loginId" msgpack:"loginId"`
	Build     Build     `json:"build" msgpack:"build"`
	StartTime time.Time `json:"startTime" msgpack:"startTime"`

	Status         SessionStatus `json:"status" msgpack:"status"`
	PauseRecords   []PauseRecord `json:"pauseRecords" msgpack:"pauseRecords"`
	TotalPausedSec float64       `json:"totalPausedTime" msgpack:"totalPausedTime"`

	Defects    int `json:"defects" msgpack:"defects"`
	TotalParts int `json:"totalParts" msgpack:"totalParts"`

	PopupInteractions []PopupInteraction `json:"popupInteractions" msgpack:"popupInteractions"`
	PopupWaitSec      float64            `json:"popupWaitAccumSec" msgpack:"popupWaitAccumSec"`

	// Prompt scheduling. NextPromptActiveSec is an active-time threshold
	// (seconds of wall-clock minus paused minus popup-wait), not a
	// wall-clock instant, so time spent paused never advances the
	// schedule.
	NextPromptActiveSec   float64    `json:"nextPromptActiveTime" msgpack:"nextPromptActiveTime"`
	PromptScheduled       bool       `json:"isPromptScheduled" msgpack:"isPromptScheduled"`
	PromptStart           *time.Time `json:"activePromptStart,omitempty" msgpack:"activePromptStart"`
	PromptDeadline        *time.Time `json:"activePromptDeadline,omitempty" msgpack:"activePromptDeadline"`
	PromptCountdownActive bool       `json:"promptCountdownActive" msgpack:"promptCountdownActive"`

	EndTime        *time.Time     `json:"endTime,omitempty" msgpack:"endTime"`
	SubmissionType SubmissionType `json:"submissionType,omitempty" msgpack:"submissionType"`
}

// NewSession creates an active session for a validated build. The first
// check-in prompt is armed at the build's target duration, so it fires
// when the countdown reaches zero.
func NewSession(loginID string, build Build, startTime time.Time) *Session {
	return &Session{
		LoginID:             loginID,
		Build:               build,
		StartTime:           startTime,
		Status:              SessionStatusActive,
		PauseRecords:        []PauseRecord{},
		PopupInteractions:   []PopupInteraction{},
		NextPromptActiveSec: build.TargetDurationSec(),
		PromptScheduled:     true,
	}
}

// Finalized reports whether the session has been submitted.
func (s *Session) Finalized() bool {
	return s.SubmissionType != ""
}

// SessionSubmission is the externally visible payload POSTed to the
// backend when a session is finalized.
type SessionSubmission struct {
	LoginID              string             `json:"loginId"`
	BuildNumber          string             `json:"buildNumber"`
	NumberOfParts        int                `json:"numberOfParts"`
	TimePerPart          float64            `json:"timePerPart"`
	StartTime            time.Time          `json:"startTime"`
	EndTime              time.Time          `json:"endTime"`
	TotalPausedSec       float64            `json:"totalPausedTime"`
	TotalParts           int                `json:"totalParts"`
	Defects              int                `json:"defects"`
	PauseRecords         []PauseRecord      `json:"pauseRecords"`
	PopupInteractions    []PopupInteraction `json:"popupInteractions"`
	SubmissionType       SubmissionType     `json:"submissionType"`
	TotalActiveTimeSec   float64            `json:"totalActiveTimeSec"`
	TotalInactiveTimeSec float64            `json:"totalInactiveTimeSec"`
	PopupWaitAccumSec    float64            `json:"popupWaitAccumSec"`
}
