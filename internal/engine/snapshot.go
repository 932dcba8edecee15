package engine

import (
	"time"

	"github.com/prodline/tracker/internal/models"
)

// Snapshot is the UI-facing view of the session at one instant. Derived
// quantities are recomputed from the aggregate on every call, never
// cached across ticks.
type Snapshot struct {
	LoggedIn bool
	LoginID  string
	Build    models.Build

	Status      models.SessionStatus
	TimeLeftSec float64
	TimeLeft    string // signed HH:MM:SS
	Overtime    bool

	Defects    int
	TotalParts int

	PromptActive    bool
	PromptRemaining string // MM:SS, clamped at zero
	PromptDeadline  time.Time

	Finalized      bool
	SubmissionType models.SubmissionType
	SubmitError    string
}

// Snapshot renders the current state for display.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess
	if s == nil {
		return Snapshot{}
	}

	now := e.deps.Clock.Now()
	paused := TotalPaused(s.PauseRecords, now)
	left := TimeLeft(s.Build, s.StartTime, paused, now)

	snap := Snapshot{
		LoggedIn:       true,
		LoginID:        s.LoginID,
		Build:          s.Build,
		Status:         s.Status,
		TimeLeftSec:    left,
		TimeLeft:       FormatSigned(left),
		Overtime:       left < 0,
		Defects:        s.Defects,
		TotalParts:     s.TotalParts,
		Finalized:      e.finalized,
		SubmissionType: s.SubmissionType,
	}
	if e.submitErr != nil {
		snap.SubmitError = e.submitErr.Error()
	}
	if s.PromptCountdownActive && s.PromptDeadline != nil {
		snap.PromptActive = true
		snap.PromptDeadline = *s.PromptDeadline
		snap.PromptRemaining = FormatCountdown(s.PromptDeadline.Sub(now))
	}
	return snap
}
