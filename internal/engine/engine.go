package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prodline/tracker/internal/models"
)

// Config carries the injected scheduling constants. Nothing in the
// engine hard-codes them.
type Config struct {
	// CountdownDuration is how long an unanswered check-in prompt waits
	// before auto-submitting the session.
	CountdownDuration time.Duration
	// PopupInterval is the active time between check-in prompts.
	PopupInterval time.Duration
	// LockTTL bounds how long an orphaned advisory lock can block a
	// login before it self-heals.
	LockTTL time.Duration
	// SubmitTimeout bounds the finalization POST on the auto-submit
	// path, where no caller context exists.
	SubmitTimeout time.Duration
}

// Deps are the collaborators the engine talks to. All of them are
// required except Prompts, which may be nil when no UI is attached
// (auto-submit still works off the tick source).
type Deps struct {
	Clock     Clock
	Repo      SessionRepository
	Submitter Submitter
	Locks     LockClient
	Prompts   PromptPort
	Logger    zerolog.Logger
}

// Engine runs one worker's session: it owns the aggregate, applies user
// actions, evaluates the prompt schedule on every tick and finalizes
// exactly once. All mutations complete, including the persistence
// write, before the mutex is released, so the next tick always sees a
// consistent session.
type Engine struct {
	cfg  Config
	deps Deps

	mu          sync.Mutex
	sess        *models.Session
	finalized   bool
	submitErr   error
	promptGen   int
	promptStop  context.CancelFunc
	unsubscribe func()
}

// New creates an engine with no session loaded. Call Login or Restore
// before Run.
func New(cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	return &Engine{cfg: cfg, deps: deps}
}

// Login validates the build, takes the advisory lock and creates a
// fresh session. An already-held lock is an ordinary rejected login
// (models.ErrLockHeld), not a failure. Logging in while a live session
// is loaded is rejected before the lock is touched, so the running
// session and its lock stay intact.
func (e *Engine) Login(ctx context.Context, loginID string, build models.Build) error {
	if err := build.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.sess != nil && !e.finalized {
		e.mu.Unlock()
		return models.ErrSessionActive
	}
	e.mu.Unlock()

	granted, err := e.deps.Locks.Acquire(ctx, loginID, e.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquiring session lock: %w", err)
	}
	if !granted {
		return models.ErrLockHeld
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess = models.NewSession(loginID, build, e.deps.Clock.Now())
	e.finalized = false
	e.submitErr = nil
	e.persist()

	e.deps.Logger.Info().
		Str("loginId", loginID).
		Str("buildNumber", build.BuildNumber).
		Float64("targetSec", build.TargetDurationSec()).
		Msg("session started")
	return nil
}

// Restore loads the persisted snapshot after a process restart. It
// returns true when a live session was resumed. A snapshot that was
// already finalized but never submitted is retried once and cleared on
// success. An in-flight prompt countdown resumes against its persisted
// deadline; if the deadline passed while the process was down, the
// session auto-submits immediately.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	s, err := e.deps.Repo.Load()
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s.Finalized() {
		if s.EndTime == nil {
			// A submission type without an end time cannot come from a
			// completed finalization; the snapshot is corrupt. Discard
			// it and route back to login.
			e.deps.Logger.Warn().
				Str("loginId", s.LoginID).
				Msg("discarding inconsistent session snapshot")
			if err := e.deps.Repo.Clear(); err != nil {
				e.deps.Logger.Warn().Err(err).Msg("clearing session store")
			}
			return false, nil
		}
		// Pending retry from a failed submission.
		e.sess = s
		e.finalized = true
		if err := e.submitLocked(ctx); err != nil {
			return false, err
		}
		return false, nil
	}

	e.sess = s
	e.finalized = false
	e.deps.Logger.Info().
		Str("loginId", s.LoginID).
		Bool("promptPending", s.PromptCountdownActive).
		Msg("session restored")

	if s.PromptCountdownActive && s.PromptDeadline != nil {
		now := e.deps.Clock.Now()
		if !now.Before(*s.PromptDeadline) {
			e.autoSubmitLocked(now)
			return false, nil
		}
		// The deadline survives reloads; only the subscription is new.
		e.spawnPromptLocked(*s.PromptDeadline)
	}
	return true, nil
}

// Run subscribes the engine to a tick source. Any previous subscription
// is cancelled first, so there is never more than one.
func (e *Engine) Run(feed ClockFeed) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	e.unsubscribe = feed.Subscribe(e.Tick)
}

// Stop cancels the tick subscription and any open prompt.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	if e.promptStop != nil {
		e.promptStop()
		e.promptStop = nil
	}
}

// Tick evaluates the prompt schedule at now. Ticks are processed
// strictly in arrival order; a tick that triggers a transition
// completes it (persistence included) before returning.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess
	if s == nil || e.finalized {
		return
	}

	if s.PromptCountdownActive && s.PromptDeadline != nil {
		if !now.Before(*s.PromptDeadline) {
			e.autoSubmitLocked(now)
		}
		return
	}

	if s.PromptScheduled && ActiveTime(s, now) >= s.NextPromptActiveSec {
		e.openPromptLocked(now)
	}
}

// Pause opens a pause interval. Pausing while already paused, while a
// prompt is on screen, or after finalization is a no-op.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess
	if s == nil || e.finalized || s.PromptCountdownActive {
		return
	}
	now := e.deps.Clock.Now()
	records, ok := AppendPause(s.PauseRecords, now)
	if !ok {
		return
	}
	s.PauseRecords = records
	s.Status = models.SessionStatusPaused
	s.TotalPausedSec = TotalPaused(s.PauseRecords, now)
	e.persist()
}

// Resume closes the open pause interval. A duplicate resume is a no-op.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess
	if s == nil || e.finalized {
		return
	}
	now := e.deps.Clock.Now()
	records, ok := CloseLastPause(s.PauseRecords, now)
	if !ok {
		return
	}
	s.PauseRecords = records
	s.Status = models.SessionStatusActive
	s.TotalPausedSec = TotalPaused(s.PauseRecords, now)
	e.persist()
}

// SetDefects updates the worker-entered defect count.
func (e *Engine) SetDefects(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.finalized || n < 0 {
		return
	}
	e.sess.Defects = n
	e.persist()
}

// SetTotalParts updates the worker-entered completed-parts count.
func (e *Engine) SetTotalParts(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.finalized || n < 0 {
		return
	}
	e.sess.TotalParts = n
	e.persist()
}

// SubmitManual finalizes the session on the worker's demand. On
// submission failure the durable snapshot is kept for retry and the
// error is returned; the session is still considered ended.
func (e *Engine) SubmitManual(ctx context.Context, totalParts int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess
	if s == nil || e.finalized {
		return nil
	}
	if totalParts >= 0 {
		s.TotalParts = totalParts
	}
	return e.finalizeLocked(ctx, models.SubmissionManual, e.deps.Clock.Now())
}

// openPromptLocked transitions IDLE → PROMPT_ACTIVE: the deadline is
// computed once, persisted, and survives restarts.
func (e *Engine) openPromptLocked(now time.Time) {
	s := e.sess
	start := now
	deadline := now.Add(e.cfg.CountdownDuration)

	s.PromptScheduled = false
	s.PromptStart = &start
	s.PromptDeadline = &deadline
	s.PromptCountdownActive = true
	e.persist()

	e.deps.Logger.Info().
		Time("deadline", deadline).
		Msg("check-in prompt opened")
	e.spawnPromptLocked(deadline)
}

// spawnPromptLocked hands the modal to the prompt port. The generation
// counter drops resolutions from a prompt that was already closed by a
// newer one or by auto-submit.
func (e *Engine) spawnPromptLocked(deadline time.Time) {
	if e.deps.Prompts == nil {
		return
	}
	if e.promptStop != nil {
		e.promptStop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.promptStop = cancel
	e.promptGen++
	gen := e.promptGen

	go func() {
		answer := e.deps.Prompts.Show(ctx, deadline)
		if answer == AnswerYes || answer == AnswerNo {
			e.respondPrompt(gen, answer)
		}
		// TIMEOUT is decided by the tick against the same deadline.
	}()
}

// respondPrompt applies a YES/NO answer. Both continue the session and
// differ only in the audit log. The waited time is capped at the
// deadline even if the answer event is processed late.
func (e *Engine) respondPrompt(gen int, answer PromptAnswer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.sess
	if s == nil || e.finalized || !s.PromptCountdownActive || gen != e.promptGen {
		return
	}

	now := e.deps.Clock.Now()
	waitEnd := now
	if s.PromptDeadline != nil && waitEnd.After(*s.PromptDeadline) {
		waitEnd = *s.PromptDeadline
	}
	if s.PromptStart != nil {
		if wait := waitEnd.Sub(*s.PromptStart).Seconds(); wait > 0 {
			s.PopupWaitSec += wait
		}
	}

	s.PopupInteractions = append(s.PopupInteractions, models.PopupInteraction{
		Type:      models.InteractionType(answer),
		Timestamp: now,
	})
	s.PromptCountdownActive = false
	s.PromptStart = nil
	s.PromptDeadline = nil
	if e.promptStop != nil {
		e.promptStop()
		e.promptStop = nil
	}

	// Reschedule relative to active time so pausing never advances the
	// schedule.
	s.NextPromptActiveSec = ActiveTime(s, now) + e.cfg.PopupInterval.Seconds()
	s.PromptScheduled = true
	e.persist()

	e.deps.Logger.Info().
		Str("answer", string(answer)).
		Float64("nextPromptActiveSec", s.NextPromptActiveSec).
		Msg("check-in prompt answered")
}

// autoSubmitLocked is the only path that finalizes without an explicit
// user action. The aborted prompt's wait segment is preserved, capped
// at the deadline, and the audit log gets an AUTO_SUBMIT entry stamped
// at the deadline.
func (e *Engine) autoSubmitLocked(now time.Time) {
	s := e.sess
	deadline := now
	if s.PromptDeadline != nil {
		deadline = *s.PromptDeadline
	}
	if s.PromptStart != nil {
		if wait := deadline.Sub(*s.PromptStart).Seconds(); wait > 0 {
			s.PopupWaitSec += wait
		}
	}
	s.PopupInteractions = append(s.PopupInteractions, models.PopupInteraction{
		Type:      models.InteractionAutoSubmit,
		Timestamp: deadline,
	})
	s.PromptCountdownActive = false
	s.PromptStart = nil
	s.PromptDeadline = nil

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SubmitTimeout)
	defer cancel()
	if err := e.finalizeLocked(ctx, models.SubmissionAuto, now); err != nil {
		e.deps.Logger.Error().Err(err).Msg("auto-submit failed, session kept for retry")
	}
}

// finalizeLocked assembles the final statistics and submits once. On
// success the local store is cleared and the advisory lock released
// best-effort; on failure the snapshot survives so no data is lost.
func (e *Engine) finalizeLocked(ctx context.Context, kind models.SubmissionType, now time.Time) error {
	s := e.sess

	// A pause left open at finalization is closed at the end time so
	// the archived ledger has no dangling interval.
	if records, ok := CloseLastPause(s.PauseRecords, now); ok {
		s.PauseRecords = records
		s.Status = models.SessionStatusActive
	}
	s.TotalPausedSec = TotalPaused(s.PauseRecords, now)

	end := now
	s.EndTime = &end
	s.SubmissionType = kind
	e.finalized = true

	if e.promptStop != nil {
		e.promptStop()
		e.promptStop = nil
	}

	return e.submitLocked(ctx)
}

// submitLocked sends the submission payload. Callers must already hold
// the mutex and have EndTime/SubmissionType set.
func (e *Engine) submitLocked(ctx context.Context) error {
	s := e.sess
	total := s.EndTime.Sub(s.StartTime).Seconds()
	inactive := s.TotalPausedSec + s.PopupWaitSec
	active := total - inactive
	if active < 0 {
		active = 0
	}

	sub := &models.SessionSubmission{
		LoginID:              s.LoginID,
		BuildNumber:          s.Build.BuildNumber,
		NumberOfParts:        s.Build.NumberOfParts,
		TimePerPart:          s.Build.TimePerPart,
		StartTime:            s.StartTime,
		EndTime:              *s.EndTime,
		TotalPausedSec:       s.TotalPausedSec,
		TotalParts:           s.TotalParts,
		Defects:              s.Defects,
		PauseRecords:         s.PauseRecords,
		PopupInteractions:    s.PopupInteractions,
		SubmissionType:       s.SubmissionType,
		TotalActiveTimeSec:   active,
		TotalInactiveTimeSec: inactive,
		PopupWaitAccumSec:    s.PopupWaitSec,
	}

	if err := e.deps.Submitter.Submit(ctx, sub); err != nil {
		e.submitErr = err
		e.persist()
		return fmt.Errorf("submitting session: %w", err)
	}
	e.submitErr = nil

	if err := e.deps.Repo.Clear(); err != nil {
		e.deps.Logger.Warn().Err(err).Msg("clearing session store")
	}
	if err := e.deps.Locks.Release(ctx, s.LoginID); err != nil {
		// Best effort: the TTL self-heals a leaked lock.
		e.deps.Logger.Warn().Err(err).Msg("releasing session lock")
	}

	e.deps.Logger.Info().
		Str("loginId", s.LoginID).
		Str("submissionType", string(s.SubmissionType)).
		Float64("activeSec", active).
		Float64("inactiveSec", inactive).
		Msg("session submitted")
	return nil
}

// persist writes the current aggregate through the repository. A write
// failure is logged and the in-memory state stays authoritative until
// the next successful save.
func (e *Engine) persist() {
	if err := e.deps.Repo.Save(e.sess); err != nil {
		e.deps.Logger.Error().Err(err).Msg("saving session snapshot")
	}
}
