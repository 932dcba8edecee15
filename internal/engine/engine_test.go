package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/prodline/tracker/internal/models"
)

type memRepo struct {
	mu   sync.Mutex
	sess *models.Session
}

func (r *memRepo) Load() (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess, nil
}

func (r *memRepo) Save(s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess = s
	return nil
}

func (r *memRepo) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sess = nil
	return nil
}

type stubSubmitter struct {
	mu   sync.Mutex
	err  error
	subs []*models.SessionSubmission
}

func (s *stubSubmitter) Submit(_ context.Context, sub *models.SessionSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.subs = append(s.subs, sub)
	return nil
}

func (s *stubSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *stubSubmitter) last() *models.SessionSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

type stubLocks struct {
	mu       sync.Mutex
	held     bool
	rejected bool
	released int
}

func (l *stubLocks) Acquire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rejected {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *stubLocks) Release(_ context.Context, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.released++
	return nil
}

type stubPrompt struct {
	answers chan PromptAnswer
}

func newStubPrompt() *stubPrompt {
	return &stubPrompt{answers: make(chan PromptAnswer, 1)}
}

func (p *stubPrompt) Show(ctx context.Context, _ time.Time) PromptAnswer {
	select {
	case a := <-p.answers:
		return a
	case <-ctx.Done():
		return AnswerTimeout
	}
}

type harness struct {
	engine    *Engine
	clock     *stubClock
	repo      *memRepo
	submitter *stubSubmitter
	locks     *stubLocks
	prompt    *stubPrompt
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clock:     &stubClock{t: base},
		repo:      &memRepo{},
		submitter: &stubSubmitter{},
		locks:     &stubLocks{},
		prompt:    newStubPrompt(),
	}
	h.engine = New(cfg, Deps{
		Clock:     h.clock,
		Repo:      h.repo,
		Submitter: h.submitter,
		Locks:     h.locks,
		Prompts:   h.prompt,
		Logger:    zerolog.Nop(),
	})
	return h
}

func defaultCfg() Config {
	return Config{
		CountdownDuration: 10 * time.Minute,
		PopupInterval:     10 * time.Minute,
		LockTTL:           2 * time.Hour,
	}
}

// waitFor polls until cond holds, the way the backend session tests
// poll for parse completion.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 50; i++ {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not reached")
}

// target 600s: 1 part at 10 minutes.
func smallBuild() models.Build {
	return models.Build{BuildNumber: "B00001", NumberOfParts: 1, TimePerPart: 10}
}

func TestLoginRejectedWhenLockHeld(t *testing.T) {
	h := newHarness(t, defaultCfg())
	h.locks.rejected = true

	err := h.engine.Login(context.Background(), "worker-1", smallBuild())
	if !errors.Is(err, models.ErrLockHeld) {
		t.Fatalf("Login error = %v, want ErrLockHeld", err)
	}
	if h.repo.sess != nil {
		t.Errorf("session persisted despite rejected login")
	}
}

func TestLoginRejectsInvalidBuild(t *testing.T) {
	h := newHarness(t, defaultCfg())

	bad := models.Build{BuildNumber: "B9", NumberOfParts: 0, TimePerPart: 1}
	if err := h.engine.Login(context.Background(), "worker-1", bad); !errors.Is(err, models.ErrInvalidBuild) {
		t.Fatalf("Login error = %v, want ErrInvalidBuild", err)
	}
}

func TestPromptOpensWhenCountdownExpires(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.engine.Tick(base.Add(599 * time.Second))
	if h.engine.Snapshot().PromptActive {
		t.Fatalf("prompt opened before the countdown expired")
	}

	// Boundary is inclusive: exactly the target triggers the prompt.
	h.engine.Tick(base.Add(600 * time.Second))
	snap := h.engine.Snapshot()
	if !snap.PromptActive {
		t.Fatalf("prompt not opened at countdown expiry")
	}
	wantDeadline := base.Add(1200 * time.Second)
	if !snap.PromptDeadline.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", snap.PromptDeadline, wantDeadline)
	}
}

func TestPromptAnswerReschedules(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.engine.Tick(base.Add(600 * time.Second))

	// Answer YES 50s into the prompt window: active time at the click
	// is 650, so the next prompt is armed at 650 + 600 = 1250.
	h.clock.Set(base.Add(650 * time.Second))
	h.prompt.answers <- AnswerYes
	waitFor(t, func() bool { return !h.engine.Snapshot().PromptActive })

	s := h.repo.sess
	if s.NextPromptActiveSec != 1250 {
		t.Errorf("NextPromptActiveSec = %v, want 1250", s.NextPromptActiveSec)
	}
	if s.PopupWaitSec != 50 {
		t.Errorf("PopupWaitSec = %v, want 50", s.PopupWaitSec)
	}
	if len(s.PopupInteractions) != 1 || s.PopupInteractions[0].Type != models.InteractionYes {
		t.Fatalf("interactions = %+v, want one YES", s.PopupInteractions)
	}

	h.engine.Tick(base.Add(1249 * time.Second))
	if h.engine.Snapshot().PromptActive {
		t.Fatalf("prompt reopened before the rescheduled threshold")
	}
	h.engine.Tick(base.Add(1250 * time.Second))
	if !h.engine.Snapshot().PromptActive {
		t.Fatalf("prompt not reopened at the rescheduled threshold")
	}
}

func TestPromptAnswerNoBehavesLikeYes(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.engine.Tick(base.Add(600 * time.Second))

	h.clock.Set(base.Add(620 * time.Second))
	h.prompt.answers <- AnswerNo
	waitFor(t, func() bool { return !h.engine.Snapshot().PromptActive })

	s := h.repo.sess
	if s.Finalized() {
		t.Fatalf("NO finalized the session")
	}
	if s.PopupInteractions[0].Type != models.InteractionNo {
		t.Errorf("interaction type = %v, want NO", s.PopupInteractions[0].Type)
	}
	if s.NextPromptActiveSec != 1220 {
		t.Errorf("NextPromptActiveSec = %v, want 1220", s.NextPromptActiveSec)
	}
}

func TestLateAnswerWaitCappedAtDeadline(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.engine.Tick(base.Add(600 * time.Second))

	// The answer event is processed after the deadline but before the
	// tick that would auto-submit: the waited time never exceeds the
	// countdown duration.
	h.clock.Set(base.Add(1300 * time.Second))
	h.prompt.answers <- AnswerYes
	waitFor(t, func() bool { return !h.engine.Snapshot().PromptActive })

	if got := h.repo.sess.PopupWaitSec; got != 600 {
		t.Errorf("PopupWaitSec = %v, want 600 (capped)", got)
	}
}

func TestAutoSubmitAtDeadline(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.engine.Tick(base.Add(600 * time.Second)) // opens prompt, deadline T+1200

	h.clock.Set(base.Add(1200 * time.Second))
	h.engine.Tick(base.Add(1200 * time.Second))

	if h.submitter.count() != 1 {
		t.Fatalf("submissions = %d, want 1", h.submitter.count())
	}
	sub := h.submitter.last()
	if sub.SubmissionType != models.SubmissionAuto {
		t.Errorf("submissionType = %v, want AUTO_SUBMIT", sub.SubmissionType)
	}
	last := sub.PopupInteractions[len(sub.PopupInteractions)-1]
	if last.Type != models.InteractionAutoSubmit {
		t.Errorf("last interaction = %v, want AUTO_SUBMIT", last.Type)
	}
	if want := base.Add(1200 * time.Second); !last.Timestamp.Equal(want) {
		t.Errorf("interaction timestamp = %v, want %v", last.Timestamp, want)
	}
	if sub.PopupWaitAccumSec != 600 {
		t.Errorf("popupWaitAccumSec = %v, want 600", sub.PopupWaitAccumSec)
	}
	if h.repo.sess != nil {
		t.Errorf("session store not cleared after successful auto-submit")
	}
	if h.locks.released != 1 {
		t.Errorf("lock releases = %d, want 1", h.locks.released)
	}

	// Finalization is one-shot: further ticks and actions do nothing.
	h.engine.Tick(base.Add(1300 * time.Second))
	if err := h.engine.SubmitManual(context.Background(), 5); err != nil {
		t.Errorf("SubmitManual after finalization: %v", err)
	}
	if h.submitter.count() != 1 {
		t.Errorf("submissions after finalization = %d, want 1", h.submitter.count())
	}
}

func TestReloadResumesPromptDeadline(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.engine.Tick(base.Add(600 * time.Second))
	h.engine.Stop()

	// Restart at T+1190: the prompt resumes with 10s left, not a fresh
	// countdown.
	h2 := &harness{
		clock:     &stubClock{t: base.Add(1190 * time.Second)},
		repo:      h.repo,
		submitter: h.submitter,
		locks:     h.locks,
		prompt:    newStubPrompt(),
	}
	h2.engine = New(defaultCfg(), Deps{
		Clock: h2.clock, Repo: h2.repo, Submitter: h2.submitter,
		Locks: h2.locks, Prompts: h2.prompt, Logger: zerolog.Nop(),
	})

	restored, err := h2.engine.Restore(context.Background())
	if err != nil || !restored {
		t.Fatalf("Restore = (%v, %v), want (true, nil)", restored, err)
	}
	snap := h2.engine.Snapshot()
	if !snap.PromptActive {
		t.Fatalf("prompt not resumed after restart")
	}
	if snap.PromptRemaining != "00:10" {
		t.Errorf("prompt remaining = %q, want 00:10", snap.PromptRemaining)
	}

	h2.engine.Tick(base.Add(1200 * time.Second))
	if h2.submitter.count() != 1 {
		t.Errorf("submissions = %d, want 1 after deadline", h2.submitter.count())
	}
}

func TestReloadPastDeadlineAutoSubmits(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	h.engine.Tick(base.Add(600 * time.Second))
	h.engine.Stop()

	h2 := newHarness(t, defaultCfg())
	h2.repo = h.repo
	h2.clock.Set(base.Add(1500 * time.Second))
	h2.engine = New(defaultCfg(), Deps{
		Clock: h2.clock, Repo: h2.repo, Submitter: h2.submitter,
		Locks: h2.locks, Prompts: h2.prompt, Logger: zerolog.Nop(),
	})

	restored, err := h2.engine.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored {
		t.Errorf("Restore reported a live session after auto-submit")
	}
	if h2.submitter.count() != 1 {
		t.Fatalf("submissions = %d, want 1", h2.submitter.count())
	}
	sub := h2.submitter.last()
	// The aborted prompt's wait is capped at the deadline even though
	// the process was down well past it.
	if sub.PopupWaitAccumSec != 600 {
		t.Errorf("popupWaitAccumSec = %v, want 600", sub.PopupWaitAccumSec)
	}
	if want := base.Add(1200 * time.Second); !sub.PopupInteractions[0].Timestamp.Equal(want) {
		t.Errorf("AUTO_SUBMIT timestamp = %v, want deadline %v", sub.PopupInteractions[0].Timestamp, want)
	}
}

func TestManualSubmitTotals(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.clock.Set(base.Add(100 * time.Second))
	h.engine.Pause()
	h.clock.Set(base.Add(160 * time.Second))
	h.engine.Resume()
	h.engine.SetDefects(2)

	h.clock.Set(base.Add(200 * time.Second))
	if err := h.engine.SubmitManual(context.Background(), 18); err != nil {
		t.Fatalf("SubmitManual: %v", err)
	}

	sub := h.submitter.last()
	if sub == nil {
		t.Fatalf("no submission recorded")
	}
	if sub.SubmissionType != models.SubmissionManual {
		t.Errorf("submissionType = %v, want MANUAL", sub.SubmissionType)
	}
	if sub.TotalPausedSec != 60 {
		t.Errorf("totalPausedTime = %v, want 60", sub.TotalPausedSec)
	}
	if sub.TotalInactiveTimeSec != 60 {
		t.Errorf("totalInactiveTimeSec = %v, want 60", sub.TotalInactiveTimeSec)
	}
	if sub.TotalActiveTimeSec != 140 {
		t.Errorf("totalActiveTimeSec = %v, want 140", sub.TotalActiveTimeSec)
	}
	if sub.TotalParts != 18 || sub.Defects != 2 {
		t.Errorf("parts/defects = %d/%d, want 18/2", sub.TotalParts, sub.Defects)
	}
	if h.repo.sess != nil {
		t.Errorf("session store not cleared after manual submit")
	}
}

func TestSubmitFailureKeepsSessionForRetry(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.submitter.err = errors.New("backend unreachable")
	h.clock.Set(base.Add(300 * time.Second))
	if err := h.engine.SubmitManual(context.Background(), 7); err == nil {
		t.Fatalf("SubmitManual succeeded despite backend error")
	}

	s := h.repo.sess
	if s == nil {
		t.Fatalf("snapshot discarded on submission failure")
	}
	if !s.Finalized() {
		t.Errorf("retained snapshot not marked finalized")
	}
	if h.locks.released != 0 {
		t.Errorf("lock released despite failed submission")
	}

	// A later restart retries the pending submission and clears up.
	h.submitter.err = nil
	h2 := newHarness(t, defaultCfg())
	h2.engine = New(defaultCfg(), Deps{
		Clock: h2.clock, Repo: h.repo, Submitter: h.submitter,
		Locks: h.locks, Prompts: h2.prompt, Logger: zerolog.Nop(),
	})
	restored, err := h2.engine.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored {
		t.Errorf("pending retry reported as a live session")
	}
	if h.submitter.count() != 1 {
		t.Errorf("submissions = %d, want 1 after retry", h.submitter.count())
	}
	if h.repo.sess != nil {
		t.Errorf("snapshot not cleared after successful retry")
	}
}

func TestPauseDoesNotAdvancePromptSchedule(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.clock.Set(base.Add(300 * time.Second))
	h.engine.Pause()

	// 400s paused: at wall T+700 only 300s of active time have passed.
	h.engine.Tick(base.Add(700 * time.Second))
	if h.engine.Snapshot().PromptActive {
		t.Fatalf("prompt opened while paused")
	}

	h.clock.Set(base.Add(700 * time.Second))
	h.engine.Resume()
	h.engine.Tick(base.Add(999 * time.Second))
	if h.engine.Snapshot().PromptActive {
		t.Fatalf("prompt opened before active time reached the target")
	}
	h.engine.Tick(base.Add(1000 * time.Second))
	if !h.engine.Snapshot().PromptActive {
		t.Fatalf("prompt not opened once active time reached the target")
	}
}

func TestPausePreconditions(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.clock.Set(base.Add(10 * time.Second))
	h.engine.Pause()
	h.engine.Pause() // duplicate, must not open a second interval
	if got := len(h.repo.sess.PauseRecords); got != 1 {
		t.Errorf("pause records = %d, want 1", got)
	}

	h.clock.Set(base.Add(20 * time.Second))
	h.engine.Resume()
	h.engine.Resume() // duplicate, no-op
	if got := h.repo.sess.TotalPausedSec; got != 10 {
		t.Errorf("TotalPausedSec = %v, want 10", got)
	}
	if h.repo.sess.Status != models.SessionStatusActive {
		t.Errorf("status = %v, want active", h.repo.sess.Status)
	}
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	h := newHarness(t, defaultCfg())
	restored, err := h.engine.Restore(context.Background())
	if err != nil || restored {
		t.Errorf("Restore on empty store = (%v, %v), want (false, nil)", restored, err)
	}
}

func TestRestoreDiscardsInconsistentSnapshot(t *testing.T) {
	h := newHarness(t, defaultCfg())

	// A submission type with no end time cannot come from a completed
	// finalization; a decodable but inconsistent snapshot must route
	// back to login instead of crashing.
	h.repo.sess = &models.Session{
		LoginID:        "worker-1",
		Build:          smallBuild(),
		StartTime:      base,
		Status:         models.SessionStatusActive,
		SubmissionType: models.SubmissionManual,
	}

	restored, err := h.engine.Restore(context.Background())
	if err != nil || restored {
		t.Fatalf("Restore on inconsistent snapshot = (%v, %v), want (false, nil)", restored, err)
	}
	if h.submitter.count() != 0 {
		t.Errorf("inconsistent snapshot was submitted")
	}
	if h.repo.sess != nil {
		t.Errorf("inconsistent snapshot not cleared")
	}
}

func TestLoginRejectedWhileSessionActive(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	err := h.engine.Login(context.Background(), "worker-2", smallBuild())
	if !errors.Is(err, models.ErrSessionActive) {
		t.Fatalf("second Login error = %v, want ErrSessionActive", err)
	}
	if h.repo.sess.LoginID != "worker-1" {
		t.Errorf("running session overwritten by rejected login")
	}
}

// countingFeed records subscription lifecycle for Run tests.
type countingFeed struct {
	mu      sync.Mutex
	live    int
	cancels int
}

func (f *countingFeed) Subscribe(_ func(time.Time)) (cancel func()) {
	f.mu.Lock()
	f.live++
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.live--
			f.cancels++
			f.mu.Unlock()
		})
	}
}

func (f *countingFeed) state() (live, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.cancels
}

func TestRunReplacesSubscription(t *testing.T) {
	h := newHarness(t, defaultCfg())
	feed := &countingFeed{}

	h.engine.Run(feed)
	h.engine.Run(feed)
	if live, cancels := feed.state(); live != 1 || cancels != 1 {
		t.Fatalf("after second Run: live = %d, cancels = %d, want 1 and 1", live, cancels)
	}

	h.engine.Stop()
	if live, cancels := feed.state(); live != 0 || cancels != 2 {
		t.Errorf("after Stop: live = %d, cancels = %d, want 0 and 2", live, cancels)
	}
}

func TestTickerFeedAutoSubmitsUnattended(t *testing.T) {
	h := newHarness(t, defaultCfg())
	if err := h.engine.Login(context.Background(), "worker-1", smallBuild()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.engine.Run(TickerFeed{Interval: 5 * time.Millisecond, Clock: h.clock})
	defer h.engine.Stop()

	// Countdown expiry arms the prompt on a later tick.
	h.clock.Set(base.Add(700 * time.Second))
	waitFor(t, func() bool { return h.engine.Snapshot().PromptActive })

	// Nobody answers; the deadline passes and the session auto-submits.
	h.clock.Set(base.Add(700*time.Second + defaultCfg().CountdownDuration + time.Second))
	waitFor(t, func() bool { return h.submitter.count() == 1 })

	if got := h.submitter.last().SubmissionType; got != models.SubmissionAuto {
		t.Errorf("SubmissionType = %v, want AUTO_SUBMIT", got)
	}
}
