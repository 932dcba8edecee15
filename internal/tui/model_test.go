package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/prodline/tracker/internal/engine"
	"github.com/prodline/tracker/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

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
	copied := *s
	r.sess = &copied
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
	subs []*models.SessionSubmission
}

func (s *stubSubmitter) Submit(ctx context.Context, sub *models.SessionSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return nil
}

type stubLocks struct{}

func (stubLocks) Acquire(ctx context.Context, loginID string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (stubLocks) Release(ctx context.Context, loginID string) error { return nil }

type stubPrompt struct{}

func (stubPrompt) Show(ctx context.Context, deadline time.Time) engine.PromptAnswer {
	<-ctx.Done()
	return engine.AnswerTimeout
}

type stubValidator struct {
	build *models.Build
	err   error
}

func (v stubValidator) ValidateBuild(ctx context.Context, buildNumber string) (*models.Build, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.build, nil
}

var testBuild = models.Build{BuildNumber: "B00001", NumberOfParts: 1, TimePerPart: 10}

func newTestModel(t *testing.T) (*Model, *fakeClock, *stubSubmitter) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	submitter := &stubSubmitter{}

	eng := engine.New(engine.Config{
		CountdownDuration: 10 * time.Minute,
		PopupInterval:     10 * time.Minute,
		LockTTL:           time.Hour,
		SubmitTimeout:     time.Second,
	}, engine.Deps{
		Clock:     clock,
		Repo:      &memRepo{},
		Submitter: submitter,
		Locks:     stubLocks{},
		Prompts:   stubPrompt{},
		Logger:    zerolog.Nop(),
	})

	m := NewModel(eng, stubValidator{build: &testBuild})
	return m, clock, submitter
}

func loggedInModel(t *testing.T) (*Model, *fakeClock, *stubSubmitter) {
	t.Helper()
	m, clock, submitter := newTestModel(t)
	cmd := m.loginCmd("op-100", "B00001")
	msg := cmd()
	updated, _ := m.Update(msg)
	m = updated.(*Model)
	if m.screen != screenTimer {
		t.Fatalf("Expected timer screen after login, got %v (err=%v)", m.screen, m.Err)
	}
	return m, clock, submitter
}

func TestModel_LoginFlow(t *testing.T) {
	t.Run("successful login moves to timer", func(t *testing.T) {
		m, _, _ := loggedInModel(t)
		if !m.snap.LoggedIn {
			t.Error("Expected snapshot to show a logged-in session")
		}
		if m.snap.Build.BuildNumber != "B00001" {
			t.Errorf("Expected build B00001, got %s", m.snap.Build.BuildNumber)
		}
	})

	t.Run("unknown build stays on login", func(t *testing.T) {
		m, _, _ := newTestModel(t)
		m.builds = stubValidator{err: models.ErrBuildNotFound}

		msg := m.loginCmd("op-100", "NOPE")()
		updated, _ := m.Update(msg)
		m = updated.(*Model)

		if m.screen != screenLogin {
			t.Errorf("Expected login screen, got %v", m.screen)
		}
		if m.Err == nil {
			t.Error("Expected a login error")
		}
	})
}

func TestModel_TimerControls(t *testing.T) {
	t.Run("space toggles pause", func(t *testing.T) {
		m, _, _ := loggedInModel(t)

		updated, _ := m.Update(tea.KeyMsg{Type: tea.KeySpace})
		m = updated.(*Model)
		if m.snap.Status != models.SessionStatusPaused {
			t.Errorf("Expected paused status, got %s", m.snap.Status)
		}

		updated, _ = m.Update(tea.KeyMsg{Type: tea.KeySpace})
		m = updated.(*Model)
		if m.snap.Status != models.SessionStatusActive {
			t.Errorf("Expected active status, got %s", m.snap.Status)
		}
	})

	t.Run("defect keys adjust the count", func(t *testing.T) {
		m, _, _ := loggedInModel(t)

		for i := 0; i < 3; i++ {
			updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
			m = updated.(*Model)
		}
		if m.snap.Defects != 3 {
			t.Errorf("Expected 3 defects, got %d", m.snap.Defects)
		}

		updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'-'}})
		m = updated.(*Model)
		if m.snap.Defects != 2 {
			t.Errorf("Expected 2 defects, got %d", m.snap.Defects)
		}
	})

	t.Run("defects never go negative", func(t *testing.T) {
		m, _, _ := loggedInModel(t)
		updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'-'}})
		m = updated.(*Model)
		if m.snap.Defects != 0 {
			t.Errorf("Expected 0 defects, got %d", m.snap.Defects)
		}
	})
}

func TestModel_Ticks(t *testing.T) {
	m, clock, _ := loggedInModel(t)

	clock.Advance(90 * time.Second)
	updated, _ := m.Update(MsgTick{Now: clock.Now()})
	m = updated.(*Model)

	// 10 minute target, 90s elapsed
	if m.snap.TimeLeftSec != 510 {
		t.Errorf("Expected 510s left, got %v", m.snap.TimeLeftSec)
	}
	if m.snap.Overtime {
		t.Error("Expected no overtime yet")
	}

	clock.Advance(10 * time.Minute)
	updated, _ = m.Update(MsgTick{Now: clock.Now()})
	m = updated.(*Model)
	if !m.snap.Overtime {
		t.Error("Expected overtime after passing the target")
	}
}

func TestModel_FinishFlow(t *testing.T) {
	m, _, submitter := loggedInModel(t)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'f'}})
	m = updated.(*Model)
	if m.screen != screenFinish {
		t.Fatalf("Expected finish screen, got %v", m.screen)
	}
	if m.partsInput.Value() != "1" {
		t.Errorf("Expected parts prefilled from build, got %q", m.partsInput.Value())
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Expected a submit command")
	}
	msg := cmd()
	updated, _ = m.Update(msg)
	m = updated.(*Model)

	if m.screen != screenDone {
		t.Errorf("Expected done screen, got %v (err=%v)", m.screen, m.Err)
	}
	if len(submitter.subs) != 1 {
		t.Fatalf("Expected one submission, got %d", len(submitter.subs))
	}
	if submitter.subs[0].SubmissionType != models.SubmissionManual {
		t.Errorf("Expected manual submission, got %s", submitter.subs[0].SubmissionType)
	}
}

func TestModel_PromptAnswer(t *testing.T) {
	m, _, _ := loggedInModel(t)

	answer := make(chan engine.PromptAnswer, 1)
	updated, _ := m.Update(MsgPromptOpen{Deadline: time.Now().Add(time.Minute), Answer: answer})
	m = updated.(*Model)

	if m.promptAnswer == nil {
		t.Fatal("Expected prompt to be active")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m = updated.(*Model)

	select {
	case a := <-answer:
		if a != engine.AnswerYes {
			t.Errorf("Expected YES, got %s", a)
		}
	default:
		t.Fatal("Expected an answer on the channel")
	}
	if m.promptAnswer != nil {
		t.Error("Expected prompt to be dismissed")
	}
}
