// Package tui is the operator-facing terminal client. It renders the
// session countdown, the pause ledger controls and the periodic
// check-in prompt on top of the session engine.
package tui

import (
	"context"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/prodline/tracker/internal/engine"
	"github.com/prodline/tracker/internal/models"
)

// BuildValidator resolves a build number to its parameters, usually
// against the backend.
type BuildValidator interface {
	ValidateBuild(ctx context.Context, buildNumber string) (*models.Build, error)
}

type screen int

const (
	screenLogin screen = iota
	screenTimer
	screenFinish
	screenDone
)

// Messages

// MsgTick carries one beat of the trusted clock feed.
type MsgTick struct {
	Now time.Time
}

// MsgPromptOpen tells the UI to show the check-in modal. The answer
// channel resolves the engine's blocked PromptPort call.
type MsgPromptOpen struct {
	Deadline time.Time
	Answer   chan engine.PromptAnswer
}

// MsgPromptClose tells the UI the prompt resolved without the operator
// (countdown expiry or engine shutdown).
type MsgPromptClose struct{}

type msgLoginDone struct {
	err error
}

type msgSubmitDone struct {
	err error
}

type msgRestoreDone struct {
	restored bool
	err      error
}

// Model is the bubbletea model for the tracker client.
type Model struct {
	eng    *engine.Engine
	builds BuildValidator

	screen screen
	width  int
	height int

	// Login form
	loginInput textinput.Model
	buildInput textinput.Model
	inputFocus int
	loggingIn  bool

	// Finish form
	partsInput textinput.Model

	// Check-in prompt
	promptAnswer   chan engine.PromptAnswer
	promptDeadline time.Time

	snap engine.Snapshot
	Err  error
}

// NewModel creates the client model. The engine must already be
// constructed; call Restore through the model's Init.
func NewModel(eng *engine.Engine, builds BuildValidator) *Model {
	login := textinput.New()
	login.Placeholder = "login id"
	login.CharLimit = 32
	login.Focus()

	build := textinput.New()
	build.Placeholder = "build number"
	build.CharLimit = 32

	parts := textinput.New()
	parts.Placeholder = "parts made"
	parts.CharLimit = 6

	return &Model{
		eng:        eng,
		builds:     builds,
		screen:     screenLogin,
		loginInput: login,
		buildInput: build,
		partsInput: parts,
	}
}

func (m *Model) Init() tea.Cmd {
	return func() tea.Msg {
		restored, err := m.eng.Restore(context.Background())
		return msgRestoreDone{restored: restored, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case MsgTick:
		m.eng.Tick(msg.Now)
		m.snap = m.eng.Snapshot()
		if m.snap.Finalized && m.screen != screenDone {
			m.screen = screenDone
		}
		return m, nil

	case MsgPromptOpen:
		m.promptAnswer = msg.Answer
		m.promptDeadline = msg.Deadline
		m.snap = m.eng.Snapshot()
		return m, nil

	case MsgPromptClose:
		m.promptAnswer = nil
		m.snap = m.eng.Snapshot()
		if m.snap.Finalized {
			m.screen = screenDone
		}
		return m, nil

	case msgRestoreDone:
		if msg.err != nil {
			m.Err = msg.err
		}
		m.snap = m.eng.Snapshot()
		if msg.restored {
			m.screen = screenTimer
		}
		if m.snap.Finalized {
			m.screen = screenDone
		}
		return m, nil

	case msgLoginDone:
		m.loggingIn = false
		if msg.err != nil {
			m.Err = msg.err
			return m, nil
		}
		m.Err = nil
		m.snap = m.eng.Snapshot()
		m.screen = screenTimer
		return m, nil

	case msgSubmitDone:
		if msg.err != nil {
			m.Err = msg.err
			m.snap = m.eng.Snapshot()
			return m, nil
		}
		m.Err = nil
		m.snap = m.eng.Snapshot()
		m.screen = screenDone
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}
	return m, nil
}

func (m *Model) View() string {
	if m.promptAnswer != nil {
		return m.promptView()
	}

	switch m.screen {
	case screenLogin:
		return m.loginView()
	case screenTimer:
		return m.timerView()
	case screenFinish:
		return m.finishView()
	case screenDone:
		return m.doneView()
	}
	return ""
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.promptAnswer != nil {
		return m.handlePromptInput(msg)
	}

	switch m.screen {
	case screenLogin:
		return m.handleLoginInput(msg)
	case screenTimer:
		return m.handleTimerInput(msg)
	case screenFinish:
		return m.handleFinishInput(msg)
	case screenDone:
		switch msg.String() {
		case "ctrl+c", "q", "enter":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) handlePromptInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.answerPrompt(engine.AnswerYes)
	case "n", "N":
		m.answerPrompt(engine.AnswerNo)
	case "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) answerPrompt(a engine.PromptAnswer) {
	if m.promptAnswer == nil {
		return
	}
	select {
	case m.promptAnswer <- a:
	default:
	}
	m.promptAnswer = nil
	m.snap = m.eng.Snapshot()
}

func (m *Model) handleLoginInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "shift+tab":
		m.inputFocus = 1 - m.inputFocus
		if m.inputFocus == 0 {
			m.loginInput.Focus()
			m.buildInput.Blur()
		} else {
			m.loginInput.Blur()
			m.buildInput.Focus()
		}
		return m, nil
	case "enter":
		if m.inputFocus == 0 {
			m.inputFocus = 1
			m.loginInput.Blur()
			m.buildInput.Focus()
			return m, nil
		}
		if m.loggingIn {
			return m, nil
		}
		loginID := m.loginInput.Value()
		buildNumber := m.buildInput.Value()
		if loginID == "" || buildNumber == "" {
			m.Err = models.ErrInvalidBuild
			return m, nil
		}
		m.loggingIn = true
		m.Err = nil
		return m, m.loginCmd(loginID, buildNumber)
	}

	var cmd tea.Cmd
	if m.inputFocus == 0 {
		m.loginInput, cmd = m.loginInput.Update(msg)
	} else {
		m.buildInput, cmd = m.buildInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) loginCmd(loginID, buildNumber string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		build, err := m.builds.ValidateBuild(ctx, buildNumber)
		if err != nil {
			return msgLoginDone{err: err}
		}
		if err := m.eng.Login(ctx, loginID, *build); err != nil {
			return msgLoginDone{err: err}
		}
		return msgLoginDone{}
	}
}

func (m *Model) handleTimerInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		// The snapshot survives on disk; the session resumes on next start
		return m, tea.Quit
	case " ", "p":
		if m.snap.Status == models.SessionStatusPaused {
			m.eng.Resume()
		} else {
			m.eng.Pause()
		}
		m.snap = m.eng.Snapshot()
	case "+", "=":
		m.eng.SetDefects(m.snap.Defects + 1)
		m.snap = m.eng.Snapshot()
	case "-", "_":
		if m.snap.Defects > 0 {
			m.eng.SetDefects(m.snap.Defects - 1)
			m.snap = m.eng.Snapshot()
		}
	case "f":
		m.partsInput.SetValue(strconv.Itoa(m.snap.Build.NumberOfParts))
		m.partsInput.Focus()
		m.screen = screenFinish
	}
	return m, nil
}

func (m *Model) handleFinishInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.screen = screenTimer
		m.Err = nil
		return m, nil
	case "enter":
		parts, err := strconv.Atoi(m.partsInput.Value())
		if err != nil || parts < 0 {
			m.Err = errInvalidParts
			return m, nil
		}
		m.Err = nil
		return m, func() tea.Msg {
			return msgSubmitDone{err: m.eng.SubmitManual(context.Background(), parts)}
		}
	}

	var cmd tea.Cmd
	m.partsInput, cmd = m.partsInput.Update(msg)
	return m, cmd
}
