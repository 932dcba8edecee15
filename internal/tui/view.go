package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/prodline/tracker/internal/models"
)

var errInvalidParts = errors.New("parts made must be a non-negative number")

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true).
			Align(lipgloss.Center)

	timerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("69")).
			Bold(true)

	overtimeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	pausedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	promptBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(1, 2)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func (m *Model) place(content string) string {
	w, h := m.width, m.height
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}
	return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) loginView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Production Tracker"))
	sb.WriteString("\n\n")
	sb.WriteString(labelStyle.Render("Login ID") + "\n")
	sb.WriteString(m.loginInput.View() + "\n\n")
	sb.WriteString(labelStyle.Render("Build Number") + "\n")
	sb.WriteString(m.buildInput.View() + "\n\n")

	if m.loggingIn {
		sb.WriteString(pausedStyle.Render("Validating build...") + "\n\n")
	} else if m.Err != nil {
		sb.WriteString(errStyle.Render(m.loginErrText()) + "\n\n")
	}

	sb.WriteString(helpStyle.Render("Tab: Switch | Enter: Start session | Esc: Quit"))
	return m.place(boxStyle.Width(50).Render(sb.String()))
}

func (m *Model) loginErrText() string {
	switch {
	case errors.Is(m.Err, models.ErrBuildNotFound):
		return "Unknown build number"
	case errors.Is(m.Err, models.ErrInvalidBuild):
		return "Enter a login id and a valid build number"
	case errors.Is(m.Err, models.ErrLockHeld):
		return "A session for this login id is already running elsewhere"
	default:
		return m.Err.Error()
	}
}

func (m *Model) timerView() string {
	snap := m.snap

	var sb strings.Builder
	sb.WriteString(titleStyle.Width(46).Render("Build " + snap.Build.BuildNumber))
	sb.WriteString("\n\n")

	display := snap.TimeLeft
	switch {
	case snap.Overtime:
		sb.WriteString(overtimeStyle.Render(display) + "  " + overtimeStyle.Render("OVERTIME"))
	case snap.Status == models.SessionStatusPaused:
		sb.WriteString(pausedStyle.Render(display) + "  " + pausedStyle.Render("PAUSED"))
	default:
		sb.WriteString(timerStyle.Render(display) + "  " + runningStyle.Render("RUNNING"))
	}
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Operator:"), snap.LoginID))
	sb.WriteString(fmt.Sprintf("%s %d x %.1f min\n", labelStyle.Render("Target:"), snap.Build.NumberOfParts, snap.Build.TimePerPart))
	sb.WriteString(fmt.Sprintf("%s %d\n", labelStyle.Render("Defects:"), snap.Defects))

	if snap.SubmitError != "" {
		sb.WriteString("\n" + errStyle.Render("Submit failed, will retry: "+snap.SubmitError) + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("Space: Pause/Resume | +/-: Defects | f: Finish | q: Quit (session kept)"))
	return m.place(boxStyle.Width(50).Render(sb.String()))
}

func (m *Model) promptView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Width(42).Render("Still working?"))
	sb.WriteString("\n\n")
	sb.WriteString("Auto-submit in " + overtimeStyle.Render(m.snap.PromptRemaining))
	sb.WriteString("\n\n")
	sb.WriteString(helpStyle.Render("y: Yes, keep going | n: No"))
	return m.place(promptBoxStyle.Width(46).Render(sb.String()))
}

func (m *Model) finishView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Finish Session"))
	sb.WriteString("\n\n")
	sb.WriteString(labelStyle.Render("Parts made") + "\n")
	sb.WriteString(m.partsInput.View() + "\n\n")
	sb.WriteString(fmt.Sprintf("%s %d\n\n", labelStyle.Render("Defects:"), m.snap.Defects))

	if m.Err != nil {
		sb.WriteString(errStyle.Render(m.Err.Error()) + "\n\n")
	}

	sb.WriteString(helpStyle.Render("Enter: Submit | Esc: Back"))
	return m.place(boxStyle.Width(50).Render(sb.String()))
}

func (m *Model) doneView() string {
	snap := m.snap

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Session Complete"))
	sb.WriteString("\n\n")

	kind := "submitted"
	if snap.SubmissionType == models.SubmissionAuto {
		kind = "auto-submitted after an unanswered check-in"
	}
	sb.WriteString(fmt.Sprintf("Session for %s on build %s was %s.\n", snap.LoginID, snap.Build.BuildNumber, kind))

	if snap.SubmitError != "" {
		sb.WriteString("\n" + errStyle.Render("Last submit attempt failed: "+snap.SubmitError))
		sb.WriteString("\n" + helpStyle.Render("The session is kept locally and resubmits on next start."))
	}

	sb.WriteString("\n\n")
	sb.WriteString(helpStyle.Render("Enter or q: Exit"))
	return m.place(boxStyle.Width(56).Render(sb.String()))
}
