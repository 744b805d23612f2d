package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/go-authgate/oauth-session/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Width(14)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ea44f"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d29922"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// errWaitCancelled is returned when the user quits the spinner.
var errWaitCancelled = errors.New("cancelled by user")

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

type waitResultMsg struct {
	target string
	err    error
}

type waitModel struct {
	spinner   spinner.Model
	label     string
	results   <-chan waitResultMsg
	result    *waitResultMsg
	cancelled bool
}

func newWaitModel(label string, results <-chan waitResultMsg) *waitModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = okStyle
	return &waitModel{spinner: s, label: label, results: results}
}

func (m *waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitFor(m.results))
}

func waitFor(results <-chan waitResultMsg) tea.Cmd {
	return func() tea.Msg {
		return <-results
	}
}

func (m *waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	case waitResultMsg:
		m.result = &msg
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *waitModel) View() string {
	if m.result != nil || m.cancelled {
		return ""
	}
	return fmt.Sprintf("%s %s %s\n", m.spinner.View(), m.label, mutedStyle.Render("(q to cancel)"))
}

// runWithSpinner runs fn while showing a spinner. Quitting the spinner
// cancels fn's context and returns errWaitCancelled.
func runWithSpinner(
	ctx context.Context,
	label string,
	fn func(ctx context.Context) (string, error),
) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The program consumes at most one message; the buffer lets fn finish
	// even when nobody reads it.
	results := make(chan waitResultMsg, 1)
	done := make(chan waitResultMsg, 1)
	go func() {
		target, err := fn(ctx)
		r := waitResultMsg{target: target, err: err}
		done <- r
		results <- r
	}()

	final, err := tea.NewProgram(newWaitModel(label, results), tea.WithContext(ctx)).Run()
	if err != nil {
		cancel()
		r := <-done
		if r.err != nil {
			return "", r.err
		}
		return r.target, nil
	}

	m, _ := final.(*waitModel)
	if m == nil || m.cancelled {
		cancel()
		<-done
		return "", errWaitCancelled
	}
	return m.result.target, m.result.err
}

// renderStatus describes the session for the status command.
func renderStatus(m *session.Manager) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}

	b.WriteString(titleStyle.Render("OAuth session") + "\n")
	cfg := m.Config()
	row("Client ID", cfg.ClientID)
	row("Provider", cfg.OAuthBaseURL)
	row("API host", cfg.APIHost)

	state := m.State()
	switch state {
	case session.Authorized:
		row("State", okStyle.Render(state.String()))
	case session.PendingCallback:
		row("State", warnStyle.Render(state.String()))
	default:
		row("State", mutedStyle.Render(state.String()))
	}

	token := m.AccessToken()
	if token == "" {
		return b.String()
	}
	preview := token
	if len(preview) > 20 {
		preview = preview[:20] + "..."
	}
	row("Access token", preview)

	if info, ok := session.InspectToken(token); ok {
		if info.Subject != "" {
			row("Subject", info.Subject)
		}
		if info.Issuer != "" {
			row("Issuer", info.Issuer)
		}
		if !info.ExpiresAt.IsZero() {
			remaining := time.Until(info.ExpiresAt).Round(time.Second)
			if remaining <= 0 {
				row("Expires", warnStyle.Render("expired "+info.ExpiresAt.Format(time.RFC3339)))
			} else {
				row("Expires", fmt.Sprintf("in %s (%s)", remaining, info.ExpiresAt.Format(time.RFC3339)))
			}
		}
	}
	return b.String()
}
