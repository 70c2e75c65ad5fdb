package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/fanout/internal/adapters/render/progress"
	"github.com/bnema/fanout/internal/ports"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type shareDoneMsg struct {
	err error
}

type shareProgressMsg string

type shareSpinnerModel struct {
	spinner spinner.Model
	label   string
	err     error
	done    bool
}

func newShareSpinnerModel(label string) shareSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return shareSpinnerModel{
		spinner: s,
		label:   label,
	}
}

func (m shareSpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m shareSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case shareProgressMsg:
		m.label = string(msg)
		return m, nil
	case shareDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m shareSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// runShareSpinner shows a spinner on output while dispatch runs. Progress
// reported by the dispatcher replaces the spinner label. When the spinner stops
// early (Ctrl-C or ctx done) the dispatch context is canceled and the partial
// result of dispatch is returned once it has wound down.
func runShareSpinner(ctx context.Context, output io.Writer, label string, dispatch func(context.Context, ports.ProgressReporter) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(
		newShareSpinnerModel(label),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)
	reporter := progress.FuncReporter(func(text string) {
		p.Send(shareProgressMsg(text))
	})

	done := make(chan error, 1)
	go func() {
		err := dispatch(ctx, reporter)
		done <- err
		p.Send(shareDoneMsg{err: err})
	}()

	_, runErr := p.Run()
	if runErr != nil {
		cancel()
	}
	err := <-done
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) && !errors.Is(runErr, tea.ErrInterrupted) {
		return runErr
	}

	return err
}
