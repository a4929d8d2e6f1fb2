package tui

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/xrayview/analysis"
	"github.com/pithecene-io/xrayview/workflow"
)

// ImageLoader fetches a result image and reports it loaded to the workflow.
type ImageLoader func(ctx context.Context, url string) (*analysis.Image, error)

// Advisories carries blocking advisories from the workflow to the UI.
type Advisories struct {
	ch chan string
}

// NewAdvisories creates an advisory channel.
func NewAdvisories() *Advisories {
	return &Advisories{ch: make(chan string, 4)}
}

// Advise is a workflow.Advisor. Advisories beyond the buffer are dropped
// while earlier ones are still on screen.
func (a *Advisories) Advise(msg string) {
	select {
	case a.ch <- msg:
	default:
	}
}

// Options configures the upload UI.
type Options struct {
	Workflow   *workflow.Workflow
	LoadImage  ImageLoader
	Advisories *Advisories
	// StartDir is where the file picker opens (default: working directory).
	StartDir string
}

// Run starts the upload UI and blocks until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	if opts.Workflow == nil {
		return errors.New("tui requires a workflow")
	}
	m := NewModel(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// keyMap defines key bindings.
type keyMap struct {
	Quit    key.Binding
	Upload  key.Binding
	Focus   key.Binding
	Dismiss key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Upload: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "upload & analyze"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch picker/report"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("enter", "esc", " "),
		key.WithHelp("enter", "ok"),
	),
}
