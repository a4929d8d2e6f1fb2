package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/xrayview/analysis"
	"github.com/pithecene-io/xrayview/formatting"
	"github.com/pithecene-io/xrayview/types"
	"github.com/pithecene-io/xrayview/view"
	"github.com/pithecene-io/xrayview/workflow"
)

type focusArea int

const (
	focusPicker focusArea = iota
	focusReport
)

const (
	defaultWidth  = 80
	pickerHeight  = 10
	reportHeight  = 8
	chromeColumns = 4
)

// Messages delivered to Update.
type (
	stateMsg      struct{}
	advisoryMsg   string
	submitDoneMsg struct{ err error }
	imageMsg      struct {
		url string
		img *analysis.Image
		err error
	}
)

// Model is the upload & analyze screen.
type Model struct {
	ctx        context.Context
	wf         *workflow.Workflow
	load       ImageLoader
	signals    chan struct{}
	advisories <-chan string
	unsub      func()

	picker  filepicker.Model
	spinner spinner.Model
	report  viewport.Model
	focus   focusArea

	state     workflow.State
	page      view.Page
	images    map[string]*analysis.Image
	imageErrs map[string]string
	inflight  map[string]bool
	shown     [2]string
	advisory  string
	note      string

	width    int
	quitting bool
}

// NewModel creates the model and subscribes it to the workflow.
// Call Close when the program exits.
func NewModel(ctx context.Context, opts Options) *Model {
	fp := filepicker.New()
	fp.AllowedTypes = types.AdvisedExtensions
	fp.AutoHeight = false
	fp.Height = pickerHeight
	fp.CurrentDirectory = opts.StartDir
	if fp.CurrentDirectory == "" {
		if wd, err := os.Getwd(); err == nil {
			fp.CurrentDirectory = wd
		}
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(WarningStyle))

	m := &Model{
		ctx:       ctx,
		wf:        opts.Workflow,
		load:      opts.LoadImage,
		signals:   make(chan struct{}, 1),
		picker:    fp,
		spinner:   sp,
		report:    viewport.New(defaultWidth-chromeColumns, reportHeight),
		images:    map[string]*analysis.Image{},
		imageErrs: map[string]string{},
		inflight:  map[string]bool{},
		width:     defaultWidth,
	}
	if opts.Advisories != nil {
		m.advisories = opts.Advisories.ch
	}
	m.unsub = m.wf.Subscribe(func(workflow.State) {
		select {
		case m.signals <- struct{}{}:
		default:
		}
	})
	m.sync()
	return m
}

// Close unsubscribes from the workflow.
func (m *Model) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.picker.Init(), m.spinner.Tick, m.waitForState(), m.waitForAdvisory())
}

func (m *Model) waitForState() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.signals:
			return stateMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) waitForAdvisory() tea.Cmd {
	if m.advisories == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case msg := <-m.advisories:
			return advisoryMsg(msg)
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Model) submit() tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: m.wf.Submit(m.ctx)}
	}
}

func (m *Model) fetchImage(url string) tea.Cmd {
	return func() tea.Msg {
		img, err := m.load(m.ctx, url)
		return imageMsg{url: url, img: img, err: err}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.report.Width = max(msg.Width-chromeColumns, 20)
		return m, nil

	case stateMsg:
		return m, tea.Batch(append(m.sync(), m.waitForState())...)

	case advisoryMsg:
		m.advisory = string(msg)
		return m, m.waitForAdvisory()

	case submitDoneMsg:
		// Outcomes reach the screen through state; only the advisory
		// path and superseded submissions end here without a change.
		return m, nil

	case imageMsg:
		delete(m.inflight, msg.url)
		if msg.err != nil {
			m.imageErrs[msg.url] = msg.err.Error()
		} else {
			m.images[msg.url] = msg.img
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.advisory != "" {
			if key.Matches(msg, keys.Dismiss) {
				m.advisory = ""
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Upload):
			if m.page.Button.Disabled {
				return m, nil
			}
			m.forgetImages()
			return m, m.submit()
		case key.Matches(msg, keys.Focus):
			if m.focus == focusPicker {
				m.focus = focusReport
			} else {
				m.focus = focusPicker
			}
			return m, nil
		}
		if m.focus == focusReport {
			var cmd tea.Cmd
			m.report, cmd = m.report.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.note = ""
		m.wf.SelectFile(types.LocalFile{Path: path})
	}
	if ok, path := m.picker.DidSelectDisabledFile(msg); ok {
		f := types.LocalFile{Path: path}
		m.note = fmt.Sprintf("%s is not a %s file; it will be uploaded as is.", f.Name(), strings.Join(types.AdvisedExtensions, "/"))
		m.wf.SelectFile(f)
	}
	return m, cmd
}

// sync pulls the current snapshot and returns fetch commands for result
// images that are still hidden. Every fetch is a fresh load event, so a
// repeated result with the same URLs is revealed again.
func (m *Model) sync() []tea.Cmd {
	m.state = m.wf.Snapshot()
	m.page = view.Build(m.state)
	m.report.SetContent(lipgloss.NewStyle().Width(m.report.Width).Render(m.page.Report.Text))

	if urls := [2]string{m.state.OriginalImageURL, m.state.AnnotatedImageURL}; urls != m.shown {
		m.forgetImages()
		m.shown = urls
	}

	var cmds []tea.Cmd
	if m.load == nil {
		return cmds
	}
	for _, img := range m.page.Images {
		if img.Visible || m.inflight[img.URL] || m.imageErrs[img.URL] != "" {
			continue
		}
		m.inflight[img.URL] = true
		cmds = append(cmds, m.fetchImage(img.URL))
	}
	return cmds
}

// forgetImages drops fetched images and errors from earlier results.
// Fetches still in flight complete and are cached as usual.
func (m *Model) forgetImages() {
	clear(m.images)
	clear(m.imageErrs)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.advisory != "" {
		modal := ModalStyle.Render(m.advisory + "\n\n" + LabelStyle.Render("Press enter to continue"))
		return lipgloss.Place(m.width, pickerHeight+reportHeight, lipgloss.Center, lipgloss.Center, modal)
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(m.page.Title))
	b.WriteString("\n")

	b.WriteString(SectionStyle.Render(m.page.FileLabel))
	b.WriteString("\n")
	if m.focus == focusPicker {
		b.WriteString(m.picker.View())
		b.WriteString("\n")
	}
	b.WriteString(LabelStyle.Render("Selected: "))
	b.WriteString(ValueStyle.Render(m.page.SelectedFile))
	b.WriteString("\n")
	if m.note != "" {
		b.WriteString(WarningStyle.Render(m.note))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.renderButton())
	b.WriteString("\n")
	if m.page.ErrorBanner != "" {
		b.WriteString(ErrorStyle.Render("Error: " + m.page.ErrorBanner))
		b.WriteString("\n")
	}

	if panels := m.renderImages(); panels != "" {
		b.WriteString("\n")
		b.WriteString(panels)
		b.WriteString("\n")
	}

	if len(m.page.Findings) > 0 {
		b.WriteString(SectionStyle.Render("Findings"))
		b.WriteString("\n")
		for _, f := range m.page.Findings {
			b.WriteString(SuccessStyle.Render("  • " + f.Label))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(SectionStyle.Render(m.page.Report.Title))
	b.WriteString("\n")
	b.WriteString(m.renderReport())

	b.WriteString(HelpStyle.Render("enter select • u upload & analyze • tab switch picker/report • q quit"))
	return b.String()
}

func (m *Model) renderButton() string {
	if m.page.Button.Disabled {
		return m.spinner.View() + " " + ButtonDisabledStyle.Render(m.page.Button.Label)
	}
	return ButtonStyle.Render(m.page.Button.Label)
}

// renderImages draws the image panels once any image has loaded.
func (m *Model) renderImages() string {
	var panels []string
	for _, p := range m.page.Images {
		if !p.Visible {
			continue
		}
		var body string
		switch img, ok := m.images[p.URL]; {
		case ok:
			body = SuccessStyle.Render(fmt.Sprintf("%s %dx%d, %s",
				strings.ToUpper(img.Format), img.Width, img.Height, formatting.FormatBytes(img.Size, 1)))
		case m.imageErrs[p.URL] != "":
			body = ErrorStyle.Render(m.imageErrs[p.URL])
		default:
			body = WarningStyle.Render("loading...")
		}
		panels = append(panels, BoxStyle.Render(
			SectionStyle.Render(p.Title)+"\n"+LabelStyle.Render(p.URL)+"\n"+body,
		))
	}
	if len(panels) == 0 {
		if len(m.page.Images) > 0 {
			return WarningStyle.Render("Loading images...")
		}
		return ""
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, panels...)
}

func (m *Model) renderReport() string {
	style := ReportStyle(m.page.Report.Kind)
	if m.page.Report.Kind != view.ReportKindText {
		if m.page.Report.Kind == view.ReportKindGenerating {
			return m.spinner.View() + " " + style.Render(m.page.Report.Text) + "\n"
		}
		return style.Render(m.page.Report.Text) + "\n"
	}
	box := BoxStyle
	if m.focus == focusReport {
		box = box.BorderForeground(highlightColor)
	}
	return box.Render(m.report.View()) + "\n"
}

// State returns the last synced snapshot.
func (m *Model) State() workflow.State { return m.state }
