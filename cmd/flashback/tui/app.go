package tui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/flashback/pkg/flashback/coordinator"
	"github.com/jamesainslie/flashback/pkg/flashback/types"
)

// Coordinator is the part of *coordinator.Coordinator the view drives.
type Coordinator interface {
	Updates() <-chan coordinator.Update
	StartScan(ctx context.Context) (types.ScanSession, error)
	Rescan(ctx context.Context) (types.ScanSession, error)
	SetFilter(ctx context.Context, text string, fileTypes []string) error
	GoToPage(ctx context.Context, n int) (types.ResultPage, error)
}

// AppState is the view currently shown.
type AppState int

const (
	StateScanning AppState = iota
	StateResults
)

// Options configures the TUI.
type Options struct {
	Project types.ProjectRef

	// Rescan discards an existing session instead of joining it.
	Rescan bool
}

// Model is the main Bubble Tea model.
type Model struct {
	coord   Coordinator
	ctx     context.Context
	cancel  context.CancelFunc
	options Options

	state   AppState
	scan    ScanModel
	results ResultModel

	// switched is set once the view left the scan by itself, so that a
	// user who tabs back to it is not pulled away again.
	switched bool
	width    int
	height   int
}

// updateMsg carries a coordinator update.
type updateMsg coordinator.Update

// updatesClosedMsg means the coordinator was closed.
type updatesClosedMsg struct{}

// scanStartedMsg reports the outcome of a start or rescan.
type scanStartedMsg struct {
	session types.ScanSession
	err     error
}

// pageMsg reports the outcome of a page or filter request.
type pageMsg struct {
	page types.ResultPage
	err  error
	// partial is set for requests that do not return a page
	partial bool
}

// NewModel creates the TUI model.
func NewModel(ctx context.Context, coord Coordinator, opts Options) Model {
	ctx, cancel := context.WithCancel(ctx)
	label := opts.Project.Label()
	return Model{
		coord:   coord,
		ctx:     ctx,
		cancel:  cancel,
		options: opts,
		state:   StateScanning,
		scan:    NewScanModel(label),
		results: NewResultModel(label),
		width:   80,
		height:  24,
	}
}

// Init starts the scan and begins listening for updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.scan.Init(), m.start(m.options.Rescan), m.listen())
}

// State returns the view currently shown.
func (m Model) State() AppState {
	return m.state
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scan.SetSize(msg.Width, msg.Height)
		m.results.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case updateMsg:
		m.apply(coordinator.Update(msg))
		return m, m.listen()

	case updatesClosedMsg:
		return m, tea.Quit

	case scanStartedMsg:
		if msg.err != nil {
			m.scan.SetError(msg.err)
		}
		if msg.session.ProjectID != "" {
			m.scan.SetSession(msg.session)
			m.results.SetStatus(msg.session.Status)
		}
		return m, nil

	case pageMsg:
		if msg.err != nil {
			if !errors.Is(msg.err, context.Canceled) {
				m.results.SetError(msg.err.Error())
			}
			return m, nil
		}
		if !msg.partial {
			m.results.SetPage(msg.page)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.scan.spinner, cmd = m.scan.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) apply(u coordinator.Update) {
	m.scan.SetSession(u.Session)
	m.results.SetStatus(u.Session.Status)
	if u.PageLoaded {
		m.results.SetPage(u.Page)
	}
	if u.Session.Status == types.StatusComplete && m.state == StateScanning && !m.switched {
		m.state = StateResults
		m.switched = true
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	if m.state == StateResults && m.results.filter.Focused() {
		return m.handleFilterKey(msg)
	}

	switch key {
	case "q", "esc":
		m.cancel()
		return m, tea.Quit
	case "tab":
		m.switched = true
		if m.state == StateScanning {
			m.state = StateResults
		} else {
			m.state = StateScanning
		}
		return m, nil
	case "r":
		if m.scan.Session().Status == types.StatusRunning {
			return m, nil
		}
		m.state = StateScanning
		m.switched = false
		return m, m.start(true)
	}

	if m.state != StateResults {
		return m, nil
	}

	switch key {
	case "/":
		return m, m.results.filter.Focus()
	case "t":
		fileTypes := m.results.CycleType()
		return m, m.setFilter(m.results.filter.Value(), fileTypes)
	case "right", "l", "n":
		page := m.results.Page()
		if page.Page < page.TotalPages {
			return m, m.goToPage(page.Page + 1)
		}
		return m, nil
	case "left", "h", "p":
		page := m.results.Page()
		if page.Page > 1 {
			return m, m.goToPage(page.Page - 1)
		}
		return m, nil
	default:
		m.results.HandleKey(key)
		return m, nil
	}
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter":
		m.results.filter.Blur()
		return m, nil
	}

	before := m.results.filter.Value()
	var cmd tea.Cmd
	m.results.filter, cmd = m.results.filter.Update(msg)
	if after := m.results.filter.Value(); after != before {
		return m, tea.Batch(cmd, m.setFilter(after, m.results.Types()))
	}
	return m, cmd
}

// View renders the current state.
func (m Model) View() string {
	if m.state == StateResults {
		return m.results.View()
	}
	return m.scan.View()
}

func (m Model) start(rescan bool) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		var (
			sess types.ScanSession
			err  error
		)
		if rescan {
			sess, err = coord.Rescan(ctx)
		} else {
			sess, err = coord.StartScan(ctx)
		}
		return scanStartedMsg{session: sess, err: err}
	}
}

func (m Model) listen() tea.Cmd {
	updates := m.coord.Updates()
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m Model) goToPage(n int) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		page, err := coord.GoToPage(ctx, n)
		return pageMsg{page: page, err: err}
	}
}

// setFilter returns a partial pageMsg: the page itself arrives as an
// update once the (possibly debounced) query completes.
func (m Model) setFilter(text string, fileTypes []string) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return pageMsg{err: coord.SetFilter(ctx, text, fileTypes), partial: true}
	}
}

// Run shows the TUI until the user quits.
func Run(ctx context.Context, coord Coordinator, opts Options) error {
	model := NewModel(ctx, coord, opts)
	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(Model); ok {
		m.cancel()
	}
	return err
}
