// Package chat implements the interactive UrduWhiz terminal: a
// conversation viewport over a textarea, with a session sidebar and an
// upload prompt. All backend work runs in tea commands; the model itself
// never blocks.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"urduwhiz/cmd/whiz/ui"
	"urduwhiz/internal/auth"
	"urduwhiz/internal/session"
)

// StarterQuestions are suggested first questions, shown while the
// conversation is empty.
var StarterQuestions = []string{
	"اس کہانی کا خلاصہ کیا ہے؟",
	"اس کہانی میں اہم کردار کون کون سے ہیں؟",
	"اس کہانی سے ہمیں کیا سبق حاصل ہوتا ہے؟",
}

// Deps carries the wired client stack into the UI.
type Deps struct {
	Auth       *auth.Manager
	Sessions   *session.Manager
	Dispatcher *session.Dispatcher
	Store      *auth.Store
	Logger     *zap.Logger
	Theme      string
}

type mode int

const (
	modeChat mode = iota
	modeSessions
	modeUpload
)

// keyMap defines the global key bindings.
type keyMap struct {
	Send     key.Binding
	NewChat  key.Binding
	Sessions key.Binding
	Upload   key.Binding
	Delete   key.Binding
	Back     key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	NewChat:  key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new chat")),
	Sessions: key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "sessions")),
	Upload:   key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "upload pdf")),
	Delete:   key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "delete")),
	Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

// Model is the root bubbletea model.
type Model struct {
	deps   Deps
	styles ui.Styles
	logger *zap.Logger

	mode     mode
	width    int
	height   int
	ready    bool
	quitting bool

	viewport  viewport.Model
	input     textarea.Model
	pathInput textarea.Model
	spin      spinner.Model
	sidebar   list.Model
	renderer  *glamour.TermRenderer

	authState auth.State
	waiting   bool
	uploading bool
	status    string
	errText   string
	welcome   bool
}

// New builds the chat model. The auth bootstrap and session refresh run as
// the init commands; until they settle the view shows the boot spinner.
func New(deps Deps) Model {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	styles := ui.NewStyles(ui.ThemeByName(deps.Theme))

	input := textarea.New()
	input.Placeholder = "...اپنا سوال یہاں لکھیں"
	input.ShowLineNumbers = false
	input.SetHeight(2)
	input.CharLimit = 2000
	input.Focus()

	pathInput := textarea.New()
	pathInput.Placeholder = "/path/to/story.pdf"
	pathInput.ShowLineNumbers = false
	pathInput.SetHeight(1)

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = styles.Spinner

	delegate := list.NewDefaultDelegate()
	sidebar := list.New(nil, delegate, 0, 0)
	sidebar.Title = "Sessions"
	sidebar.SetShowStatusBar(false)
	sidebar.SetFilteringEnabled(false)

	return Model{
		deps:      deps,
		styles:    styles,
		logger:    logger,
		viewport:  viewport.New(0, 0),
		input:     input,
		pathInput: pathInput,
		spin:      spin,
		sidebar:   sidebar,
		authState: auth.StateBooting,
		welcome:   deps.Store.ConsumeLoginMarker(),
	}
}

// Init starts the auth bootstrap alongside the spinner tick.
func (m Model) Init() tea.Cmd {
	return tea.Batch(bootstrap(m.deps.Auth), m.spin.Tick)
}

// Update routes messages by mode.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.mode {
		case modeSessions:
			return m.updateSessions(msg)
		case modeUpload:
			return m.updateUpload(msg)
		default:
			return m.updateChat(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.waiting {
			// Picks up the optimistic echo while the answer is in flight.
			m.syncConversation()
		}
		return m, cmd

	case bootstrapMsg:
		m.authState = msg.state
		if m.authState == auth.StateAuthenticated {
			return m, refreshSessions(m.deps.Sessions)
		}
		return m, nil

	case authExpiredMsg:
		// A 401 survived the refresh cycle mid-conversation.
		m.authState = auth.StateAnonymous
		m.errText = "Session expired. Run 'whiz login' and restart."
		return m, nil

	case sessionsRefreshedMsg:
		if msg.err != nil {
			m.errText = friendlyError(msg.err)
			return m, nil
		}
		m.reloadSidebar()
		return m, nil

	case sessionLoadedMsg:
		m.mode = modeChat
		m.status = ""
		m.errText = ""
		m.input.Focus()
		m.syncConversation()
		return m, nil

	case sendStartedMsg:
		m.waiting = true
		m.syncConversation()
		return m, tea.Batch(msg.cmd, m.spin.Tick)

	case sendResultMsg:
		m.waiting = false
		if msg.err != nil {
			m.errText = friendlyError(msg.err)
		}
		m.syncConversation()
		return m, nil

	case uploadResultMsg:
		m.uploading = false
		if msg.err != nil {
			m.errText = friendlyError(msg.err)
			return m, nil
		}
		m.errText = ""
		m.status = msg.note
		m.mode = modeChat
		m.input.Focus()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		if !m.deps.Sessions.Gate().Open() {
			m.errText = "Upload a PDF first (ctrl+u)."
			return m, nil
		}
		m.input.Reset()
		m.errText = ""
		// The optimistic echo appears on the next sync; the answer (or the
		// fallback) lands with sendResultMsg.
		return m, func() tea.Msg {
			return sendStartedMsg{cmd: send(m.deps.Dispatcher, text)}
		}

	case key.Matches(msg, keys.NewChat):
		m.deps.Sessions.NewChat()
		m.status = ""
		m.errText = ""
		m.syncConversation()
		return m, nil

	case key.Matches(msg, keys.Sessions):
		m.mode = modeSessions
		m.input.Blur()
		m.reloadSidebar()
		return m, refreshSessions(m.deps.Sessions)

	case key.Matches(msg, keys.Upload):
		m.mode = modeUpload
		m.input.Blur()
		m.pathInput.Reset()
		m.pathInput.Focus()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateSessions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.mode = modeChat
		m.input.Focus()
		return m, nil

	case key.Matches(msg, keys.Send):
		item, ok := m.sidebar.SelectedItem().(sessionItem)
		if !ok {
			return m, nil
		}
		return m, loadSession(m.deps.Sessions, item.session.SessionID)

	case key.Matches(msg, keys.Delete):
		item, ok := m.sidebar.SelectedItem().(sessionItem)
		if !ok {
			return m, nil
		}
		// Local removal is immediate; the backend call is absorbed.
		return m, deleteSession(m.deps.Sessions, item.session.SessionID)
	}

	var cmd tea.Cmd
	m.sidebar, cmd = m.sidebar.Update(msg)
	return m, cmd
}

func (m *Model) updateUpload(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.mode = modeChat
		m.pathInput.Blur()
		m.input.Focus()
		return m, nil

	case key.Matches(msg, keys.Send):
		path := strings.TrimSpace(m.pathInput.Value())
		if path == "" {
			return m, nil
		}
		if m.deps.Sessions.Gate().InFlight() {
			m.errText = "An upload is already in progress."
			return m, nil
		}
		m.uploading = true
		m.errText = ""
		return m, tea.Batch(upload(m.deps.Sessions, path), m.spin.Tick)
	}

	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.ready = true

	contentWidth := width - sidebarWidth - 2
	if contentWidth < 20 {
		contentWidth = 20
	}

	m.viewport.Width = contentWidth
	m.viewport.Height = height - 8
	m.input.SetWidth(contentWidth)
	m.pathInput.SetWidth(contentWidth)
	m.sidebar.SetSize(sidebarWidth, height-4)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(contentWidth-4),
	)
	if err == nil {
		m.renderer = renderer
	}
	m.syncConversation()
}

func (m *Model) reloadSidebar() {
	sessions := m.deps.Sessions.Sessions()
	items := make([]list.Item, len(sessions))
	for i, s := range sessions {
		items[i] = sessionItem{session: s}
	}
	m.sidebar.SetItems(items)
}
