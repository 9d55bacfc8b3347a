package tuicmder

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/localmind/smriti/pkg/transcript"
)

type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

// chatManager is the part of transcript.Manager the TUI drives.
type chatManager interface {
	Store() *transcript.Store
	Send(ctx context.Context, key, text string) (*transcript.Handle, error)
	Active(key string) (*transcript.Handle, bool)
	Delete(ctx context.Context, key string) error
	Refresh(ctx context.Context) error
}

type tuiModel struct {
	ctx       context.Context
	manager   chatManager
	updates   <-chan transcript.Update
	modelName string

	entries  []transcript.Entry
	cursor   int
	selected string
	focus    focusArea
	status   string

	input    textinput.Model
	viewport viewport.Model
	keys     tuiKeyMap
	help     help.Model

	width  int
	height int
}

type tuiKeyMap struct {
	Send    key.Binding
	Focus   key.Binding
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	New     key.Binding
	Cancel  key.Binding
	Delete  key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k tuiKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Focus, k.New, k.Cancel, k.Refresh, k.Help, k.Quit}
}

func (k tuiKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Focus, k.New, k.Cancel},
		{k.Down, k.Up, k.Open, k.Delete},
		{k.Refresh, k.Help, k.Quit},
	}
}

func defaultKeyMap() tuiKeyMap {
	return tuiKeyMap{
		Send:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Focus:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "chats/input")),
		Up:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "up")),
		Down:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "down")),
		Open:    key.NewBinding(key.WithKeys("enter", "l"), key.WithHelp("enter", "open")),
		New:     key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new chat")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop reply")),
		Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Refresh: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

// storeUpdateMsg carries one transcript change into the program.
type storeUpdateMsg transcript.Update

type replyDoneMsg struct {
	key string
	err error
}

type refreshedMsg struct {
	err error
}

type deletedMsg struct {
	key string
	err error
}

func newTUIModel(ctx context.Context, manager chatManager, updates <-chan transcript.Update, selected string) tuiModel {
	input := textinput.New()
	input.Prompt = userPromptStyle.Render("you> ")
	input.Placeholder = "Message"
	input.Focus()

	m := tuiModel{
		ctx:      ctx,
		manager:  manager,
		updates:  updates,
		selected: manager.Store().Resolve(selected),
		focus:    focusInput,
		input:    input,
		viewport: viewport.New(0, 0),
		keys:     defaultKeyMap(),
		help:     help.New(),
	}
	m.reload()
	m.cursorToSelected()
	return m
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), textinput.Blink)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case storeUpdateMsg:
		m.applyUpdate(transcript.Update(msg))
		return m, waitForUpdate(m.updates)

	case replyDoneMsg:
		switch {
		case msg.err == nil:
			m.status = ""
		case errors.Is(msg.err, context.Canceled):
			m.status = "reply stopped"
		default:
			m.status = "reply failed: " + msg.err.Error()
		}
		m.reload()
		return m, nil

	case refreshedMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.status = "chats refreshed"
		}
		m.reload()
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			m.status = "delete failed: " + msg.err.Error()
		} else {
			m.status = "chat deleted"
		}
		m.reload()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Focus):
		if m.focus == focusInput {
			m.focus = focusList
			m.input.Blur()
			return m, nil
		}
		m.focus = focusInput
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.New):
		m.selected = ""
		m.focus = focusInput
		m.status = ""
		m.renderTranscript()
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Cancel):
		if m.selected != "" {
			if h, ok := m.manager.Active(m.selected); ok {
				h.Cancel()
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.status = "refreshing chats"
		return m, refreshCmd(m.ctx, m.manager)
	}

	if m.focus == focusList {
		return m.handleListKey(msg)
	}

	if key.Matches(msg, m.keys.Send) {
		return m.send()
	}

	switch msg.String() {
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Open):
		if len(m.entries) == 0 {
			return m, nil
		}
		m.selected = m.entries[m.cursor].Key
		m.focus = focusInput
		m.status = ""
		m.renderTranscript()
		m.viewport.GotoBottom()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Delete):
		if len(m.entries) == 0 {
			return m, nil
		}
		target := m.entries[m.cursor].Key
		m.status = "deleting chat"
		return m, deleteCmd(m.ctx, m.manager, target)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize(m.width, m.height)
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m tuiModel) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	h, err := m.manager.Send(m.ctx, m.selected, text)
	if err != nil {
		m.status = err.Error()
		return m, nil
	}

	m.input.Reset()
	m.selected = h.Key()
	m.status = ""
	m.reload()
	m.cursorToSelected()
	m.viewport.GotoBottom()
	return m, waitForReply(h)
}

// applyUpdate follows the open chat through renames and deletes, then
// re-reads the store. Watchers may miss updates, so the store is the source.
func (m *tuiModel) applyUpdate(u transcript.Update) {
	switch {
	case u.Renamed != "" && u.Renamed == m.selected:
		m.selected = u.Key
	case u.Deleted && u.Key == m.selected:
		m.selected = ""
	}
	m.reload()
}

func (m *tuiModel) reload() {
	m.entries = m.manager.Store().List()
	if m.selected != "" {
		m.selected = m.manager.Store().Resolve(m.selected)
		if _, ok := m.manager.Store().Get(m.selected); !ok {
			m.selected = ""
		}
	}
	m.cursor = clamp(m.cursor, len(m.entries)-1)
	m.renderTranscript()
}

func (m *tuiModel) moveCursor(delta int) {
	if len(m.entries) == 0 {
		return
	}
	m.cursor = clamp(m.cursor+delta, len(m.entries)-1)
}

func (m *tuiModel) cursorToSelected() {
	for i, e := range m.entries {
		if e.Key == m.selected {
			m.cursor = i
			return
		}
	}
}

func (m *tuiModel) resize(width, height int) {
	m.width = width
	m.height = height

	listWidth := listColumnWidth(width)
	transcriptWidth := max(width-listWidth-3, 10)

	// header + input inside the right column, status + help below both.
	footer := 2
	if m.help.ShowAll {
		footer = 1 + len(m.keys.FullHelp()[0])
	}
	m.viewport.Width = transcriptWidth
	m.viewport.Height = max(height-footer-2, 1)
	m.input.Width = max(transcriptWidth-8, 1)
	m.help.Width = width

	m.renderTranscript()
}

func (m *tuiModel) renderTranscript() {
	follow := m.viewport.AtBottom()

	if m.selected == "" {
		m.viewport.SetContent(mutedStyle.Render("New chat. Type a message and press enter."))
		m.viewport.GotoTop()
		return
	}

	c, ok := m.manager.Store().Get(m.selected)
	if !ok {
		m.viewport.SetContent("")
		return
	}

	m.viewport.SetContent(renderChat(c, m.viewport.Width))
	if follow {
		m.viewport.GotoBottom()
	}
}

func waitForUpdate(updates <-chan transcript.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return storeUpdateMsg(u)
	}
}

func waitForReply(h *transcript.Handle) tea.Cmd {
	return func() tea.Msg {
		err := h.Wait()
		return replyDoneMsg{key: h.Key(), err: err}
	}
}

func refreshCmd(ctx context.Context, manager chatManager) tea.Cmd {
	return func() tea.Msg {
		return refreshedMsg{err: manager.Refresh(ctx)}
	}
}

func deleteCmd(ctx context.Context, manager chatManager, key string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{key: key, err: manager.Delete(ctx, key)}
	}
}

func clamp(value, upper int) int {
	if upper < 0 {
		return 0
	}
	if value < 0 {
		return 0
	}
	if value > upper {
		return upper
	}
	return value
}
