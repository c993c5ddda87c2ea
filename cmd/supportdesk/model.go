package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/chatview"
	"github.com/ruriclub/supportdesk/internal/middleware"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/session"
)

type loginDoneMsg struct {
	err error
}

type mountDoneMsg struct {
	view chatView
	err  error
}

type actionDoneMsg struct {
	status string
	err    error
}

type viewChangedMsg struct{}

type sessionChangedMsg struct {
	next *model.Identity
}

type tuiModel struct {
	app    *app
	ctx    context.Context
	cancel context.CancelFunc

	route    string
	identity *model.Identity
	view     chatView
	mountErr error
	cursor   int

	email     textinput.Model
	password  textinput.Model
	formFocus int
	loggingIn bool

	composer   textinput.Model
	transcript viewport.Model
	spinner    spinner.Model

	changes  chan tea.Msg
	sessions chan tea.Msg

	statusLine string
	width      int
	height     int
	theme      uiTheme
}

func newModel(a *app) tuiModel {
	email := textinput.New()
	email.Prompt = "email    ❯ "
	email.Placeholder = "you@example.com"
	email.CharLimit = 255

	password := textinput.New()
	password.Prompt = "password ❯ "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 255

	composer := textinput.New()
	composer.Prompt = "❯ "
	composer.Placeholder = "Type a message and press Enter"
	composer.CharLimit = middleware.MaxMessageLength

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	transcript := viewport.New(0, 0)
	transcript.MouseWheelEnabled = true
	transcript.MouseWheelDelta = 3

	ctx, cancel := context.WithCancel(context.Background())
	m := tuiModel{
		app:        a,
		ctx:        ctx,
		cancel:     cancel,
		route:      session.RouteLogin,
		email:      email,
		password:   password,
		composer:   composer,
		transcript: transcript,
		spinner:    sp,
		changes:    make(chan tea.Msg, 1),
		sessions:   make(chan tea.Msg, 4),
		statusLine: "ready",
		theme:      newTheme(),
	}

	sessions := m.sessions
	a.session.Subscribe(func(_, next *model.Identity) {
		offerLatest(sessions, sessionChangedMsg{next: next})
	})

	if id, ok := a.session.Current(); ok {
		m.enter(&id)
	} else {
		m.email.Focus()
	}
	return m
}

func (m tuiModel) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		textinput.Blink,
		waitMsg(m.changes),
		waitMsg(m.sessions),
	}
	if m.view != nil {
		cmds = append(cmds, m.mountCmd())
	}
	return tea.Batch(cmds...)
}

// enter applies the routing rule for id and, when a screen is due, builds
// the view for it. The caller mounts the view.
func (m *tuiModel) enter(id *model.Identity) {
	m.leave()
	m.identity = id
	if target, ok := session.Redirect(id, m.route); ok {
		m.route = target
	}
	if id == nil {
		m.password.Reset()
		m.email.Focus()
		m.formFocus = 0
		return
	}

	v, err := m.app.newView(*id)
	if err != nil {
		m.logError(err)
		return
	}
	changes := m.changes
	v.OnChange(func() {
		select {
		case changes <- viewChangedMsg{}:
		default:
		}
	})
	m.view = v
	m.cursor = 0
	m.composer.Reset()
	m.composer.Focus()
	m.statusLine = fmt.Sprintf("signed in as %s (%s)", id.DisplayName, id.Role)
}

// leave tears down the current view, if any.
func (m *tuiModel) leave() {
	if m.view != nil {
		m.view.Unmount()
		m.view = nil
	}
	m.mountErr = nil
	m.transcript.SetContent("")
}

// offerLatest queues msg without blocking. When ch is full the oldest
// queued message gives way, since only the latest session state matters.
func offerLatest(ch chan tea.Msg, msg tea.Msg) {
	for i := 0; i < 2; i++ {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func waitMsg(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m tuiModel) loginCmd() tea.Cmd {
	ctx := m.ctx
	sess := m.app.session
	email := strings.TrimSpace(m.email.Value())
	password := m.password.Value()
	return func() tea.Msg {
		_, err := sess.Login(ctx, email, password)
		return loginDoneMsg{err: err}
	}
}

func (m tuiModel) mountCmd() tea.Cmd {
	ctx := m.ctx
	v := m.view
	return func() tea.Msg {
		return mountDoneMsg{view: v, err: v.Mount(ctx)}
	}
}

func (m tuiModel) sendCmd(body string) tea.Cmd {
	ctx := m.ctx
	v := m.view
	return func() tea.Msg {
		if err := v.Send(ctx, body); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "sent"}
	}
}

func (m tuiModel) refreshCmd() tea.Cmd {
	ctx := m.ctx
	v := m.view
	return func() tea.Msg {
		if err := v.Refresh(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "refreshed"}
	}
}

func (m tuiModel) selectCmd(in *chatview.Inbox, c model.Counterpart) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := in.Select(ctx, c.ID); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "opened conversation with " + c.DisplayName}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTranscript()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case viewChangedMsg:
		m.renderTranscript()
		cmds = append(cmds, waitMsg(m.changes))
	case sessionChangedMsg:
		m.enter(msg.next)
		if m.view != nil {
			cmds = append(cmds, m.mountCmd())
		}
		m.resize()
		cmds = append(cmds, waitMsg(m.sessions))
	case loginDoneMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.logError(msg.err)
			m.password.Reset()
		}
	case mountDoneMsg:
		if msg.view != m.view || errors.Is(msg.err, chatview.ErrStale) {
			break
		}
		m.mountErr = msg.err
		if msg.err != nil {
			m.logError(msg.err)
		}
		m.renderTranscript()
	case actionDoneMsg:
		switch {
		case msg.err == nil:
			m.statusLine = msg.status
		case errors.Is(msg.err, chatview.ErrStale), errors.Is(msg.err, chatview.ErrNotMounted):
		default:
			m.logError(msg.err)
		}
		m.renderTranscript()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.leave()
			m.cancel()
			return m, tea.Quit
		}
		if m.identity == nil {
			return m.updateLogin(msg)
		}
		return m.updateChat(msg)
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m tuiModel) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.cancel()
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		m.focusField(1 - m.formFocus)
		return m, nil
	case "enter":
		if m.loggingIn {
			return m, nil
		}
		if m.formFocus == 0 {
			m.focusField(1)
			return m, nil
		}
		if strings.TrimSpace(m.email.Value()) == "" || m.password.Value() == "" {
			m.statusLine = "error: email and password are required"
			return m, nil
		}
		m.loggingIn = true
		m.statusLine = "signing in..."
		return m, m.loginCmd()
	}

	var cmd tea.Cmd
	if m.formFocus == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *tuiModel) focusField(i int) {
	m.formFocus = i
	if i == 0 {
		m.password.Blur()
		m.email.Focus()
	} else {
		m.email.Blur()
		m.password.Focus()
	}
}

func (m tuiModel) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.view == nil {
		if msg.String() == "ctrl+l" {
			return m.logout()
		}
		return m, nil
	}
	in, isInbox := m.view.(*chatview.Inbox)

	switch msg.String() {
	case "ctrl+l":
		return m.logout()
	case "ctrl+r":
		if m.mountErr != nil {
			m.mountErr = nil
			m.statusLine = "retrying..."
			return m, m.mountCmd()
		}
		m.statusLine = "refreshing..."
		return m, m.refreshCmd()
	case "pgup":
		m.transcript.LineUp(8)
		return m, nil
	case "pgdown":
		m.transcript.LineDown(8)
		return m, nil
	case "tab":
		if isInbox && m.identity.Role == model.RoleEmployee {
			next := chatview.TabAdmin
			if in.Tab() == chatview.TabAdmin {
				next = chatview.TabPeople
			}
			if err := in.SetTab(next); err != nil {
				m.logError(err)
			}
			m.cursor = 0
		}
		return m, nil
	case "up":
		if isInbox {
			m.cursor = clampInt(m.cursor-1, 0, max(0, len(in.Counterparts())-1))
		}
		return m, nil
	case "down":
		if isInbox {
			m.cursor = clampInt(m.cursor+1, 0, max(0, len(in.Counterparts())-1))
		}
		return m, nil
	case "enter":
		body := strings.TrimSpace(m.composer.Value())
		if body == "" {
			if isInbox {
				people := in.Counterparts()
				if m.cursor < len(people) {
					m.statusLine = "loading conversation..."
					return m, m.selectCmd(in, people[m.cursor])
				}
			}
			return m, nil
		}
		if len(body) > middleware.MaxMessageLength {
			m.statusLine = fmt.Sprintf("error: message exceeds %d characters", middleware.MaxMessageLength)
			return m, nil
		}
		m.composer.Reset()
		return m, m.sendCmd(body)
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

func (m tuiModel) logout() (tea.Model, tea.Cmd) {
	if err := m.app.session.Logout(); err != nil {
		m.logError(err)
		return m, nil
	}
	m.statusLine = "signed out"
	return m, nil
}

func (m *tuiModel) logError(err error) {
	if err == nil {
		return
	}
	m.app.log.Warn("terminal action failed", zap.Error(err))
	m.statusLine = "error: " + compactSingleLine(err.Error(), 160)
}
