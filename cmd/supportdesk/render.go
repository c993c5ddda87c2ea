package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ruriclub/supportdesk/internal/channel"
	"github.com/ruriclub/supportdesk/internal/chatview"
	"github.com/ruriclub/supportdesk/internal/handoff"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/presentation"
)

const sidebarWidth = 28

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	helpText    lipgloss.Style
	own         lipgloss.Style
	other       lipgloss.Style
	system      lipgloss.Style
	failed      lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	cursor      lipgloss.Style
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")
	red := lipgloss.Color("#ff5f87")

	return uiTheme{
		root: lipgloss.NewStyle().
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			Bold(true).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		footer: lipgloss.NewStyle().
			Padding(0, 1),
		status: lipgloss.NewStyle().
			Foreground(mint),
		errorStatus: lipgloss.NewStyle().
			Foreground(red).
			Bold(true),
		helpText: lipgloss.NewStyle().
			Foreground(muted),
		own: lipgloss.NewStyle().
			Foreground(blue).
			Bold(true),
		other: lipgloss.NewStyle().
			Foreground(pink).
			Bold(true),
		system: lipgloss.NewStyle().
			Foreground(muted).
			Italic(true),
		failed: lipgloss.NewStyle().
			Foreground(red),
		tabActive: lipgloss.NewStyle().
			Foreground(panelBg).
			Background(mint).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 1),
		cursor: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
	}
}

func (m tuiModel) View() string {
	if m.identity == nil {
		return m.theme.root.Render(m.renderLogin())
	}
	out := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderContent(),
		m.renderInput(),
		m.renderFooter(),
	)
	return m.theme.root.Render(out)
}

func (m *tuiModel) renderLogin() string {
	width := clampInt(m.width-4, 40, 72)
	form := strings.Join([]string{
		m.theme.panelTitle.Render("Ruri Club Support"),
		"",
		m.email.View(),
		m.password.View(),
		"",
		m.loginStatus(),
		"",
		m.theme.helpText.Render("Tab switch field · Enter sign in · Esc quit"),
	}, "\n")
	return m.theme.panel.Width(width).Render(form)
}

func (m *tuiModel) loginStatus() string {
	if m.loggingIn {
		return m.spinner.View() + " " + m.statusLine
	}
	return m.styledStatus(m.statusLine)
}

func (m *tuiModel) renderHeader() string {
	width := max(40, m.width-4)
	title := fmt.Sprintf("%s · %s", m.identity.DisplayName, m.route)
	return m.theme.header.Width(width).Render(title + "\n" + m.theme.helpText.Render(m.conversationTitle()))
}

// conversationTitle names who the open conversation is with.
func (m *tuiModel) conversationTitle() string {
	switch v := m.view.(type) {
	case *chatview.ClientChat:
		return clientTitle(v.State(), v.Assignee(), m.app.cfg.AIName)
	case *chatview.Inbox:
		if sel := v.Selected(); sel != nil {
			return "Conversation with " + sel.DisplayName
		}
		return "Select someone to open a conversation"
	}
	return ""
}

func clientTitle(state handoff.State, a *model.Assignment, aiName string) string {
	switch {
	case state == handoff.HumanActive && a != nil:
		return "Chatting with " + a.EmployeeName
	case state == handoff.EscalationRequested:
		return "Connecting you to a live agent..."
	}
	return "Chatting with " + aiName
}

func (m *tuiModel) renderContent() string {
	transcript := m.theme.panel.
		Width(m.transcript.Width + 2).
		Render(m.transcript.View())
	in, ok := m.view.(*chatview.Inbox)
	if !ok {
		return transcript
	}
	sidebar := m.theme.panel.
		Width(sidebarWidth).
		Height(m.transcript.Height).
		Render(m.renderSidebar(in))
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, transcript)
}

func (m *tuiModel) renderSidebar(in *chatview.Inbox) string {
	var b strings.Builder
	if m.identity.Role == model.RoleEmployee {
		clients, admin := m.theme.tabInactive, m.theme.tabInactive
		if in.Tab() == chatview.TabAdmin {
			admin = m.theme.tabActive
		} else {
			clients = m.theme.tabActive
		}
		b.WriteString(clients.Render("Clients") + admin.Render("Admin"))
	} else {
		b.WriteString(m.theme.tabActive.Render("Employees"))
	}
	b.WriteString("\n\n")

	people := in.Counterparts()
	if len(people) == 0 {
		b.WriteString(m.theme.helpText.Render("Nobody here yet."))
		return b.String()
	}
	var selected int64
	if sel := in.Selected(); sel != nil {
		selected = sel.ID
	}
	for i, p := range people {
		b.WriteString(sidebarLine(p, i == m.cursor, p.ID == selected, m.theme))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func sidebarLine(p model.Counterpart, atCursor, open bool, theme uiTheme) string {
	marker := "  "
	if atCursor {
		marker = theme.cursor.Render("❯ ")
	}
	name := truncate(p.DisplayName, sidebarWidth-6)
	if open {
		name = theme.own.Render(name)
	}
	return marker + name
}

func (m *tuiModel) renderInput() string {
	width := max(40, m.width-4)
	view := m.composer.View()
	if st := m.view; st != nil && st.Status().Pending > 0 {
		view = m.spinner.View() + " " + view
	}
	return m.theme.inputPanel.Width(width).Render(view)
}

func (m *tuiModel) renderFooter() string {
	width := max(40, m.width-4)
	line := m.styledStatus(m.statusLine)
	if m.view != nil {
		if desc := describeStatus(m.view.Status()); desc != "" {
			line += m.theme.helpText.Render(" · " + desc)
		}
	}
	hints := "Enter send · Ctrl+R refresh · PgUp/PgDn scroll · Ctrl+L sign out · Ctrl+C quit"
	if _, ok := m.view.(*chatview.Inbox); ok {
		hints = "Up/Down pick · Enter open/send · Tab clients/admin · " + hints
	}
	return m.theme.footer.Width(width).Render(line + "\n" + m.theme.helpText.Render(hints))
}

func (m *tuiModel) styledStatus(line string) string {
	style := m.theme.status
	if strings.HasPrefix(line, "error") {
		style = m.theme.errorStatus
	}
	return style.Render(compactSingleLine(line, 160))
}

// describeStatus summarizes what a view is waiting for.
func describeStatus(s chatview.Status) string {
	switch {
	case !s.Mounted:
		return "offline"
	case s.Loading:
		return "loading..."
	case s.Err != nil && s.Retryable():
		return "backend unavailable, Ctrl+R to retry"
	case s.Err != nil:
		return "request failed"
	case s.Refreshing:
		return "refreshing..."
	case s.Pending == 1:
		return "sending 1 message..."
	case s.Pending > 1:
		return fmt.Sprintf("sending %d messages...", s.Pending)
	}
	return ""
}

func (m *tuiModel) resize() {
	width := max(40, m.width-4)
	m.composer.Width = max(20, width-6)
	m.email.Width = 40
	m.password.Width = 40

	transcriptWidth := width - 4
	if _, ok := m.view.(*chatview.Inbox); ok {
		transcriptWidth -= sidebarWidth + 4
	}
	m.transcript.Width = max(20, transcriptWidth)
	// Header, input and footer panels take ten rows with their borders.
	m.transcript.Height = max(5, m.height-12)
}

func (m *tuiModel) renderTranscript() {
	if m.view == nil {
		m.transcript.SetContent("")
		return
	}
	st := m.view.Status()
	bubbles := m.view.Bubbles()
	switch {
	case st.Loading:
		m.transcript.SetContent(m.spinner.View() + " loading conversation...")
		return
	case len(bubbles) == 0 && st.Empty:
		m.transcript.SetContent(m.theme.helpText.Render("No messages yet."))
		return
	}
	m.transcript.SetContent(formatBubbles(bubbles, m.transcript.Width, m.theme))
	m.transcript.GotoBottom()
}

// formatBubbles lays bubbles out oldest first. Own messages are aligned
// right.
func formatBubbles(bubbles []presentation.Bubble, width int, theme uiTheme) string {
	var b strings.Builder
	for _, bub := range bubbles {
		style := theme.other
		switch {
		case bub.IsOwn:
			style = theme.own
		case bub.Origin == model.OriginSystem:
			style = theme.system
		}
		header := style.Render(bubbleHeader(bub))
		if bub.Status == channel.StatusFailed {
			header += " " + theme.failed.Render("not delivered")
		}
		body := wrapText(bub.Body, max(10, width-4))
		block := header + "\n" + body
		if bub.IsOwn {
			block = lipgloss.NewStyle().Width(width).Align(lipgloss.Right).Render(block)
		}
		b.WriteString(block)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func bubbleHeader(b presentation.Bubble) string {
	header := b.DisplayName
	if b.FormattedTime != "" {
		header = b.FormattedTime + " " + header
	}
	if b.Status == channel.StatusPending {
		header += " (sending)"
	}
	return header
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len([]rune(current))+1+len([]rune(word)) <= width {
				current += " " + word
				continue
			}
			wrapped = append(wrapped, current)
			current = word
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}

func compactSingleLine(text string, limit int) string {
	return truncate(strings.Join(strings.Fields(text), " "), limit)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func clampInt(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
