package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

var errDisconnected = errors.New("connection to server lost")

var (
	primaryColor = lipgloss.Color("39")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")
	mutedColor   = lipgloss.Color("243")
	borderColor  = lipgloss.Color("238")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Foreground(mutedColor).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor).Bold(true).Padding(0, 1)
	tableStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(borderColor)
	footerStyle = lipgloss.NewStyle().Foreground(mutedColor).Padding(0, 1)
)

type lobbyListMsg struct {
	list *protocol.LobbyListMessage
	at   time.Time
}

type closedMsg struct{ err error }

type errMsg struct{ err error }

type tickMsg time.Time

// model is the live monitor. Messages from the connection arrive on updates.
type model struct {
	addr     string
	info     protocol.ServerInfo
	interval time.Duration

	updates <-chan tea.Msg
	refresh func() error

	table   table.Model
	lobbies []protocol.LobbySummary
	updated time.Time
	err     error
}

func newModel(addr string, info protocol.ServerInfo, interval time.Duration, updates <-chan tea.Msg, refresh func() error) model {
	t := table.New(
		table.WithColumns(columns()),
		table.WithFocused(true),
		table.WithHeight(12),
		table.WithWidth(56),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(borderColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.Foreground(primaryColor).Bold(true)
	t.SetStyles(styles)

	return model{
		addr:     addr,
		info:     info,
		interval: interval,
		updates:  updates,
		refresh:  refresh,
		table:    t,
	}
}

func columns() []table.Column {
	return []table.Column{
		{Title: "Code", Width: 8},
		{Title: "Players", Width: 10},
		{Title: "Status", Width: 12},
		{Title: "Host ID", Width: 20},
	}
}

// rows renders lobby summaries in the order the server sent them
func rows(lobbies []protocol.LobbySummary) []table.Row {
	out := make([]table.Row, 0, len(lobbies))
	for _, l := range lobbies {
		out = append(out, table.Row{
			l.Code,
			fmt.Sprintf("%d/%d", l.Players, l.MaxPlayers),
			statusLabel(l),
			l.Host,
		})
	}
	return out
}

func statusLabel(l protocol.LobbySummary) string {
	if l.GameStarted {
		return "In Game"
	}
	return "In Lobby"
}

func waitForUpdate(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return closedMsg{err: errDisconnected}
		}
		return msg
	}
}

func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.refresh(); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), m.refreshCmd(), m.tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		}
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width - 2)
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil
	case lobbyListMsg:
		m.lobbies = msg.list.Lobbies
		m.info.ActiveLobbies = len(msg.list.Lobbies)
		m.table.SetRows(rows(msg.list.Lobbies))
		m.updated = msg.at
		m.err = nil
		return m, waitForUpdate(m.updates)
	case closedMsg:
		m.err = msg.err
		if m.err == nil {
			m.err = errDisconnected
		}
		return m, tea.Quit
	case errMsg:
		m.err = msg.err
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), m.tick())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("lobbyd dashboard"))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.summary()))
	b.WriteString("\n")

	if len(m.lobbies) == 0 {
		b.WriteString(statusStyle.Render("No active lobbies"))
		b.WriteString("\n")
	} else {
		b.WriteString(tableStyle.Render(m.table.View()))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render("r refresh • ↑/↓ scroll • q quit"))
	return b.String()
}

func (m model) summary() string {
	updated := "never"
	if !m.updated.IsZero() {
		updated = m.updated.Format("15:04:05")
	}
	capacity := lipgloss.NewStyle().Foreground(successColor)
	if m.info.MaxLobbies > 0 && m.info.ActiveLobbies >= m.info.MaxLobbies {
		capacity = lipgloss.NewStyle().Foreground(warningColor)
	}
	return fmt.Sprintf("Server: %s  Version: %s  Lobbies: %s  Updated: %s",
		m.addr, orUnknown(m.info.Version),
		capacity.Render(fmt.Sprintf("%d/%d", m.info.ActiveLobbies, m.info.MaxLobbies)),
		updated)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// renderOnce is the plain-text report printed by -once
func renderOnce(addr string, info protocol.ServerInfo, lobbies []protocol.LobbySummary, now time.Time) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "lobbyd - Server Dashboard")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Time: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Server: %s\n", addr)
	fmt.Fprintf(&b, "Version: %s\n", orUnknown(info.Version))
	fmt.Fprintf(&b, "Active Lobbies: %d/%d\n\n", len(lobbies), info.MaxLobbies)

	if len(lobbies) == 0 {
		fmt.Fprintln(&b, "No active lobbies")
	} else {
		fmt.Fprintln(&b, "Active Lobbies:")
		fmt.Fprintln(&b, strings.Repeat("-", 60))
		fmt.Fprintf(&b, "%-8s %-10s %-15s %-20s\n", "Code", "Players", "Status", "Host ID")
		fmt.Fprintln(&b, strings.Repeat("-", 60))
		for _, r := range rows(lobbies) {
			fmt.Fprintf(&b, "%-8s %-10s %-15s %-20s\n", r[0], r[1], r[2], r[3])
		}
	}
	fmt.Fprintln(&b, rule)
	return b.String()
}
