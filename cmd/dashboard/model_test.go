package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

var sample = []protocol.LobbySummary{
	{Code: "ABC123", Players: 2, MaxPlayers: 6, Host: "p1"},
	{Code: "ZZZ999", Players: 4, MaxPlayers: 4, GameStarted: true, Host: "p7"},
}

func testModel(refresh func() error) (model, chan tea.Msg) {
	updates := make(chan tea.Msg, 4)
	if refresh == nil {
		refresh = func() error { return nil }
	}
	info := protocol.ServerInfo{Version: "1.0.0", MaxLobbies: 20}
	return newModel("ws://localhost:8080/ws", info, time.Second, updates, refresh), updates
}

func TestRows(t *testing.T) {
	assert.Equal(t, []table.Row{
		{"ABC123", "2/6", "In Lobby", "p1"},
		{"ZZZ999", "4/4", "In Game", "p7"},
	}, rows(sample))
	assert.Empty(t, rows(nil))
}

func TestLobbyListUpdatesTable(t *testing.T) {
	m, _ := testModel(nil)
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	next, cmd := m.Update(lobbyListMsg{list: &protocol.LobbyListMessage{Lobbies: sample}, at: at})
	require.NotNil(t, cmd, "keeps listening for updates")
	got := next.(model)

	assert.Len(t, got.table.Rows(), 2)
	assert.Equal(t, 2, got.info.ActiveLobbies)
	assert.Equal(t, at, got.updated)

	view := got.View()
	assert.Contains(t, view, "ABC123")
	assert.Contains(t, view, "In Game")
	assert.Contains(t, view, "12:30:00")
}

func TestEmptyView(t *testing.T) {
	m, _ := testModel(nil)
	view := m.View()
	assert.Contains(t, view, "No active lobbies")
	assert.Contains(t, view, "never")
}

func TestRefreshKeyAndErrors(t *testing.T) {
	calls := 0
	m, _ := testModel(func() error {
		calls++
		return errors.New("queue full")
	})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, 1, calls)

	next, _ := m.Update(msg)
	assert.Contains(t, next.(model).View(), "queue full")
}

func TestClosedQuits(t *testing.T) {
	m, _ := testModel(nil)
	next, cmd := m.Update(closedMsg{})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.ErrorIs(t, next.(model).err, errDisconnected)
}

func TestWaitForUpdate(t *testing.T) {
	updates := make(chan tea.Msg, 1)
	updates <- tickMsg{}
	assert.IsType(t, tickMsg{}, waitForUpdate(updates)())

	close(updates)
	assert.Equal(t, closedMsg{err: errDisconnected}, waitForUpdate(updates)())
}

func TestRenderOnce(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	out := renderOnce("localhost:8080", protocol.ServerInfo{Version: "1.0.0", MaxLobbies: 20}, sample, now)

	assert.Contains(t, out, "Time: 2024-05-01 08:00:00")
	assert.Contains(t, out, "Active Lobbies: 2/20")
	lines := strings.Split(out, "\n")
	var found bool
	for _, l := range lines {
		if strings.HasPrefix(l, "ZZZ999") {
			found = true
			assert.Contains(t, l, "4/4")
			assert.Contains(t, l, "In Game")
			assert.Contains(t, l, "p7")
		}
	}
	assert.True(t, found)

	empty := renderOnce("x", protocol.ServerInfo{}, nil, now)
	assert.Contains(t, empty, "No active lobbies")
	assert.Contains(t, empty, "Version: unknown")
}
