package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

func roster(code, host string, ids ...string) *protocol.LobbyInfoMessage {
	info := &protocol.LobbyInfoMessage{Code: code, HostID: host, MaxPlayers: 6}
	for _, id := range ids {
		info.Players = append(info.Players, protocol.PlayerInfo{ID: id, Connected: true})
	}
	return info
}

func TestMirrorTracksHost(t *testing.T) {
	m := newMirror("p2")
	m.observe(roster("ABC123", "p1", "p1", "p2"))
	assert.False(t, m.snapshot().IsHost)

	m.observe(&protocol.HostChangeMessage{NewHostID: "p2"})
	s := m.snapshot()
	assert.True(t, s.IsHost)
	assert.Equal(t, "p2", s.Lobby.HostID)

	m.observe(roster("ABC123", "p1", "p1", "p2"))
	assert.False(t, m.snapshot().IsHost, "roster wins over earlier host_change")
}

func TestMirrorErrorsKeepRoster(t *testing.T) {
	m := newMirror("p1")
	m.observe(roster("ABC123", "p1", "p1"))
	m.observe(&protocol.LobbyInfoMessage{Error: "Lobby full"})
	m.observe(&protocol.StartGameMessage{Error: "Not all players ready"})

	s := m.snapshot()
	require.NotNil(t, s.Lobby)
	assert.Equal(t, "ABC123", s.Lobby.Code)
	assert.False(t, s.GameStarted)
	assert.Equal(t, "Not all players ready", s.LastError)
}

func TestMirrorGameLifecycle(t *testing.T) {
	m := newMirror("p1")
	m.observe(roster("ABC123", "p1", "p1", "p2"))
	m.observe(&protocol.StartGameMessage{LobbyCode: "ABC123", Seed: 42})

	health := 70
	m.observe(&protocol.PlayerUpdateMessage{PlayerID: "p2", Position: protocol.Vec2{1, 2}, Health: &health})
	m.observe(&protocol.PlayerUpdateMessage{PlayerID: "p1", Position: protocol.Vec2{9, 9}})
	m.observe(&protocol.GameStateMessage{GameState: protocol.GameState{Wave: 3}})

	s := m.snapshot()
	assert.True(t, s.GameStarted)
	assert.True(t, s.Lobby.GameStarted)
	assert.Equal(t, int64(42), s.Seed)
	require.Contains(t, s.OtherPlayers, "p2")
	assert.NotContains(t, s.OtherPlayers, "p1", "own updates are not mirrored")
	assert.Equal(t, 70, s.OtherPlayers["p2"].HealthOr(0))
	require.NotNil(t, s.GameState)
	assert.Equal(t, 3, s.GameState.Wave)

	m.observe(&protocol.DisconnectMessage{PlayerID: "p2"})
	s = m.snapshot()
	assert.NotContains(t, s.OtherPlayers, "p2")
	p, ok := s.Lobby.Player("p2")
	require.True(t, ok)
	assert.False(t, p.Connected)
}

func TestMirrorReconnectRestores(t *testing.T) {
	m := newMirror("p2")
	gs := protocol.GameState{Wave: 5, Score: 1200}
	info := roster("ABC123", "p1", "p1", "p2")
	info.GameStarted = true
	m.observe(&protocol.ReconnectMessage{Status: "reconnected", LobbyInfo: info, GameState: &gs})

	s := m.snapshot()
	require.NotNil(t, s.Lobby)
	assert.True(t, s.GameStarted)
	require.NotNil(t, s.GameState)
	assert.Equal(t, 1200, s.GameState.Score)

	m.observe(&protocol.ReconnectMessage{Error: "Lobby not found"})
	assert.Equal(t, "Lobby not found", m.snapshot().LastError)
	assert.NotNil(t, m.snapshot().Lobby)
}

func TestMirrorNewLobbyResetsGameView(t *testing.T) {
	m := newMirror("p1")
	m.observe(roster("AAAAAA", "p1", "p1", "p2"))
	m.observe(&protocol.StartGameMessage{Seed: 7})
	m.observe(&protocol.PlayerUpdateMessage{PlayerID: "p2"})

	m.observe(roster("BBBBBB", "p3", "p1", "p3"))
	s := m.snapshot()
	assert.Empty(t, s.OtherPlayers)
	assert.Zero(t, s.Seed)
	assert.False(t, s.GameStarted)
	assert.False(t, s.IsHost)
}

func TestMirrorLeave(t *testing.T) {
	m := newMirror("p1")
	m.observe(roster("ABC123", "p1", "p1"))
	m.leave()
	s := m.snapshot()
	assert.Nil(t, s.Lobby)
	assert.False(t, s.IsHost)
}

func TestSnapshotIsCopy(t *testing.T) {
	m := newMirror("p1")
	m.observe(roster("ABC123", "p1", "p1"))
	m.observe(&protocol.PlayerUpdateMessage{PlayerID: "p2"})

	s := m.snapshot()
	s.Lobby.Players[0].Ready = true
	s.Lobby.HostID = "someone"
	delete(s.OtherPlayers, "p2")

	again := m.snapshot()
	assert.False(t, again.Lobby.Players[0].Ready)
	assert.Equal(t, "p1", again.Lobby.HostID)
	assert.Contains(t, again.OtherPlayers, "p2")
}

func TestConnectAckUpdatesIdentity(t *testing.T) {
	m := newMirror("chosen")
	m.observe(&protocol.ConnectMessage{Status: "connected", PlayerID: "player_3", ServerInfo: &protocol.ServerInfo{MaxLobbies: 5}})
	s := m.snapshot()
	assert.Equal(t, "player_3", s.PlayerID)
	assert.Equal(t, 5, s.ServerInfo.MaxLobbies)
}

func TestHandlersDispatch(t *testing.T) {
	var chats, all int
	h := Handlers{
		OnChat:    func(*protocol.ChatMessage) { chats++ },
		OnMessage: func(protocol.Message) { all++ },
	}

	assert.True(t, h.dispatch(&protocol.ChatMessage{Text: "hi"}))
	assert.False(t, h.dispatch(&protocol.GameOverMessage{}), "no typed handler registered")
	assert.False(t, h.dispatch(&protocol.CreateLobbyMessage{}), "client-to-server tag")
	assert.Equal(t, 1, chats)
	assert.Equal(t, 3, all)

	assert.False(t, Handlers{}.dispatch(&protocol.ChatMessage{}))
}
