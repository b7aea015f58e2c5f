package client

import (
	"sync"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

// State is a snapshot of what the server has told this client
type State struct {
	PlayerID   string
	ServerInfo protocol.ServerInfo

	// Lobby is the last roster received, nil while not seated
	Lobby       *protocol.LobbyInfoMessage
	IsHost      bool
	GameStarted bool
	Seed        int64
	GameState   *protocol.GameState

	// OtherPlayers holds the latest update from every other player
	OtherPlayers map[string]protocol.PlayerUpdateMessage

	// LastError is the most recent error reply
	LastError string
}

// mirror tracks State as messages arrive on the read loop while the
// application reads it from its own goroutine
type mirror struct {
	mu sync.RWMutex
	s  State
}

func newMirror(playerID string) *mirror {
	return &mirror{s: State{
		PlayerID:     playerID,
		OtherPlayers: make(map[string]protocol.PlayerUpdateMessage),
	}}
}

func (m *mirror) observe(msg protocol.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.s

	switch v := msg.(type) {
	case *protocol.ConnectMessage:
		if v.PlayerID != "" {
			s.PlayerID = v.PlayerID
		}
		if v.ServerInfo != nil {
			s.ServerInfo = *v.ServerInfo
		}
	case *protocol.LobbyInfoMessage:
		if v.Error != "" {
			s.LastError = v.Error
			return
		}
		m.seat(v)
	case *protocol.HostChangeMessage:
		s.IsHost = v.NewHostID == s.PlayerID
		if s.Lobby != nil {
			s.Lobby.HostID = v.NewHostID
		}
	case *protocol.StartGameMessage:
		if v.Error != "" {
			s.LastError = v.Error
			return
		}
		s.GameStarted = true
		s.Seed = v.Seed
		if s.Lobby != nil {
			s.Lobby.GameStarted = true
		}
	case *protocol.ReconnectMessage:
		if v.Error != "" {
			s.LastError = v.Error
			return
		}
		if v.LobbyInfo != nil {
			m.seat(v.LobbyInfo)
		}
		if v.GameState != nil {
			gs := v.GameState.Clone()
			s.GameState = &gs
		}
	case *protocol.GameStateMessage:
		gs := v.GameState.Clone()
		s.GameState = &gs
	case *protocol.PlayerUpdateMessage:
		if v.PlayerID != "" && v.PlayerID != s.PlayerID {
			s.OtherPlayers[v.PlayerID] = *v
		}
	case *protocol.DisconnectMessage:
		delete(s.OtherPlayers, v.PlayerID)
		if s.Lobby != nil {
			for i := range s.Lobby.Players {
				if s.Lobby.Players[i].ID == v.PlayerID {
					s.Lobby.Players[i].Connected = false
				}
			}
		}
	}
}

// seat replaces the roster. Caller holds mu.
func (m *mirror) seat(info *protocol.LobbyInfoMessage) {
	s := &m.s
	if s.Lobby == nil || s.Lobby.Code != info.Code {
		s.OtherPlayers = make(map[string]protocol.PlayerUpdateMessage)
		s.GameState = nil
		s.Seed = 0
	}
	cp := *info
	cp.Players = append([]protocol.PlayerInfo(nil), info.Players...)
	s.Lobby = &cp
	s.IsHost = info.HostID == s.PlayerID
	s.GameStarted = info.GameStarted
}

// leave forgets the lobby locally; the server sends nothing back
func (m *mirror) leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Lobby = nil
	m.s.IsHost = false
	m.s.GameStarted = false
	m.s.Seed = 0
	m.s.GameState = nil
	m.s.OtherPlayers = make(map[string]protocol.PlayerUpdateMessage)
}

func (m *mirror) snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.s
	if m.s.Lobby != nil {
		cp := *m.s.Lobby
		cp.Players = append([]protocol.PlayerInfo(nil), m.s.Lobby.Players...)
		out.Lobby = &cp
	}
	if m.s.GameState != nil {
		gs := m.s.GameState.Clone()
		out.GameState = &gs
	}
	out.OtherPlayers = make(map[string]protocol.PlayerUpdateMessage, len(m.s.OtherPlayers))
	for id, u := range m.s.OtherPlayers {
		out.OtherPlayers[id] = u
	}
	return out
}

// State returns a copy of the mirrored state
func (c *Client) State() State { return c.state.snapshot() }

// PlayerID is the identity the server registered this client under
func (c *Client) PlayerID() string {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.s.PlayerID
}

// IsHost reports whether the last roster named this client as host
func (c *Client) IsHost() bool {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	return c.state.s.IsHost
}

// LobbyCode returns the code of the lobby this client is seated in, if any
func (c *Client) LobbyCode() string {
	c.state.mu.RLock()
	defer c.state.mu.RUnlock()
	if c.state.s.Lobby == nil {
		return ""
	}
	return c.state.s.Lobby.Code
}
