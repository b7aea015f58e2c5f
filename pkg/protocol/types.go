package protocol

import "encoding/json"

// Vec2 is an [x, y] pair as sent by game clients
type Vec2 [2]float64

// X returns the horizontal component
func (v Vec2) X() float64 { return v[0] }

// Y returns the vertical component
func (v Vec2) Y() float64 { return v[1] }

// PlayerInfo is one row of a lobby roster
type PlayerInfo struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Character json.RawMessage `json:"character,omitempty"`
	Ready     bool            `json:"ready"`
	Connected bool            `json:"connected"`
}

// LobbySummary is one row of a lobby_list reply
type LobbySummary struct {
	Code        string `json:"code"`
	Players     int    `json:"players"`
	MaxPlayers  int    `json:"max_players"`
	GameStarted bool   `json:"game_started"`
	Host        string `json:"host"`
}

// ServerInfo is attached to the connect acknowledgement
type ServerInfo struct {
	Version       string `json:"version"`
	MaxLobbies    int    `json:"max_lobbies"`
	ActiveLobbies int    `json:"active_lobbies"`
}

// GameState is the coarse per-lobby game blob. Entity lists are opaque to
// the server.
type GameState struct {
	Wave    int               `json:"wave"`
	Score   int               `json:"score"`
	Enemies []json.RawMessage `json:"enemies,omitempty"`
	Items   []json.RawMessage `json:"items,omitempty"`
}

// NewGameState returns the state a freshly created lobby starts with
func NewGameState() GameState {
	return GameState{Wave: 1}
}

// Clone copies the state so callers cannot alias the lobby's slices
func (g GameState) Clone() GameState {
	out := g
	if g.Enemies != nil {
		out.Enemies = append([]json.RawMessage(nil), g.Enemies...)
	}
	if g.Items != nil {
		out.Items = append([]json.RawMessage(nil), g.Items...)
	}
	return out
}
