package client

import (
	"encoding/json"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

// CreateLobby asks for a new lobby. An empty code lets the server pick one
// and maxPlayers <= 0 takes the server default.
func (c *Client) CreateLobby(code string, maxPlayers int) error {
	return c.Send(&protocol.CreateLobbyMessage{LobbyCode: code, MaxPlayers: maxPlayers})
}

// JoinLobby takes a seat in code with an optional character selection
func (c *Client) JoinLobby(code string, character json.RawMessage) error {
	return c.Send(&protocol.JoinLobbyMessage{LobbyCode: code, Character: character})
}

// LeaveLobby gives up the current seat
func (c *Client) LeaveLobby() error {
	if err := c.Send(&protocol.LeaveLobbyMessage{LobbyCode: c.LobbyCode()}); err != nil {
		return err
	}
	c.state.leave()
	return nil
}

func (c *Client) SetReady(ready bool) error {
	return c.Send(&protocol.PlayerReadyMessage{Ready: ready})
}

// StartGame is only honoured by the server for the host
func (c *Client) StartGame() error {
	return c.Send(&protocol.StartGameMessage{LobbyCode: c.LobbyCode()})
}

// Reconnect claims the seat previously held by playerID in code
func (c *Client) Reconnect(code, playerID string) error {
	return c.Send(&protocol.ReconnectMessage{LobbyCode: code, PlayerID: playerID})
}

func (c *Client) RequestLobbyList() error {
	return c.Send(&protocol.LobbyListMessage{})
}

func (c *Client) Ping() error {
	return c.Send(&protocol.PingMessage{})
}

// SendPlayerUpdate reports this player's movement. The server stamps the id.
func (c *Client) SendPlayerUpdate(position, velocity protocol.Vec2, state string, health int, facingRight bool) error {
	return c.Send(&protocol.PlayerUpdateMessage{
		PlayerID:    c.PlayerID(),
		Position:    position,
		Velocity:    velocity,
		State:       state,
		Health:      &health,
		FacingRight: facingRight,
	})
}

func (c *Client) SendPlayerAction(action string, data json.RawMessage) error {
	return c.Send(&protocol.PlayerActionMessage{PlayerID: c.PlayerID(), Action: action, Data: data})
}

// Host-only simulation messages. The server drops them from anyone else.

func (c *Client) SendEnemyUpdate(enemies []json.RawMessage) error {
	return c.Send(&protocol.EnemyUpdateMessage{Enemies: enemies})
}

func (c *Client) SendGameState(gs protocol.GameState) error {
	return c.Send(&protocol.GameStateMessage{GameState: gs})
}

func (c *Client) SpawnItem(itemID, kind string, position protocol.Vec2, data json.RawMessage) error {
	return c.Send(&protocol.ItemSpawnMessage{ItemID: itemID, Kind: kind, Position: position, Data: data})
}

func (c *Client) EndGame(victory bool, wave, score int, reason string) error {
	return c.Send(&protocol.GameOverMessage{Victory: victory, Wave: wave, Score: score, Reason: reason})
}

func (c *Client) CollectItem(itemID string) error {
	return c.Send(&protocol.ItemCollectMessage{ItemID: itemID, PlayerID: c.PlayerID()})
}

func (c *Client) Chat(text string) error {
	return c.Send(&protocol.ChatMessage{Text: text})
}
