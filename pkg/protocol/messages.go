package protocol

import "encoding/json"

// MessageType is the tag carried in every envelope
type MessageType string

// Connection
const (
	TypeConnect    MessageType = "connect"
	TypeDisconnect MessageType = "disconnect"
	TypeReconnect  MessageType = "reconnect"
	TypePing       MessageType = "ping"
	TypePong       MessageType = "pong"
)

// Lobby
const (
	TypeCreateLobby MessageType = "create_lobby"
	TypeJoinLobby   MessageType = "join_lobby"
	TypeLeaveLobby  MessageType = "leave_lobby"
	TypeLobbyInfo   MessageType = "lobby_info"
	TypeLobbyList   MessageType = "lobby_list"
	TypePlayerReady MessageType = "player_ready"
	TypeStartGame   MessageType = "start_game"
	TypeHostChange  MessageType = "host_change"
)

// Game
const (
	TypePlayerUpdate MessageType = "player_update"
	TypePlayerAction MessageType = "player_action"
	TypeEnemyUpdate  MessageType = "enemy_update"
	TypeGameState    MessageType = "game_state"
	TypeItemSpawn    MessageType = "item_spawn"
	TypeItemCollect  MessageType = "item_collect"
	TypeGameOver     MessageType = "game_over"
	TypeChat         MessageType = "chat"
)

// AllTypes lists every tag the codec understands
var AllTypes = []MessageType{
	TypeConnect, TypeDisconnect, TypeReconnect, TypePing, TypePong,
	TypeCreateLobby, TypeJoinLobby, TypeLeaveLobby, TypeLobbyInfo, TypeLobbyList,
	TypePlayerReady, TypeStartGame, TypeHostChange,
	TypePlayerUpdate, TypePlayerAction, TypeEnemyUpdate, TypeGameState,
	TypeItemSpawn, TypeItemCollect, TypeGameOver, TypeChat,
}

// Valid reports whether t is one of the known tags
func (t MessageType) Valid() bool {
	return newMessage(t) != nil
}

func (t MessageType) String() string { return string(t) }

// Message is implemented by every payload variant
type Message interface {
	Type() MessageType
}

// newMessage returns an empty payload for the tag, or nil for unknown tags
func newMessage(t MessageType) Message {
	switch t {
	case TypeConnect:
		return &ConnectMessage{}
	case TypeDisconnect:
		return &DisconnectMessage{}
	case TypeReconnect:
		return &ReconnectMessage{}
	case TypePing:
		return &PingMessage{}
	case TypePong:
		return &PongMessage{}
	case TypeCreateLobby:
		return &CreateLobbyMessage{}
	case TypeJoinLobby:
		return &JoinLobbyMessage{}
	case TypeLeaveLobby:
		return &LeaveLobbyMessage{}
	case TypeLobbyInfo:
		return &LobbyInfoMessage{}
	case TypeLobbyList:
		return &LobbyListMessage{}
	case TypePlayerReady:
		return &PlayerReadyMessage{}
	case TypeStartGame:
		return &StartGameMessage{}
	case TypeHostChange:
		return &HostChangeMessage{}
	case TypePlayerUpdate:
		return &PlayerUpdateMessage{}
	case TypePlayerAction:
		return &PlayerActionMessage{}
	case TypeEnemyUpdate:
		return &EnemyUpdateMessage{}
	case TypeGameState:
		return &GameStateMessage{}
	case TypeItemSpawn:
		return &ItemSpawnMessage{}
	case TypeItemCollect:
		return &ItemCollectMessage{}
	case TypeGameOver:
		return &GameOverMessage{}
	case TypeChat:
		return &ChatMessage{}
	default:
		return nil
	}
}

// ConnectMessage is the handshake. Clients send identity fields; the server
// replies with Status and ServerInfo.
type ConnectMessage struct {
	PlayerID   string      `json:"player_id,omitempty"`
	PlayerName string      `json:"player_name,omitempty"`
	Version    string      `json:"version,omitempty"`
	Status     string      `json:"status,omitempty"`
	ServerInfo *ServerInfo `json:"server_info,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func (ConnectMessage) Type() MessageType { return TypeConnect }

// DisconnectMessage tells lobby peers that a seated player dropped mid-game
type DisconnectMessage struct {
	PlayerID string `json:"player_id,omitempty"`
}

func (DisconnectMessage) Type() MessageType { return TypeDisconnect }

// ReconnectMessage asks to retake a preserved seat. The reply carries the
// roster and, once the game has started, the game state.
type ReconnectMessage struct {
	LobbyCode string            `json:"lobby_code,omitempty"`
	PlayerID  string            `json:"player_id,omitempty"`
	Status    string            `json:"status,omitempty"`
	LobbyInfo *LobbyInfoMessage `json:"lobby_info,omitempty"`
	GameState *GameState        `json:"game_state,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (ReconnectMessage) Type() MessageType { return TypeReconnect }

// reconnectReply always carries lobby_info and game_state, null before start
type reconnectReply struct {
	LobbyCode string            `json:"lobby_code,omitempty"`
	PlayerID  string            `json:"player_id,omitempty"`
	Status    string            `json:"status"`
	LobbyInfo *LobbyInfoMessage `json:"lobby_info"`
	GameState *GameState        `json:"game_state"`
	Error     string            `json:"-"`
}

// MarshalJSON writes one of three shapes: an error reply, a status reply
// with the full snapshot, or a bare request.
func (m ReconnectMessage) MarshalJSON() ([]byte, error) {
	switch {
	case m.Error != "":
		return json.Marshal(errorReply{Error: m.Error})
	case m.Status != "":
		return json.Marshal(reconnectReply(m))
	}
	type request ReconnectMessage
	return json.Marshal(request(m))
}

// errorReply is the payload of every rejected request
type errorReply struct {
	Error string `json:"error"`
}

type PingMessage struct{}

func (PingMessage) Type() MessageType { return TypePing }

type PongMessage struct{}

func (PongMessage) Type() MessageType { return TypePong }

// CreateLobbyMessage requests a new lobby. An empty code asks the server to
// generate one; zero MaxPlayers means the server default.
type CreateLobbyMessage struct {
	LobbyCode  string `json:"lobby_code,omitempty"`
	MaxPlayers int    `json:"max_players,omitempty"`
}

func (CreateLobbyMessage) Type() MessageType { return TypeCreateLobby }

type JoinLobbyMessage struct {
	LobbyCode string          `json:"lobby_code,omitempty"`
	Character json.RawMessage `json:"character,omitempty"`
}

func (JoinLobbyMessage) Type() MessageType { return TypeJoinLobby }

// LeaveLobbyMessage leaves LobbyCode, or the caller's current lobby when empty
type LeaveLobbyMessage struct {
	LobbyCode string `json:"lobby_code,omitempty"`
}

func (LeaveLobbyMessage) Type() MessageType { return TypeLeaveLobby }

// LobbyInfoMessage is the roster snapshot. Error replies carry only Error.
type LobbyInfoMessage struct {
	Code        string       `json:"code,omitempty"`
	HostID      string       `json:"host_id,omitempty"`
	Players     []PlayerInfo `json:"players,omitempty"`
	MaxPlayers  int          `json:"max_players,omitempty"`
	GameStarted bool         `json:"game_started,omitempty"`
	Error       string       `json:"error,omitempty"`
}

func (LobbyInfoMessage) Type() MessageType { return TypeLobbyInfo }

// lobbyRoster is the complete snapshot: every key present, players never null
type lobbyRoster struct {
	Code        string       `json:"code"`
	HostID      string       `json:"host_id"`
	Players     []PlayerInfo `json:"players"`
	MaxPlayers  int          `json:"max_players"`
	GameStarted bool         `json:"game_started"`
	Error       string       `json:"-"`
}

// MarshalJSON writes error replies as the error alone and rosters in full
func (m LobbyInfoMessage) MarshalJSON() ([]byte, error) {
	if m.Error != "" {
		return json.Marshal(errorReply{Error: m.Error})
	}
	if m.Players == nil {
		m.Players = []PlayerInfo{}
	}
	return json.Marshal(lobbyRoster(m))
}

// Player looks up a roster entry by id
func (m *LobbyInfoMessage) Player(id string) (PlayerInfo, bool) {
	for _, p := range m.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerInfo{}, false
}

// LobbyListMessage is empty as a request and filled in the reply
type LobbyListMessage struct {
	Lobbies []LobbySummary `json:"lobbies,omitempty"`
}

func (LobbyListMessage) Type() MessageType { return TypeLobbyList }

type PlayerReadyMessage struct {
	Ready bool `json:"ready"`
}

func (PlayerReadyMessage) Type() MessageType { return TypePlayerReady }

// StartGameMessage is sent by the host to start, and broadcast with the seed
// on success. Failures come back with Error set.
type StartGameMessage struct {
	LobbyCode string `json:"lobby_code,omitempty"`
	Seed      int64  `json:"seed,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (StartGameMessage) Type() MessageType { return TypeStartGame }

type HostChangeMessage struct {
	NewHostID string `json:"new_host_id"`
}

func (HostChangeMessage) Type() MessageType { return TypeHostChange }

// PlayerUpdateMessage is the per-tick movement state of one player
type PlayerUpdateMessage struct {
	PlayerID    string `json:"player_id,omitempty"`
	Position    Vec2   `json:"position"`
	Velocity    Vec2   `json:"velocity"`
	State       string `json:"state,omitempty"`
	Health      *int   `json:"health,omitempty"`
	FacingRight bool   `json:"facing_right"`
}

func (PlayerUpdateMessage) Type() MessageType { return TypePlayerUpdate }

// HealthOr returns the reported health, or def when the client omitted it
func (m PlayerUpdateMessage) HealthOr(def int) int {
	if m.Health == nil {
		return def
	}
	return *m.Health
}

type PlayerActionMessage struct {
	PlayerID string          `json:"player_id,omitempty"`
	Action   string          `json:"action,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (PlayerActionMessage) Type() MessageType { return TypePlayerAction }

// EnemyUpdateMessage carries host-simulated enemy entities
type EnemyUpdateMessage struct {
	Enemies []json.RawMessage `json:"enemies,omitempty"`
}

func (EnemyUpdateMessage) Type() MessageType { return TypeEnemyUpdate }

type GameStateMessage struct {
	GameState
}

func (GameStateMessage) Type() MessageType { return TypeGameState }

type ItemSpawnMessage struct {
	ItemID   string          `json:"item_id,omitempty"`
	Kind     string          `json:"kind,omitempty"`
	Position Vec2            `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (ItemSpawnMessage) Type() MessageType { return TypeItemSpawn }

type ItemCollectMessage struct {
	ItemID   string `json:"item_id,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
}

func (ItemCollectMessage) Type() MessageType { return TypeItemCollect }

type GameOverMessage struct {
	Victory bool   `json:"victory"`
	Wave    int    `json:"wave,omitempty"`
	Score   int    `json:"score,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (GameOverMessage) Type() MessageType { return TypeGameOver }

type ChatMessage struct {
	PlayerID   string `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
	Text       string `json:"text,omitempty"`
}

func (ChatMessage) Type() MessageType { return TypeChat }
