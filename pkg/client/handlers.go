package client

import "github.com/aeolun/lobbyd/pkg/protocol"

// Handlers are invoked on the read loop goroutine, after the mirror has been
// updated. Nil entries are skipped.
type Handlers struct {
	OnConnect      func(*protocol.ConnectMessage)
	OnDisconnect   func(*protocol.DisconnectMessage)
	OnReconnect    func(*protocol.ReconnectMessage)
	OnPong         func(*protocol.PongMessage)
	OnLobbyInfo    func(*protocol.LobbyInfoMessage)
	OnLobbyList    func(*protocol.LobbyListMessage)
	OnStartGame    func(*protocol.StartGameMessage)
	OnHostChange   func(*protocol.HostChangeMessage)
	OnPlayerUpdate func(*protocol.PlayerUpdateMessage)
	OnPlayerAction func(*protocol.PlayerActionMessage)
	OnEnemyUpdate  func(*protocol.EnemyUpdateMessage)
	OnGameState    func(*protocol.GameStateMessage)
	OnItemSpawn    func(*protocol.ItemSpawnMessage)
	OnItemCollect  func(*protocol.ItemCollectMessage)
	OnGameOver     func(*protocol.GameOverMessage)
	OnChat         func(*protocol.ChatMessage)

	// OnMessage sees every decoded message, after its typed handler
	OnMessage func(protocol.Message)

	// OnClose runs once when the connection ends, with nil after Close
	OnClose func(error)
}

// dispatch runs the typed handler for msg, then OnMessage. It reports
// whether a typed handler was registered.
func (h Handlers) dispatch(msg protocol.Message) bool {
	handled := false
	switch m := msg.(type) {
	case *protocol.ConnectMessage:
		handled = call(h.OnConnect, m)
	case *protocol.DisconnectMessage:
		handled = call(h.OnDisconnect, m)
	case *protocol.ReconnectMessage:
		handled = call(h.OnReconnect, m)
	case *protocol.PongMessage:
		handled = call(h.OnPong, m)
	case *protocol.LobbyInfoMessage:
		handled = call(h.OnLobbyInfo, m)
	case *protocol.LobbyListMessage:
		handled = call(h.OnLobbyList, m)
	case *protocol.StartGameMessage:
		handled = call(h.OnStartGame, m)
	case *protocol.HostChangeMessage:
		handled = call(h.OnHostChange, m)
	case *protocol.PlayerUpdateMessage:
		handled = call(h.OnPlayerUpdate, m)
	case *protocol.PlayerActionMessage:
		handled = call(h.OnPlayerAction, m)
	case *protocol.EnemyUpdateMessage:
		handled = call(h.OnEnemyUpdate, m)
	case *protocol.GameStateMessage:
		handled = call(h.OnGameState, m)
	case *protocol.ItemSpawnMessage:
		handled = call(h.OnItemSpawn, m)
	case *protocol.ItemCollectMessage:
		handled = call(h.OnItemCollect, m)
	case *protocol.GameOverMessage:
		handled = call(h.OnGameOver, m)
	case *protocol.ChatMessage:
		handled = call(h.OnChat, m)
	}
	if h.OnMessage != nil {
		h.OnMessage(msg)
	}
	return handled
}

func call[T protocol.Message](fn func(T), msg T) bool {
	if fn == nil {
		return false
	}
	fn(msg)
	return true
}
