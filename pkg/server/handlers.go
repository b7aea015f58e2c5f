package server

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aeolun/lobbyd/pkg/lobby"
	"github.com/aeolun/lobbyd/pkg/protocol"
)

// dispatch routes one decoded message to its handler. A panicking handler
// is recovered so the hub keeps serving everyone else.
func (h *Hub) dispatch(sess *Session, typ protocol.MessageType, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.metrics.RecordHandlerPanic(typ.String())
			h.log.Error("handler panic",
				zap.String("type", typ.String()),
				zap.String("player_id", sess.PlayerID),
				zap.Any("panic", r))
		}
	}()

	h.metrics.RecordMessageReceived(typ.String())
	h.log.Debug("message received", zap.String("type", typ.String()), zap.String("player_id", sess.PlayerID))

	switch m := msg.(type) {
	case *protocol.CreateLobbyMessage:
		h.handleCreateLobby(sess, m)
	case *protocol.JoinLobbyMessage:
		h.handleJoinLobby(sess, m)
	case *protocol.LeaveLobbyMessage:
		h.handleLeaveLobby(sess, m)
	case *protocol.LobbyListMessage:
		h.handleLobbyList(sess)
	case *protocol.PlayerReadyMessage:
		h.handlePlayerReady(sess, m)
	case *protocol.StartGameMessage:
		h.handleStartGame(sess, m)
	case *protocol.ReconnectMessage:
		h.handleReconnect(sess, m)
	case *protocol.PingMessage:
		h.handlePing(sess)
	case *protocol.PlayerUpdateMessage:
		h.handlePlayerUpdate(sess, m)
	case *protocol.PlayerActionMessage:
		h.handlePlayerAction(sess, m)
	case *protocol.EnemyUpdateMessage:
		h.relayFromHost(sess, m)
	case *protocol.ItemSpawnMessage:
		h.relayFromHost(sess, m)
	case *protocol.GameStateMessage:
		h.handleGameState(sess, m)
	case *protocol.ItemCollectMessage:
		h.handleItemCollect(sess, m)
	case *protocol.GameOverMessage:
		h.handleGameOver(sess, m)
	case *protocol.ChatMessage:
		h.handleChat(sess, m)
	default:
		// connect after the handshake and server-to-client tags
		h.drop(sess, typ, "unexpected_type")
	}
}

func (h *Hub) drop(sess *Session, typ protocol.MessageType, reason string) {
	h.metrics.RecordMessageDropped(reason)
	h.log.Debug("message dropped",
		zap.String("type", typ.String()),
		zap.String("player_id", sess.PlayerID),
		zap.String("reason", reason))
}

// lobbyError replies to create/join failures on the lobby_info tag
func (h *Hub) lobbyError(sess *Session, err error) {
	h.log.Debug("lobby request rejected", zap.String("player_id", sess.PlayerID), zap.Error(err))
	h.unicast(sess, &protocol.LobbyInfoMessage{Error: errorText(err)})
}

// errorText maps sentinel errors to the strings clients display
func errorText(err error) string {
	switch {
	case errors.Is(err, ErrServerFull):
		return "Server full - maximum lobbies reached"
	case errors.Is(err, ErrCodeTaken):
		return "Lobby code already exists"
	case errors.Is(err, ErrLobbyNotFound):
		return "Lobby not found"
	case errors.Is(err, lobby.ErrLobbyFull):
		return "Lobby full"
	case errors.Is(err, lobby.ErrGameStarted):
		return "Game already started"
	case errors.Is(err, lobby.ErrNotHost):
		return "Only host can start game"
	case errors.Is(err, lobby.ErrNotAllReady):
		return "Not all players ready"
	default:
		return err.Error()
	}
}

func (h *Hub) seatFor(sess *Session) *lobby.Member {
	m := lobby.NewMember(sess.PlayerID, sess.Name, sess)
	m.Character = sess.character
	return m
}

func (h *Hub) uniqueCode() (string, error) {
	for {
		code, err := h.newCode()
		if err != nil {
			return "", fmt.Errorf("generate lobby code: %w", err)
		}
		if _, taken := h.lobbies[code]; !taken {
			return code, nil
		}
	}
}

// handleCreateLobby registers a new lobby with sess as sole member and host
func (h *Hub) handleCreateLobby(sess *Session, msg *protocol.CreateLobbyMessage) {
	if len(h.lobbies) >= h.cfg.MaxLobbies {
		h.lobbyError(sess, ErrServerFull)
		return
	}

	code := msg.LobbyCode
	if code == "" {
		var err error
		if code, err = h.uniqueCode(); err != nil {
			h.log.Error("create lobby", zap.Error(err))
			return
		}
	}
	if _, taken := h.lobbies[code]; taken {
		h.lobbyError(sess, ErrCodeTaken)
		return
	}

	h.releaseSeat(sess)

	l := lobby.New(code, h.cfg.ClampPlayers(msg.MaxPlayers), h.now)
	if err := l.Add(h.seatFor(sess)); err != nil {
		h.lobbyError(sess, err)
		return
	}
	h.lobbies[code] = l
	sess.lobbyCode = code

	h.metrics.RecordLobbyCreated()
	h.metrics.RecordActiveLobbies(len(h.lobbies))
	h.log.Info("lobby created",
		zap.String("lobby", code),
		zap.String("player_id", sess.PlayerID),
		zap.Int("max_players", l.MaxPlayers))

	h.unicast(sess, l.Info())
}

// handleJoinLobby seats sess in an existing lobby and broadcasts the roster
func (h *Hub) handleJoinLobby(sess *Session, msg *protocol.JoinLobbyMessage) {
	l, ok := h.lobbies[msg.LobbyCode]
	if msg.LobbyCode == "" || !ok {
		h.lobbyError(sess, ErrLobbyNotFound)
		return
	}

	if !l.Has(sess.PlayerID) {
		if l.Full() {
			h.lobbyError(sess, lobby.ErrLobbyFull)
			return
		}
		if l.GameStarted {
			h.lobbyError(sess, lobby.ErrGameStarted)
			return
		}
	}

	if sess.lobbyCode != l.Code {
		h.releaseSeat(sess)
	}
	if msg.Character != nil {
		sess.character = msg.Character
	}
	if err := l.Add(h.seatFor(sess)); err != nil {
		h.lobbyError(sess, err)
		return
	}
	sess.lobbyCode = l.Code

	h.log.Info("player joined lobby", zap.String("player_id", sess.PlayerID), zap.String("lobby", l.Code))
	h.broadcast(l, l.Info(), "")
}

// handleLeaveLobby releases the caller's seat. A code naming some other
// lobby than the caller's own is ignored.
func (h *Hub) handleLeaveLobby(sess *Session, msg *protocol.LeaveLobbyMessage) {
	if msg.LobbyCode != "" && msg.LobbyCode != sess.lobbyCode {
		h.drop(sess, protocol.TypeLeaveLobby, "not_member")
		return
	}
	h.releaseSeat(sess)
}

func (h *Hub) handleLobbyList(sess *Session) {
	reply := &protocol.LobbyListMessage{}
	for _, l := range h.sortedLobbies() {
		reply.Lobbies = append(reply.Lobbies, l.Summary())
	}
	h.unicast(sess, reply)
}

func (h *Hub) handlePlayerReady(sess *Session, msg *protocol.PlayerReadyMessage) {
	l, m := h.seatOf(sess)
	if l == nil {
		h.drop(sess, protocol.TypePlayerReady, "not_seated")
		return
	}
	if err := l.SetReady(m.ID, msg.Ready); err != nil {
		h.drop(sess, protocol.TypePlayerReady, "game_started")
		return
	}
	h.broadcast(l, l.Info(), "")
}

// handleStartGame is host-only and requires every seat to be ready
func (h *Hub) handleStartGame(sess *Session, msg *protocol.StartGameMessage) {
	code := msg.LobbyCode
	if code == "" {
		code = sess.lobbyCode
	}
	l, ok := h.lobbies[code]
	if code == "" || !ok {
		h.unicast(sess, &protocol.StartGameMessage{Error: errorText(ErrLobbyNotFound)})
		return
	}

	if err := l.Start(sess.PlayerID); err != nil {
		h.log.Debug("start rejected", zap.String("lobby", code), zap.String("player_id", sess.PlayerID), zap.Error(err))
		h.unicast(sess, &protocol.StartGameMessage{Error: errorText(err)})
		return
	}

	h.metrics.RecordGameStarted()
	h.log.Info("game started", zap.String("lobby", code), zap.Int("players", l.Len()))
	h.broadcast(l, &protocol.StartGameMessage{LobbyCode: code, Seed: h.now().Unix()}, "")
}

// handleReconnect hands a preserved seat to sess. An unknown seat falls back
// to an ordinary join, with the usual capacity and started-game rules.
func (h *Hub) handleReconnect(sess *Session, msg *protocol.ReconnectMessage) {
	l, ok := h.lobbies[msg.LobbyCode]
	if msg.LobbyCode == "" || !ok {
		h.metrics.RecordReconnect("not_found")
		h.unicast(sess, &protocol.ReconnectMessage{Error: errorText(ErrLobbyNotFound)})
		return
	}

	oldID := msg.PlayerID
	if oldID == "" || !l.Has(oldID) {
		h.metrics.RecordReconnect("joined")
		h.handleJoinLobby(sess, &protocol.JoinLobbyMessage{LobbyCode: l.Code})
		return
	}

	if sess.lobbyCode != l.Code {
		h.releaseSeat(sess)
	}
	if prev, ok := h.connections[oldID]; ok && prev != sess && prev.lobbyCode == l.Code {
		prev.lobbyCode = ""
	}

	seat := h.seatFor(sess)
	if err := l.Rebind(oldID, seat); err != nil {
		h.log.Error("rebind seat", zap.String("lobby", l.Code), zap.Error(err))
		return
	}
	sess.lobbyCode = l.Code
	sess.character = seat.Character

	h.metrics.RecordReconnect("restored")
	h.log.Info("player reconnected",
		zap.String("player_id", sess.PlayerID),
		zap.String("old_player_id", oldID),
		zap.String("lobby", l.Code))

	reply := &protocol.ReconnectMessage{Status: "reconnected", LobbyInfo: l.Info()}
	if l.GameStarted {
		gs := l.GameState.Clone()
		reply.GameState = &gs
	}
	h.unicast(sess, reply)
	h.broadcast(l, l.Info(), sess.PlayerID)
}

func (h *Hub) handlePing(sess *Session) {
	sess.lastPing = h.now()
	h.unicast(sess, &protocol.PongMessage{})
}

// inGame returns the caller's lobby and seat when its game is running
func (h *Hub) inGame(sess *Session, typ protocol.MessageType) (*lobby.Lobby, *lobby.Member) {
	l, m := h.seatOf(sess)
	if l == nil {
		h.drop(sess, typ, "not_seated")
		return nil, nil
	}
	if !l.GameStarted {
		h.drop(sess, typ, "not_started")
		return nil, nil
	}
	return l, m
}

func (h *Hub) handlePlayerUpdate(sess *Session, msg *protocol.PlayerUpdateMessage) {
	l, m := h.inGame(sess, protocol.TypePlayerUpdate)
	if l == nil {
		return
	}
	msg.PlayerID = m.ID
	l.UpdatePlayer(m.ID, msg.Position, msg.HealthOr(lobby.DefaultHealth))
	h.broadcast(l, msg, m.ID)
}

// handlePlayerAction echoes to the sender too, as confirmation
func (h *Hub) handlePlayerAction(sess *Session, msg *protocol.PlayerActionMessage) {
	l, m := h.inGame(sess, protocol.TypePlayerAction)
	if l == nil {
		return
	}
	msg.PlayerID = m.ID
	h.broadcast(l, msg, "")
}

// relayFromHost forwards host-simulated state to everyone else
func (h *Hub) relayFromHost(sess *Session, msg protocol.Message) {
	l, m := h.inGame(sess, msg.Type())
	if l == nil {
		return
	}
	if l.HostID != m.ID {
		h.drop(sess, msg.Type(), "not_host")
		return
	}
	h.broadcast(l, msg, m.ID)
}

func (h *Hub) handleGameState(sess *Session, msg *protocol.GameStateMessage) {
	l, m := h.inGame(sess, protocol.TypeGameState)
	if l == nil {
		return
	}
	if l.HostID != m.ID {
		h.drop(sess, protocol.TypeGameState, "not_host")
		return
	}
	l.GameState = msg.GameState.Clone()
	h.broadcast(l, msg, m.ID)
}

func (h *Hub) handleItemCollect(sess *Session, msg *protocol.ItemCollectMessage) {
	l, m := h.inGame(sess, protocol.TypeItemCollect)
	if l == nil {
		return
	}
	msg.PlayerID = m.ID
	h.broadcast(l, msg, "")
}

// handleGameOver announces the result; the lobby stays started
func (h *Hub) handleGameOver(sess *Session, msg *protocol.GameOverMessage) {
	l, m := h.inGame(sess, protocol.TypeGameOver)
	if l == nil {
		return
	}
	if l.HostID != m.ID {
		h.drop(sess, protocol.TypeGameOver, "not_host")
		return
	}
	h.log.Info("game over", zap.String("lobby", l.Code), zap.Bool("victory", msg.Victory), zap.Int("score", msg.Score))
	h.broadcast(l, msg, "")
}

func (h *Hub) handleChat(sess *Session, msg *protocol.ChatMessage) {
	l, m := h.seatOf(sess)
	if l == nil {
		h.drop(sess, protocol.TypeChat, "not_seated")
		return
	}
	if msg.Text == "" {
		h.drop(sess, protocol.TypeChat, "empty")
		return
	}
	msg.PlayerID = m.ID
	msg.PlayerName = m.Name
	h.broadcast(l, msg, "")
}
