package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	defaultName    = "Player"
	closeGraceTime = time.Second
)

var errHandshake = errors.New("first message was not connect")

func newUpgrader(cfg ServerConfig) websocket.Upgrader {
	return websocket.Upgrader{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		// game clients connect from anywhere
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// HandleWebSocket upgrades the request, waits for the connect handshake and
// then runs the session's reader on this goroutine and its writer on another
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(protocol.MaxFrameSize)
	remote := ws.RemoteAddr().String()

	hello, err := s.readHandshake(ws)
	if err != nil {
		s.metrics.RecordHandshakeFailure()
		s.log.Warn("client failed to send connect message", zap.String("remote", remote), zap.Error(err))
		closeWith(ws, websocket.ClosePolicyViolation, "expected connect")
		return
	}

	// the counter moves for every accepted connection, named or not
	id := s.hub.NextPlayerID()
	if hello.PlayerID != "" {
		id = hello.PlayerID
	}
	name := hello.PlayerName
	if name == "" {
		name = defaultName
	}

	sess := NewSession(id, name, hello.Version, remote, s.cfg.OutboundQueue)
	if !s.hub.Open(sess) {
		closeWith(ws, websocket.CloseGoingAway, "server shutting down")
		return
	}

	go s.writePump(ws, sess)
	s.readPump(ws, sess)
}

// readHandshake waits HandshakeTimeout for a connect frame
func (s *Server) readHandshake(ws *websocket.Conn) (*protocol.ConnectMessage, error) {
	if err := ws.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return nil, err
	}
	_, frame, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	_, msg := protocol.Decode(frame)
	hello, ok := msg.(*protocol.ConnectMessage)
	if !ok {
		return nil, errHandshake
	}
	return hello, nil
}

// readPump forwards inbound frames to the hub in arrival order until the
// transport fails, then reports the session closed
func (s *Server) readPump(ws *websocket.Conn, sess *Session) {
	log := s.log.With(zap.String("player_id", sess.PlayerID))
	defer func() {
		sess.Close()
		s.hub.Closed(sess)
	}()

	deadline := s.cfg.PingInterval + s.cfg.PongTimeout
	_ = ws.SetReadDeadline(time.Now().Add(deadline))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(deadline))

		env, msg, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			s.metrics.RecordMessageDropped("malformed")
			log.Debug("ignoring frame", zap.Error(err))
			continue
		}
		if !s.hub.Deliver(sess, env.Type, msg) {
			return
		}
	}
}

// writePump drains the outbound queue and keeps the transport alive with
// pings. It owns every write to ws and closes it on the way out.
func (s *Server) writePump(ws *websocket.Conn, sess *Session) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case frame := <-sess.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("write failed", zap.String("player_id", sess.PlayerID), zap.Error(err))
				sess.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.Close()
				return
			}
		case <-sess.Done():
			s.flush(ws, sess)
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeGraceTime))
			return
		}
	}
}

// flush writes whatever was queued before the session closed
func (s *Server) flush(ws *websocket.Conn, sess *Session) {
	for {
		select {
		case frame := <-sess.Outbound():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func closeWith(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(closeGraceTime))
	ws.Close()
}
