package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aeolun/lobbyd/pkg/lobby"
	"github.com/aeolun/lobbyd/pkg/protocol"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength  = 6

	inboxSize = 1024
)

var (
	ErrServerFull    = errors.New("server full - maximum lobbies reached")
	ErrCodeTaken     = errors.New("lobby code already exists")
	ErrLobbyNotFound = errors.New("lobby not found")
	ErrHubStopped    = errors.New("hub stopped")
)

// event is anything the hub goroutine processes
type event interface{ isHubEvent() }

type sessionOpened struct {
	sess *Session
}

type inbound struct {
	sess *Session
	typ  protocol.MessageType
	msg  protocol.Message
}

type sessionClosed struct {
	sess *Session
}

type statsRequest struct {
	reply chan Stats
}

func (sessionOpened) isHubEvent() {}
func (inbound) isHubEvent()       {}
func (sessionClosed) isHubEvent() {}
func (statsRequest) isHubEvent()  {}

// Stats is the server-wide snapshot served on /stats
type Stats struct {
	Uptime           string       `json:"uptime"`
	UptimeSeconds    float64      `json:"uptime_seconds"`
	TotalConnections int64        `json:"total_connections"`
	ActivePlayers    int          `json:"active_players"`
	ActiveLobbies    int          `json:"active_lobbies"`
	Lobbies          []LobbyStats `json:"lobbies"`
}

type LobbyStats struct {
	Code        string `json:"code"`
	Players     int    `json:"players"`
	Connected   int    `json:"connected"`
	GameStarted bool   `json:"game_started"`
}

// Hub owns the session registry and every lobby. All state mutation happens
// on the goroutine running Run; sessions talk to it only through the inbox.
type Hub struct {
	cfg     ServerConfig
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
	newCode func() (string, error)

	inbox chan event
	done  chan struct{}

	connections map[string]*Session
	lobbies     map[string]*lobby.Lobby

	totalConnections atomic.Int64
	startTime        time.Time
}

// NewHub creates a hub. Nothing is processed until Run is called.
func NewHub(cfg ServerConfig, log *zap.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Hub{
		cfg:         cfg,
		log:         log,
		metrics:     metrics,
		now:         time.Now,
		newCode:     GenerateCode,
		inbox:       make(chan event, inboxSize),
		done:        make(chan struct{}),
		connections: make(map[string]*Session),
		lobbies:     make(map[string]*lobby.Lobby),
		startTime:   time.Now(),
	}
}

// GenerateCode returns a random lobby code drawn from A-Z0-9
func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

// NextPlayerID counts a new connection and returns the fallback identity
// for clients that do not choose their own
func (h *Hub) NextPlayerID() string {
	n := h.totalConnections.Add(1) - 1
	return fmt.Sprintf("player_%d", n)
}

// Run processes events until ctx is cancelled, then closes every session
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()
	defer close(h.done)

	h.log.Info("hub started",
		zap.Int("max_lobbies", h.cfg.MaxLobbies),
		zap.Duration("sweep_interval", h.cfg.SweepInterval))

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case ev := <-h.inbox:
			h.apply(ev)
		case <-ticker.C:
			h.sweep(h.now())
		}
	}
}

// post hands an event to the hub goroutine
func (h *Hub) post(ev event) bool {
	select {
	case h.inbox <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Open registers a session that completed the handshake
func (h *Hub) Open(sess *Session) bool { return h.post(sessionOpened{sess: sess}) }

// Deliver forwards a decoded message from sess
func (h *Hub) Deliver(sess *Session, typ protocol.MessageType, msg protocol.Message) bool {
	return h.post(inbound{sess: sess, typ: typ, msg: msg})
}

// Closed reports that the transport of sess is gone
func (h *Hub) Closed(sess *Session) bool { return h.post(sessionClosed{sess: sess}) }

// Stats asks the hub goroutine for a snapshot. Once the hub has stopped the
// final state is read directly.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	select {
	case <-h.done:
		return h.stats(), nil
	default:
	}

	reply := make(chan Stats, 1)
	select {
	case h.inbox <- statsRequest{reply: reply}:
	case <-h.done:
		return h.stats(), nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}

	select {
	case st := <-reply:
		return st, nil
	case <-h.done:
		return h.stats(), nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Done is closed when Run has returned
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) apply(ev event) {
	switch e := ev.(type) {
	case sessionOpened:
		h.register(e.sess)
	case inbound:
		if h.connections[e.sess.PlayerID] != e.sess {
			h.metrics.RecordMessageDropped("stale_session")
			return
		}
		h.dispatch(e.sess, e.typ, e.msg)
	case sessionClosed:
		h.disconnect(e.sess)
	case statsRequest:
		e.reply <- h.stats()
	}
}

// register adds a session to the registry and acknowledges the handshake.
// A session already registered under the same id is superseded.
func (h *Hub) register(sess *Session) {
	log := h.log.With(zap.String("player_id", sess.PlayerID))
	if old, ok := h.connections[sess.PlayerID]; ok && old != sess {
		log.Info("superseding existing session", zap.String("old_remote", old.RemoteAddr))
		old.Close()
	}
	h.connections[sess.PlayerID] = sess
	h.metrics.RecordSessionCreated()
	h.metrics.RecordActiveSessions(len(h.connections))

	log.Info("player connected",
		zap.String("name", sess.Name),
		zap.String("remote", sess.RemoteAddr))

	h.unicast(sess, &protocol.ConnectMessage{
		Status:   "connected",
		PlayerID: sess.PlayerID,
		ServerInfo: &protocol.ServerInfo{
			Version:       h.cfg.ServerVersion,
			MaxLobbies:    h.cfg.MaxLobbies,
			ActiveLobbies: len(h.lobbies),
		},
	})
}

// disconnect removes a session from the registry and resolves its seat:
// released before the game starts, preserved for reconnection after
func (h *Hub) disconnect(sess *Session) {
	sess.Close()
	if h.connections[sess.PlayerID] == sess {
		delete(h.connections, sess.PlayerID)
		h.metrics.RecordSessionDisconnected()
		h.metrics.RecordActiveSessions(len(h.connections))
		h.log.Info("player disconnected", zap.String("player_id", sess.PlayerID))
	}

	l, m := h.seatOf(sess)
	if l == nil {
		return
	}
	if !l.GameStarted {
		h.releaseSeat(sess)
		return
	}

	hostChanged := l.MarkDisconnected(m.ID)
	h.broadcast(l, &protocol.DisconnectMessage{PlayerID: m.ID}, "")
	if hostChanged {
		h.announceHost(l)
	}
}

// seatOf returns the lobby and seat bound to sess, if any
func (h *Hub) seatOf(sess *Session) (*lobby.Lobby, *lobby.Member) {
	if sess.lobbyCode == "" {
		return nil, nil
	}
	l, ok := h.lobbies[sess.lobbyCode]
	if !ok {
		sess.lobbyCode = ""
		return nil, nil
	}
	m, ok := l.Member(sess.PlayerID)
	if !ok || m.Peer != lobby.Peer(sess) {
		sess.lobbyCode = ""
		return nil, nil
	}
	return l, m
}

// releaseSeat removes sess from its lobby, deleting the lobby when it
// empties and announcing a new host when one is chosen
func (h *Hub) releaseSeat(sess *Session) {
	l, m := h.seatOf(sess)
	if l == nil {
		return
	}
	_, hostChanged := l.Remove(m.ID)
	sess.lobbyCode = ""
	h.log.Info("player left lobby", zap.String("player_id", m.ID), zap.String("lobby", l.Code))

	if l.Empty() {
		h.removeLobby(l.Code, "empty")
		return
	}
	if hostChanged {
		h.announceHost(l)
		return
	}
	h.broadcast(l, l.Info(), "")
}

// announceHost tells the lobby about its new host, followed by the roster
func (h *Hub) announceHost(l *lobby.Lobby) {
	h.metrics.RecordHostChange()
	h.log.Info("host changed", zap.String("lobby", l.Code), zap.String("host", l.HostID))
	h.broadcast(l, &protocol.HostChangeMessage{NewHostID: l.HostID}, "")
	h.broadcast(l, l.Info(), "")
}

func (h *Hub) removeLobby(code, reason string) {
	delete(h.lobbies, code)
	h.metrics.RecordLobbyRemoved(reason)
	h.metrics.RecordActiveLobbies(len(h.lobbies))
	h.log.Info("lobby removed", zap.String("lobby", code), zap.String("reason", reason))
}

// sweep removes lobbies nobody has been connected to for longer than
// StaleAfter. It returns how many were removed.
func (h *Hub) sweep(now time.Time) int {
	var stale []string
	for code, l := range h.lobbies {
		if l.Stale(now, h.cfg.StaleAfter) {
			stale = append(stale, code)
		}
	}
	sort.Strings(stale)

	for _, code := range stale {
		for _, m := range h.lobbies[code].Members() {
			if sess, ok := h.connections[m.ID]; ok && sess.lobbyCode == code {
				sess.lobbyCode = ""
			}
		}
		h.removeLobby(code, "stale")
	}
	if len(stale) > 0 {
		h.log.Debug("sweep finished", zap.Int("removed", len(stale)), zap.Int("remaining", len(h.lobbies)))
	}
	return len(stale)
}

func (h *Hub) shutdown() {
	for _, sess := range h.connections {
		sess.Close()
	}
	h.log.Info("hub stopped", zap.Int("sessions_closed", len(h.connections)))
}

func (h *Hub) stats() Stats {
	uptime := h.now().Sub(h.startTime)
	st := Stats{
		Uptime:           uptime.Round(time.Second).String(),
		UptimeSeconds:    uptime.Seconds(),
		TotalConnections: h.totalConnections.Load(),
		ActivePlayers:    len(h.connections),
		ActiveLobbies:    len(h.lobbies),
		Lobbies:          make([]LobbyStats, 0, len(h.lobbies)),
	}
	for _, l := range h.sortedLobbies() {
		st.Lobbies = append(st.Lobbies, LobbyStats{
			Code:        l.Code,
			Players:     l.Len(),
			Connected:   l.ConnectedCount(),
			GameStarted: l.GameStarted,
		})
	}
	return st
}

func (h *Hub) sortedLobbies() []*lobby.Lobby {
	out := make([]*lobby.Lobby, 0, len(h.lobbies))
	for _, l := range h.lobbies {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
