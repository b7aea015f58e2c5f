// Package lobby holds the room model: seats, host, readiness and the coarse
// game state blob. A Lobby is not safe for concurrent use; the server hub
// owns every instance.
package lobby

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

const (
	// DefaultMaxPlayers is used when a create request leaves max_players unset
	DefaultMaxPlayers = 6

	// DefaultHealth is what a seat reports until the client sends an update
	DefaultHealth = 100
)

var (
	ErrLobbyFull   = errors.New("lobby full")
	ErrGameStarted = errors.New("game already started")
	ErrNotHost     = errors.New("only host can start game")
	ErrNotAllReady = errors.New("not all players ready")
	ErrNotMember   = errors.New("not a member of this lobby")
)

// Peer is the delivery side of a connection session as seen by a seat
type Peer interface {
	Send(frame []byte) error
}

// Member is a seat in a lobby
type Member struct {
	ID        string
	Name      string
	Character json.RawMessage
	Ready     bool
	Connected bool
	Position  protocol.Vec2
	Health    int
	Peer      Peer
}

// NewMember returns a connected, not-ready seat bound to peer
func NewMember(id, name string, peer Peer) *Member {
	return &Member{
		ID:        id,
		Name:      name,
		Connected: true,
		Health:    DefaultHealth,
		Peer:      peer,
	}
}

// Lobby is a room of up to MaxPlayers seats
type Lobby struct {
	Code        string
	HostID      string
	MaxPlayers  int
	GameStarted bool
	CreatedAt   time.Time
	// IdleSince is when the last connected member went away; zero while
	// anyone connected is seated
	IdleSince time.Time
	GameState protocol.GameState

	members map[string]*Member
	now     func() time.Time
}

// New creates an empty lobby. The first member added becomes host.
func New(code string, maxPlayers int, now func() time.Time) *Lobby {
	if now == nil {
		now = time.Now
	}
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}
	created := now()
	return &Lobby{
		Code:       code,
		MaxPlayers: maxPlayers,
		CreatedAt:  created,
		IdleSince:  created,
		GameState:  protocol.NewGameState(),
		members:    make(map[string]*Member),
		now:        now,
	}
}

// Len returns the number of seats, connected or not
func (l *Lobby) Len() int { return len(l.members) }

// Empty reports whether the lobby has no seats
func (l *Lobby) Empty() bool { return len(l.members) == 0 }

// Full reports whether no further seat can be added
func (l *Lobby) Full() bool { return len(l.members) >= l.MaxPlayers }

// ConnectedCount returns the number of seats with a live session
func (l *Lobby) ConnectedCount() int {
	n := 0
	for _, m := range l.members {
		if m.Connected {
			n++
		}
	}
	return n
}

// Member looks up a seat
func (l *Lobby) Member(id string) (*Member, bool) {
	m, ok := l.members[id]
	return m, ok
}

// Has reports whether id holds a seat
func (l *Lobby) Has(id string) bool {
	_, ok := l.members[id]
	return ok
}

// Members returns all seats ordered by id
func (l *Lobby) Members() []*Member {
	out := make([]*Member, 0, len(l.members))
	for _, m := range l.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recipients returns the connected seats, ordered by id, minus exclude
func (l *Lobby) Recipients(exclude string) []*Member {
	var out []*Member
	for _, m := range l.Members() {
		if m.Connected && m.ID != exclude {
			out = append(out, m)
		}
	}
	return out
}

// Add seats m. A member already seated under the same id is refreshed in
// place rather than rejected, so rejoining a full or started lobby works.
func (l *Lobby) Add(m *Member) error {
	if existing, ok := l.members[m.ID]; ok {
		existing.Name = m.Name
		existing.Peer = m.Peer
		existing.Connected = true
		if m.Character != nil {
			existing.Character = m.Character
		}
		l.settle()
		return nil
	}
	if l.Full() {
		return ErrLobbyFull
	}
	if l.GameStarted {
		return ErrGameStarted
	}

	l.members[m.ID] = m
	if l.HostID == "" {
		l.HostID = m.ID
	}
	l.settle()
	return nil
}

// Remove releases a seat. It reports whether the id was seated and whether
// the host changed as a result.
func (l *Lobby) Remove(id string) (removed, hostChanged bool) {
	if _, ok := l.members[id]; !ok {
		return false, false
	}
	delete(l.members, id)

	if l.HostID == id {
		l.HostID = l.electHost()
		hostChanged = l.HostID != ""
	}
	l.settle()
	return true, hostChanged
}

// MarkDisconnected keeps the seat but flags it as without a session. A host
// that drops hands over to a connected member when one exists.
func (l *Lobby) MarkDisconnected(id string) (hostChanged bool) {
	m, ok := l.members[id]
	if !ok {
		return false
	}
	m.Connected = false
	m.Peer = nil

	if l.HostID == id {
		if next := l.electHost(); next != "" && next != id {
			if seat := l.members[next]; seat.Connected {
				l.HostID = next
				hostChanged = true
			}
		}
	}
	l.settle()
	return hostChanged
}

// MarkUnreachable stops delivery to a seat whose session failed. The peer
// stays bound so the disconnect flow can still match the seat to it.
func (l *Lobby) MarkUnreachable(id string) {
	if m, ok := l.members[id]; ok {
		m.Connected = false
		l.settle()
	}
}

// Rebind moves the seat held by oldID to a new session identity.
// Character and readiness are carried over and the host follows the seat.
func (l *Lobby) Rebind(oldID string, m *Member) error {
	old, ok := l.members[oldID]
	if !ok {
		return ErrNotMember
	}
	delete(l.members, oldID)
	if m.ID != oldID {
		delete(l.members, m.ID)
	}

	m.Character = old.Character
	m.Ready = old.Ready
	m.Position = old.Position
	m.Health = old.Health
	m.Connected = true
	l.members[m.ID] = m

	if l.HostID == oldID || !l.Has(l.HostID) {
		l.HostID = m.ID
	}
	l.settle()
	return nil
}

// electHost picks the lowest id among connected seats, else the lowest id
// overall. Empty lobbies have no host.
func (l *Lobby) electHost() string {
	var connected, lowest string
	for id, m := range l.members {
		if lowest == "" || id < lowest {
			lowest = id
		}
		if m.Connected && (connected == "" || id < connected) {
			connected = id
		}
	}
	if connected != "" {
		return connected
	}
	return lowest
}

// SetReady updates readiness before the game starts
func (l *Lobby) SetReady(id string, ready bool) error {
	m, ok := l.members[id]
	if !ok {
		return ErrNotMember
	}
	if l.GameStarted {
		return ErrGameStarted
	}
	m.Ready = ready
	return nil
}

// AllReady reports whether every seat is ready. An empty lobby is not.
func (l *Lobby) AllReady() bool {
	if len(l.members) == 0 {
		return false
	}
	for _, m := range l.members {
		if !m.Ready {
			return false
		}
	}
	return true
}

// Start begins the game on behalf of id. State is untouched on error.
func (l *Lobby) Start(id string) error {
	if l.GameStarted {
		return ErrGameStarted
	}
	if l.HostID != id {
		return ErrNotHost
	}
	if !l.AllReady() {
		return ErrNotAllReady
	}
	l.GameStarted = true
	return nil
}

// UpdatePlayer records the last reported position and health of a seat
func (l *Lobby) UpdatePlayer(id string, pos protocol.Vec2, health int) {
	if m, ok := l.members[id]; ok {
		m.Position = pos
		m.Health = health
	}
}

// Stale reports whether the lobby has had nobody connected for longer than after
func (l *Lobby) Stale(now time.Time, after time.Duration) bool {
	if l.ConnectedCount() > 0 {
		return false
	}
	since := l.IdleSince
	if since.IsZero() {
		since = l.CreatedAt
	}
	return now.Sub(since) > after
}

// settle keeps IdleSince in step with the connected count
func (l *Lobby) settle() {
	if l.ConnectedCount() > 0 {
		l.IdleSince = time.Time{}
		return
	}
	if l.IdleSince.IsZero() {
		l.IdleSince = l.now()
	}
}

// Info returns the roster snapshot sent as lobby_info
func (l *Lobby) Info() *protocol.LobbyInfoMessage {
	info := &protocol.LobbyInfoMessage{
		Code:        l.Code,
		HostID:      l.HostID,
		MaxPlayers:  l.MaxPlayers,
		GameStarted: l.GameStarted,
	}
	for _, m := range l.Members() {
		info.Players = append(info.Players, protocol.PlayerInfo{
			ID:        m.ID,
			Name:      m.Name,
			Character: m.Character,
			Ready:     m.Ready,
			Connected: m.Connected,
		})
	}
	return info
}

// Summary returns the lobby_list row for this lobby
func (l *Lobby) Summary() protocol.LobbySummary {
	return protocol.LobbySummary{
		Code:        l.Code,
		Players:     len(l.members),
		MaxPlayers:  l.MaxPlayers,
		GameStarted: l.GameStarted,
		Host:        l.HostID,
	}
}
