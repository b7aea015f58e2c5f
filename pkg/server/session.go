package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrQueueFull     = errors.New("outbound queue full")
)

// Session represents an active client connection.
//
// Identity fields are fixed before the hub sees the session. lobbyCode,
// character and lastPing belong to the hub goroutine and are never touched
// by the transport goroutines.
type Session struct {
	PlayerID    string
	Name        string
	Version     string
	RemoteAddr  string
	ConnectedAt time.Time

	lobbyCode string
	character json.RawMessage
	lastPing  time.Time

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session with an outbound queue of the given depth
func NewSession(playerID, name, version, remote string, queue int) *Session {
	if queue < 1 {
		queue = 1
	}
	now := time.Now()
	return &Session{
		PlayerID:    playerID,
		Name:        name,
		Version:     version,
		RemoteAddr:  remote,
		ConnectedAt: now,
		lastPing:    now,
		out:         make(chan []byte, queue),
		done:        make(chan struct{}),
	}
}

// Send queues a frame for the writer goroutine. It never blocks: a closed
// session or a full queue is reported as an error.
func (s *Session) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.out <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close marks the session finished. The writer goroutine notices, sends a
// close frame and tears the transport down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed once the session has been closed
func (s *Session) Done() <-chan struct{} { return s.done }

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Outbound is the queue drained by the writer goroutine
func (s *Session) Outbound() <-chan []byte { return s.out }

// LobbyCode returns the lobby the session is seated in. Hub goroutine only.
func (s *Session) LobbyCode() string { return s.lobbyCode }
