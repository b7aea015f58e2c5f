package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aeolun/lobbyd/pkg/client"
	"github.com/aeolun/lobbyd/pkg/protocol"
)

const (
	setupTimeout = 10 * time.Second
	chatTimeout  = 5 * time.Second
	chatEvery    = 5
)

var errTimeout = errors.New("timed out")

// Stats tracks load test results across all bots
type Stats struct {
	updates        atomic.Int64
	chats          atomic.Int64
	totalRTT       atomic.Int64 // microseconds
	sendFailures   atomic.Int64
	timeouts       atomic.Int64
	dropped        atomic.Int64
	connErrors     atomic.Int64
	setupFailures  atomic.Int64
	disconnections atomic.Int64
}

type Snapshot struct {
	Updates, Chats            int64
	AvgRTTMs                  float64
	SendFailures, Timeouts    int64
	Dropped                   int64
	ConnErrors, SetupFailures int64
	Disconnections            int64
}

func (s *Stats) recordUpdate()          { s.updates.Add(1) }
func (s *Stats) recordSendFailure()     { s.sendFailures.Add(1) }
func (s *Stats) recordTimeout()         { s.timeouts.Add(1) }
func (s *Stats) recordDropped()         { s.dropped.Add(1) }
func (s *Stats) recordConnectionError() { s.connErrors.Add(1) }
func (s *Stats) recordSetupFailure()    { s.setupFailures.Add(1) }
func (s *Stats) recordDisconnection()   { s.disconnections.Add(1) }

func (s *Stats) recordChat(rtt time.Duration) {
	s.chats.Add(1)
	s.totalRTT.Add(rtt.Microseconds())
}

func (s *Stats) snapshot() Snapshot {
	out := Snapshot{
		Updates:        s.updates.Load(),
		Chats:          s.chats.Load(),
		SendFailures:   s.sendFailures.Load(),
		Timeouts:       s.timeouts.Load(),
		Dropped:        s.dropped.Load(),
		ConnErrors:     s.connErrors.Load(),
		SetupFailures:  s.setupFailures.Load(),
		Disconnections: s.disconnections.Load(),
	}
	if out.Chats > 0 {
		out.AvgRTTMs = float64(s.totalRTT.Load()) / float64(out.Chats) / 1000
	}
	return out
}

// bot is one simulated player
type bot struct {
	id    int
	c     *client.Client
	stats *Stats
	inbox chan protocol.Message
	log   *zap.SugaredLogger
}

func newBot(ctx context.Context, id int, addr string, stats *Stats, log *zap.SugaredLogger) (*bot, error) {
	b := &bot{
		id:    id,
		stats: stats,
		inbox: make(chan protocol.Message, 256),
		log:   log,
	}

	dialCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()
	c, err := client.Dial(dialCtx, addr, client.Options{
		PlayerID:   fmt.Sprintf("bot-%04d", id),
		PlayerName: fmt.Sprintf("Bot %d", id),
		Handlers: client.Handlers{
			OnMessage: func(m protocol.Message) {
				select {
				case b.inbox <- m:
				default:
					stats.recordDropped()
				}
			},
			OnClose: func(err error) {
				if err != nil {
					stats.recordDisconnection()
				}
			},
		},
	})
	if err != nil {
		return nil, err
	}
	b.c = c
	return b, nil
}

func (b *bot) close() { _ = b.c.Close() }

// await returns the first inbound message accepted by match
func (b *bot) await(timeout time.Duration, match func(protocol.Message) bool) (protocol.Message, error) {
	deadline := time.After(timeout)
	for {
		select {
		case m := <-b.inbox:
			if match(m) {
				return m, nil
			}
		case <-b.c.Done():
			return nil, client.ErrNotConnected
		case <-deadline:
			return nil, errTimeout
		}
	}
}

// setup brings the bot into a started game. The host creates the lobby and
// hands the code to its guests over codes.
func (b *bot) setup(host bool, members int, codes chan string) error {
	var code string
	if host {
		if err := b.c.CreateLobby("", members); err != nil {
			close(codes)
			return err
		}
		m, err := b.await(setupTimeout, isType[*protocol.LobbyInfoMessage])
		if err != nil {
			close(codes)
			return fmt.Errorf("create lobby: %w", err)
		}
		info := m.(*protocol.LobbyInfoMessage)
		if info.Error != "" {
			close(codes)
			return errors.New(info.Error)
		}
		code = info.Code
		for i := 1; i < members; i++ {
			codes <- code
		}
	} else {
		var ok bool
		if code, ok = <-codes; !ok {
			return errors.New("host failed")
		}
		if err := b.c.JoinLobby(code, nil); err != nil {
			return err
		}
		m, err := b.await(setupTimeout, isType[*protocol.LobbyInfoMessage])
		if err != nil {
			return fmt.Errorf("join lobby: %w", err)
		}
		if e := m.(*protocol.LobbyInfoMessage).Error; e != "" {
			return errors.New(e)
		}
	}

	if err := b.c.SetReady(true); err != nil {
		return err
	}

	if host {
		_, err := b.await(setupTimeout, func(m protocol.Message) bool {
			info, ok := m.(*protocol.LobbyInfoMessage)
			return ok && info.Code == code && allReady(info, members)
		})
		if err != nil {
			return fmt.Errorf("wait for guests: %w", err)
		}
		if err := b.c.StartGame(); err != nil {
			return err
		}
	}

	m, err := b.await(setupTimeout, isType[*protocol.StartGameMessage])
	if err != nil {
		return fmt.Errorf("wait for start: %w", err)
	}
	if e := m.(*protocol.StartGameMessage).Error; e != "" {
		return errors.New(e)
	}
	return nil
}

func allReady(info *protocol.LobbyInfoMessage, members int) bool {
	if len(info.Players) < members {
		return false
	}
	for _, p := range info.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

func isType[T protocol.Message](m protocol.Message) bool {
	_, ok := m.(T)
	return ok
}

// run streams player updates and measures chat round trips until duration
// passes or ctx ends
func (b *bot) run(ctx context.Context, duration, minDelay, maxDelay time.Duration) {
	end := time.Now().Add(duration)
	pos := protocol.Vec2{rand.Float64() * 800, rand.Float64() * 600}

	for iter := 1; time.Now().Before(end); iter++ {
		pos[0] += rand.Float64()*10 - 5
		pos[1] += rand.Float64()*10 - 5
		if err := b.c.SendPlayerUpdate(pos, protocol.Vec2{1, 0}, "run", 100, true); err != nil {
			b.stats.recordSendFailure()
		} else {
			b.stats.recordUpdate()
		}

		if iter%chatEvery == 0 {
			b.chatRoundTrip(iter)
		}

		delay := minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-b.c.Done():
			return
		}
	}
}

// chatRoundTrip sends a chat line and waits for the server's echo of it
func (b *bot) chatRoundTrip(iter int) {
	token := fmt.Sprintf("bot%d-%d", b.id, iter)
	start := time.Now()
	if err := b.c.Chat(token); err != nil {
		b.stats.recordSendFailure()
		return
	}
	_, err := b.await(chatTimeout, func(m protocol.Message) bool {
		chat, ok := m.(*protocol.ChatMessage)
		return ok && chat.Text == token
	})
	if err != nil {
		b.stats.recordTimeout()
		b.log.Debugf("[bot %d] chat: %v", b.id, err)
		return
	}
	b.stats.recordChat(time.Since(start))
}
