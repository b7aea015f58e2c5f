package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aeolun/lobbyd/pkg/protocol"
)

const (
	DefaultPort       = "8080"
	defaultName       = "Player"
	handshakeTimeout  = 5 * time.Second
	writeWait         = 10 * time.Second
	closeGraceTime    = time.Second
	defaultQueueDepth = 100
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrQueueFull    = errors.New("outgoing queue full")
	ErrHandshake    = errors.New("server did not accept connect")
)

// Options configures Dial. Zero values pick sensible defaults.
type Options struct {
	// PlayerID defaults to the first 8 characters of a random uuid
	PlayerID   string
	PlayerName string
	Version    string

	Handlers Handlers
	Logger   *zap.Logger

	HandshakeTimeout time.Duration
	QueueDepth       int
}

// Client is one connection to a lobby server plus a mirror of what the
// server has told it
type Client struct {
	addr     string
	ws       *websocket.Conn
	log      *zap.Logger
	handlers Handlers
	state    *mirror

	outgoing chan []byte
	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	wg sync.WaitGroup
}

// ServerURL turns a host, host:port or ws(s)/http(s) URL into the websocket
// endpoint URL
func ServerURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty server address")
	}

	if !strings.Contains(addr, "://") {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, DefaultPort)
		}
		return (&url.URL{Scheme: "ws", Host: addr, Path: "/ws"}).String(), nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q (use ws:// or wss://)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", addr)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Dial connects, performs the connect handshake and starts the read and
// write loops. Handlers run on the read loop goroutine in arrival order.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	endpoint, err := ServerURL(addr)
	if err != nil {
		return nil, err
	}
	if opts.PlayerID == "" {
		opts.PlayerID = uuid.NewString()[:8]
	}
	if opts.PlayerName == "" {
		opts.PlayerName = defaultName
	}
	if opts.Version == "" {
		opts.Version = protocol.ProtocolVersion
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = handshakeTimeout
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	ws, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) {
			return nil, fmt.Errorf("websocket upgrade refused by %s (wrong path or not a lobby server?): %w", endpoint, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	ws.SetReadLimit(protocol.MaxFrameSize)

	c := &Client{
		addr:     endpoint,
		ws:       ws,
		log:      log.With(zap.String("server", endpoint)),
		handlers: opts.Handlers,
		state:    newMirror(opts.PlayerID),
		outgoing: make(chan []byte, opts.QueueDepth),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	ack, err := c.handshake(opts)
	if err != nil {
		ws.Close()
		return nil, err
	}
	c.log.Debug("connected", zap.String("player_id", ack.PlayerID))
	c.deliver(ack)

	c.wg.Add(1)
	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// handshake sends connect and waits for the acknowledgement
func (c *Client) handshake(opts Options) (*protocol.ConnectMessage, error) {
	hello := protocol.MustEncode(&protocol.ConnectMessage{
		PlayerID:   opts.PlayerID,
		PlayerName: opts.PlayerName,
		Version:    opts.Version,
	})
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, hello); err != nil {
		return nil, fmt.Errorf("send connect: %w", err)
	}
	c.bytesSent.Add(uint64(len(hello)))

	_ = c.ws.SetReadDeadline(time.Now().Add(opts.HandshakeTimeout))
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("await connect reply: %w", err)
	}
	c.bytesReceived.Add(uint64(len(frame)))
	_ = c.ws.SetReadDeadline(time.Time{})

	_, msg := protocol.Decode(frame)
	ack, ok := msg.(*protocol.ConnectMessage)
	if !ok || ack.Status != "connected" {
		return nil, ErrHandshake
	}
	if ack.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrHandshake, ack.Error)
	}
	return ack, nil
}

// Send queues msg for the write loop without blocking
func (c *Client) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.shutdown:
		return ErrNotConnected
	default:
	}
	select {
	case c.outgoing <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close sends a close frame and waits for both loops to finish
func (c *Client) Close() error {
	c.stop(nil)
	<-c.done
	c.wg.Wait()
	return nil
}

// Done is closed once the connection is gone
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, nil after Close
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// IsConnected reports whether the loops are still running
func (c *Client) IsConnected() bool {
	select {
	case <-c.shutdown:
		return false
	default:
		return true
	}
}

// Address returns the websocket endpoint
func (c *Client) Address() string { return c.addr }

func (c *Client) BytesSent() uint64     { return c.bytesSent.Load() }
func (c *Client) BytesReceived() uint64 { return c.bytesReceived.Load() }

func (c *Client) stop(err error) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.shutdown)
	})
}

// readLoop decodes frames and dispatches them until the transport fails
func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(c.Err())
		}
	}()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("connection closed by server", zap.Error(err))
				err = nil
			} else {
				c.log.Debug("read failed", zap.Error(err))
			}
			c.stop(err)
			return
		}
		c.bytesReceived.Add(uint64(len(frame)))

		typ, msg := protocol.Decode(frame)
		if msg == nil {
			c.log.Debug("ignoring undecodable frame", zap.Int("bytes", len(frame)))
			continue
		}
		c.log.Debug("received", zap.String("type", typ.String()))
		c.deliver(msg)
	}
}

// writeLoop owns every data write to ws and closes it on shutdown
func (c *Client) writeLoop() {
	defer c.wg.Done()
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.outgoing:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.stop(err)
				return
			}
			c.bytesSent.Add(uint64(len(frame)))
		case <-c.shutdown:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeGraceTime))
			return
		}
	}
}

// deliver updates the mirror and then runs the registered handlers
func (c *Client) deliver(msg protocol.Message) {
	c.state.observe(msg)
	c.handlers.dispatch(msg)
}
