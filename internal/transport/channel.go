// Package transport maintains the single push connection to the server.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/metrics"
)

const (
	DefaultReconnectDelay = 3 * time.Second

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// State is the connection state of a Channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Publisher receives every decoded event.
type Publisher interface {
	Publish(events.Event) int
}

type Option func(*Channel)

func WithReconnectDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithPingInterval enables keepalive pings; a connection that stays silent for
// two intervals is treated as lost.
func WithPingInterval(d time.Duration) Option {
	return func(c *Channel) { c.pingInterval = d }
}

func WithHeader(header http.Header) Option {
	return func(c *Channel) { c.header = header.Clone() }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Channel) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// Channel owns one logical push connection and heals it after drops. Faults
// are logged, never returned.
type Channel struct {
	endpoint       string
	publisher      Publisher
	logger         *slog.Logger
	dialer         *websocket.Dialer
	header         http.Header
	reconnectDelay time.Duration
	pingInterval   time.Duration
	metrics        *metrics.Metrics

	mu           sync.Mutex
	state        State
	conn         *websocket.Conn
	gen          uint64
	cancelDial   context.CancelFunc
	reconnect    *time.Timer
	reconnectSeq uint64
	stopped      bool
	last         *events.Event
	observers    []func(State)
}

func NewChannel(endpoint string, publisher Publisher, logger *slog.Logger, opts ...Option) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Channel{
		endpoint:       endpoint,
		publisher:      publisher,
		logger:         logger,
		dialer:         &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: handshakeTimeout},
		reconnectDelay: DefaultReconnectDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) Endpoint() string {
	return c.endpoint
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastEvent returns the most recently decoded event, for late readers.
func (c *Channel) LastEvent() (events.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return events.Event{}, false
	}
	return *c.last, true
}

// OnStateChange registers fn to be called after every state transition.
func (c *Channel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Connect opens the connection in the background. It is a no-op while
// connecting or connected.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.stopped = false
	c.stopReconnectLocked()
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	observers := c.transitionLocked(StateConnecting)
	c.mu.Unlock()

	notify(observers, StateConnecting)
	go c.run(ctx, cancel, gen)
}

// Disconnect cancels any pending reconnect and closes the live connection.
// No automatic reconnect happens afterwards until Connect is called again.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.stopped = true
	c.stopReconnectLocked()
	c.gen++
	conn := c.conn
	c.conn = nil
	cancel := c.cancelDial
	c.cancelDial = nil
	observers := c.transitionLocked(StateDisconnected)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
	}
	notify(observers, StateDisconnected)
}

// Run connects and keeps the channel alive until ctx is done.
func (c *Channel) Run(ctx context.Context) {
	c.Connect()
	<-ctx.Done()
	c.Disconnect()
}

func (c *Channel) run(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("push channel connect failed", "endpoint", c.endpoint, "err", err)
		}
		c.closed(gen)
		return
	}
	defer conn.Close()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = conn
	observers := c.transitionLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("push channel connected", "endpoint", c.endpoint)
	notify(observers, StateConnected)

	c.readLoop(ctx, conn, gen)
	c.closed(gen)
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64) {
	var idle time.Duration
	if c.pingInterval > 0 {
		idle = 2 * c.pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(idle))
		})
		done := make(chan struct{})
		defer close(done)
		go c.keepalive(conn, done)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("push channel lost", "endpoint", c.endpoint, "err", err)
			}
			return
		}
		if idle > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(idle))
		}
		c.handleMessage(msg, gen)
	}
}

func (c *Channel) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.logger.Debug("push channel ping failed", "err", err)
				return
			}
		}
	}
}

// handleMessage publishes a frame read by connection generation gen. Frames
// from a generation that was disconnected or replaced are dropped.
func (c *Channel) handleMessage(msg []byte, gen uint64) {
	ev, err := events.Decode(msg)
	if err != nil {
		c.logger.Warn("discarding malformed push event", "err", err)
		c.metrics.DecodeFailed()
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("dropping push event from closed connection", "kind", ev.String())
		return
	}
	c.last = &ev
	c.mu.Unlock()

	c.metrics.EventReceived(ev.Kind.String())
	c.logger.Debug("push event received", "kind", ev.String())
	if c.publisher != nil {
		c.publisher.Publish(ev)
	}
}

// closed handles the end of connection generation gen: a close, a failed dial
// or a read error all schedule the same single reconnect.
func (c *Channel) closed(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.cancelDial = nil
	observers := c.transitionLocked(StateDisconnected)
	scheduled := false
	if !c.stopped {
		c.scheduleReconnectLocked()
		scheduled = true
	}
	c.mu.Unlock()

	if scheduled {
		c.logger.Info("push channel disconnected, reconnecting", "delay", c.reconnectDelay)
		c.metrics.ReconnectScheduled()
	}
	notify(observers, StateDisconnected)
}

func (c *Channel) scheduleReconnectLocked() {
	c.stopReconnectLocked()
	seq := c.reconnectSeq
	c.reconnect = time.AfterFunc(c.reconnectDelay, func() { c.fireReconnect(seq) })
}

func (c *Channel) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.reconnectSeq++
}

func (c *Channel) fireReconnect(seq uint64) {
	c.mu.Lock()
	if seq != c.reconnectSeq || c.stopped || c.reconnect == nil {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.mu.Unlock()
	c.Connect()
}

func (c *Channel) reconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect != nil
}

// transitionLocked sets the state and returns the observers to notify, or nil
// when the state did not change.
func (c *Channel) transitionLocked(state State) []func(State) {
	if c.state == state {
		return nil
	}
	c.state = state
	c.metrics.ConnectionState(int(state))
	if len(c.observers) == 0 {
		return nil
	}
	return append([]func(State){}, c.observers...)
}

func notify(observers []func(State), state State) {
	for _, fn := range observers {
		fn(state)
	}
}
