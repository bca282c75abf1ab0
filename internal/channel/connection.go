package channel

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/narrate-go/narrate/internal/models"
)

// State is the lifecycle state of a Connection.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// DefaultReconnectDelay is the fixed wait before a reconnect attempt.
const DefaultReconnectDelay = 3 * time.Second

// FrameReader is the receive side of a socket.
type FrameReader interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// DialFunc opens a socket to url.
type DialFunc func(ctx context.Context, url string) (FrameReader, error)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// Option configures a Connection.
type Option func(*Connection)

// WithReconnectDelay overrides DefaultReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Connection) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithDialer replaces the gorilla/websocket dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Connection) { c.dial = dial }
}

// WithAfterFunc replaces time.AfterFunc for reconnect scheduling.
func WithAfterFunc(after AfterFunc) Option {
	return func(c *Connection) { c.after = after }
}

// Connection owns one receive-only WebSocket to the backend. It redials a
// fixed delay after every unexpected closure until Close is called. Frames
// are decoded and handed to the sink from a single read goroutine, in
// arrival order.
type Connection struct {
	url   string
	delay time.Duration
	dial  DialFunc
	after AfterFunc

	mu          sync.Mutex
	state       State
	gen         uint64 // bumped on every attempt and on Close; stale goroutines compare against it
	socket      FrameReader
	cancelDial  context.CancelFunc
	retry       Timer
	noReconnect bool
	sink        func(models.Event)
	observers   []func(State)
}

// NewConnection creates a closed connection to url. Call Connect to start it.
func NewConnection(url string, opts ...Option) *Connection {
	c := &Connection{
		url:   url,
		delay: DefaultReconnectDelay,
		state: StateClosed,
		dial:  gorillaDial,
		after: func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func gorillaDial(ctx context.Context, url string) (FrameReader, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// OnEvent sets the sink that receives every decoded event. The router's
// Dispatch is the sink in the running console.
func (c *Connection) OnEvent(sink func(models.Event)) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

// OnStateChange registers an observer for state transitions.
func (c *Connection) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// URL returns the endpoint this connection dials.
func (c *Connection) URL() string {
	return c.url
}

// Connect starts dialing unless the connection is already open or
// connecting. It never blocks.
func (c *Connection) Connect() {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	c.noReconnect = false
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	gen, ctx := c.beginAttemptLocked()
	c.mu.Unlock()

	c.notify(StateConnecting)
	go c.run(ctx, gen)
}

// Close stops reconnecting and closes the socket. The connection stays
// closed until Connect is called again.
func (c *Connection) Close() {
	c.mu.Lock()
	c.noReconnect = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.gen++
	socket := c.socket
	c.socket = nil
	wasClosed := c.state == StateClosed
	if socket != nil {
		c.state = StateClosing
	}
	c.mu.Unlock()

	if socket != nil {
		c.notify(StateClosing)
		if err := socket.Close(); err != nil {
			log.Printf("[channel] Error closing socket: %v", err)
		}
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	if !wasClosed {
		c.notify(StateClosed)
	}
}

// beginAttemptLocked moves to connecting and returns the attempt's
// generation and dial context. c.mu must be held.
func (c *Connection) beginAttemptLocked() (uint64, context.Context) {
	c.gen++
	c.state = StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	return c.gen, ctx
}

func (c *Connection) run(ctx context.Context, gen uint64) {
	socket, err := c.dial(ctx, c.url)

	c.mu.Lock()
	if gen != c.gen {
		// Close (or a newer attempt) superseded this dial.
		c.mu.Unlock()
		if socket != nil {
			socket.Close()
		}
		return
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if err != nil {
		c.state = StateClosed
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		log.Printf("[channel] Failed to connect to %s: %v; retrying in %v", c.url, err, c.delay)
		c.notify(StateClosed)
		return
	}
	c.socket = socket
	c.state = StateOpen
	c.mu.Unlock()

	log.Printf("[channel] Connected to %s", c.url)
	c.notify(StateOpen)
	c.readLoop(gen, socket)
}

func (c *Connection) readLoop(gen uint64, socket FrameReader) {
	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			c.dropped(gen, err)
			return
		}

		ev, err := Decode(data)
		if err != nil {
			log.Printf("[channel] Dropping frame: %v", err)
			continue
		}

		sink, ok := c.sinkFor(gen)
		if !ok {
			return
		}
		if sink != nil {
			sink(ev)
		}
	}
}

// sinkFor returns the sink if gen is still the live attempt.
func (c *Connection) sinkFor(gen uint64) (func(models.Event), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil, false
	}
	return c.sink, true
}

func (c *Connection) dropped(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.socket = nil
	c.state = StateClosed
	if c.noReconnect {
		c.mu.Unlock()
		c.notify(StateClosed)
		return
	}
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, context.Canceled) {
		log.Printf("[channel] Disconnected from %s; reconnecting in %v", c.url, c.delay)
	} else {
		log.Printf("[channel] Connection to %s lost: %v; reconnecting in %v", c.url, err, c.delay)
	}
	c.notify(StateClosed)
}

// scheduleReconnectLocked arms the single retry timer. c.mu must be held.
func (c *Connection) scheduleReconnectLocked() {
	if c.noReconnect || c.retry != nil {
		return
	}
	c.retry = c.after(c.delay, c.reconnect)
}

func (c *Connection) reconnect() {
	c.mu.Lock()
	c.retry = nil
	if c.noReconnect || c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return
	}
	gen, ctx := c.beginAttemptLocked()
	c.mu.Unlock()

	c.notify(StateConnecting)
	c.run(ctx, gen)
}

func (c *Connection) notify(s State) {
	c.mu.Lock()
	observers := append([]func(State){}, c.observers...)
	c.mu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}
