// Package connection owns the persistent WebSocket connection of a chat
// session.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrConnectionClosed is returned by Send once the connection is gone.
var ErrConnectionClosed = errors.New("connection closed")

// State is the readiness of a Conn.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EventKind distinguishes inbound connection events.
type EventKind int

const (
	// EventOpen is delivered once, when the connection becomes ready.
	EventOpen EventKind = iota
	// EventMessage carries one inbound frame.
	EventMessage
	// EventClosed is delivered last, when the peer or the network ends the
	// connection. Err holds the cause.
	EventClosed
)

// Event is an item of the inbound stream.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

const writeTimeout = 10 * time.Second

// Conn is one streaming connection. Sends issued before the connection is
// open are queued and flushed in order once it opens.
type Conn struct {
	url    string
	logger *slog.Logger
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	ws     Transport
	outbox [][]byte
	err    error

	wake       chan struct{}
	localClose chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

func newConn(url string, buffer int, logger *slog.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		url:        url,
		logger:     logger,
		events:     make(chan Event, buffer),
		ctx:        ctx,
		cancel:     cancel,
		state:      StateConnecting,
		wake:       make(chan struct{}, 1),
		localClose: make(chan struct{}),
	}
}

// URL returns the endpoint the connection dials.
func (c *Conn) URL() string { return c.url }

// Events returns the inbound stream. It is closed after EventClosed, or
// right away when Close is called locally.
func (c *Conn) Events() <-chan Event { return c.events }

// State returns the current readiness state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the cause of closure, or nil while the connection is alive.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues data for transmission. It never blocks on the network.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.outbox = append(c.outbox, append([]byte(nil), data...))
	state, queued := c.state, len(c.outbox)
	c.mu.Unlock()

	if state == StateConnecting {
		c.logger.Debug("Send deferred until connection opens", "url", c.url, "queued", queued)
	}
	c.signal()
	return nil
}

// Close ends the connection and discards queued sends. The connection stops
// producing events; EventClosed is not delivered for a local close.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.localClose) })

	c.mu.Lock()
	ws := c.ws
	wasOpen := c.state == StateOpen
	c.state = StateClosed
	c.outbox = nil
	if c.err == nil {
		c.err = ErrConnectionClosed
	}
	c.mu.Unlock()

	var err error
	if ws != nil && wasOpen {
		err = ws.Close(websocket.StatusNormalClosure, "session ended")
	}
	c.cancel()
	c.wg.Wait()

	if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
		c.logger.Debug("Failed to close websocket cleanly", "url", c.url, "error", err)
	}
	return nil
}

func (c *Conn) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run dials, then reads until the connection ends. It is the only writer
// of the events channel.
func (c *Conn) run(dial Dialer, dialTimeout time.Duration) {
	defer c.wg.Done()
	defer close(c.events)

	dialCtx, cancel := c.ctx, context.CancelFunc(func() {})
	if dialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(c.ctx, dialTimeout)
	}
	ws, err := dial(dialCtx, c.url)
	cancel()
	if err != nil {
		c.finish(fmt.Errorf("dial %s: %w", c.url, err))
		return
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "closed before open")
		return
	}
	c.ws = ws
	c.state = StateOpen
	pending := len(c.outbox)
	c.mu.Unlock()

	c.logger.Info("Connection open", "url", c.url, "pending_sends", pending)
	if !c.emit(Event{Kind: EventOpen}) {
		return
	}

	c.wg.Add(1)
	go c.writeLoop()
	c.signal()

	c.finish(c.readLoop(ws))
}

func (c *Conn) readLoop(ws Transport) error {
	for {
		_, data, err := ws.Read(c.ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("closed by peer (%d): %w", status, err)
			}
			return fmt.Errorf("read: %w", err)
		}
		if !c.emit(Event{Kind: EventMessage, Data: data}) {
			return ErrConnectionClosed
		}
	}
}

// writeLoop drains the outbox in FIFO order. Each entry is written once.
func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if c.state != StateOpen || len(c.outbox) == 0 {
				c.mu.Unlock()
				break
			}
			data := c.outbox[0]
			c.outbox[0] = nil
			c.outbox = c.outbox[1:]
			ws := c.ws
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.terminate(fmt.Errorf("write: %w", err))
				return
			}
		}
	}
}

// terminate marks the connection dead and discards the outbox. It does not
// deliver EventClosed; run does that once reading stops.
func (c *Conn) terminate(cause error) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosed
	c.outbox = nil
	c.err = cause
	c.mu.Unlock()

	// Cancelling the context closes the websocket and unblocks Read.
	c.cancel()
	return true
}

func (c *Conn) finish(cause error) {
	unexpected := c.terminate(cause)

	select {
	case <-c.localClose:
		return
	default:
	}

	if unexpected {
		c.logger.Warn("Connection closed", "url", c.url, "error", cause)
	}
	c.emit(Event{Kind: EventClosed, Err: c.Err()})
}

// emit delivers an event unless the connection was closed locally.
func (c *Conn) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.localClose:
		return false
	}
}
