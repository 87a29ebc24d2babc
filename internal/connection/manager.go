package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Transport is the subset of *websocket.Conn the connection uses.
type Transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer establishes a transport to url.
type Dialer func(ctx context.Context, url string) (Transport, error)

// WebSocketDialer dials with github.com/coder/websocket.
func WebSocketDialer(readLimit int64) Dialer {
	return func(ctx context.Context, u string) (Transport, error) {
		ws, _, err := websocket.Dial(ctx, u, nil)
		if err != nil {
			return nil, err
		}
		if readLimit > 0 {
			ws.SetReadLimit(readLimit)
		}
		return ws, nil
	}
}

// Options configures a Manager.
type Options struct {
	// BaseURL is the endpoint prefix; the client id is appended as a path segment.
	BaseURL     string
	DialTimeout time.Duration
	// EventBuffer is the capacity of each connection's inbound stream.
	EventBuffer int
	// Dialer defaults to WebSocketDialer with a 1 MiB read limit.
	Dialer Dialer
	Logger *slog.Logger
}

// Manager opens connections addressed by client id.
type Manager struct {
	base        *url.URL
	dialTimeout time.Duration
	buffer      int
	dial        Dialer
	logger      *slog.Logger
}

// NewManager validates opts and returns a Manager.
func NewManager(opts Options) (*Manager, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch base.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", base.Scheme)
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer(1 << 20)
	}

	return &Manager{
		base:        base,
		dialTimeout: opts.DialTimeout,
		buffer:      opts.EventBuffer,
		dial:        opts.Dialer,
		logger:      opts.Logger,
	}, nil
}

// Endpoint returns the URL a client id connects to.
func (m *Manager) Endpoint(clientID string) string {
	return m.base.JoinPath(clientID).String()
}

// Open starts connecting for clientID and returns immediately. Readiness and
// failure are reported on the connection's event stream.
func (m *Manager) Open(clientID string) (*Conn, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("open connection: empty client id")
	}

	c := newConn(m.Endpoint(clientID), m.buffer, m.logger.With("client_id", clientID))
	c.wg.Add(1)
	go c.run(m.dial, m.dialTimeout)
	return c, nil
}
