// Package session composes the connection, codec, activity machine and
// reconciler into the chat session engine used by the presentation layer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/activity"
	"github.com/ashureev/shsh-chat/internal/connection"
	"github.com/ashureev/shsh-chat/internal/identity"
	"github.com/ashureev/shsh-chat/internal/protocol"
	"github.com/ashureev/shsh-chat/internal/reconcile"
	"github.com/ashureev/shsh-chat/internal/store"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
	// ErrNotInitialized is returned by operations that need Initialize first.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrUnknownConversation is returned for ids not in the active list.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrUnknownMessage is returned when deleting a message that is not in
	// the active conversation.
	ErrUnknownMessage = errors.New("unknown message")
	// ErrConnectionClosed is returned when a send hits a dead connection.
	ErrConnectionClosed = connection.ErrConnectionClosed
)

// Options configures an Engine.
type Options struct {
	// TurnTimeout abandons a busy turn when no event arrives for this long.
	// Zero leaves a stalled turn busy until the connection ends.
	TurnTimeout time.Duration
	// NotifyBuffer is the capacity of the Updates and Notices channels.
	NotifyBuffer int
	Logger       *slog.Logger
}

// Engine owns all per-session state. One dispatcher goroutine serializes
// caller operations, inbound connection events and timer expiries, so the
// activity machine and reconciler are never mutated concurrently.
type Engine struct {
	opts   Options
	logger *slog.Logger
	conns  *connection.Manager

	calls    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	updates *mailbox[View]
	notices *mailbox[Notice]

	// Owned by the dispatcher.
	ctx         context.Context
	cancel      context.CancelFunc
	store       store.Store
	memoryOnly  bool
	initialized bool
	clientID    string
	conn        *connection.Conn
	connEvents  <-chan connection.Event
	machine     *activity.Machine
	rec         *reconcile.Reconciler
	activeID    string
	pending     []string // conversations with a get_history in flight, oldest first
	turnTimer   *time.Timer
	turnExpired <-chan time.Time
	now         func() time.Time
}

// New creates an Engine and starts its dispatcher. Call Initialize before
// any other operation and Close when done.
func New(opts Options, st store.Store, conns *connection.Manager) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NotifyBuffer <= 0 {
		opts.NotifyBuffer = 64
	}
	logger := opts.Logger.With("component", "session")

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:    opts,
		logger:  logger,
		conns:   conns,
		calls:   make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		updates: newMailbox[View]("updates", opts.NotifyBuffer, logger),
		notices: newMailbox[Notice]("notices", opts.NotifyBuffer, logger),
		ctx:     ctx,
		cancel:  cancel,
		store:   st,
		machine: activity.New(),
		rec:     reconcile.New(st, logger),
		now:     time.Now,
	}
	go e.loop()
	return e
}

// Updates delivers a View after every change. Slow consumers miss
// intermediate views, never the latest one. Closed by Close.
func (e *Engine) Updates() <-chan View { return e.updates.ch }

// Notices delivers backend errors, connection loss, turn timeouts and cache
// problems. Closed by Close.
func (e *Engine) Notices() <-chan Notice { return e.notices.ch }

// Initialize resolves the client id, opens the connection, loads the cached
// conversation list and selects the most recently used conversation,
// requesting its history. Calling it again is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.initialized {
			return nil
		}

		if err := e.store.Ping(ctx); err != nil {
			e.fallBackToMemory(err)
		}

		clientID, err := identity.Resolve(ctx, e.store)
		if err != nil && !e.memoryOnly {
			e.fallBackToMemory(err)
			clientID, err = identity.Resolve(ctx, e.store)
		}
		if err != nil {
			return fmt.Errorf("resolve client id: %w", err)
		}

		if err := e.rec.Load(ctx); err != nil {
			e.fallBackToMemory(err)
			if err := e.rec.Load(ctx); err != nil {
				return fmt.Errorf("load conversations: %w", err)
			}
		}

		conn, err := e.conns.Open(clientID)
		if err != nil {
			return fmt.Errorf("open connection: %w", err)
		}
		e.clientID = clientID
		e.conn = conn
		e.connEvents = conn.Events()
		e.initialized = true

		e.logger.Info("Session initialized",
			"client_id", clientID,
			"endpoint", conn.URL(),
			"conversations", len(e.rec.Summaries()),
			"memory_only", e.memoryOnly,
		)

		if id := e.rec.MostRecent(); id != "" {
			e.activeID = id
			e.requestHistory(id)
		}
		e.publish()
		return nil
	})
}

// SendMessage optimistically appends text to the active conversation,
// creating one when none is active, and sends it. Blank text and sends
// while a turn is in flight are ignored.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	return e.do(ctx, func() error {
		if !e.initialized {
			return ErrNotInitialized
		}
		if strings.TrimSpace(text) == "" || e.machine.Busy() {
			return nil
		}
		if e.conn.State() == connection.StateClosed {
			return ErrConnectionClosed
		}

		id, msg := e.rec.InsertOptimistic(ctx, e.activeID, text)
		e.activeID = id
		e.logger.Debug("Message inserted", "conversation_id", id, "message_id", msg.ID)

		if err := e.send(protocol.SendMessage{ConversationID: id, Content: text}); err != nil {
			e.publish()
			return err
		}
		e.machine.MarkBusy()
		e.armTurnTimer()
		e.publish()
		return nil
	})
}

// SwitchConversation makes id the active conversation. An empty id starts a
// fresh conversation context that is created on the first send.
func (e *Engine) SwitchConversation(ctx context.Context, id string) error {
	return e.do(ctx, func() error {
		if !e.initialized {
			return ErrNotInitialized
		}
		if id == "" {
			e.activeID = ""
			e.publish()
			return nil
		}
		if !e.rec.Has(id) {
			return fmt.Errorf("switch to %s: %w", id, ErrUnknownConversation)
		}

		e.activeID = id
		e.rec.Touch(ctx, id)
		if e.rec.Buffered(id) == 0 {
			e.requestHistory(id)
		}
		e.publish()
		return nil
	})
}

// DeleteMessage removes a message from the active conversation and asks the
// backend to drop it too. The local removal stands even when the connection
// is gone; ErrConnectionClosed is returned in that case.
func (e *Engine) DeleteMessage(ctx context.Context, msgID int64) error {
	return e.do(ctx, func() error {
		if !e.initialized {
			return ErrNotInitialized
		}
		if e.activeID == "" {
			return fmt.Errorf("delete message %d: %w", msgID, ErrUnknownMessage)
		}
		removed, ok := e.rec.DeleteMessage(ctx, e.activeID, msgID)
		if !ok {
			return fmt.Errorf("delete message %d: %w", msgID, ErrUnknownMessage)
		}
		e.publish()
		return e.send(protocol.DeleteMessage{ConversationID: e.activeID, Content: removed.Content})
	})
}

// DeleteConversation removes a conversation and its cache entry. Deleting
// the active conversation leaves no conversation active.
func (e *Engine) DeleteConversation(ctx context.Context, id string) error {
	return e.do(ctx, func() error {
		if !e.initialized {
			return ErrNotInitialized
		}
		if !e.rec.DeleteConversation(ctx, id) {
			return fmt.Errorf("delete conversation %s: %w", id, ErrUnknownConversation)
		}
		if e.activeID == id {
			e.activeID = ""
		}
		e.logger.Info("Conversation deleted", "conversation_id", id)
		e.publish()
		return nil
	})
}

// View returns the current snapshot.
func (e *Engine) View(ctx context.Context) (View, error) {
	var v View
	err := e.do(ctx, func() error {
		v = e.snapshot()
		return nil
	})
	return v, err
}

// Close stops the dispatcher, closes the connection and the notification
// channels. It is safe to call more than once.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() {
		close(e.quit)
		<-e.done
		if e.conn != nil {
			_ = e.conn.Close()
		}
		e.updates.close()
		e.notices.close()
		e.logger.Info("Session closed", "client_id", e.clientID)
	})
	return nil
}

// do runs fn on the dispatcher and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case e.calls <- func() { errc <- fn() }:
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) loop() {
	defer close(e.done)
	defer e.cancel()
	defer e.stopTurnTimer()

	for {
		select {
		case <-e.quit:
			return
		case fn := <-e.calls:
			fn()
		case ev, ok := <-e.connEvents:
			if !ok {
				e.connEvents = nil
				continue
			}
			e.handleConnEvent(ev)
		case <-e.turnExpired:
			e.handleTurnTimeout()
		}
	}
}

func (e *Engine) handleConnEvent(ev connection.Event) {
	switch ev.Kind {
	case connection.EventOpen:
		e.logger.Info("Session connected", "client_id", e.clientID)
		e.publish()

	case connection.EventMessage:
		decoded, err := protocol.Decode(ev.Data)
		if err != nil {
			e.logger.Debug("Dropping inbound frame", "error", err, "size", len(ev.Data))
			return
		}
		e.handleEvent(decoded)

	case connection.EventClosed:
		e.machine.Reset()
		e.pending = nil
		e.stopTurnTimer()
		e.notify(NoticeConnection, "connection lost", ev.Err)
		e.publish()
	}
}

func (e *Engine) handleEvent(ev protocol.Event) {
	e.machine.Apply(ev.Type)

	switch ev.Type {
	case protocol.EventMessage:
		if e.activeID == "" {
			e.logger.Debug("Dropping assistant message with no active conversation")
			break
		}
		if _, ok := e.rec.AppendAssistant(e.ctx, e.activeID, ev.Text, ev.Attachment); !ok {
			e.logger.Debug("Dropping assistant message for unknown conversation", "conversation_id", e.activeID)
		}

	case protocol.EventHistory:
		if len(e.pending) == 0 {
			e.logger.Debug("Dropping unrequested history", "messages", len(ev.History))
			break
		}
		id := e.pending[0]
		e.pending = e.pending[1:]
		if e.rec.Hydrate(e.ctx, id, ev.History) {
			e.logger.Debug("Conversation hydrated", "conversation_id", id, "messages", len(ev.History))
		} else {
			e.logger.Debug("Ignoring history", "conversation_id", id, "messages", len(ev.History))
		}

	case protocol.EventError:
		e.notify(NoticeBackend, ev.Text, nil)
	}

	if e.machine.Busy() {
		e.armTurnTimer()
	} else {
		e.stopTurnTimer()
	}
	e.publish()
}

func (e *Engine) handleTurnTimeout() {
	e.turnExpired = nil
	if !e.machine.Busy() {
		return
	}
	e.logger.Warn("Turn timed out", "conversation_id", e.activeID, "state", e.machine.State(), "timeout", e.opts.TurnTimeout)
	e.machine.Reset()
	e.notify(NoticeTimeout, fmt.Sprintf("no reply within %s", e.opts.TurnTimeout), nil)
	e.publish()
}

// armTurnTimer restarts the turn timer. Every inbound event during a busy
// turn counts as progress.
func (e *Engine) armTurnTimer() {
	if e.opts.TurnTimeout <= 0 {
		return
	}
	if e.turnTimer == nil {
		e.turnTimer = time.NewTimer(e.opts.TurnTimeout)
	} else {
		e.turnTimer.Reset(e.opts.TurnTimeout)
	}
	e.turnExpired = e.turnTimer.C
}

func (e *Engine) stopTurnTimer() {
	if e.turnTimer != nil {
		e.turnTimer.Stop()
	}
	e.turnExpired = nil
}

func (e *Engine) requestHistory(id string) {
	if err := e.send(protocol.RequestHistory{ConversationID: id}); err != nil {
		e.logger.Debug("History request not sent", "conversation_id", id, "error", err)
		return
	}
	e.pending = append(e.pending, id)
}

func (e *Engine) send(intent protocol.Intent) error {
	data, err := protocol.Encode(intent)
	if err != nil {
		return fmt.Errorf("encode %s: %w", intent.Type(), err)
	}
	if err := e.conn.Send(data); err != nil {
		return err
	}
	e.logger.Debug("Intent sent", "type", intent.Type(), "conversation_id", intent.Conversation())
	return nil
}

// fallBackToMemory switches the session to an in-memory cache for the rest
// of the run.
func (e *Engine) fallBackToMemory(cause error) {
	if e.memoryOnly {
		return
	}
	e.logger.Warn("Local cache unavailable, continuing in memory-only mode", "error", cause)
	e.memoryOnly = true
	e.store = store.NewMemory()
	e.rec.SetStore(e.store)
	e.notify(NoticeCache, "local cache unavailable, conversations will not be saved", cause)
}

func (e *Engine) notify(kind NoticeKind, msg string, err error) {
	e.notices.push(Notice{Kind: kind, Message: msg, Err: err, At: e.now()})
}

func (e *Engine) publish() {
	e.updates.push(e.snapshot())
}

func (e *Engine) snapshot() View {
	v := View{
		ClientID:      e.clientID,
		ActiveID:      e.activeID,
		Conversations: e.rec.Summaries(),
		Messages:      e.rec.Messages(e.activeID),
		State:         e.machine.State(),
		Busy:          e.machine.Busy(),
		Connection:    connection.StateClosed,
		MemoryOnly:    e.memoryOnly,
	}
	if e.conn != nil {
		v.Connection = e.conn.State()
	}
	return v
}
