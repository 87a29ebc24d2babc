package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/shsh-chat/internal/activity"
	"github.com/ashureev/shsh-chat/internal/connection"
	"github.com/ashureev/shsh-chat/internal/domain"
)

// NoticeKind classifies a user-visible notice.
type NoticeKind string

const (
	// NoticeBackend carries an error event reported by the backend.
	NoticeBackend NoticeKind = "backend"
	// NoticeConnection reports that the connection was lost.
	NoticeConnection NoticeKind = "connection"
	// NoticeTimeout reports a turn abandoned after the turn timeout.
	NoticeTimeout NoticeKind = "timeout"
	// NoticeCache reports that the local cache is unavailable for this run.
	NoticeCache NoticeKind = "cache"
)

// Notice is an item of the error-notification path.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
	At      time.Time
}

func (n Notice) String() string {
	if n.Err != nil {
		return fmt.Sprintf("%s: %s: %v", n.Kind, n.Message, n.Err)
	}
	return fmt.Sprintf("%s: %s", n.Kind, n.Message)
}

// View is a point-in-time snapshot of the session for the presentation layer.
type View struct {
	ClientID      string
	ActiveID      string
	Conversations []domain.ConversationSummary
	Messages      []domain.Message
	State         activity.State
	Busy          bool
	Connection    connection.State
	MemoryOnly    bool
}

// mailbox is a bounded notification queue. When the consumer falls behind,
// the oldest item is dropped so the dispatcher never blocks.
type mailbox[T any] struct {
	name   string
	ch     chan T
	logger *slog.Logger
}

func newMailbox[T any](name string, size int, logger *slog.Logger) *mailbox[T] {
	if size <= 0 {
		size = 1
	}
	return &mailbox[T]{name: name, ch: make(chan T, size), logger: logger}
}

func (m *mailbox[T]) push(v T) {
	select {
	case m.ch <- v:
		return
	default:
	}

	// Queue full - drop oldest to make room
	select {
	case <-m.ch:
		m.logger.Debug("Notification queue full, dropped oldest", "queue", m.name)
	default:
	}

	select {
	case m.ch <- v:
	default:
		m.logger.Warn("Failed to queue notification", "queue", m.name)
	}
}

func (m *mailbox[T]) close() {
	close(m.ch)
}
