// Package store provides the local conversation cache.
package store

import (
	"context"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// Store is the local, best-effort cache of the client. The backend remains
// the source of truth; the cache only survives restarts.
type Store interface {
	// GetSetting returns a device-level setting. ok is false when unset.
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)

	// PutSetting creates or replaces a device-level setting.
	PutSetting(ctx context.Context, key, value string) error

	// ListConversations returns conversation metadata, most recently used first.
	ListConversations(ctx context.Context) ([]domain.ConversationSummary, error)

	// GetConversation returns the full snapshot, or nil when not cached.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// SaveConversation replaces the whole snapshot of a conversation.
	SaveConversation(ctx context.Context, conv *domain.Conversation) error

	// TouchConversation marks a conversation as used at the given time.
	TouchConversation(ctx context.Context, id string, at time.Time) error

	// DeleteConversation removes a snapshot. Missing ids are ignored.
	DeleteConversation(ctx context.Context, id string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store.
	Close() error
}
