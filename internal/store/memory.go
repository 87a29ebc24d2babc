package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// MemoryStore keeps the cache in process memory. It backs the memory-only
// mode used when the on-disk cache cannot be opened.
type MemoryStore struct {
	mu            sync.RWMutex
	settings      map[string]string
	conversations map[string]*memoryEntry
	seq           int64
}

type memoryEntry struct {
	conv      *domain.Conversation
	updatedAt time.Time
	seq       int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		settings:      make(map[string]string),
		conversations: make(map[string]*memoryEntry),
	}
}

func (s *MemoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *MemoryStore) PutSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context) ([]domain.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*memoryEntry, 0, len(s.conversations))
	for _, e := range s.conversations {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].updatedAt.Equal(entries[j].updatedAt) {
			return entries[i].updatedAt.After(entries[j].updatedAt)
		}
		return entries[i].seq > entries[j].seq
	})

	out := make([]domain.ConversationSummary, 0, len(entries))
	for _, e := range entries {
		sum := e.conv.Summary()
		sum.UpdatedAt = e.updatedAt
		out = append(out, sum)
	}
	return out, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return e.conv.Clone(), nil
}

func (s *MemoryStore) SaveConversation(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.conversations[conv.ID] = &memoryEntry{conv: conv.Clone(), updatedAt: time.Now(), seq: s.seq}
	return nil
}

func (s *MemoryStore) TouchConversation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.conversations[id]; ok {
		s.seq++
		e.updatedAt = at
		e.seq = s.seq
	}
	return nil
}

func (s *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
