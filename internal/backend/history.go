// Package backend is a deterministic reference peer of the chat protocol,
// used for local development and end-to-end tests.
package backend

import (
	"slices"
	"sync"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// Record is one stored history entry. Content is plain text or a
// structured post.
type Record struct {
	Content any    `json:"content"`
	Sender  string `json:"sender"`
}

// Text returns the text of the record: the string content, or the embedded
// message of a structured post.
func (r Record) Text() string {
	switch c := r.Content.(type) {
	case string:
		return c
	case map[string]any:
		s, _ := c[domain.AttachmentText].(string)
		return s
	}
	return ""
}

type chatKey struct {
	clientID string
	chatID   string
}

// History keeps the authoritative records per client and chat.
type History struct {
	mu    sync.RWMutex
	chats map[chatKey][]Record
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{chats: make(map[chatKey][]Record)}
}

// Append adds records to the end of a chat.
func (h *History) Append(clientID, chatID string, recs ...Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := chatKey{clientID, chatID}
	h.chats[k] = append(h.chats[k], recs...)
}

// List returns a copy of a chat's records. It never returns nil.
func (h *History) List(clientID, chatID string) []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	recs := h.chats[chatKey{clientID, chatID}]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// DeleteByContent removes the first record whose text equals content.
func (h *History) DeleteByContent(clientID, chatID, content string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := chatKey{clientID, chatID}
	idx := slices.IndexFunc(h.chats[k], func(r Record) bool { return r.Text() == content })
	if idx < 0 {
		return false
	}
	h.chats[k] = slices.Delete(h.chats[k], idx, idx+1)
	return true
}

// Chats returns the number of chats with stored history.
func (h *History) Chats() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats)
}
