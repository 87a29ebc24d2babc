// Package reconcile merges optimistic local edits, assistant replies and
// backend history into the cached conversations.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/google/uuid"
)

// entry is an in-memory conversation. Conversations listed from the cache
// start unloaded: only id and title are known until history arrives or a
// local mutation pulls the cached snapshot in.
type entry struct {
	conv   domain.Conversation
	loaded bool
	nextID int64
}

func (e *entry) assignID() int64 {
	e.nextID++
	return e.nextID
}

func (e *entry) resetCounter() {
	e.nextID = e.conv.MaxMessageID()
}

// Reconciler is the only writer of conversations and of their cache
// entries. It is not safe for concurrent use.
type Reconciler struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	entries map[string]*entry
	order   []string // most recently used first
}

// New creates a Reconciler persisting to st.
func New(st store.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:   st,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		entries: make(map[string]*entry),
	}
}

// SetStore swaps the backing store, used when falling back to memory-only mode.
func (r *Reconciler) SetStore(st store.Store) {
	r.store = st
}

// Load replaces the active list with the cached metadata. Message bodies are
// not read.
func (r *Reconciler) Load(ctx context.Context) error {
	summaries, err := r.store.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list cached conversations: %w", err)
	}

	r.entries = make(map[string]*entry, len(summaries))
	r.order = r.order[:0]
	for _, sum := range summaries {
		if _, dup := r.entries[sum.ID]; dup {
			continue
		}
		r.entries[sum.ID] = &entry{conv: domain.Conversation{ID: sum.ID, Title: sum.Title}}
		r.order = append(r.order, sum.ID)
	}
	return nil
}

// Has reports whether id is in the active list.
func (r *Reconciler) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// Summaries returns the active list, most recently used first.
func (r *Reconciler) Summaries() []domain.ConversationSummary {
	out := make([]domain.ConversationSummary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].conv.Summary())
	}
	return out
}

// MostRecent returns the id of the most recently used conversation, or "".
func (r *Reconciler) MostRecent() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// Messages returns a copy of the buffered messages of id.
func (r *Reconciler) Messages(id string) []domain.Message {
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	return domain.CloneMessages(e.conv.Messages)
}

// Buffered reports how many messages of id are held in memory.
func (r *Reconciler) Buffered(id string) int {
	if e, ok := r.entries[id]; ok {
		return len(e.conv.Messages)
	}
	return 0
}

// Touch moves id to the front of the list and records the use in the cache.
func (r *Reconciler) Touch(ctx context.Context, id string) {
	if !r.Has(id) {
		return
	}
	r.moveToFront(id)
	if err := r.store.TouchConversation(ctx, id, r.now()); err != nil {
		r.logger.Warn("Failed to record conversation use", "conversation_id", id, "error", err)
	}
}

// InsertOptimistic appends an undelivered user message to the conversation
// activeID, creating a new conversation when activeID is empty or unknown.
// It returns the conversation id the message landed in.
func (r *Reconciler) InsertOptimistic(ctx context.Context, activeID, text string) (string, domain.Message) {
	e, ok := r.entries[activeID]
	if !ok {
		e = r.create()
	} else {
		r.ensureLoaded(ctx, e)
	}

	msg := domain.Message{
		ID:        e.assignID(),
		Content:   text,
		Sender:    domain.SenderUser,
		Delivered: false,
	}
	e.conv.Messages = append(e.conv.Messages, msg)
	r.moveToFront(e.conv.ID)
	r.persist(ctx, e)
	return e.conv.ID, msg
}

// AppendAssistant appends a delivered assistant message to id.
func (r *Reconciler) AppendAssistant(ctx context.Context, id, text string, att domain.Attachment) (domain.Message, bool) {
	e, ok := r.entries[id]
	if !ok {
		return domain.Message{}, false
	}
	r.ensureLoaded(ctx, e)

	msg := domain.Message{
		ID:         e.assignID(),
		Content:    text,
		Attachment: att.Clone(),
		Sender:     domain.SenderAssistant,
		Delivered:  true,
	}
	e.conv.Messages = append(e.conv.Messages, msg)
	r.persist(ctx, e)
	return msg, true
}

// Hydrate replaces the messages of id with a backend snapshot, but only
// while the in-memory buffer is empty. A conversation not yet loaded keeps
// its cached snapshot when that holds more messages than the backend sent.
// It reports whether the backend snapshot applied.
func (r *Reconciler) Hydrate(ctx context.Context, id string, msgs []domain.Message) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	if !e.loaded {
		r.ensureLoaded(ctx, e)
		if cached := len(e.conv.Messages); cached > len(msgs) {
			r.logger.Info("Kept cached conversation over shorter history",
				"conversation_id", id, "cached", cached, "history", len(msgs))
			return false
		}
		e.conv.Messages = nil
		e.nextID = 0
	}
	if len(e.conv.Messages) > 0 {
		return false
	}

	hydrated := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		m.Attachment = m.Attachment.Clone()
		m.ID = e.assignID()
		hydrated[i] = m
	}
	e.conv.Messages = hydrated
	e.loaded = true
	r.persist(ctx, e)
	return true
}

// DeleteMessage removes message msgID from id and returns it.
func (r *Reconciler) DeleteMessage(ctx context.Context, id string, msgID int64) (domain.Message, bool) {
	e, ok := r.entries[id]
	if !ok {
		return domain.Message{}, false
	}
	r.ensureLoaded(ctx, e)

	idx := e.conv.IndexOf(msgID)
	if idx < 0 {
		return domain.Message{}, false
	}
	removed := e.conv.Messages[idx]
	e.conv.Messages = slices.Delete(e.conv.Messages, idx, idx+1)
	r.persist(ctx, e)
	return removed, true
}

// DeleteConversation drops id from the list and the cache.
func (r *Reconciler) DeleteConversation(ctx context.Context, id string) bool {
	if !r.Has(id) {
		return false
	}
	delete(r.entries, id)
	r.order = slices.DeleteFunc(r.order, func(v string) bool { return v == id })

	if err := r.store.DeleteConversation(ctx, id); err != nil {
		r.logger.Warn("Failed to delete cached conversation", "conversation_id", id, "error", err)
	}
	return true
}

func (r *Reconciler) create() *entry {
	id := r.newID()
	for r.Has(id) {
		id = r.newID()
	}
	e := &entry{
		conv:   domain.Conversation{ID: id, Title: fmt.Sprintf("New Chat %d", len(r.order)+1)},
		loaded: true,
	}
	r.entries[id] = e
	r.order = append([]string{id}, r.order...)
	r.logger.Info("Conversation created", "conversation_id", id, "title", e.conv.Title)
	return e
}

// ensureLoaded fills an unloaded conversation from its cached snapshot so a
// local mutation that beats the history reply never drops cached messages.
// Unloaded conversations always have an empty buffer.
func (r *Reconciler) ensureLoaded(ctx context.Context, e *entry) {
	if e.loaded {
		return
	}
	e.loaded = true

	snap, err := r.store.GetConversation(ctx, e.conv.ID)
	if err != nil {
		r.logger.Warn("Failed to read cached conversation", "conversation_id", e.conv.ID, "error", err)
		return
	}
	if snap != nil {
		e.conv.Messages = domain.CloneMessages(snap.Messages)
		e.resetCounter()
	}
}

func (r *Reconciler) moveToFront(id string) {
	idx := slices.Index(r.order, id)
	if idx <= 0 {
		return
	}
	r.order = slices.Delete(r.order, idx, idx+1)
	r.order = append([]string{id}, r.order...)
}

// persist writes the whole conversation. Failures are logged; the cache is
// best-effort.
func (r *Reconciler) persist(ctx context.Context, e *entry) {
	if err := r.store.SaveConversation(ctx, e.conv.Clone()); err != nil {
		r.logger.Warn("Failed to persist conversation", "conversation_id", e.conv.ID, "error", err)
	}
}
