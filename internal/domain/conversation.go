// Package domain contains core domain types for the chat client.
package domain

import (
	"time"
)

// Conversation is one ordered thread of messages with a stable id.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// ConversationSummary is the list metadata of a cached conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary returns the list metadata for the conversation.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.Messages),
	}
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	out := &Conversation{ID: c.ID, Title: c.Title}
	out.Messages = CloneMessages(c.Messages)
	return out
}

// MaxMessageID returns the largest message id in the conversation, or 0.
func (c *Conversation) MaxMessageID() int64 {
	var highest int64
	for _, m := range c.Messages {
		if m.ID > highest {
			highest = m.ID
		}
	}
	return highest
}

// IndexOf returns the position of the message with the given id, or -1.
func (c *Conversation) IndexOf(id int64) int {
	for i, m := range c.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}
