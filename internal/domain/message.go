package domain

import "maps"

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser marks messages typed by the local user.
	SenderUser Sender = "user"
	// SenderAssistant marks messages produced by the backend.
	SenderAssistant Sender = "assistant"
)

// ParseSender maps a wire sender name to a Sender. Anything that is not the
// user is treated as the assistant.
func ParseSender(s string) Sender {
	if s == string(SenderUser) {
		return SenderUser
	}
	return SenderAssistant
}

// Message is a single entry of a conversation.
//
// Delivered is false for optimistic user messages that the backend has not
// acknowledged. Assistant messages are always delivered.
type Message struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	Attachment Attachment `json:"attachment,omitempty"`
	Sender     Sender     `json:"sender"`
	Delivered  bool       `json:"delivered"`
}

// CloneMessages deep-copies a message slice, attachments included.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Attachment = m.Attachment.Clone()
	}
	return out
}

// Attachment is the structured payload some assistant messages carry, such
// as a social media post. The whole object is kept as received.
type Attachment map[string]any

// Known attachment fields.
const (
	AttachmentText     = "message"
	AttachmentCaption  = "caption"
	AttachmentHashtags = "hashtags"
	AttachmentImageURL = "imageUrl"
	AttachmentVideoURL = "videoUrl"
)

// Text returns the embedded text field, if present.
func (a Attachment) Text() string { return a.str(AttachmentText) }

// Caption returns the caption field, if present.
func (a Attachment) Caption() string { return a.str(AttachmentCaption) }

// ImageURL returns the image URL field, if present.
func (a Attachment) ImageURL() string { return a.str(AttachmentImageURL) }

// VideoURL returns the video URL field, if present.
func (a Attachment) VideoURL() string { return a.str(AttachmentVideoURL) }

// Hashtags returns the string elements of the hashtags field.
func (a Attachment) Hashtags() []string {
	raw, ok := a[AttachmentHashtags]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		tags := make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	}
	return nil
}

func (a Attachment) str(key string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return ""
}

// Clone returns a copy of the attachment. Nested values are shared because
// attachments are never mutated after decoding.
func (a Attachment) Clone() Attachment {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}
