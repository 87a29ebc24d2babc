// Package protocol encodes client intents and decodes server events of the
// chat streaming protocol.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/ashureev/shsh-chat/internal/domain"
)

// IntentType tags outbound envelopes.
type IntentType string

// EventType tags inbound envelopes.
type EventType string

const (
	IntentMessage       IntentType = "message"
	IntentGetHistory    IntentType = "get_history"
	IntentDeleteMessage IntentType = "delete_message"
)

const (
	EventHistory          EventType = "history"
	EventMessage          EventType = "message"
	EventPlanningStarted  EventType = "planning_started"
	EventExecutionStarted EventType = "execution_started"
	EventRedirecting      EventType = "redirecting"
	EventPlanningEnded    EventType = "planning_ended"
	EventError            EventType = "error"
)

var (
	// ErrMalformed marks an inbound envelope that cannot be interpreted.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknownEvent marks a well-formed envelope with an unrecognized type.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMissingConversation is returned when encoding an intent without a chat id.
	ErrMissingConversation = errors.New("intent has no conversation id")
)

// IsProtocolError reports whether err came from decoding a bad envelope.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnknownEvent)
}

// Envelope is the wire frame in both directions. Content is kept raw because
// inbound content can be a string, an object or an array depending on Type.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
	ChatID  string          `json:"chatId,omitempty"`
}

// Intent is an outbound client request.
type Intent interface {
	Type() IntentType
	Conversation() string
	payload() string
}

// SendMessage submits user text to a conversation.
type SendMessage struct {
	ConversationID string
	Content        string
}

// RequestHistory asks for the authoritative history of a conversation.
type RequestHistory struct {
	ConversationID string
}

// DeleteMessage asks the backend to drop a message, identified by content.
type DeleteMessage struct {
	ConversationID string
	Content        string
}

func (SendMessage) Type() IntentType { return IntentMessage }
func (i SendMessage) Conversation() string { return i.ConversationID }
func (i SendMessage) payload() string { return i.Content }

func (RequestHistory) Type() IntentType { return IntentGetHistory }
func (i RequestHistory) Conversation() string { return i.ConversationID }
func (RequestHistory) payload() string { return "" }

func (DeleteMessage) Type() IntentType { return IntentDeleteMessage }
func (i DeleteMessage) Conversation() string { return i.ConversationID }
func (i DeleteMessage) payload() string { return i.Content }

// Event is a decoded server event. Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	// Text is the message text for EventMessage and the error text for EventError.
	Text string

	// Attachment is the structured payload of an EventMessage, if any.
	Attachment domain.Attachment

	// History holds the records of an EventHistory. Message ids are left
	// zero; the reconciler assigns them when the snapshot is applied.
	History []domain.Message
}

// IsLifecycle reports whether the event only drives the activity state.
func (e Event) IsLifecycle() bool {
	switch e.Type {
	case EventPlanningStarted, EventExecutionStarted, EventRedirecting, EventPlanningEnded:
		return true
	}
	return false
}
