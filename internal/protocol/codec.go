package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ashureev/shsh-chat/internal/domain"
)

type outbound struct {
	Type    IntentType `json:"type"`
	Content string     `json:"content"`
	ChatID  string     `json:"chatId"`
}

// Encode serializes an intent into a wire envelope.
func Encode(i Intent) ([]byte, error) {
	if i.Conversation() == "" {
		return nil, fmt.Errorf("encode %s: %w", i.Type(), ErrMissingConversation)
	}
	data, err := json.Marshal(outbound{Type: i.Type(), Content: i.payload(), ChatID: i.Conversation()})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", i.Type(), err)
	}
	return data, nil
}

// Decode parses a wire envelope into an Event. Errors wrap ErrMalformed or
// ErrUnknownEvent.
func Decode(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch t := EventType(env.Type); t {
	case EventHistory:
		msgs, err := decodeHistory(env.Content)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: t, History: msgs}, nil
	case EventMessage:
		text, att, err := decodeMessageContent(env.Content)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: t, Text: text, Attachment: att}, nil
	case EventError:
		return Event{Type: t, Text: errorText(env.Content)}, nil
	case EventPlanningStarted, EventExecutionStarted, EventRedirecting, EventPlanningEnded:
		return Event{Type: t}, nil
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// DecodeContent interprets message content the way a message event does.
// The fallback HTTP API returns replies in the same shape.
func DecodeContent(raw json.RawMessage) (string, domain.Attachment, error) {
	return decodeMessageContent(raw)
}

// DecodeRecords interprets a history array the way a history event does.
func DecodeRecords(raw json.RawMessage) ([]domain.Message, error) {
	return decodeHistory(raw)
}

// decodeMessageContent splits message content into text and attachment. An
// object keeps its embedded "message" field as text; a string is verbatim.
func decodeMessageContent(raw json.RawMessage) (string, domain.Attachment, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil, fmt.Errorf("%w: message without content", ErrMalformed)
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return s, nil, nil
	case '{':
		var att domain.Attachment
		if err := json.Unmarshal(raw, &att); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return att.Text(), att, nil
	default:
		return "", nil, fmt.Errorf("%w: message content must be a string or an object", ErrMalformed)
	}
}

type historyRecord struct {
	Content json.RawMessage `json:"content"`
	Sender  string          `json:"sender"`
	Role    string          `json:"role"`
}

func decodeHistory(raw json.RawMessage) ([]domain.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.Message{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: history content must be an array: %v", ErrMalformed, err)
	}

	msgs := make([]domain.Message, 0, len(records))
	for i, rec := range records {
		msg, err := decodeHistoryRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("history record %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func decodeHistoryRecord(raw json.RawMessage) (domain.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return domain.Message{Content: s, Sender: domain.SenderAssistant, Delivered: true}, nil
	}

	var rec historyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	sender := rec.Sender
	if sender == "" {
		sender = rec.Role
	}
	msg := domain.Message{Sender: domain.ParseSender(sender), Delivered: true}

	content := bytes.TrimSpace(rec.Content)
	switch {
	case len(content) == 0 || bytes.Equal(content, []byte("null")):
	case content[0] == '{':
		var att domain.Attachment
		if err := json.Unmarshal(content, &att); err != nil {
			return domain.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		msg.Attachment = att
		msg.Content = att.Text()
	case content[0] == '"':
		if err := json.Unmarshal(content, &msg.Content); err != nil {
			return domain.Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	default:
		// Numbers and booleans are shown as written.
		msg.Content = string(content)
	}
	return msg, nil
}

// errorText extracts the text of an error event. Non-string content is
// surfaced as raw JSON so the user still sees something.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "backend reported an error"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
