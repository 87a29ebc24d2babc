package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/ashureev/shsh-chat/internal/domain"
)

func TestEncodeIntents(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		want   string
	}{
		{
			name:   "send message",
			intent: SendMessage{ConversationID: "c1", Content: "hi"},
			want:   `{"type":"message","content":"hi","chatId":"c1"}`,
		},
		{
			name:   "request history",
			intent: RequestHistory{ConversationID: "c1"},
			want:   `{"type":"get_history","content":"","chatId":"c1"}`,
		},
		{
			name:   "delete message",
			intent: DeleteMessage{ConversationID: "c1", Content: "old text"},
			want:   `{"type":"delete_message","content":"old text","chatId":"c1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.intent)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeRequiresConversation(t *testing.T) {
	_, err := Encode(SendMessage{Content: "orphan"})
	if !errors.Is(err, ErrMissingConversation) {
		t.Fatalf("expected ErrMissingConversation, got %v", err)
	}
}

func TestDecodeMessageAttachment(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","content":{"message":"caption text","hashtags":["a","b"]}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Type != EventMessage {
		t.Fatalf("expected message event, got %s", ev.Type)
	}
	if ev.Text != "caption text" {
		t.Errorf("Text = %q, want %q", ev.Text, "caption text")
	}
	want := domain.Attachment{"hashtags": []any{"a", "b"}, "message": "caption text"}
	if !reflect.DeepEqual(ev.Attachment, want) {
		t.Errorf("Attachment = %#v, want %#v", ev.Attachment, want)
	}
}

func TestDecodeMessageAttachmentWithoutText(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","content":{"imageUrl":"https://img/1.png"}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Text != "" {
		t.Errorf("expected empty text, got %q", ev.Text)
	}
	if ev.Attachment.ImageURL() != "https://img/1.png" {
		t.Errorf("unexpected attachment %#v", ev.Attachment)
	}
}

func TestDecodePlainMessage(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"message","content":"plain"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Text != "plain" {
		t.Errorf("Text = %q, want plain", ev.Text)
	}
	if ev.Attachment != nil {
		t.Errorf("expected no attachment, got %#v", ev.Attachment)
	}
}

func TestDecodeHistory(t *testing.T) {
	raw := `{"type":"history","content":[
		{"sender":"user","content":"hi"},
		{"sender":"ai","content":"hello"},
		{"role":"assistant","content":{"message":"look","caption":"sunset"}},
		{"content":{"videoUrl":"https://v/1.mp4"}}
	]}`
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Type != EventHistory {
		t.Fatalf("expected history event, got %s", ev.Type)
	}

	want := []domain.Message{
		{Content: "hi", Sender: domain.SenderUser, Delivered: true},
		{Content: "hello", Sender: domain.SenderAssistant, Delivered: true},
		{Content: "look", Sender: domain.SenderAssistant, Delivered: true,
			Attachment: domain.Attachment{"message": "look", "caption": "sunset"}},
		{Content: "", Sender: domain.SenderAssistant, Delivered: true,
			Attachment: domain.Attachment{"videoUrl": "https://v/1.mp4"}},
	}
	if !reflect.DeepEqual(ev.History, want) {
		t.Fatalf("History mismatch:\n got %#v\nwant %#v", ev.History, want)
	}
}

func TestDecodeEmptyHistory(t *testing.T) {
	for _, raw := range []string{`{"type":"history","content":[]}`, `{"type":"history"}`} {
		ev, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", raw, err)
		}
		if ev.History == nil || len(ev.History) != 0 {
			t.Fatalf("expected empty non-nil history for %s, got %#v", raw, ev.History)
		}
	}
}

func TestDecodeLifecycle(t *testing.T) {
	for _, typ := range []EventType{EventPlanningStarted, EventExecutionStarted, EventRedirecting, EventPlanningEnded} {
		data, _ := json.Marshal(map[string]string{"type": string(typ)})
		ev, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", typ, err)
		}
		if ev.Type != typ || !ev.IsLifecycle() {
			t.Fatalf("expected lifecycle event %s, got %+v", typ, ev)
		}
	}
}

func TestDecodeErrorAlwaysSurfaces(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: `{"type":"error","content":"rate limited"}`, want: "rate limited"},
		{raw: `{"type":"error","content":{"code":42}}`, want: `{"code":42}`},
		{raw: `{"type":"error"}`, want: "backend reported an error"},
	}
	for _, tt := range tests {
		ev, err := Decode([]byte(tt.raw))
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", tt.raw, err)
		}
		if ev.Type != EventError || ev.Text != tt.want {
			t.Errorf("Decode(%s) = %+v, want error %q", tt.raw, ev, tt.want)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "not json", raw: `hello`, wantErr: ErrMalformed},
		{name: "missing type", raw: `{"content":"x"}`, wantErr: ErrMalformed},
		{name: "unknown type", raw: `{"type":"typing_indicator"}`, wantErr: ErrUnknownEvent},
		{name: "message without content", raw: `{"type":"message"}`, wantErr: ErrMalformed},
		{name: "numeric message", raw: `{"type":"message","content":5}`, wantErr: ErrMalformed},
		{name: "history object", raw: `{"type":"history","content":{"a":1}}`, wantErr: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !IsProtocolError(err) {
				t.Fatalf("expected protocol error classification for %v", err)
			}
		})
	}
}
