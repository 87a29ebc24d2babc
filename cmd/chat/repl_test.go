package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ashureev/shsh-chat/internal/activity"
	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/session"
)

func TestParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "hello there", want: command{kind: cmdSend, text: "hello there"}},
		{line: "  ", want: command{kind: cmdSend, text: "  "}},
		{line: "//etc/hosts is a file", want: command{kind: cmdSend, text: "/etc/hosts is a file"}},
		{line: "/new", want: command{kind: cmdNew}},
		{line: "/switch abc", want: command{kind: cmdSwitch, text: "abc"}},
		{line: "/switch", wantErr: true},
		{line: "/list", want: command{kind: cmdList}},
		{line: "/delete 12", want: command{kind: cmdDelete, msgID: 12}},
		{line: "/delete twelve", wantErr: true},
		{line: "/drop abc", want: command{kind: cmdDrop, text: "abc"}},
		{line: "/drop", wantErr: true},
		{line: "/quit", want: command{kind: cmdQuit}},
		{line: "/help", want: command{kind: cmdHelp}},
		{line: "/dance", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseCommand(tt.line)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCommand(%q) expected error, got %+v", tt.line, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCommand(%q) unexpected error: %v", tt.line, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	plain := formatMessage(domain.Message{ID: 3, Content: "hi", Sender: domain.SenderUser})
	if plain != "[3] you: hi" {
		t.Fatalf("unexpected plain rendering %q", plain)
	}

	post := formatMessage(domain.Message{
		ID:      4,
		Content: "Night market",
		Sender:  domain.SenderAssistant,
		Attachment: domain.Attachment{
			"message":  "Night market",
			"caption":  "Best food in town",
			"hashtags": []any{"food", "#street"},
			"imageUrl": "https://example.com/a.jpg",
		},
	})
	for _, want := range []string{"[4] assistant: Night market", "Best food in town", "#food #street", "image: https://example.com/a.jpg"} {
		if !strings.Contains(post, want) {
			t.Errorf("rendering %q missing %q", post, want)
		}
	}
}

func TestRendererAppendsAndReprints(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	r := newRenderer(&out)

	conv := []domain.ConversationSummary{{ID: "c1", Title: "New Chat 1"}}
	m1 := domain.Message{ID: 1, Content: "hi", Sender: domain.SenderUser}
	m2 := domain.Message{ID: 2, Content: "hello", Sender: domain.SenderAssistant, Delivered: true}

	r.view(session.View{ActiveID: "c1", Conversations: conv, Messages: []domain.Message{m1}, Busy: true, State: activity.Idle})
	r.view(session.View{ActiveID: "c1", Conversations: conv, Messages: []domain.Message{m1}, Busy: true, State: activity.Planning})
	r.view(session.View{ActiveID: "c1", Conversations: conv, Messages: []domain.Message{m1, m2}, State: activity.Idle})

	got := out.String()
	if strings.Count(got, "[1] you: hi") != 1 || strings.Count(got, "[2] assistant: hello") != 1 {
		t.Fatalf("messages must print once, got:\n%s", got)
	}
	if !strings.Contains(got, "== New Chat 1 (c1) ==") || !strings.Contains(got, "... planning") {
		t.Fatalf("missing header or activity line:\n%s", got)
	}

	out.Reset()
	r.view(session.View{ActiveID: "c1", Conversations: conv, Messages: []domain.Message{m2}})
	if got := out.String(); !strings.Contains(got, "conversation updated") || !strings.Contains(got, "[2] assistant: hello") {
		t.Fatalf("expected reprint after deletion, got:\n%s", got)
	}
}
