package domain

import (
	"encoding/json"
	"testing"
)

func TestParseSender(t *testing.T) {
	t.Parallel()
	tests := map[string]Sender{
		"user":      SenderUser,
		"assistant": SenderAssistant,
		"ai":        SenderAssistant,
		"":          SenderAssistant,
	}
	for in, want := range tests {
		if got := ParseSender(in); got != want {
			t.Errorf("ParseSender(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAttachmentAccessors(t *testing.T) {
	t.Parallel()
	var a Attachment
	if err := json.Unmarshal([]byte(`{"message":"caption text","hashtags":["a","b",3],"imageUrl":"https://x/img.png"}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if a.Text() != "caption text" {
		t.Errorf("Text() = %q", a.Text())
	}
	tags := a.Hashtags()
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("Hashtags() = %v", tags)
	}
	if a.ImageURL() != "https://x/img.png" || a.VideoURL() != "" || a.Caption() != "" {
		t.Errorf("unexpected url or caption accessors on %+v", a)
	}

	var empty Attachment
	if empty.Text() != "" || empty.Hashtags() != nil || empty.Clone() != nil {
		t.Error("nil attachment accessors must return zero values")
	}
}

func TestConversationCloneIsDeep(t *testing.T) {
	t.Parallel()
	c := &Conversation{
		ID:    "c1",
		Title: "Trip",
		Messages: []Message{
			{ID: 2, Content: "hi", Sender: SenderUser},
			{ID: 7, Content: "post", Sender: SenderAssistant, Attachment: Attachment{"caption": "x"}},
		},
	}

	clone := c.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages[1].Attachment["caption"] = "y"

	if c.Messages[0].Content != "hi" {
		t.Error("clone shares the message slice")
	}
	if c.Messages[1].Attachment.Caption() != "x" {
		t.Error("clone shares the attachment map")
	}
	if c.MaxMessageID() != 7 || c.IndexOf(7) != 1 || c.IndexOf(3) != -1 {
		t.Errorf("unexpected MaxMessageID/IndexOf on %+v", c)
	}
	if s := c.Summary(); s.MessageCount != 2 || s.Title != "Trip" {
		t.Errorf("unexpected summary %+v", s)
	}
}
