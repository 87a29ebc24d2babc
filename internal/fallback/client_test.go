package fallback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/shsh-chat/internal/backend"
	"github.com/ashureev/shsh-chat/internal/domain"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(backend.NewServer(backend.Options{}).Handler())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "client-1", 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestSendMessageAndHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t)

	reply, err := c.SendMessage(ctx, "chat-1", "hello")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if reply.Content != "You said: hello" || reply.Sender != domain.SenderAssistant || reply.Attachment != nil {
		t.Fatalf("unexpected reply %+v", reply)
	}

	post, err := c.SendMessage(ctx, "chat-1", "/post Beach day #sun")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if post.Content != "Beach day" || len(post.Attachment.Hashtags()) != 1 {
		t.Fatalf("unexpected post %+v", post)
	}

	msgs, err := c.History(ctx, "chat-1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(msgs))
	}
	if msgs[0].Sender != domain.SenderUser || msgs[0].Content != "hello" {
		t.Errorf("unexpected first message %+v", msgs[0])
	}
	if msgs[3].Attachment.Caption() != "Beach day" {
		t.Errorf("expected structured post in history, got %+v", msgs[3])
	}

	empty, err := c.History(ctx, "other")
	if err != nil || len(empty) != 0 {
		t.Fatalf("History(other) = %v, %v", empty, err)
	}
}

func TestSendMessageRejectsBlank(t *testing.T) {
	t.Parallel()
	c := newClient(t)
	if _, err := c.SendMessage(context.Background(), "chat", " "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		backend.Error(w, http.StatusServiceUnavailable, "overloaded")
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "client-1", 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = c.SendMessage(context.Background(), "chat", "hi")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable || statusErr.Message != "overloaded" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()
	if _, err := New("ftp://example.com", "c", 0); err == nil {
		t.Fatal("expected scheme error")
	}
}
