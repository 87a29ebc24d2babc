package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/shsh-chat/internal/domain"
)

func TestOpenStoreFallsBackWhenCacheUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	st := openStore(filepath.Join(blocker, "cache.db"))
	if _, ok := st.(*unavailableStore); !ok {
		t.Fatalf("openStore returned %T, want *unavailableStore", st)
	}
	if err := st.Ping(ctx); err == nil || !strings.Contains(err.Error(), "open cache") {
		t.Fatalf("Ping = %v, want open cache error", err)
	}

	// Every other call is served rather than panicking.
	if err := st.SaveConversation(ctx, &domain.Conversation{ID: "c1", Title: "Chat"}); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	sums, err := st.ListConversations(ctx)
	if err != nil || len(sums) != 1 {
		t.Fatalf("ListConversations = %v, %v", sums, err)
	}
	if _, _, err := st.GetSetting(ctx, "client_id"); err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("disk gone") }

func TestCloseCacheLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	closeCache(failingCloser{})

	out := buf.String()
	if !strings.Contains(out, "Failed to close local cache") || !strings.Contains(out, "disk gone") {
		t.Fatalf("expected close failure in log, got %q", out)
	}
}
