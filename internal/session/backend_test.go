package session

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/shsh-chat/internal/activity"
	"github.com/ashureev/shsh-chat/internal/backend"
	"github.com/ashureev/shsh-chat/internal/connection"
	"github.com/ashureev/shsh-chat/internal/store"
)

func TestEngineAgainstReferenceBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := backend.NewServer(backend.Options{})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
	})

	mgr, err := connection.NewManager(connection.Options{
		BaseURL: "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	st, err := store.NewSQLite(t.TempDir() + "/cache.db")
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	e := New(Options{}, st, mgr)
	t.Cleanup(func() { _ = e.Close() })
	initialize(t, e)

	// Sent before the socket is open; the connection queues it.
	if err := e.SendMessage(ctx, "/post Night market #food #street"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	v := waitView(t, e, "reply", func(v View) bool { return !v.Busy && len(v.Messages) == 2 })
	if v.State != activity.Idle || v.Connection != connection.StateOpen {
		t.Fatalf("unexpected view %+v", v)
	}
	reply := v.Messages[1]
	if reply.Content != "Night market" || len(reply.Attachment.Hashtags()) != 2 {
		t.Fatalf("unexpected reply %+v", reply)
	}

	if err := e.DeleteMessage(ctx, v.Messages[0].ID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	waitFor := func() bool {
		recs := srv.History().List(v.ClientID, v.ActiveID)
		return len(recs) == 1
	}
	waitView(t, e, "backend delete", func(View) bool { return waitFor() })

	// A second engine on the same cache restores the list and hydrates from
	// the backend.
	_ = e.Close()
	e2 := New(Options{}, st, mgr)
	t.Cleanup(func() { _ = e2.Close() })
	initialize(t, e2)

	v2 := waitView(t, e2, "hydrated", func(v View) bool { return len(v.Messages) == 1 })
	if v2.ActiveID != v.ActiveID || v2.ClientID != v.ClientID {
		t.Fatalf("expected the same client and conversation, got %+v", v2)
	}
	if v2.Messages[0].Attachment.Caption() != "Night market" {
		t.Fatalf("unexpected hydrated message %+v", v2.Messages[0])
	}
}
