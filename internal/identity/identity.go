// Package identity provides the stable per-device client identifier.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/google/uuid"
)

// ClientIDKey is the settings key the client id is persisted under.
const ClientIDKey = "client_id"

func generateClientID() string {
	return uuid.NewString()
}

// IsValidClientID reports whether id looks like an id this package issued.
func IsValidClientID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

// Resolve returns the persisted client id, generating and storing one on
// first use. A stored value that is not a valid id is replaced.
func Resolve(ctx context.Context, st store.Store) (string, error) {
	id, ok, err := st.GetSetting(ctx, ClientIDKey)
	if err != nil {
		return "", fmt.Errorf("read client id: %w", err)
	}
	if ok && IsValidClientID(id) {
		return id, nil
	}
	if ok {
		slog.Warn("Discarding malformed client id", "client_id", id)
	}

	id = generateClientID()
	if err := st.PutSetting(ctx, ClientIDKey, id); err != nil {
		return "", fmt.Errorf("persist client id: %w", err)
	}
	slog.Info("Generated client id", "client_id", id)
	return id, nil
}
