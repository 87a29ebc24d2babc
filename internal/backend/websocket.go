package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/protocol"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const writeTimeout = 10 * time.Second

// frame is an outbound server event.
type frame struct {
	Type    protocol.EventType `json:"type"`
	Content any                `json:"content,omitempty"`
}

// WebSocketHandler serves the streaming protocol for one client per socket.
type WebSocketHandler struct {
	hub       *Hub
	history   *History
	stepDelay time.Duration
	logger    *slog.Logger
}

// NewWebSocketHandler creates a WebSocket handler. stepDelay is inserted
// between the lifecycle events of a turn.
func NewWebSocketHandler(hub *Hub, history *History, stepDelay time.Duration, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		hub:       hub,
		history:   history,
		stepDelay: stepDelay,
		logger:    logger,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(chi.URLParam(r, "clientID"))
	if clientID == "" {
		Error(w, http.StatusBadRequest, "client id required")
		return
	}
	h.logger.Info("WebSocket connection request", "client_id", clientID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "client_id", clientID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "client_id", clientID)
		}
	}()

	h.hub.Register(clientID, ws)
	defer h.hub.Unregister(clientID, ws)

	ctx := r.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed by client", "client_id", clientID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "client_id", clientID)
			}
			return
		}
		if err := h.dispatch(ctx, ws, clientID, data); err != nil {
			h.logger.Debug("Failed to answer intent", "error", err, "client_id", clientID)
			return
		}
	}
}

// dispatch answers one intent. Only write failures are returned; bad
// intents are reported to the client as error events.
func (h *WebSocketHandler) dispatch(ctx context.Context, ws *websocket.Conn, clientID string, data []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return h.writeFrame(ctx, ws, frame{Type: protocol.EventError, Content: "malformed intent"})
	}
	if env.ChatID == "" {
		return h.writeFrame(ctx, ws, frame{Type: protocol.EventError, Content: "chatId is required"})
	}

	switch protocol.IntentType(env.Type) {
	case protocol.IntentMessage:
		return h.runTurn(ctx, ws, clientID, env.ChatID, contentText(env.Content))

	case protocol.IntentGetHistory:
		return h.writeFrame(ctx, ws, frame{
			Type:    protocol.EventHistory,
			Content: h.history.List(clientID, env.ChatID),
		})

	case protocol.IntentDeleteMessage:
		text := contentText(env.Content)
		if !h.history.DeleteByContent(clientID, env.ChatID, text) {
			h.logger.Debug("Delete matched no record", "client_id", clientID, "chat_id", env.ChatID)
		}
		return nil

	default:
		return h.writeFrame(ctx, ws, frame{
			Type:    protocol.EventError,
			Content: fmt.Sprintf("unsupported intent %q", env.Type),
		})
	}
}

// runTurn stores the user message and streams a full assistant turn.
func (h *WebSocketHandler) runTurn(ctx context.Context, ws *websocket.Conn, clientID, chatID, text string) error {
	h.history.Append(clientID, chatID, Record{Content: text, Sender: string(domain.SenderUser)})
	reply := Reply(text)

	steps := []frame{
		{Type: protocol.EventPlanningStarted},
		{Type: protocol.EventExecutionStarted},
		{Type: protocol.EventMessage, Content: reply},
		{Type: protocol.EventPlanningEnded},
	}
	for i, f := range steps {
		if i > 0 && !h.pause(ctx) {
			return ctx.Err()
		}
		if f.Type == protocol.EventMessage {
			h.history.Append(clientID, chatID, Record{Content: reply, Sender: string(domain.SenderAssistant)})
		}
		if err := h.writeFrame(ctx, ws, f); err != nil {
			return err
		}
	}
	h.logger.Info("Turn completed", "client_id", clientID, "chat_id", chatID)
	return nil
}

func (h *WebSocketHandler) pause(ctx context.Context) bool {
	if h.stepDelay <= 0 {
		return true
	}
	t := time.NewTimer(h.stepDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// contentText reads intent content. Clients send a string; other JSON is
// kept as its raw text.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
