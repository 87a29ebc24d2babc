package backend

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Defaults for legacy callers that post only a message.
const (
	defaultClientID = "anonymous"
	defaultChatID   = "default"
)

// SendMessageRequest is the body of POST /send-message.
type SendMessageRequest struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
}

// SendMessageResponse is the reply of POST /send-message.
type SendMessageResponse struct {
	Response any `json:"response"`
}

// HistoryResponse is the reply of GET /history.
type HistoryResponse struct {
	History []Record `json:"history"`
}

// APIHandler serves the request/response fallback API.
type APIHandler struct {
	history *History
	hub     *Hub
}

// NewAPIHandler creates the fallback API handler.
func NewAPIHandler(history *History, hub *Hub) *APIHandler {
	return &APIHandler{history: history, hub: hub}
}

// RegisterRoutes registers the fallback API routes.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Post("/send-message", h.SendMessage)
	r.Get("/history", h.History)
	r.Get("/health", h.Health)
}

// SendMessage answers one message without the lifecycle events.
func (h *APIHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	clientID, chatID := orDefault(req.ClientID, defaultClientID), orDefault(req.ChatID, defaultChatID)

	reply := Reply(req.Message)
	h.history.Append(clientID, chatID,
		Record{Content: req.Message, Sender: string(domain.SenderUser)},
		Record{Content: reply, Sender: string(domain.SenderAssistant)},
	)
	JSON(w, http.StatusOK, SendMessageResponse{Response: reply})
}

// History returns the full history of a chat.
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clientID, chatID := q.Get("clientId"), q.Get("chatId")
	if clientID == "" || chatID == "" {
		Error(w, http.StatusBadRequest, "clientId and chatId are required")
		return
	}
	JSON(w, http.StatusOK, HistoryResponse{History: h.history.List(clientID, chatID)})
}

// Health reports liveness and connected clients.
func (h *APIHandler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"checks":  map[string]string{"api": "ok"},
		"clients": h.hub.Count(),
		"chats":   h.history.Chats(),
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
