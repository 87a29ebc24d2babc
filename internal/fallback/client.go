// Package fallback is a client for the request/response chat API that
// predates the streaming protocol.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/protocol"
)

// ErrEmptyMessage is returned for blank text; nothing is sent.
var ErrEmptyMessage = errors.New("empty message")

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat api returned %d: %s", e.Code, e.Message)
}

// Client calls the fallback API on behalf of one client id.
type Client struct {
	base     *url.URL
	clientID string
	http     *http.Client
}

// New creates a client for baseURL. A zero timeout defaults to 30s.
func New(baseURL, clientID string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported api url scheme %q", base.Scheme)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:     base,
		clientID: clientID,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

type sendRequest struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
	ChatID   string `json:"chatId"`
}

type sendResponse struct {
	Response json.RawMessage `json:"response"`
}

type historyResponse struct {
	History json.RawMessage `json:"history"`
}

// SendMessage posts text to chatID and returns the assistant reply.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, ErrEmptyMessage
	}

	body, err := json.Marshal(sendRequest{Message: text, ClientID: c.clientID, ChatID: chatID})
	if err != nil {
		return domain.Message{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath("send-message").String(), bytes.NewReader(body))
	if err != nil {
		return domain.Message{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp sendResponse
	if err := c.do(req, &resp); err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}

	reply, att, err := protocol.DecodeContent(resp.Response)
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode reply: %w", err)
	}
	return domain.Message{
		Content:    reply,
		Attachment: att,
		Sender:     domain.SenderAssistant,
		Delivered:  true,
	}, nil
}

// History fetches the full history of chatID. Message ids are left zero.
func (c *Client) History(ctx context.Context, chatID string) ([]domain.Message, error) {
	u := c.base.JoinPath("history")
	q := u.Query()
	q.Set("clientId", c.clientID)
	q.Set("chatId", chatID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	var resp historyResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	msgs, err := protocol.DecodeRecords(resp.History)
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
