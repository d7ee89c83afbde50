// Package api is the HTTP client for the chat backend's REST surface.
// All calls are idempotent queries or conversation-granular commands;
// failures surface as *APIError and never corrupt synchronizer state.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flicksocial/flick/internal/session"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Client talks to the REST backend.
type Client struct {
	baseURL string
	token   session.TokenSource
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a REST client for the given base URL. The token
// source supplies the bearer credential per request.
func NewClient(baseURL string, token session.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetConversations fetches one page of the conversation list. An empty
// cursor requests page 1; search filters by participant name.
func (c *Client) GetConversations(ctx context.Context, search, cursor string, limit int) (*ConversationPage, error) {
	query := url.Values{}
	if search != "" {
		query.Set("search", search)
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	query.Set("limit", strconv.Itoa(limit))

	var page ConversationPage
	if err := c.do(ctx, http.MethodGet, "/api/conversations", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetMessages fetches one page of a conversation's history. An empty
// cursor requests the newest page.
func (c *Client) GetMessages(ctx context.Context, conversationID, cursor string, limit int) (*MessagePage, error) {
	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	query.Set("limit", strconv.Itoa(limit))

	var page MessagePage
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkMessagesRead marks the whole conversation read. Read state is
// conversation-granular; there is no per-message acknowledgement.
func (c *Client) MarkMessagesRead(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// RecoverStreak asks the server to restore an expired-but-recoverable
// streak. The returned conversation is authoritative; callers must
// replace local state with it rather than guessing.
func (c *Client) RecoverStreak(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/streak/recover"
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ChangeMessageDeletionSettings toggles disappearing messages for a conversation.
func (c *Client) ChangeMessageDeletionSettings(ctx context.Context, conversationID string, disappear bool) error {
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/settings/disappearing"
	body := map[string]bool{"messagesDisappear": disappear}
	return c.do(ctx, http.MethodPatch, path, nil, body, nil)
}

// DeleteChat removes the conversation for the current user.
func (c *Client) DeleteChat(ctx context.Context, conversationID string) error {
	path := "/api/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil {
		if payload.Message != "" {
			msg = payload.Message
		} else if payload.Error != "" {
			msg = payload.Error
		}
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
