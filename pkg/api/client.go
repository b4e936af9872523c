// Package api holds the thin HTTP collaborators the conversation client
// depends on: the streaming chat endpoint, ephemeral realtime-token
// issuance, and the post-call transcript sync.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Turn is one complete utterance attributed to a single role within a
// voice-call transcript.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest describes one streaming chat request.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
}

// TokenRequest describes an ephemeral realtime-token request.
type TokenRequest struct {
	ConversationID int64  `json:"conversation_id,omitempty"`
	DeviceID       string `json:"device_id,omitempty"`
}

// Client talks to the Plantora backend.
type Client struct {
	baseURL    string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDeviceID sets the device identifier attached to requests.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// WithLogger sets the logger. A nil logger disables client logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceID returns the configured device identifier.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// StreamChat opens one streaming chat request and returns the raw chunked
// response body. The caller owns the body and must close it.
//
// A request that never produces a response is reported as a transport
// error, distinct from in-band error events carried in the body.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, NewInvalidRequestError("message must not be empty")
	}
	if req.DeviceID == "" {
		req.DeviceID = c.deviceID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransportError(err.Error())
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, c.parseError(resp)
	}

	return resp.Body, nil
}

// CreateRealtimeToken fetches a short-lived secret authorizing exactly one
// realtime socket connection. The token is never logged or persisted.
func (c *Client) CreateRealtimeToken(ctx context.Context, req TokenRequest) (string, error) {
	if req.DeviceID == "" {
		req.DeviceID = c.deviceID
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/voice/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", NewCredentialError("token request failed: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := c.parseError(resp)
		return "", NewCredentialError(apiErr.Message)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", NewCredentialError("invalid token response")
	}
	if strings.TrimSpace(payload.Token) == "" {
		return "", NewCredentialError("empty token in response")
	}
	return payload.Token, nil
}

// SyncTranscript uploads the ordered turns of a finished voice call.
// Callers treat this as fire-and-forget; a failure must never block the
// user from leaving the call screen.
func (c *Client) SyncTranscript(ctx context.Context, conversationID int64, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}

	payload := struct {
		ConversationID int64  `json:"conversation_id,omitempty"`
		DeviceID       string `json:"device_id,omitempty"`
		Turns          []Turn `json:"turns"`
	}{
		ConversationID: conversationID,
		DeviceID:       c.deviceID,
		Turns:          turns,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/voice/transcripts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return NewTransportError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// parseError converts an HTTP error response into an *Error.
func (c *Client) parseError(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var envelope struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return envelope.Error
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewAuthenticationError(msg)
	default:
		return NewAPIError(msg)
	}
}
