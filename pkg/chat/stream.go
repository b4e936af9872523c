package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/plantora/plantora-go/pkg/api"
)

// Streamer opens one streaming chat request. *api.Client satisfies it.
type Streamer interface {
	StreamChat(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error)
}

// Handler receives progress for one stream session. OnChunk is invoked for
// each content delta, in order; exactly one of OnDone/OnError fires per
// session, exactly once. Nil callbacks are skipped.
type Handler struct {
	OnChunk func(text string)
	OnDone  func()
	OnError func(message string)
}

// StreamSession consumes one streaming chat response and reports progress
// to a Handler. When tethered to a ConversationStore, each cumulative
// chunk also updates the pending assistant message for the conversation.
type StreamSession struct {
	backend Streamer
	store   *ConversationStore
	logger  *slog.Logger

	terminal bool
}

// StreamOption configures a StreamSession.
type StreamOption func(*StreamSession)

// WithStore tethers the session to a conversation store.
func WithStore(store *ConversationStore) StreamOption {
	return func(s *StreamSession) { s.store = store }
}

// WithStreamLogger sets the logger.
func WithStreamLogger(l *slog.Logger) StreamOption {
	return func(s *StreamSession) { s.logger = l }
}

// NewStreamSession creates a session for one request.
func NewStreamSession(backend Streamer, opts ...StreamOption) *StreamSession {
	s := &StreamSession{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run issues the request and pumps decoded events into the handler until a
// terminal event arrives. Network-level failure with no response at all is
// reported through OnError with a transport-level message, distinct from
// in-band error events.
func (s *StreamSession) Run(ctx context.Context, req api.ChatRequest, h Handler) {
	body, err := s.backend.StreamChat(ctx, req)
	if err != nil {
		s.fail(h, transportMessage(err))
		return
	}

	stream := NewEventStream(body)
	defer stream.Close()

	// One pending assistant message receives all deltas for this session.
	// The cursor is discarded on completion or error.
	streamingID := uuid.NewString()
	var cumulative strings.Builder

	for {
		event, err := stream.Next()
		if err == io.EOF {
			// Stream ended without a terminal event.
			s.fail(h, "connection failed: stream ended before completion")
			return
		}
		if err != nil {
			s.fail(h, transportMessage(err))
			return
		}

		switch ev := event.(type) {
		case ContentEvent:
			cumulative.WriteString(ev.Content)
			if s.store != nil {
				s.store.UpdateStreamingMessage(req.ConversationID, streamingID, cumulative.String())
			}
			if h.OnChunk != nil {
				h.OnChunk(ev.Content)
			}
		case DoneEvent:
			s.done(h)
			return
		case ErrorEvent:
			s.fail(h, ev.Message)
			return
		}
	}
}

// done fires OnDone unless a terminal event already fired.
func (s *StreamSession) done(h Handler) {
	if s.terminal {
		return
	}
	s.terminal = true
	if h.OnDone != nil {
		h.OnDone()
	}
}

// fail fires OnError unless a terminal event already fired.
func (s *StreamSession) fail(h Handler, message string) {
	if s.terminal {
		return
	}
	s.terminal = true
	if s.logger != nil {
		s.logger.Warn("chat stream failed", "error", message)
	}
	if h.OnError != nil {
		h.OnError(message)
	}
}

func transportMessage(err error) string {
	if apiErr, ok := err.(*api.Error); ok {
		if apiErr.Type == api.ErrTransport {
			return "connection failed: " + apiErr.Message
		}
		return apiErr.Message
	}
	return "connection failed: " + err.Error()
}
