package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plantora/plantora-go/pkg/api"
)

// TokenSource issues the ephemeral credential for one socket connection.
// *api.Client satisfies it.
type TokenSource interface {
	CreateRealtimeToken(ctx context.Context, req api.TokenRequest) (string, error)
}

// TranscriptSyncer uploads the finished transcript. *api.Client satisfies
// it.
type TranscriptSyncer interface {
	SyncTranscript(ctx context.Context, conversationID int64, turns []api.Turn) error
}

// PermissionFunc requests microphone permission from the platform. A nil
// error means granted.
type PermissionFunc func(ctx context.Context) error

// Dependencies wires a CallSession to its collaborators.
type Dependencies struct {
	Tokens      TokenSource
	Transcripts TranscriptSyncer
	Permission  PermissionFunc
	Capture     *CaptureController
	Logger      *slog.Logger
}

// CallSession runs one bidirectional voice call: it negotiates the
// ephemeral credential, owns the persistent socket, demultiplexes inbound
// events, drives the capture controller, and flushes the transcript
// exactly once on every exit path.
//
// A CallSession covers one call attempt; after a failed attempt Start may
// be retried on the same session, but after a finished call a new session
// is created.
type CallSession struct {
	config Config
	deps   Dependencies

	mu                sync.Mutex
	state             CallState
	conn              *websocket.Conn
	transcript        transcriptBuffer
	assistantSpeaking bool
	lastError         string

	// writeMu serializes socket writes; the read loop never writes.
	writeMu sync.Mutex

	events   chan Event
	done     chan struct{}
	finished atomic.Bool
}

// NewCallSession creates a session in the idle state.
func NewCallSession(config Config, deps Dependencies) *CallSession {
	return &CallSession{
		config: config.withDefaults(),
		deps:   deps,
		state:  StateIdle,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// State returns the current call state.
func (s *CallSession) State() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the user-facing message for the most recent failure.
func (s *CallSession) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Events returns the channel of session events for the UI.
func (s *CallSession) Events() <-chan Event {
	return s.events
}

// Done returns a channel that is closed when the call terminates.
func (s *CallSession) Done() <-chan struct{} {
	return s.done
}

// Start drives the session from idle through permission, credential, and
// connection to ready. Every failure surfaces a user-facing message and
// leaves the session in the error state, from which Start may be retried.
func (s *CallSession) Start(ctx context.Context) error {
	if s.finished.Load() {
		return api.NewInvalidRequestError("call session already finished")
	}

	s.mu.Lock()
	if s.state != StateIdle && s.state != StateError {
		state := s.state
		s.mu.Unlock()
		return api.NewInvalidRequestError(fmt.Sprintf("cannot start call in state %s", state))
	}
	s.mu.Unlock()

	s.setState(StateRequestingPermission)
	if s.deps.Permission != nil {
		if err := s.deps.Permission(ctx); err != nil {
			s.toError("permission_denied", "microphone permission denied")
			return api.NewPermissionError("microphone permission denied")
		}
	}

	s.setState(StateGettingToken)
	if s.deps.Tokens == nil {
		s.toError("no_token_source", "voice calls are not configured")
		return api.NewCredentialError("no token source configured")
	}
	token, err := s.deps.Tokens.CreateRealtimeToken(ctx, api.TokenRequest{
		ConversationID: s.config.ConversationID,
		DeviceID:       s.config.DeviceID,
	})
	if err != nil {
		s.toError("token_failed", errorMessage(err))
		return err
	}

	s.setState(StateConnecting)
	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
		Subprotocols:     []string{SubprotocolRealtime, subprotocolBearerPrefix + token},
	}
	conn, resp, err := dialer.DialContext(ctx, s.config.SocketURL, nil)
	if err != nil {
		msg := "could not connect to the voice service"
		if resp != nil {
			msg = fmt.Sprintf("could not connect to the voice service (status %d)", resp.StatusCode)
		}
		s.toError("connect_failed", msg)
		return api.NewConnectionError(msg)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	configure := newSessionUpdate(SessionSettings{
		Voice:             s.config.Voice,
		InputAudioFormat:  s.config.InputAudioFormat,
		OutputAudioFormat: s.config.OutputAudioFormat,
		InputAudioTranscription: &TranscriptionSettings{
			Model: s.config.TranscriptionModel,
		},
	})
	if err := s.send(configure); err != nil {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		s.toError("connect_failed", "voice service closed the connection")
		return api.NewConnectionError("socket closed during configuration")
	}

	s.setState(StateReady)
	go s.readLoop(conn)
	return nil
}

// StartRecording begins capturing an utterance. Only valid while the call
// is live.
func (s *CallSession) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if !state.active() {
		return api.NewInvalidRequestError(fmt.Sprintf("cannot record in state %s", state))
	}
	if s.deps.Capture == nil {
		return api.NewInvalidRequestError("no capture controller configured")
	}
	return s.deps.Capture.StartRecording(ctx)
}

// Commit ends the active recording and sends the utterance to the model:
// append-buffer, commit-buffer, request-response, in order. Stopping with
// no active recording is a no-op. If the socket closed while the payload
// was being read, the payload is discarded silently.
func (s *CallSession) Commit(ctx context.Context) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if !state.active() {
		return api.NewInvalidRequestError(fmt.Sprintf("cannot commit in state %s", state))
	}
	if s.deps.Capture == nil {
		return api.NewInvalidRequestError("no capture controller configured")
	}

	payload, err := s.deps.Capture.StopRecording()
	if err != nil {
		return err
	}
	if payload == "" {
		return nil
	}

	// Reading the payload is an async gap; the socket may have died in
	// the meantime. send re-checks the live reference per frame, so a
	// half-closed socket drops the rest of the sequence.
	for _, frame := range []any{newBufferAppend(payload), newBufferCommit(), newResponseCreate()} {
		if err := s.send(frame); err != nil {
			s.debugf("dropped utterance, socket closed mid-commit")
			return nil
		}
	}

	s.setState(StateInCall)
	return nil
}

// Hangup terminates the call from any state. It closes the socket, stops
// any active recording, flushes the transcript, and syncs it if
// non-empty. Safe to call more than once; only the first call performs
// the flush and sync.
func (s *CallSession) Hangup() {
	s.finish("hangup", true)
}

// Close releases all session resources without the clean-close handshake.
// Intended for component teardown; transcript flushing still happens
// exactly once.
func (s *CallSession) Close() {
	s.finish("teardown", true)
}

// send writes one frame, re-checking that the socket reference is still
// live immediately before the write.
func (s *CallSession) send(frame any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || s.finished.Load() {
		return api.NewConnectionError("socket is closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		return api.NewConnectionError(err.Error())
	}
	return nil
}

// readLoop is the single inbound actor: it processes socket events
// strictly in arrival order and owns no state outside the session object.
func (s *CallSession) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleSocketClosed()
			return
		}
		s.handleServerEvent(data)
	}
}

// handleServerEvent demultiplexes one inbound frame. Malformed frames and
// unknown event types are skipped; correct frames always eventually
// complete the message.
func (s *CallSession) handleServerEvent(data []byte) {
	event, err := DecodeServerEvent(data)
	if err != nil {
		return
	}

	switch ev := event.(type) {
	case *AudioDeltaEvent:
		s.mu.Lock()
		speaking := s.assistantSpeaking
		s.assistantSpeaking = true
		s.mu.Unlock()
		if !speaking {
			s.emit(&SpeakingStartedEvent{})
		}
		if pcm, err := base64.StdEncoding.DecodeString(ev.Delta); err == nil && len(pcm) > 0 {
			s.emit(&AudioEvent{Data: pcm})
		}

	case *AudioDoneEvent:
		s.mu.Lock()
		speaking := s.assistantSpeaking
		s.assistantSpeaking = false
		s.mu.Unlock()
		if speaking {
			s.emit(&SpeakingStoppedEvent{})
		}

	case *TranscriptDeltaEvent:
		s.mu.Lock()
		s.transcript.appendAssistantDelta(ev.Delta)
		s.mu.Unlock()
		s.emit(&AssistantTextEvent{Delta: ev.Delta})

	case *TranscriptDoneEvent:
		s.mu.Lock()
		s.transcript.finishAssistantTurn()
		s.mu.Unlock()

	case *InputTranscriptionEvent:
		if ev.Transcript == "" {
			return
		}
		s.mu.Lock()
		s.transcript.appendUserTurn(ev.Transcript)
		s.mu.Unlock()
		s.emit(&UserTranscriptEvent{Text: ev.Transcript})

	case *ServerErrorEvent:
		if s.deps.Logger != nil {
			s.deps.Logger.Warn("voice service error", "code", ev.Code, "message", ev.Message)
		}
		s.emit(&CallErrorEvent{Code: ev.Code, Message: ev.Message})
	}
}

// handleSocketClosed runs the hangup path when the socket dies under us,
// unless the session already failed or finished.
func (s *CallSession) handleSocketClosed() {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state == StateError {
		return
	}
	s.finish("socket closed", false)
}

// finish is the single termination path. The atomic swap guarantees the
// transcript is flushed and synced at most once no matter how many exit
// paths race here.
func (s *CallSession) finish(reason string, closeSocket bool) {
	if s.finished.Swap(true) {
		return
	}

	if s.deps.Capture != nil {
		s.deps.Capture.Close()
	}

	s.mu.Lock()
	turns := s.transcript.flush()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		if closeSocket {
			s.writeMu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(2*time.Second))
			s.writeMu.Unlock()
		}
		conn.Close()
	}

	if len(turns) > 0 && s.deps.Transcripts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.SyncTimeout)
		defer cancel()
		if err := s.deps.Transcripts.SyncTranscript(ctx, s.config.ConversationID, turns); err != nil {
			// Losing a transcript write must not block the user from
			// leaving the call screen.
			if s.deps.Logger != nil {
				s.deps.Logger.Warn("transcript sync failed",
					"conversation_id", s.config.ConversationID,
					"turns", len(turns),
					"error", err)
			}
		}
	}

	s.setState(StateIdle)
	s.emit(&CallEndedEvent{Reason: reason})
	close(s.done)
}

// toError records a user-facing failure and enters the recoverable error
// state.
func (s *CallSession) toError(code, message string) {
	s.mu.Lock()
	s.lastError = message
	s.mu.Unlock()
	s.setState(StateError)
	s.emit(&CallErrorEvent{Code: code, Message: message})
}

// setState updates the session state and emits an event on change.
func (s *CallSession) setState(newState CallState) {
	s.mu.Lock()
	oldState := s.state
	s.state = newState
	s.mu.Unlock()

	if oldState != newState {
		s.debugf("state: %s -> %s", oldState, newState)
		s.emit(&StateChangedEvent{From: oldState, To: newState})
	}
}

// emit sends an event without blocking; a slow consumer drops events
// rather than stalling the read loop.
func (s *CallSession) emit(event Event) {
	select {
	case s.events <- event:
	case <-s.done:
	default:
	}
}

func (s *CallSession) debugf(format string, args ...any) {
	if s.deps.Logger != nil {
		s.deps.Logger.Debug(fmt.Sprintf(format, args...), "conversation_id", s.config.ConversationID)
	}
}

func errorMessage(err error) string {
	if apiErr, ok := err.(*api.Error); ok {
		return apiErr.Message
	}
	return err.Error()
}
