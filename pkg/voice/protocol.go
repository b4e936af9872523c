// Package voice implements the bidirectional voice-call client: the
// realtime socket session and its state machine, the microphone capture
// controller, and the wire protocol spoken over the socket.
package voice

import (
	"encoding/json"
	"errors"
	"strings"
)

// Subprotocol names. The ephemeral credential rides in the second
// subprotocol entry and never appears anywhere else.
const (
	SubprotocolRealtime     = "plantora-realtime"
	subprotocolBearerPrefix = "bearer."
)

// --- Outbound frames ---

// TranscriptionSettings selects the input transcription model.
type TranscriptionSettings struct {
	Model string `json:"model,omitempty"`
}

// SessionSettings is the session-configuration payload sent once after
// the socket opens.
type SessionSettings struct {
	Voice                   string                 `json:"voice,omitempty"`
	InputAudioFormat        string                 `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string                 `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionSettings `json:"input_audio_transcription,omitempty"`
}

type sessionUpdateFrame struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

type bufferAppendFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64
}

type bufferCommitFrame struct {
	Type string `json:"type"`
}

type responseCreateFrame struct {
	Type string `json:"type"`
}

func newSessionUpdate(settings SessionSettings) sessionUpdateFrame {
	return sessionUpdateFrame{Type: "session.update", Session: settings}
}

func newBufferAppend(audioB64 string) bufferAppendFrame {
	return bufferAppendFrame{Type: "input_audio_buffer.append", Audio: audioB64}
}

func newBufferCommit() bufferCommitFrame {
	return bufferCommitFrame{Type: "input_audio_buffer.commit"}
}

func newResponseCreate() responseCreateFrame {
	return responseCreateFrame{Type: "response.create"}
}

// --- Inbound events ---

// ServerEvent is the interface for decoded socket events.
type ServerEvent interface {
	serverEventType() string
}

// AudioDeltaEvent carries a base64 chunk of assistant output audio.
type AudioDeltaEvent struct {
	Delta string
}

func (e *AudioDeltaEvent) serverEventType() string { return "response.audio.delta" }

// AudioDoneEvent signals the end of assistant output audio for a turn.
type AudioDoneEvent struct{}

func (e *AudioDoneEvent) serverEventType() string { return "response.audio.done" }

// TranscriptDeltaEvent carries an incremental fragment of the assistant
// speech transcript.
type TranscriptDeltaEvent struct {
	Delta string
}

func (e *TranscriptDeltaEvent) serverEventType() string { return "response.audio_transcript.delta" }

// TranscriptDoneEvent marks the assistant turn as complete.
type TranscriptDoneEvent struct {
	Transcript string
}

func (e *TranscriptDoneEvent) serverEventType() string { return "response.audio_transcript.done" }

// InputTranscriptionEvent carries the completed transcription of a user
// utterance.
type InputTranscriptionEvent struct {
	Transcript string
}

func (e *InputTranscriptionEvent) serverEventType() string {
	return "conversation.item.input_audio_transcription.completed"
}

// ServerErrorEvent carries an in-band error from the speech model.
type ServerErrorEvent struct {
	Code    string
	Message string
}

func (e *ServerErrorEvent) serverEventType() string { return "error" }

// ErrUnknownEvent is returned by DecodeServerEvent for event types this
// client does not handle. Callers skip such events.
var ErrUnknownEvent = errors.New("unknown server event type")

// DecodeServerEvent parses one inbound socket frame. Malformed frames and
// unknown types return an error and are skipped by the session, never
// fatal.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var raw struct {
		Type       string `json:"type"`
		Delta      string `json:"delta"`
		Transcript string `json:"transcript"`
		Error      *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	switch strings.TrimSpace(raw.Type) {
	case "response.audio.delta":
		return &AudioDeltaEvent{Delta: raw.Delta}, nil
	case "response.audio.done":
		return &AudioDoneEvent{}, nil
	case "response.audio_transcript.delta":
		return &TranscriptDeltaEvent{Delta: raw.Delta}, nil
	case "response.audio_transcript.done":
		return &TranscriptDoneEvent{Transcript: raw.Transcript}, nil
	case "conversation.item.input_audio_transcription.completed":
		return &InputTranscriptionEvent{Transcript: raw.Transcript}, nil
	case "error":
		ev := &ServerErrorEvent{}
		if raw.Error != nil {
			ev.Code = raw.Error.Code
			ev.Message = raw.Error.Message
		}
		return ev, nil
	default:
		return nil, ErrUnknownEvent
	}
}
