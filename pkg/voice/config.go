package voice

import "time"

// Config holds all configuration for a call session.
type Config struct {
	// SocketURL is the realtime socket endpoint (ws:// or wss://).
	SocketURL string `json:"socket_url"`

	// ConversationID keys the transcript sync. Zero means unsaved.
	ConversationID int64 `json:"conversation_id,omitempty"`

	// DeviceID identifies the device to the token endpoint.
	DeviceID string `json:"device_id,omitempty"`

	// Voice selects the assistant voice.
	Voice string `json:"voice,omitempty"`

	// InputAudioFormat and OutputAudioFormat negotiate the audio shape.
	InputAudioFormat  string `json:"input_audio_format,omitempty"`
	OutputAudioFormat string `json:"output_audio_format,omitempty"`

	// TranscriptionModel selects the input transcription model.
	TranscriptionModel string `json:"transcription_model,omitempty"`

	// HandshakeTimeout bounds the websocket dial. Default: 10s.
	HandshakeTimeout time.Duration `json:"handshake_timeout,omitempty"`

	// SyncTimeout bounds the post-call transcript sync. Default: 10s.
	SyncTimeout time.Duration `json:"sync_timeout,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Voice:              "sage",
		InputAudioFormat:   "pcm16",
		OutputAudioFormat:  "pcm16",
		TranscriptionModel: "whisper-1",
		HandshakeTimeout:   10 * time.Second,
		SyncTimeout:        10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Voice == "" {
		c.Voice = def.Voice
	}
	if c.InputAudioFormat == "" {
		c.InputAudioFormat = def.InputAudioFormat
	}
	if c.OutputAudioFormat == "" {
		c.OutputAudioFormat = def.OutputAudioFormat
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = def.TranscriptionModel
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = def.SyncTimeout
	}
	return c
}
