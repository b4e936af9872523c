package voice

// Event is the interface for all call session events delivered to the UI.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// StateChangedEvent is emitted when the call state changes.
type StateChangedEvent struct {
	From CallState `json:"from"`
	To   CallState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// SpeakingStartedEvent toggles the "assistant is speaking" indicator on.
type SpeakingStartedEvent struct{}

func (e *SpeakingStartedEvent) EventType() string { return "speaking.started" }

// SpeakingStoppedEvent toggles the "assistant is speaking" indicator off.
type SpeakingStoppedEvent struct{}

func (e *SpeakingStoppedEvent) EventType() string { return "speaking.stopped" }

// AssistantTextEvent carries an incremental fragment of assistant speech
// transcript.
type AssistantTextEvent struct {
	Delta string `json:"delta"`
}

func (e *AssistantTextEvent) EventType() string { return "assistant.text" }

// UserTranscriptEvent carries a completed transcription of a user
// utterance.
type UserTranscriptEvent struct {
	Text string `json:"text"`
}

func (e *UserTranscriptEvent) EventType() string { return "user.transcript" }

// AudioEvent carries decoded assistant audio for playback. The session
// forwards audio and retains none of it.
type AudioEvent struct {
	Data []byte `json:"data"`
}

func (e *AudioEvent) EventType() string { return "audio.delta" }

// CallErrorEvent is emitted when the session enters the error state or the
// server reports an in-band error.
type CallErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CallErrorEvent) EventType() string { return "error" }

// CallEndedEvent is emitted once when the call terminates.
type CallEndedEvent struct {
	Reason string `json:"reason"`
}

func (e *CallEndedEvent) EventType() string { return "call.ended" }
