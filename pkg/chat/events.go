package chat

// Event is the interface for decoded streaming-chat events.
type Event interface {
	EventType() string
}

// ContentEvent carries one incremental fragment of the assistant reply.
type ContentEvent struct {
	Content string `json:"content"`
}

func (e ContentEvent) EventType() string { return "content" }

// DoneEvent signals that the reply is complete.
type DoneEvent struct{}

func (e DoneEvent) EventType() string { return "done" }

// ErrorEvent carries an in-band error reported by the backend.
type ErrorEvent struct {
	Message string `json:"error"`
}

func (e ErrorEvent) EventType() string { return "error" }
