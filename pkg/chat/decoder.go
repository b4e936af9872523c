// Package chat implements the streaming text-chat client: the chunked
// transport decoder, the per-request stream session, and the in-memory
// conversation store.
package chat

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const dataPrefix = "data: "

// FrameDecoder reassembles complete protocol lines from arbitrarily split
// transport fragments and decodes them into events.
//
// Fragments may split a line anywhere, including inside a multi-byte JSON
// payload; concatenating the Content fields of all yielded events, in
// order, reproduces the full message exactly. Lines that do not carry the
// expected prefix, or whose payload does not parse, are skipped rather
// than failed.
type FrameDecoder struct {
	partial string
}

// Push appends one transport fragment and returns every event completed
// by it, in arrival order.
func (d *FrameDecoder) Push(fragment string) []Event {
	d.partial += fragment

	var events []Event
	for {
		idx := strings.IndexByte(d.partial, '\n')
		if idx < 0 {
			return events
		}
		line := d.partial[:idx]
		d.partial = d.partial[idx+1:]
		if ev, ok := decodeLine(line); ok {
			events = append(events, ev)
		}
	}
}

// Flush decodes any trailing partial line. Call once after the transport
// reports end of stream.
func (d *FrameDecoder) Flush() []Event {
	line := d.partial
	d.partial = ""
	if ev, ok := decodeLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// decodeLine parses one protocol line. Exactly one of content/done/error
// is expected in the payload; anything else is dropped.
func decodeLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	data := strings.TrimPrefix(line, dataPrefix)

	var payload struct {
		Content *string `json:"content"`
		Done    bool    `json:"done"`
		Error   *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, false
	}

	switch {
	case payload.Error != nil:
		return ErrorEvent{Message: *payload.Error}, true
	case payload.Done:
		return DoneEvent{}, true
	case payload.Content != nil:
		return ContentEvent{Content: *payload.Content}, true
	default:
		return nil, false
	}
}

// EventStream iterates decoded events over a live HTTP response body.
type EventStream struct {
	reader   *bufio.Reader
	closer   io.Closer
	decoder  FrameDecoder
	pending  []Event
	err      error
	finished bool
}

// NewEventStream creates an event stream from an HTTP response body.
func NewEventStream(body io.ReadCloser) *EventStream {
	return &EventStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next decoded event.
// Returns nil, io.EOF when the stream is exhausted.
func (s *EventStream) Next() (Event, error) {
	if s.err != nil {
		return nil, s.err
	}

	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, nil
		}
		if s.finished {
			return nil, io.EOF
		}

		buf := make([]byte, 512)
		n, err := s.reader.Read(buf)
		if n > 0 {
			s.pending = s.decoder.Push(string(buf[:n]))
		}
		if err == io.EOF {
			s.finished = true
			s.pending = append(s.pending, s.decoder.Flush()...)
			continue
		}
		if err != nil {
			s.err = err
			return nil, err
		}
	}
}

// Close releases the underlying response body.
func (s *EventStream) Close() error {
	return s.closer.Close()
}
