package voice

import (
	"errors"
	"testing"
)

func TestDecodeServerEvent(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, ev ServerEvent)
	}{
		{
			name: "audio delta",
			data: `{"type":"response.audio.delta","delta":"UENNMTY="}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*AudioDeltaEvent)
				if !ok || e.Delta != "UENNMTY=" {
					t.Fatalf("ev = %#v", ev)
				}
			},
		},
		{
			name: "audio done",
			data: `{"type":"response.audio.done"}`,
			check: func(t *testing.T, ev ServerEvent) {
				if _, ok := ev.(*AudioDoneEvent); !ok {
					t.Fatalf("ev = %#v", ev)
				}
			},
		},
		{
			name: "transcript delta",
			data: `{"type":"response.audio_transcript.delta","delta":"Water it "}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*TranscriptDeltaEvent)
				if !ok || e.Delta != "Water it " {
					t.Fatalf("ev = %#v", ev)
				}
			},
		},
		{
			name: "transcript done",
			data: `{"type":"response.audio_transcript.done","transcript":"Water it weekly."}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*TranscriptDoneEvent)
				if !ok || e.Transcript != "Water it weekly." {
					t.Fatalf("ev = %#v", ev)
				}
			},
		},
		{
			name: "input transcription",
			data: `{"type":"conversation.item.input_audio_transcription.completed","transcript":"is my fern dying"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*InputTranscriptionEvent)
				if !ok || e.Transcript != "is my fern dying" {
					t.Fatalf("ev = %#v", ev)
				}
			},
		},
		{
			name: "server error",
			data: `{"type":"error","error":{"code":"rate_limited","message":"slow down"}}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*ServerErrorEvent)
				if !ok || e.Code != "rate_limited" || e.Message != "slow down" {
					t.Fatalf("ev = %#v", ev)
				}
			},
		},
		{
			name: "server error without body",
			data: `{"type":"error"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*ServerErrorEvent)
				if !ok || e.Code != "" {
					t.Fatalf("ev = %#v", ev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeServerEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeServerEvent() error = %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestDecodeServerEventUnknown(t *testing.T) {
	_, err := DecodeServerEvent([]byte(`{"type":"session.created"}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("error = %v, want ErrUnknownEvent", err)
	}
}

func TestDecodeServerEventMalformed(t *testing.T) {
	if _, err := DecodeServerEvent([]byte(`{nope`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestCallStateString(t *testing.T) {
	want := map[CallState]string{
		StateIdle:                 "IDLE",
		StateRequestingPermission: "REQUESTING_PERMISSION",
		StateGettingToken:         "GETTING_TOKEN",
		StateConnecting:           "CONNECTING",
		StateReady:                "READY",
		StateInCall:               "IN_CALL",
		StateError:                "ERROR",
	}
	for state, name := range want {
		if got := state.String(); got != name {
			t.Fatalf("%d.String() = %q, want %q", state, got, name)
		}
	}
}
