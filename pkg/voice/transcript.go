package voice

import (
	"strings"

	"github.com/plantora/plantora-go/pkg/api"
)

// transcriptBuffer accumulates the turns of one call. It is owned by the
// session and guarded by the session mutex.
type transcriptBuffer struct {
	turns   []api.Turn
	pending strings.Builder
}

// appendAssistantDelta grows the pending assistant fragment.
func (b *transcriptBuffer) appendAssistantDelta(text string) {
	b.pending.WriteString(text)
}

// finishAssistantTurn moves a non-empty pending fragment into the buffer
// as one assistant turn and resets the fragment.
func (b *transcriptBuffer) finishAssistantTurn() {
	if b.pending.Len() == 0 {
		return
	}
	b.turns = append(b.turns, api.Turn{Role: "assistant", Content: b.pending.String()})
	b.pending.Reset()
}

// appendUserTurn records a completed user utterance.
func (b *transcriptBuffer) appendUserTurn(text string) {
	if text == "" {
		return
	}
	b.turns = append(b.turns, api.Turn{Role: "user", Content: text})
}

// flush finalizes any pending fragment and returns the ordered turns.
func (b *transcriptBuffer) flush() []api.Turn {
	b.finishAssistantTurn()
	out := make([]api.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}
