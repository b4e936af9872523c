package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/plantora/plantora-go/pkg/api"
)

func streamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		for _, line := range lines {
			fmt.Fprint(w, line)
			flusher.Flush()
		}
	}))
}

type sessionResult struct {
	chunks []string
	done   int
	errs   []string
}

func runSession(t *testing.T, backend Streamer, store *ConversationStore, req api.ChatRequest) sessionResult {
	t.Helper()
	var res sessionResult
	opts := []StreamOption{}
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	session := NewStreamSession(backend, opts...)
	session.Run(context.Background(), req, Handler{
		OnChunk: func(text string) { res.chunks = append(res.chunks, text) },
		OnDone:  func() { res.done++ },
		OnError: func(msg string) { res.errs = append(res.errs, msg) },
	})
	return res
}

func TestStreamSessionAssemblesMessage(t *testing.T) {
	server := streamServer(t,
		"data: {\"content\":\"Fiddle-leaf figs \"}\n\n",
		"data: {\"content\":\"like bright light.\"}\n\n",
		"data: {\"done\":true}\n\n",
	)
	defer server.Close()

	client := api.NewClient(server.URL)
	res := runSession(t, client, nil, api.ChatRequest{Message: "light for a fig?"})

	if got := strings.Join(res.chunks, ""); got != "Fiddle-leaf figs like bright light." {
		t.Fatalf("assembled = %q", got)
	}
	if res.done != 1 {
		t.Fatalf("done fired %d times, want 1", res.done)
	}
	if len(res.errs) != 0 {
		t.Fatalf("unexpected errors: %v", res.errs)
	}
}

func TestStreamSessionInBandError(t *testing.T) {
	server := streamServer(t,
		"data: {\"content\":\"partial\"}\n\n",
		"data: {\"error\":\"model unavailable\"}\n\n",
	)
	defer server.Close()

	client := api.NewClient(server.URL)
	res := runSession(t, client, nil, api.ChatRequest{Message: "hi"})

	if res.done != 0 {
		t.Fatalf("done fired %d times, want 0", res.done)
	}
	if len(res.errs) != 1 || res.errs[0] != "model unavailable" {
		t.Fatalf("errs = %v, want [model unavailable]", res.errs)
	}
	if len(res.chunks) != 1 {
		t.Fatalf("chunks before error = %d, want 1", len(res.chunks))
	}
}

func TestStreamSessionEndsWithoutDone(t *testing.T) {
	server := streamServer(t, "data: {\"content\":\"cut off\"}\n\n")
	defer server.Close()

	client := api.NewClient(server.URL)
	res := runSession(t, client, nil, api.ChatRequest{Message: "hi"})

	if res.done != 0 {
		t.Fatalf("done fired %d times, want 0", res.done)
	}
	if len(res.errs) != 1 {
		t.Fatalf("errs = %v, want one", res.errs)
	}
	if !strings.HasPrefix(res.errs[0], "connection failed") {
		t.Fatalf("err = %q, want connection-level message", res.errs[0])
	}
}

func TestStreamSessionTransportError(t *testing.T) {
	server := streamServer(t)
	url := server.URL
	server.Close()

	client := api.NewClient(url)
	res := runSession(t, client, nil, api.ChatRequest{Message: "hi"})

	if len(res.errs) != 1 {
		t.Fatalf("errs = %v, want one", res.errs)
	}
	if !strings.HasPrefix(res.errs[0], "connection failed") {
		t.Fatalf("err = %q, want connection-level message", res.errs[0])
	}
	if res.done != 0 || len(res.chunks) != 0 {
		t.Fatalf("got done=%d chunks=%d on transport error", res.done, len(res.chunks))
	}
}

func TestStreamSessionUpdatesStore(t *testing.T) {
	server := streamServer(t,
		"data: {\"content\":\"Repot \"}\n\n",
		"data: {\"content\":\"every two years.\"}\n\n",
		"data: {\"done\":true}\n\n",
	)
	defer server.Close()

	store := NewConversationStore()
	store.AppendMessage(3, Message{Role: "user", Content: "when to repot?"})

	client := api.NewClient(server.URL)
	runSession(t, client, store, api.ChatRequest{Message: "when to repot?", ConversationID: 3})

	conv, _ := store.Get(3)
	if len(conv.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(conv.Messages))
	}
	if got := conv.Messages[1].Content; got != "Repot every two years." {
		t.Fatalf("assistant content = %q", got)
	}
}

func TestStreamSessionEmptyMessageRejected(t *testing.T) {
	server := streamServer(t)
	defer server.Close()

	client := api.NewClient(server.URL)
	res := runSession(t, client, nil, api.ChatRequest{Message: "   "})

	if len(res.errs) != 1 {
		t.Fatalf("errs = %v, want one", res.errs)
	}
}
