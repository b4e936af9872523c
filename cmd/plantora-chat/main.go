package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/plantora/plantora-go/internal/dotenv"
	"github.com/plantora/plantora-go/pkg/api"
	"github.com/plantora/plantora-go/pkg/chat"
)

const (
	defaultBaseURL = "http://127.0.0.1:8080"
	defaultTimeout = 90 * time.Second
)

type chatConfig struct {
	BaseURL        string
	DeviceID       string
	ConversationID int64
	Timeout        time.Duration
	Verbose        bool
}

func parseChatConfig(args []string, getenv func(string) string) (chatConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := chatConfig{}
	fs := flag.NewFlagSet("plantora-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", valueOr(getenv("PLANTORA_BASE_URL"), defaultBaseURL), "Plantora backend base URL (or PLANTORA_BASE_URL)")
	fs.StringVar(&cfg.DeviceID, "device-id", strings.TrimSpace(getenv("PLANTORA_DEVICE_ID")), "device identifier (or PLANTORA_DEVICE_ID)")
	fs.Int64Var(&cfg.ConversationID, "conversation", 0, "existing conversation id (0 starts a new one)")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-turn timeout (e.g. 90s)")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return chatConfig{}, err
	}
	if err := validateChatConfig(cfg); err != nil {
		return chatConfig{}, err
	}
	return cfg, nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func validateChatConfig(cfg chatConfig) error {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return errors.New("base-url must not be empty")
	}
	u, err := url.Parse(base)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return errors.New("base-url must be a valid absolute URL")
	}
	if u.User != nil {
		return errors.New("base-url must not include credentials")
	}
	if cfg.ConversationID < 0 {
		return errors.New("conversation must be >= 0")
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runChat(ctx context.Context, cfg chatConfig, in io.Reader, out io.Writer, errOut io.Writer) error {
	if err := validateChatConfig(cfg); err != nil {
		return err
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	logger := newLogger(cfg.Verbose)
	client := api.NewClient(cfg.BaseURL,
		api.WithDeviceID(cfg.DeviceID),
		api.WithLogger(logger),
	)
	store := chat.NewConversationStore()
	conversationID := cfg.ConversationID

	fmt.Fprintf(out, "Plantora chat connected to %s\n", cfg.BaseURL)
	fmt.Fprintln(out, "Type /exit or /quit to stop.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "/exit", "/quit":
			fmt.Fprintln(out, "bye")
			return nil
		}

		store.AppendMessage(conversationID, chat.Message{Role: "user", Content: line})

		session := chat.NewStreamSession(client,
			chat.WithStore(store),
			chat.WithStreamLogger(logger),
		)

		turnCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		session.Run(turnCtx, api.ChatRequest{
			Message:        line,
			ConversationID: conversationID,
			DeviceID:       cfg.DeviceID,
		}, chat.Handler{
			OnChunk: func(text string) {
				fmt.Fprint(out, text)
			},
			OnDone: func() {
				fmt.Fprintln(out)
			},
			OnError: func(message string) {
				fmt.Fprintln(out)
				fmt.Fprintf(errOut, "stream error: %s\n", message)
			},
		})
		cancel()
	}
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "plantora-chat: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseChatConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plantora-chat: %v\n", err)
		os.Exit(1)
	}

	if err := runChat(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "plantora-chat: %v\n", err)
		os.Exit(1)
	}
}
