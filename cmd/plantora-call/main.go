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
	"os/signal"
	"strings"
	"syscall"

	"github.com/plantora/plantora-go/internal/dotenv"
	"github.com/plantora/plantora-go/pkg/api"
	"github.com/plantora/plantora-go/pkg/voice"
)

const (
	defaultBaseURL   = "http://127.0.0.1:8080"
	defaultSocketURL = "ws://127.0.0.1:8080/api/voice/realtime"
)

type callConfig struct {
	BaseURL        string
	SocketURL      string
	DeviceID       string
	ConversationID int64
	Voice          string
	Verbose        bool
}

func parseCallConfig(args []string, getenv func(string) string) (callConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := callConfig{}
	fs := flag.NewFlagSet("plantora-call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", valueOr(getenv("PLANTORA_BASE_URL"), defaultBaseURL), "Plantora backend base URL (or PLANTORA_BASE_URL)")
	fs.StringVar(&cfg.SocketURL, "socket-url", valueOr(getenv("PLANTORA_SOCKET_URL"), defaultSocketURL), "realtime socket URL (or PLANTORA_SOCKET_URL)")
	fs.StringVar(&cfg.DeviceID, "device-id", strings.TrimSpace(getenv("PLANTORA_DEVICE_ID")), "device identifier (or PLANTORA_DEVICE_ID)")
	fs.Int64Var(&cfg.ConversationID, "conversation", 0, "existing conversation id (0 starts a new one)")
	fs.StringVar(&cfg.Voice, "voice", "", "assistant voice override")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return callConfig{}, err
	}
	if err := validateCallConfig(cfg); err != nil {
		return callConfig{}, err
	}
	return cfg, nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func validateCallConfig(cfg callConfig) error {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return errors.New("base-url must be a valid absolute URL")
	}
	sock, err := url.Parse(strings.TrimSpace(cfg.SocketURL))
	if err != nil || sock.Host == "" {
		return errors.New("socket-url must be a valid absolute URL")
	}
	switch sock.Scheme {
	case "ws", "wss":
	default:
		return errors.New("socket-url must use ws or wss")
	}
	if cfg.ConversationID < 0 {
		return errors.New("conversation must be >= 0")
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

func runCall(ctx context.Context, cfg callConfig, in io.Reader, out io.Writer) error {
	logger := newLogger(cfg.Verbose)
	client := api.NewClient(cfg.BaseURL,
		api.WithDeviceID(cfg.DeviceID),
		api.WithLogger(logger),
	)

	engine, err := newAudioEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	voiceConfig := voice.DefaultConfig()
	voiceConfig.SocketURL = cfg.SocketURL
	voiceConfig.ConversationID = cfg.ConversationID
	voiceConfig.DeviceID = cfg.DeviceID
	if cfg.Voice != "" {
		voiceConfig.Voice = cfg.Voice
	}

	session := voice.NewCallSession(voiceConfig, voice.Dependencies{
		Tokens:      client,
		Transcripts: client,
		Permission:  engine.checkPermission,
		Capture:     voice.NewCaptureController(newMicDevice(engine)),
		Logger:      logger,
	})

	go pumpEvents(session, engine.speaker, out)

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start call: %w", err)
	}
	defer session.Hangup()

	fmt.Fprintln(out, "Call connected. Press Enter to talk, Enter again to send, /quit to hang up.")

	scanner := bufio.NewScanner(in)
	recording := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "/quit", "/exit":
			return nil
		case "":
			if !recording {
				if err := session.StartRecording(ctx); err != nil {
					fmt.Fprintf(out, "record error: %s\n", errText(err))
					continue
				}
				recording = true
				fmt.Fprintln(out, "[recording, press Enter to send]")
			} else {
				recording = false
				if err := session.Commit(ctx); err != nil {
					fmt.Fprintf(out, "send error: %s\n", errText(err))
					continue
				}
				fmt.Fprintln(out, "[sent]")
			}
		}

		select {
		case <-session.Done():
			return nil
		default:
		}
	}
	return scanner.Err()
}

// pumpEvents renders session events and routes assistant audio to the
// speaker.
func pumpEvents(session *voice.CallSession, sp *speaker, out io.Writer) {
	for {
		select {
		case ev := <-session.Events():
			switch e := ev.(type) {
			case *voice.StateChangedEvent:
				fmt.Fprintf(out, "[%s]\n", e.To)
			case *voice.AudioEvent:
				sp.Play(e.Data)
			case *voice.AssistantTextEvent:
				fmt.Fprint(out, e.Delta)
			case *voice.UserTranscriptEvent:
				fmt.Fprintf(out, "\n[you] %s\n", e.Text)
			case *voice.SpeakingStoppedEvent:
				fmt.Fprintln(out)
			case *voice.CallErrorEvent:
				fmt.Fprintf(out, "\n[error] %s\n", e.Message)
			case *voice.CallEndedEvent:
				fmt.Fprintf(out, "\n[call ended: %s]\n", e.Reason)
			}
		case <-session.Done():
			return
		}
	}
}

func errText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "plantora-call: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseCallConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plantora-call: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCall(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "plantora-call: %v\n", err)
		os.Exit(1)
	}
}
