// voxbridge answers phone calls and bridges them to a realtime
// speech-to-speech model, one process-wide server handling many concurrent
// calls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxbridge/voxbridge/internal/log"
	"github.com/voxbridge/voxbridge/pkg/bridge"
	"github.com/voxbridge/voxbridge/pkg/knowledge"
	"github.com/voxbridge/voxbridge/pkg/realtime"
	"github.com/voxbridge/voxbridge/pkg/server"
)

func main() {
	// Optional; env vars win over .env values already set.
	_ = godotenv.Load()

	var (
		port         = flag.String("port", envOr("PORT", "8080"), "HTTP listen port")
		publicHost   = flag.String("public-host", os.Getenv("PUBLIC_HOST"), "externally reachable hostname (no scheme)")
		model        = flag.String("model", os.Getenv("OPENAI_REALTIME_MODEL"), "realtime model override")
		voice        = flag.String("voice", envOr("AGENT_VOICE", realtime.DefaultVoice), "agent voice")
		instructions = flag.String("instructions", os.Getenv("AGENT_INSTRUCTIONS"), "agent prompt")
		welcome      = flag.String("welcome", os.Getenv("AGENT_WELCOME"), "greeting spoken when the call connects")
		greeting     = flag.String("greeting", os.Getenv("CALL_GREETING"), "TwiML <Say> before the stream connects")
		idleTimeout  = flag.Duration("idle-timeout", 90*time.Second, "hang up after this long without caller audio")
		dial         = flag.String("dial", "", "place an outbound call to this number on startup")
		logLevel     = flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	)
	flag.Parse()

	log.Init(*logLevel)
	logger := log.L()

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		// The server still starts: the webhook answers and callers get a
		// clean policy close instead of a connection refused.
		logger.Warn("OPENAI_API_KEY not set, calls will be refused")
	}
	if *publicHost == "" {
		logger.Warn("PUBLIC_HOST not set, TwiML stream URLs will be unusable")
	}

	session := realtime.SessionOptions{
		Instructions:   *instructions,
		Voice:          *voice,
		WelcomeMessage: *welcome,
	}

	dispatcherOpts := []bridge.DispatcherOption{
		bridge.WithDispatcherLogger(logger),
	}
	if kbURL := os.Getenv("KNOWLEDGE_BASE_URL"); kbURL != "" {
		retriever := knowledge.NewHTTPRetriever(kbURL,
			knowledge.WithAPIKey(os.Getenv("KNOWLEDGE_BASE_KEY")),
			knowledge.WithLogger(logger),
		)
		dispatcherOpts = append(dispatcherOpts, bridge.WithRetriever(retriever))
		session.KnowledgeSourceIDs = splitList(os.Getenv("KNOWLEDGE_SOURCE_IDS"))
		session.Tools = append(session.Tools, realtime.Tool{Type: realtime.ToolTypeFileSearch})
	}

	srv := server.New(server.Config{
		Port:         *port,
		PublicHost:   *publicHost,
		OpenAIKey:    openAIKey,
		Model:        *model,
		ErrorMessage: envOr("AGENT_ERROR_MESSAGE", "I'm sorry, I'm having trouble right now. Could you say that again?"),
		Greeting:     *greeting,
		Session:      session,
		IdleTimeout:  *idleTimeout,
		Dispatcher:   bridge.NewDispatcher(dispatcherOpts...),
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	if *dial != "" {
		if err := placeCall(srv, *dial, *publicHost); err != nil {
			logger.Error("outbound call failed", "to", *dial, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down", "active_calls", srv.Registry().Count())
		if err := srv.Shutdown(); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}
}

func placeCall(srv *server.Server, to, publicHost string) error {
	dialer, err := server.NewDialer(server.DialerConfig{
		AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		From:       os.Getenv("TWILIO_FROM_NUMBER"),
		PublicHost: publicHost,
		Logger:     log.L(),
	})
	if err != nil {
		return err
	}
	if !strings.HasPrefix(to, "+") {
		return fmt.Errorf("number must be E.164: %s", to)
	}
	_, err = dialer.Call(to)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma-separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
