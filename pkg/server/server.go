// Package server exposes the bridge over HTTP: the TwiML webhook that
// points an answered call at the media stream endpoint, the media stream
// WebSocket itself, and health and status routes.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/twilio/twilio-go/twiml"

	"github.com/voxbridge/voxbridge/pkg/bridge"
	"github.com/voxbridge/voxbridge/pkg/realtime"
	"github.com/voxbridge/voxbridge/pkg/telephony"
)

// Config holds server configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// PublicHost is the externally reachable hostname the telephony
	// provider connects back to, without scheme.
	PublicHost string

	// OpenAIKey is the model credential. When empty, inbound media stream
	// connections are refused with a policy violation close; the model
	// endpoint is never dialed.
	OpenAIKey string

	// Model overrides the default realtime model.
	Model string

	// ErrorMessage is spoken to the caller when the model reports an error.
	ErrorMessage string

	// Greeting is read to the caller by the webhook before the stream
	// connects. Optional.
	Greeting string

	// Session is the per-call model session configuration.
	Session realtime.SessionOptions

	// IdleTimeout ends calls with no caller media.
	IdleTimeout time.Duration

	// Dispatcher answers the model's function calls.
	Dispatcher *bridge.Dispatcher

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Server hosts the voice bridge endpoints.
type Server struct {
	app      *fiber.App
	cfg      Config
	registry *bridge.Registry
	logger   *slog.Logger
}

// New creates the server and mounts its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		registry: bridge.NewRegistry(),
		logger:   cfg.Logger.With("component", "server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxbridge",
		DisableStartupMessage: true,
	})

	app.Get("/healthz", s.handleHealth)
	app.Get("/status", s.handleStatus)
	app.Post("/voice/inbound", s.handleInboundCall)

	app.Use("/media-stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/media-stream", websocket.New(s.handleMediaStream))

	s.app = app
	return s
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Registry returns the active call registry.
func (s *Server) Registry() *bridge.Registry {
	return s.registry
}

// Listen serves until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info("listening", "port", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Shutdown stops accepting connections, asks every active call to end, and
// waits for the calls to drain.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.registry.CloseAll()
	s.registry.Wait()
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"activeCalls": s.registry.Count(),
		"calls":       s.registry.Snapshots(),
	})
}

// handleInboundCall answers the provider's call webhook with TwiML that
// connects the call's audio to the media stream endpoint.
func (s *Server) handleInboundCall(c *fiber.Ctx) error {
	s.logger.Info("inbound call",
		"from", c.FormValue("From"), "call_sid", c.FormValue("CallSid"))

	doc, err := s.buildConnectTwiML()
	if err != nil {
		s.logger.Error("twiml generation failed", "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextXML)
	return c.SendString(doc)
}

func (s *Server) buildConnectTwiML() (string, error) {
	var elements []twiml.Element
	if s.cfg.Greeting != "" {
		elements = append(elements, &twiml.VoiceSay{Message: s.cfg.Greeting})
	}
	elements = append(elements, &twiml.VoiceConnect{
		InnerElements: []twiml.Element{
			&twiml.VoiceStream{Url: "wss://" + s.cfg.PublicHost + "/media-stream"},
		},
	})
	return twiml.Voice(elements)
}

// handleMediaStream owns one call from WebSocket accept to hangup. The
// handler blocks for the call's duration; fiber runs it on its own
// goroutine.
func (s *Server) handleMediaStream(c *websocket.Conn) {
	tel := telephony.NewConn(c, s.logger)

	// No credential, no call. The provider gets a policy close instead of
	// a silent line; the model endpoint is never dialed.
	if s.cfg.OpenAIKey == "" {
		s.logger.Error("rejecting media stream, model credential missing")
		_ = tel.ClosePolicyViolation("service not configured")
		return
	}

	opts := []realtime.Option{
		realtime.WithAPIKey(s.cfg.OpenAIKey),
		realtime.WithLogger(s.cfg.Logger),
	}
	if s.cfg.Model != "" {
		opts = append(opts, realtime.WithModel(s.cfg.Model))
	}
	if s.cfg.ErrorMessage != "" {
		opts = append(opts, realtime.WithErrorMessage(s.cfg.ErrorMessage))
	}

	model, err := realtime.NewClient(opts...)
	if err != nil {
		s.logger.Error("model client setup failed", "error", err)
		_ = tel.ClosePolicyViolation("service not configured")
		return
	}

	b := bridge.New(tel, model,
		bridge.WithSession(s.cfg.Session),
		bridge.WithIdleTimeout(s.cfg.IdleTimeout),
		bridge.WithDispatcher(s.cfg.Dispatcher),
		bridge.WithRegistry(s.registry),
		bridge.WithBridgeLogger(s.cfg.Logger),
		bridge.WithTranscripts(func(role, text string, isFinal bool) {
			if isFinal {
				s.logger.Info("transcript", "role", role, "text", text)
			}
		}),
	)

	if err := b.Run(context.Background()); err != nil {
		s.logger.Warn("call ended with error", "bridge_id", b.ID(), "error", err)
		return
	}
	s.logger.Info("call ended", "bridge_id", b.ID())
}
