package realtime

import (
	"log/slog"
	"time"
)

const (
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultModel   = "gpt-4o-realtime-preview-2024-12-17"
)

// Config holds configuration for the realtime client.
type Config struct {
	// APIKey is the authentication key for the realtime API.
	APIKey string

	// Model is the speech-to-speech model to use.
	Model string

	// BaseURL overrides the default API endpoint. Used by tests to point
	// the client at a scripted server.
	BaseURL string

	// ErrorMessage, when set, is spoken to the caller after the API reports
	// an error, instead of leaving silence on the line.
	ErrorMessage string

	// Timeout is the connection handshake timeout.
	Timeout time.Duration

	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration

	// PingInterval is how often keepalive pings are sent. Zero disables
	// the pinger.
	PingInterval time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model:        defaultModel,
		BaseURL:      defaultBaseURL,
		Timeout:      10 * time.Second,
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the speech-to-speech model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithErrorMessage sets the spoken fallback used when the API reports an
// error mid-call.
func WithErrorMessage(msg string) Option {
	return func(c *Config) {
		c.ErrorMessage = msg
	}
}

// WithTimeout sets the connection handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithReadTimeout sets the read deadline applied per message.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithPingInterval sets the keepalive ping interval.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
