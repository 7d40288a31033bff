package server

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// ErrDialerNotConfigured indicates outbound calling credentials are missing.
var ErrDialerNotConfigured = errors.New("server: outbound dialer not configured")

// Dialer places outbound calls that connect to the media stream endpoint,
// so the agent can call out as well as answer.
type Dialer struct {
	client     *twilio.RestClient
	from       string
	publicHost string
	logger     *slog.Logger
}

// DialerConfig holds outbound calling configuration.
type DialerConfig struct {
	// AccountSID and AuthToken authenticate with the telephony provider.
	AccountSID string
	AuthToken  string

	// From is the provisioned caller number, E.164.
	From string

	// PublicHost is the externally reachable hostname for the media stream.
	PublicHost string

	// Logger is the structured logger.
	Logger *slog.Logger
}

// NewDialer creates an outbound dialer. Returns ErrDialerNotConfigured when
// credentials are incomplete, so deployments without outbound calling keep
// working.
func NewDialer(cfg DialerConfig) (*Dialer, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, ErrDialerNotConfigured
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &Dialer{
		client:     client,
		from:       cfg.From,
		publicHost: cfg.PublicHost,
		logger:     cfg.Logger.With("component", "dialer"),
	}, nil
}

// Call dials the given number and bridges the answered call onto the media
// stream endpoint. Returns the provider's call SID.
func (d *Dialer) Call(to string) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceConnect{
			InnerElements: []twiml.Element{
				&twiml.VoiceStream{Url: "wss://" + d.publicHost + "/media-stream"},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("server: build outbound twiml: %w", err)
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.from)
	params.SetTwiml(doc)

	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("server: create call: %w", err)
	}

	callSID := ""
	if resp.Sid != nil {
		callSID = *resp.Sid
	}
	d.logger.Info("outbound call placed", "to", to, "call_sid", callSID)
	return callSID, nil
}
