package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio WhatsApp service.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string // WhatsApp number in "whatsapp:+1234567890" format
}

// TwilioOption defines a configuration option for the Twilio WhatsApp service.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromWhats sets the sending WhatsApp number.
func WithFromWhats(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromWhats = from }
}

// TwilioService sends messages through the Twilio WhatsApp REST API.
// Inbound messages arrive over the Twilio webhook HTTP surface, which
// feeds them in via Push.
type TwilioService struct {
	client    *twilio.RestClient
	fromWhats string
	responses chan models.Response
	mu        sync.Mutex
	stopped   bool
}

// NewTwilioService creates a Twilio WhatsApp service, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables when the options do not provide credentials.
func NewTwilioService(opts ...TwilioOption) (*TwilioService, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("TwilioService config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioService{
		client:    client,
		fromWhats: cfg.FromWhats,
		responses: make(chan models.Response, responseBufferSize),
	}, nil
}

// ValidateAndCanonicalizeRecipient reduces a recipient to bare digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage sends a WhatsApp message through the Twilio REST API.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonical)
	params.SetFrom(s.fromWhats)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioService SendMessage failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}

	slog.Debug("TwilioService message sent", "to", canonical)
	return nil
}

// Push feeds an inbound webhook message into the Responses channel. The
// sender may carry Twilio's "whatsapp:+" prefix; it is canonicalized here
// so party IDs stay uniform across channels.
func (s *TwilioService) Push(from, body string, ts time.Time) {
	canonical, err := canonicalizePhone(from)
	if err != nil {
		slog.Warn("TwilioService dropping message with invalid sender", "from", from, "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		slog.Warn("TwilioService stopped, dropping message", "from", canonical)
		return
	}
	select {
	case s.responses <- models.Response{From: canonical, Body: body, Time: ts.Unix()}:
	default:
		slog.Warn("TwilioService responses buffer full, dropping message", "from", canonical)
	}
}

// Start is a no-op: inbound delivery happens via the webhook HTTP surface.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Info("TwilioService started")
	return nil
}

// Stop closes the responses channel. Safe to call more than once; Push
// calls racing Stop are dropped rather than sent on a closed channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.responses)
	return nil
}

// Responses returns the channel of incoming party messages.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}
