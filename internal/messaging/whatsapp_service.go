package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/GTaccount22/BackendBot/internal/whatsapp"
)

// responseBufferSize bounds the inbound event buffer shared by all services.
const responseBufferSize = 100

// WhatsAppService adapts the whatsmeow-backed client to the Service
// interface, surfacing incoming direct messages on the Responses channel.
type WhatsAppService struct {
	client    *whatsapp.Client
	responses chan models.Response
	mu        sync.Mutex
	stopped   bool
}

// NewWhatsAppService creates a messaging service over a connected WhatsApp client.
func NewWhatsAppService(client *whatsapp.Client) *WhatsAppService {
	return &WhatsAppService{
		client:    client,
		responses: make(chan models.Response, responseBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient reduces a recipient to bare digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendMessage sends a text message through the WhatsApp client.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, body)
}

// Start subscribes to incoming text events.
func (s *WhatsAppService) Start(ctx context.Context) error {
	s.client.OnIncomingText(func(from, body string, ts time.Time) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stopped {
			slog.Warn("WhatsAppService stopped, dropping message", "from", from)
			return
		}
		select {
		case s.responses <- models.Response{From: from, Body: body, Time: ts.Unix()}:
		default:
			slog.Warn("WhatsAppService responses buffer full, dropping message", "from", from)
		}
	})
	slog.Info("WhatsAppService started")
	return nil
}

// Stop disconnects from the WhatsApp servers. Safe to call more than once;
// event handler deliveries racing Stop are dropped rather than sent on a
// closed channel.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.client.Disconnect()
	close(s.responses)
	return nil
}

// Responses returns the channel of incoming party messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}
