// Package messaging provides the message channel abstraction for BackendBot.
//
// A Service delivers outbound text to a party and surfaces inbound party
// messages on a channel; implementations exist for the WhatsApp multidevice
// protocol (whatsmeow), the Meta WhatsApp Cloud API and Twilio.
package messaging

import (
	"context"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. This allows each service to implement its own
	// recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., event subscriptions).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming party messages.
	Responses() <-chan models.Response
}
