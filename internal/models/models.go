// Package models defines the core data structures for BackendBot.
//
// It includes the session, client, service and booking types shared across
// modules, plus the sentinel errors used to classify dialogue and storage
// failures.
package models

import (
	"errors"
	"time"
)

// SessionState identifies where a conversation is in the booking dialogue.
type SessionState string

const (
	// StateNone means the party has never been greeted.
	StateNone SessionState = "NONE"
	// StateAwaitingName means the greeting was sent and we expect a name.
	StateAwaitingName SessionState = "AWAITING_NAME"
	// StateShowingServices means the service menu was sent and we expect a selection.
	StateShowingServices SessionState = "SHOWING_SERVICES"
	// StateAwaitingDate means a service was selected and we expect a date.
	StateAwaitingDate SessionState = "AWAITING_DATE"
)

// IsValidSessionState checks if the given session state is one of the closed set.
func IsValidSessionState(s SessionState) bool {
	switch s {
	case StateNone, StateAwaitingName, StateShowingServices, StateAwaitingDate:
		return true
	default:
		return false
	}
}

// Validation constants for dialogue input.
const (
	// MinClientNameLength is the minimum accepted length for a client name after trimming.
	MinClientNameLength = 2
	// MaxMessageBodyLength caps stored message bodies.
	MaxMessageBodyLength = 4096
)

// Sentinel errors shared across the engine, interpreter and stores.
var (
	ErrSlotTaken       = errors.New("slot already has a pending booking")
	ErrUnparseableDate = errors.New("could not interpret date")
	ErrNotFuture       = errors.New("date is not in the future")
	ErrOutOfHours      = errors.New("date is outside business hours")
	ErrSessionNotFound = errors.New("session not found")
	ErrClientNotFound  = errors.New("client not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrEmptyCatalog    = errors.New("service catalog is empty")
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
)

// Session is the per-party persistent dialogue state.
//
// PartyID is the stable external identifier (the WhatsApp number) and the
// primary lookup key. AssignedOperator belongs to the console and must
// survive engine updates untouched.
type Session struct {
	PartyID           string       `json:"party_id"`
	State             SessionState `json:"state"`
	SelectedServiceID int64        `json:"selected_service_id,omitempty"`
	ClientID          string       `json:"client_id,omitempty"`
	AssignedOperator  string       `json:"assigned_operator,omitempty"`
	LastMessage       string       `json:"last_message,omitempty"`
	LastMessageAt     time.Time    `json:"last_message_at,omitzero"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Client is a person who has completed name collection. Phone is unique and
// equals the session PartyID.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is a bookable catalog entry. The catalog is read-only to the
// dialogue engine; its ordering defines the menu numbering.
type Service struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// BookingStatus represents the lifecycle state of a booking.
type BookingStatus string

const (
	// BookingStatusPending indicates a confirmed future appointment.
	BookingStatusPending BookingStatus = "pending"
	// BookingStatusCancelled indicates the appointment was cancelled.
	BookingStatusCancelled BookingStatus = "cancelled"
	// BookingStatusCompleted indicates the appointment took place.
	BookingStatusCompleted BookingStatus = "completed"
)

// IsValidBookingStatus checks if the given booking status is supported.
func IsValidBookingStatus(s BookingStatus) bool {
	switch s {
	case BookingStatusPending, BookingStatusCancelled, BookingStatusCompleted:
		return true
	default:
		return false
	}
}

// Booking occupies a slot: one (service, instant) pair per pending booking.
// StartsAt is an absolute instant, stored in UTC.
type Booking struct {
	ID           string        `json:"id"`
	ClientID     string        `json:"client_id"`
	ServiceID    int64         `json:"service_id"`
	StartsAt     time.Time     `json:"starts_at"`
	Status       BookingStatus `json:"status"`
	ReminderSent bool          `json:"reminder_sent,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// MessageDirection distinguishes inbound party messages from outbound replies.
type MessageDirection string

const (
	// DirectionIncoming is a message received from the party.
	DirectionIncoming MessageDirection = "incoming"
	// DirectionOutgoing is a message sent to the party.
	DirectionOutgoing MessageDirection = "outgoing"
)

// Message is one logged conversation message, kept for the operator console.
type Message struct {
	ID        string           `json:"id"`
	PartyID   string           `json:"party_id"`
	Direction MessageDirection `json:"direction"`
	Body      string           `json:"body"`
	Timestamp time.Time        `json:"timestamp"`
}

// Response represents an incoming message event from a message channel.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// ConsoleEvent is the payload fanned out to operator console subscribers
// after every inbound or outbound message.
type ConsoleEvent struct {
	PartyID   string           `json:"party_id"`
	Text      string           `json:"text"`
	Direction MessageDirection `json:"direction"`
	Operator  string           `json:"operator,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and
// optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
