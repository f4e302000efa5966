// Package store provides storage backends for BackendBot.
//
// It persists sessions, clients, the service catalog, bookings and the
// conversation message log. Backends exist for PostgreSQL, SQLite and
// memory; all of them enforce the one-pending-booking-per-slot guarantee.
package store

import (
	"strings"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// Store is the persistence contract the dialogue engine and the API depend on.
//
// GetSession and GetClientByPhone return (nil, nil) when the row does not
// exist, because absence drives a normal dialogue transition there.
// GetClient reports a missing row as models.ErrClientNotFound. CreateBooking
// performs the availability check and the insert as one atomic step and
// reports a conflicting slot as models.ErrSlotTaken.
type Store interface {
	// Sessions
	GetSession(partyID string) (*models.Session, error)
	SaveSession(session models.Session) error
	ListSessions() ([]models.Session, error)

	// Clients
	CreateClient(client models.Client) error
	GetClient(id string) (*models.Client, error)
	GetClientByPhone(phone string) (*models.Client, error)

	// Services
	ListServices() ([]models.Service, error)
	SeedServices(services []models.Service) error

	// Bookings
	CreateBooking(booking models.Booking) error
	ListBookings() ([]models.Booking, error)
	ListPendingBookingsBetween(from, to time.Time) ([]models.Booking, error)
	MarkReminderSent(bookingID string) error
	UpdateBookingStatus(bookingID string, status models.BookingStatus) error

	// Message log
	AddMessage(msg models.Message) error
	ListMessages(partyID string, limit int) ([]models.Message, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string (Postgres URL or SQLite file path)
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its shape.
// Anything that is not recognizably a Postgres URL or key/value DSN is
// treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
