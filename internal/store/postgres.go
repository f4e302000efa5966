// Package store provides storage backends for BackendBot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists BackendBot data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetSession retrieves a session by party ID, or (nil, nil) if absent.
func (s *PostgresStore) GetSession(partyID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT party_id, state, selected_service_id, client_id, assigned_operator, last_message, last_message_at, created_at, updated_at
		FROM sessions WHERE party_id = $1`, partyID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore GetSession not found", "partyID", partyID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "partyID", partyID)
		return nil, fmt.Errorf("failed to get session for %s: %w", partyID, err)
	}
	return sess, nil
}

// SaveSession inserts or updates a session keyed by party ID.
func (s *PostgresStore) SaveSession(session models.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (party_id, state, selected_service_id, client_id, assigned_operator, last_message, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (party_id) DO UPDATE SET
			state = EXCLUDED.state,
			selected_service_id = EXCLUDED.selected_service_id,
			client_id = EXCLUDED.client_id,
			assigned_operator = EXCLUDED.assigned_operator,
			last_message = EXCLUDED.last_message,
			last_message_at = EXCLUDED.last_message_at,
			updated_at = EXCLUDED.updated_at`,
		session.PartyID, string(session.State), nilIfZeroInt(session.SelectedServiceID),
		nilIfEmpty(session.ClientID), nilIfEmpty(session.AssignedOperator), nilIfEmpty(session.LastMessage),
		nilIfZeroTime(session.LastMessageAt), session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "partyID", session.PartyID)
		return fmt.Errorf("failed to save session for %s: %w", session.PartyID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "partyID", session.PartyID, "state", session.State)
	return nil
}

// ListSessions returns all sessions ordered by most recent message first.
func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT party_id, state, selected_service_id, client_id, assigned_operator, last_message, last_message_at, created_at, updated_at
		FROM sessions ORDER BY last_message_at DESC NULLS LAST`)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// CreateClient stores a client; a duplicate phone is a silent no-op.
func (s *PostgresStore) CreateClient(client models.Client) error {
	_, err := s.db.Exec(`INSERT INTO clients (id, name, phone, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (phone) DO NOTHING`,
		client.ID, client.Name, client.Phone, client.CreatedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore CreateClient failed", "error", err, "phone", client.Phone)
		return fmt.Errorf("failed to insert client %s: %w", client.Phone, err)
	}
	slog.Debug("PostgresStore CreateClient succeeded", "phone", client.Phone)
	return nil
}

// GetClient returns the client with the given ID, or ErrClientNotFound.
func (s *PostgresStore) GetClient(id string) (*models.Client, error) {
	var c models.Client
	err := s.db.QueryRow(`SELECT id, name, phone, created_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrClientNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetClient failed", "error", err, "clientID", id)
		return nil, fmt.Errorf("failed to get client %s: %w", id, err)
	}
	return &c, nil
}

// GetClientByPhone returns the client with the given phone, or (nil, nil).
func (s *PostgresStore) GetClientByPhone(phone string) (*models.Client, error) {
	var c models.Client
	err := s.db.QueryRow(`SELECT id, name, phone, created_at FROM clients WHERE phone = $1`, phone).
		Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetClientByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get client %s: %w", phone, err)
	}
	return &c, nil
}

// ListServices returns the catalog in stable ID order.
func (s *PostgresStore) ListServices() ([]models.Service, error) {
	rows, err := s.db.Query(`SELECT id, name, price, COALESCE(description, '') FROM services ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListServices query failed", "error", err)
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Price, &svc.Description); err != nil {
			slog.Error("PostgresStore ListServices scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan service row: %w", err)
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate service rows: %w", err)
	}
	return services, nil
}

// SeedServices loads the catalog if it is empty.
func (s *PostgresStore) SeedServices(services []models.Service) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM services`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count services: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, svc := range services {
		if _, err := s.db.Exec(`INSERT INTO services (name, price, description) VALUES ($1, $2, $3)`,
			svc.Name, svc.Price, nilIfEmpty(svc.Description)); err != nil {
			slog.Error("PostgresStore SeedServices insert failed", "error", err, "name", svc.Name)
			return fmt.Errorf("failed to seed service %s: %w", svc.Name, err)
		}
	}
	slog.Info("PostgresStore seeded service catalog", "count", len(services))
	return nil
}

// CreateBooking inserts a booking. The partial unique index on
// (service_id, starts_at) WHERE status='pending' serializes concurrent
// attempts on the same slot; the loser gets models.ErrSlotTaken.
func (s *PostgresStore) CreateBooking(booking models.Booking) error {
	_, err := s.db.Exec(`INSERT INTO bookings (id, client_id, service_id, starts_at, status, reminder_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		booking.ID, booking.ClientID, booking.ServiceID, booking.StartsAt.UTC(),
		string(booking.Status), booking.ReminderSent, booking.CreatedAt.UTC())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			slog.Info("PostgresStore CreateBooking slot taken", "serviceID", booking.ServiceID, "startsAt", booking.StartsAt)
			return models.ErrSlotTaken
		}
		slog.Error("PostgresStore CreateBooking failed", "error", err, "serviceID", booking.ServiceID)
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	slog.Debug("PostgresStore CreateBooking succeeded", "bookingID", booking.ID, "serviceID", booking.ServiceID, "startsAt", booking.StartsAt)
	return nil
}

// ListBookings returns all bookings ordered by start time.
func (s *PostgresStore) ListBookings() ([]models.Booking, error) {
	rows, err := s.db.Query(`SELECT id, client_id, service_id, starts_at, status, reminder_sent, created_at
		FROM bookings ORDER BY starts_at`)
	if err != nil {
		slog.Error("PostgresStore ListBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// ListPendingBookingsBetween returns pending bookings starting in [from, to)
// with no reminder sent yet.
func (s *PostgresStore) ListPendingBookingsBetween(from, to time.Time) ([]models.Booking, error) {
	rows, err := s.db.Query(`SELECT id, client_id, service_id, starts_at, status, reminder_sent, created_at
		FROM bookings WHERE status = 'pending' AND reminder_sent = FALSE AND starts_at >= $1 AND starts_at < $2
		ORDER BY starts_at`, from.UTC(), to.UTC())
	if err != nil {
		slog.Error("PostgresStore ListPendingBookingsBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query due bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// MarkReminderSent flags a booking as reminded.
func (s *PostgresStore) MarkReminderSent(bookingID string) error {
	res, err := s.db.Exec(`UPDATE bookings SET reminder_sent = TRUE WHERE id = $1`, bookingID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent for %s: %w", bookingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

// UpdateBookingStatus changes a booking's status.
func (s *PostgresStore) UpdateBookingStatus(bookingID string, status models.BookingStatus) error {
	if !models.IsValidBookingStatus(status) {
		return fmt.Errorf("invalid booking status %q", status)
	}
	res, err := s.db.Exec(`UPDATE bookings SET status = $1 WHERE id = $2`, string(status), bookingID)
	if err != nil {
		slog.Error("PostgresStore UpdateBookingStatus failed", "error", err, "bookingID", bookingID)
		return fmt.Errorf("failed to update booking %s: %w", bookingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrBookingNotFound
	}
	slog.Debug("PostgresStore UpdateBookingStatus succeeded", "bookingID", bookingID, "status", status)
	return nil
}

// AddMessage appends a message to the conversation log.
func (s *PostgresStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (id, party_id, direction, body, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.PartyID, string(msg.Direction), msg.Body, msg.Timestamp.UTC())
	if err != nil {
		slog.Error("PostgresStore AddMessage failed", "error", err, "partyID", msg.PartyID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.PartyID, err)
	}
	return nil
}

// ListMessages returns up to limit most recent messages for a party in
// chronological order. A limit of 0 returns everything.
func (s *PostgresStore) ListMessages(partyID string, limit int) ([]models.Message, error) {
	query := `SELECT id, party_id, direction, body, timestamp FROM messages WHERE party_id = $1 ORDER BY timestamp`
	args := []interface{}{partyID}
	if limit > 0 {
		query = `SELECT id, party_id, direction, body, timestamp FROM (
			SELECT id, party_id, direction, body, timestamp FROM messages
			WHERE party_id = $1 ORDER BY timestamp DESC LIMIT $2) recent ORDER BY timestamp`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "partyID", partyID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", partyID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
