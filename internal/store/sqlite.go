// Package store provides storage backends for BackendBot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/GTaccount22/BackendBot/internal/models"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists BackendBot data in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetSession retrieves a session by party ID, or (nil, nil) if absent.
func (s *SQLiteStore) GetSession(partyID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT party_id, state, selected_service_id, client_id, assigned_operator, last_message, last_message_at, created_at, updated_at
		FROM sessions WHERE party_id = ?`, partyID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore GetSession not found", "partyID", partyID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "partyID", partyID)
		return nil, fmt.Errorf("failed to get session for %s: %w", partyID, err)
	}
	return sess, nil
}

// SaveSession inserts or updates a session keyed by party ID.
func (s *SQLiteStore) SaveSession(session models.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (party_id, state, selected_service_id, client_id, assigned_operator, last_message, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(party_id) DO UPDATE SET
			state = excluded.state,
			selected_service_id = excluded.selected_service_id,
			client_id = excluded.client_id,
			assigned_operator = excluded.assigned_operator,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			updated_at = excluded.updated_at`,
		session.PartyID, string(session.State), nilIfZeroInt(session.SelectedServiceID),
		nilIfEmpty(session.ClientID), nilIfEmpty(session.AssignedOperator), nilIfEmpty(session.LastMessage),
		nilIfZeroTime(session.LastMessageAt), session.CreatedAt.UTC(), session.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "partyID", session.PartyID)
		return fmt.Errorf("failed to save session for %s: %w", session.PartyID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "partyID", session.PartyID, "state", session.State)
	return nil
}

// ListSessions returns all sessions ordered by most recent message first.
func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT party_id, state, selected_service_id, client_id, assigned_operator, last_message, last_message_at, created_at, updated_at
		FROM sessions ORDER BY last_message_at DESC`)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// CreateClient stores a client; a duplicate phone is a silent no-op so the
// at-least-once channel cannot create two clients for one party.
func (s *SQLiteStore) CreateClient(client models.Client) error {
	_, err := s.db.Exec(`INSERT INTO clients (id, name, phone, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(phone) DO NOTHING`,
		client.ID, client.Name, client.Phone, client.CreatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore CreateClient failed", "error", err, "phone", client.Phone)
		return fmt.Errorf("failed to insert client %s: %w", client.Phone, err)
	}
	slog.Debug("SQLiteStore CreateClient succeeded", "phone", client.Phone)
	return nil
}

// GetClient returns the client with the given ID, or ErrClientNotFound.
func (s *SQLiteStore) GetClient(id string) (*models.Client, error) {
	var c models.Client
	err := s.db.QueryRow(`SELECT id, name, phone, created_at FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrClientNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetClient failed", "error", err, "clientID", id)
		return nil, fmt.Errorf("failed to get client %s: %w", id, err)
	}
	return &c, nil
}

// GetClientByPhone returns the client with the given phone, or (nil, nil).
func (s *SQLiteStore) GetClientByPhone(phone string) (*models.Client, error) {
	var c models.Client
	err := s.db.QueryRow(`SELECT id, name, phone, created_at FROM clients WHERE phone = ?`, phone).
		Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetClientByPhone failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to get client %s: %w", phone, err)
	}
	return &c, nil
}

// ListServices returns the catalog in stable ID order.
func (s *SQLiteStore) ListServices() ([]models.Service, error) {
	rows, err := s.db.Query(`SELECT id, name, price, COALESCE(description, '') FROM services ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListServices query failed", "error", err)
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Price, &svc.Description); err != nil {
			slog.Error("SQLiteStore ListServices scan failed", "error", err)
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
func (s *SQLiteStore) SeedServices(services []models.Service) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM services`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count services: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, svc := range services {
		if _, err := s.db.Exec(`INSERT INTO services (name, price, description) VALUES (?, ?, ?)`,
			svc.Name, svc.Price, nilIfEmpty(svc.Description)); err != nil {
			slog.Error("SQLiteStore SeedServices insert failed", "error", err, "name", svc.Name)
			return fmt.Errorf("failed to seed service %s: %w", svc.Name, err)
		}
	}
	slog.Info("SQLiteStore seeded service catalog", "count", len(services))
	return nil
}

// CreateBooking inserts a booking; the partial unique index on
// (service_id, starts_at) WHERE status='pending' makes the availability
// check and the insert one atomic step. A conflict is reported as
// models.ErrSlotTaken.
func (s *SQLiteStore) CreateBooking(booking models.Booking) error {
	_, err := s.db.Exec(`INSERT INTO bookings (id, client_id, service_id, starts_at, status, reminder_sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.ClientID, booking.ServiceID, booking.StartsAt.UTC(),
		string(booking.Status), booking.ReminderSent, booking.CreatedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			slog.Info("SQLiteStore CreateBooking slot taken", "serviceID", booking.ServiceID, "startsAt", booking.StartsAt)
			return models.ErrSlotTaken
		}
		slog.Error("SQLiteStore CreateBooking failed", "error", err, "serviceID", booking.ServiceID)
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	slog.Debug("SQLiteStore CreateBooking succeeded", "bookingID", booking.ID, "serviceID", booking.ServiceID, "startsAt", booking.StartsAt)
	return nil
}

// ListBookings returns all bookings ordered by start time.
func (s *SQLiteStore) ListBookings() ([]models.Booking, error) {
	rows, err := s.db.Query(`SELECT id, client_id, service_id, starts_at, status, reminder_sent, created_at
		FROM bookings ORDER BY starts_at`)
	if err != nil {
		slog.Error("SQLiteStore ListBookings query failed", "error", err)
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// ListPendingBookingsBetween returns pending bookings starting in [from, to)
// with no reminder sent yet.
func (s *SQLiteStore) ListPendingBookingsBetween(from, to time.Time) ([]models.Booking, error) {
	rows, err := s.db.Query(`SELECT id, client_id, service_id, starts_at, status, reminder_sent, created_at
		FROM bookings WHERE status = 'pending' AND reminder_sent = 0 AND starts_at >= ? AND starts_at < ?
		ORDER BY starts_at`, from.UTC(), to.UTC())
	if err != nil {
		slog.Error("SQLiteStore ListPendingBookingsBetween query failed", "error", err)
		return nil, fmt.Errorf("failed to query due bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// MarkReminderSent flags a booking as reminded.
func (s *SQLiteStore) MarkReminderSent(bookingID string) error {
	res, err := s.db.Exec(`UPDATE bookings SET reminder_sent = 1 WHERE id = ?`, bookingID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent for %s: %w", bookingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrBookingNotFound
	}
	return nil
}

// UpdateBookingStatus changes a booking's status.
func (s *SQLiteStore) UpdateBookingStatus(bookingID string, status models.BookingStatus) error {
	if !models.IsValidBookingStatus(status) {
		return fmt.Errorf("invalid booking status %q", status)
	}
	res, err := s.db.Exec(`UPDATE bookings SET status = ? WHERE id = ?`, string(status), bookingID)
	if err != nil {
		slog.Error("SQLiteStore UpdateBookingStatus failed", "error", err, "bookingID", bookingID)
		return fmt.Errorf("failed to update booking %s: %w", bookingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrBookingNotFound
	}
	slog.Debug("SQLiteStore UpdateBookingStatus succeeded", "bookingID", bookingID, "status", status)
	return nil
}

// AddMessage appends a message to the conversation log.
func (s *SQLiteStore) AddMessage(msg models.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (id, party_id, direction, body, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.PartyID, string(msg.Direction), msg.Body, msg.Timestamp.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddMessage failed", "error", err, "partyID", msg.PartyID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.PartyID, err)
	}
	return nil
}

// ListMessages returns up to limit most recent messages for a party in
// chronological order. A limit of 0 returns everything.
func (s *SQLiteStore) ListMessages(partyID string, limit int) ([]models.Message, error) {
	query := `SELECT id, party_id, direction, body, timestamp FROM messages WHERE party_id = ? ORDER BY timestamp`
	args := []interface{}{partyID}
	if limit > 0 {
		query = `SELECT id, party_id, direction, body, timestamp FROM (
			SELECT id, party_id, direction, body, timestamp FROM messages
			WHERE party_id = ? ORDER BY timestamp DESC LIMIT ?) ORDER BY timestamp`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "partyID", partyID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", partyID, err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
