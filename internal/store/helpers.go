package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroInt returns nil if v is zero, otherwise returns v.
func nilIfZeroInt(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

// nilIfZeroTime returns nil if t is the zero time, otherwise returns t in UTC.
func nilIfZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// scanSession scans a Session from a single sql.Row.
func scanSession(row *sql.Row) (*models.Session, error) {
	var sess models.Session
	var state string
	var serviceID sql.NullInt64
	var clientID, operator, lastMsg sql.NullString
	var lastMsgAt sql.NullTime
	err := row.Scan(&sess.PartyID, &state, &serviceID, &clientID, &operator, &lastMsg, &lastMsgAt, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.State = models.SessionState(state)
	sess.SelectedServiceID = serviceID.Int64
	sess.ClientID = clientID.String
	sess.AssignedOperator = operator.String
	sess.LastMessage = lastMsg.String
	if lastMsgAt.Valid {
		sess.LastMessageAt = lastMsgAt.Time
	}
	return &sess, nil
}

// collectSessions scans all sessions from sql.Rows.
func collectSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		var state string
		var serviceID sql.NullInt64
		var clientID, operator, lastMsg sql.NullString
		var lastMsgAt sql.NullTime
		err := rows.Scan(&sess.PartyID, &state, &serviceID, &clientID, &operator, &lastMsg, &lastMsgAt, &sess.CreatedAt, &sess.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sess.State = models.SessionState(state)
		sess.SelectedServiceID = serviceID.Int64
		sess.ClientID = clientID.String
		sess.AssignedOperator = operator.String
		sess.LastMessage = lastMsg.String
		if lastMsgAt.Valid {
			sess.LastMessageAt = lastMsgAt.Time
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// collectBookings scans all bookings from sql.Rows.
func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		var b models.Booking
		var status string
		if err := rows.Scan(&b.ID, &b.ClientID, &b.ServiceID, &b.StartsAt, &status, &b.ReminderSent, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		b.Status = models.BookingStatus(status)
		b.StartsAt = b.StartsAt.UTC()
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booking rows: %w", err)
	}
	return bookings, nil
}

// collectMessages scans all messages from sql.Rows.
func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var direction string
		if err := rows.Scan(&m.ID, &m.PartyID, &direction, &m.Body, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.Direction = models.MessageDirection(direction)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return msgs, nil
}
