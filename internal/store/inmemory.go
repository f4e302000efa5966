// Package store provides storage backends for BackendBot.
//
// This file implements an in-memory store used for tests and for running
// without a database DSN.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// InMemoryStore keeps all state in process memory behind one mutex.
// The shared mutex is what makes CreateBooking's check+insert atomic.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	clients  map[string]models.Client // keyed by phone
	services []models.Service
	bookings map[string]models.Booking // keyed by booking ID
	slots    map[slotKey]string        // pending slot -> booking ID
	messages []models.Message
}

type slotKey struct {
	serviceID int64
	startsAt  int64 // unix seconds, UTC
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		clients:  make(map[string]models.Client),
		bookings: make(map[string]models.Booking),
		slots:    make(map[slotKey]string),
	}
}

// GetSession returns the session for a party, or (nil, nil) if absent.
func (s *InMemoryStore) GetSession(partyID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[partyID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// SaveSession inserts or updates a session keyed by party ID.
func (s *InMemoryStore) SaveSession(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.PartyID] = session
	return nil
}

// ListSessions returns all sessions ordered by most recent message first.
func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastMessageAt.After(sessions[j].LastMessageAt)
	})
	return sessions, nil
}

// CreateClient stores a client. The phone is the uniqueness key; a second
// insert for the same phone is a no-op so redelivered messages cannot
// create duplicate clients.
func (s *InMemoryStore) CreateClient(client models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[client.Phone]; exists {
		return nil
	}
	s.clients[client.Phone] = client
	return nil
}

// GetClient returns the client with the given ID, or ErrClientNotFound.
func (s *InMemoryStore) GetClient(id string) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, models.ErrClientNotFound
}

// GetClientByPhone returns the client with the given phone, or (nil, nil).
func (s *InMemoryStore) GetClientByPhone(phone string) (*models.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[phone]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// ListServices returns the catalog in stable ID order.
func (s *InMemoryStore) ListServices() ([]models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	services := make([]models.Service, len(s.services))
	copy(services, s.services)
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}

// SeedServices loads the catalog if it is empty.
func (s *InMemoryStore) SeedServices(services []models.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.services) > 0 {
		return nil
	}
	s.services = append(s.services, services...)
	return nil
}

// CreateBooking inserts a booking after checking the slot under the store
// lock. A pending booking already occupying (serviceID, startsAt) yields
// models.ErrSlotTaken.
func (s *InMemoryStore) CreateBooking(booking models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slotKey{serviceID: booking.ServiceID, startsAt: booking.StartsAt.UTC().Unix()}
	if booking.Status == models.BookingStatusPending {
		if _, taken := s.slots[key]; taken {
			return models.ErrSlotTaken
		}
		s.slots[key] = booking.ID
	}
	booking.StartsAt = booking.StartsAt.UTC()
	s.bookings[booking.ID] = booking
	return nil
}

// ListBookings returns all bookings ordered by start time.
func (s *InMemoryStore) ListBookings() ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bookings := make([]models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		bookings = append(bookings, b)
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].StartsAt.Before(bookings[j].StartsAt) })
	return bookings, nil
}

// ListPendingBookingsBetween returns pending bookings starting in [from, to)
// that have not had a reminder sent yet.
func (s *InMemoryStore) ListPendingBookingsBetween(from, to time.Time) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Booking
	for _, b := range s.bookings {
		if b.Status != models.BookingStatusPending || b.ReminderSent {
			continue
		}
		if !b.StartsAt.Before(from) && b.StartsAt.Before(to) {
			due = append(due, b)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].StartsAt.Before(due[j].StartsAt) })
	return due, nil
}

// MarkReminderSent flags a booking so the reminder sweep skips it next time.
func (s *InMemoryStore) MarkReminderSent(bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return models.ErrBookingNotFound
	}
	b.ReminderSent = true
	s.bookings[bookingID] = b
	return nil
}

// UpdateBookingStatus changes a booking's status, releasing the slot when
// it leaves pending.
func (s *InMemoryStore) UpdateBookingStatus(bookingID string, status models.BookingStatus) error {
	if !models.IsValidBookingStatus(status) {
		return fmt.Errorf("invalid booking status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return models.ErrBookingNotFound
	}
	key := slotKey{serviceID: b.ServiceID, startsAt: b.StartsAt.UTC().Unix()}
	if b.Status == models.BookingStatusPending && status != models.BookingStatusPending {
		delete(s.slots, key)
	}
	b.Status = status
	s.bookings[bookingID] = b
	return nil
}

// AddMessage appends a message to the conversation log.
func (s *InMemoryStore) AddMessage(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// ListMessages returns up to limit most recent messages for a party in
// chronological order. A limit of 0 returns everything.
func (s *InMemoryStore) ListMessages(partyID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs []models.Message
	for _, m := range s.messages {
		if m.PartyID == partyID {
			msgs = append(msgs, m)
		}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
