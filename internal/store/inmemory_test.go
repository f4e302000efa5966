package store

import (
	"errors"
	"testing"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

var testTime = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *InMemoryStore {
	t.Helper()
	st := NewInMemoryStore()
	err := st.SeedServices([]models.Service{
		{ID: 1, Name: "Corte de cabello", Price: 15},
		{ID: 2, Name: "Manicure", Price: 12},
	})
	if err != nil {
		t.Fatalf("SeedServices failed: %v", err)
	}
	return st
}

func TestSeedServicesIsIdempotent(t *testing.T) {
	st := seededStore(t)
	if err := st.SeedServices([]models.Service{{ID: 9, Name: "Otro", Price: 1}}); err != nil {
		t.Fatalf("second SeedServices failed: %v", err)
	}
	services, err := st.ListServices()
	if err != nil {
		t.Fatalf("ListServices failed: %v", err)
	}
	if len(services) != 2 {
		t.Errorf("services = %d, want 2 (second seed must be a no-op)", len(services))
	}
}

func TestGetSessionAbsentReturnsNilNil(t *testing.T) {
	st := NewInMemoryStore()
	sess, err := st.GetSession("56911111111")
	if err != nil || sess != nil {
		t.Errorf("GetSession = (%v, %v), want (nil, nil)", sess, err)
	}
}

func TestCreateClientDuplicatePhoneIsNoOp(t *testing.T) {
	st := NewInMemoryStore()
	first := models.Client{ID: "c-1", Name: "Juana", Phone: "56911111111", CreatedAt: testTime}
	if err := st.CreateClient(first); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	dup := models.Client{ID: "c-2", Name: "Otra", Phone: "56911111111", CreatedAt: testTime}
	if err := st.CreateClient(dup); err != nil {
		t.Fatalf("duplicate CreateClient failed: %v", err)
	}
	got, err := st.GetClientByPhone("56911111111")
	if err != nil || got == nil {
		t.Fatalf("GetClientByPhone failed: %v", err)
	}
	if got.ID != "c-1" {
		t.Errorf("stored client ID = %s, want c-1 (first insert wins)", got.ID)
	}

	byID, err := st.GetClient("c-1")
	if err != nil || byID == nil || byID.Phone != "56911111111" {
		t.Errorf("GetClient(c-1) = (%v, %v)", byID, err)
	}
}

func TestGetClientUnknownID(t *testing.T) {
	st := NewInMemoryStore()
	if _, err := st.GetClient("missing"); !errors.Is(err, models.ErrClientNotFound) {
		t.Errorf("GetClient = %v, want ErrClientNotFound", err)
	}
}

func TestCreateBookingSlotConflict(t *testing.T) {
	st := seededStore(t)
	starts := time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC)

	first := models.Booking{ID: "b-1", ClientID: "c-1", ServiceID: 1, StartsAt: starts, Status: models.BookingStatusPending, CreatedAt: testTime}
	if err := st.CreateBooking(first); err != nil {
		t.Fatalf("first CreateBooking failed: %v", err)
	}

	conflict := models.Booking{ID: "b-2", ClientID: "c-2", ServiceID: 1, StartsAt: starts, Status: models.BookingStatusPending, CreatedAt: testTime}
	if err := st.CreateBooking(conflict); !errors.Is(err, models.ErrSlotTaken) {
		t.Errorf("conflicting CreateBooking = %v, want ErrSlotTaken", err)
	}

	// Same instant, different service: independent slot.
	other := models.Booking{ID: "b-3", ClientID: "c-2", ServiceID: 2, StartsAt: starts, Status: models.BookingStatusPending, CreatedAt: testTime}
	if err := st.CreateBooking(other); err != nil {
		t.Errorf("other-service CreateBooking = %v, want nil", err)
	}
}

func TestCancelledBookingReleasesSlot(t *testing.T) {
	st := seededStore(t)
	starts := time.Date(2026, 3, 5, 11, 0, 0, 0, time.UTC)

	b := models.Booking{ID: "b-1", ClientID: "c-1", ServiceID: 1, StartsAt: starts, Status: models.BookingStatusPending, CreatedAt: testTime}
	if err := st.CreateBooking(b); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	if err := st.UpdateBookingStatus("b-1", models.BookingStatusCancelled); err != nil {
		t.Fatalf("UpdateBookingStatus failed: %v", err)
	}

	rebook := models.Booking{ID: "b-2", ClientID: "c-2", ServiceID: 1, StartsAt: starts, Status: models.BookingStatusPending, CreatedAt: testTime}
	if err := st.CreateBooking(rebook); err != nil {
		t.Errorf("rebooking cancelled slot = %v, want nil", err)
	}
}

func TestUpdateBookingStatusRejectsUnknownStatus(t *testing.T) {
	st := seededStore(t)
	b := models.Booking{ID: "b-1", ClientID: "c-1", ServiceID: 1,
		StartsAt: testTime.Add(time.Hour), Status: models.BookingStatusPending, CreatedAt: testTime}
	if err := st.CreateBooking(b); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	if err := st.UpdateBookingStatus("b-1", models.BookingStatus("archived")); err == nil {
		t.Error("UpdateBookingStatus = nil error, want rejection of unknown status")
	}

	bookings, err := st.ListBookings()
	if err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if len(bookings) != 1 || bookings[0].Status != models.BookingStatusPending {
		t.Errorf("bookings = %+v, want untouched pending booking", bookings)
	}
}

func TestUpdateBookingStatusUnknownID(t *testing.T) {
	st := NewInMemoryStore()
	if err := st.UpdateBookingStatus("missing", models.BookingStatusCancelled); !errors.Is(err, models.ErrBookingNotFound) {
		t.Errorf("UpdateBookingStatus = %v, want ErrBookingNotFound", err)
	}
	if err := st.MarkReminderSent("missing"); !errors.Is(err, models.ErrBookingNotFound) {
		t.Errorf("MarkReminderSent = %v, want ErrBookingNotFound", err)
	}
}

func TestListPendingBookingsBetween(t *testing.T) {
	st := seededStore(t)
	inWindow := models.Booking{ID: "b-1", ClientID: "c-1", ServiceID: 1,
		StartsAt: testTime.Add(2 * time.Hour), Status: models.BookingStatusPending, CreatedAt: testTime}
	outside := models.Booking{ID: "b-2", ClientID: "c-1", ServiceID: 1,
		StartsAt: testTime.Add(48 * time.Hour), Status: models.BookingStatusPending, CreatedAt: testTime}
	for _, b := range []models.Booking{inWindow, outside} {
		if err := st.CreateBooking(b); err != nil {
			t.Fatalf("CreateBooking failed: %v", err)
		}
	}

	due, err := st.ListPendingBookingsBetween(testTime, testTime.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListPendingBookingsBetween failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != "b-1" {
		t.Fatalf("due = %v, want only b-1", due)
	}

	if err := st.MarkReminderSent("b-1"); err != nil {
		t.Fatalf("MarkReminderSent failed: %v", err)
	}
	due, err = st.ListPendingBookingsBetween(testTime, testTime.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListPendingBookingsBetween failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due after reminder = %d, want 0", len(due))
	}
}

func TestListMessagesLimit(t *testing.T) {
	st := NewInMemoryStore()
	for i := 0; i < 5; i++ {
		msg := models.Message{ID: string(rune('a' + i)), PartyID: "56911111111",
			Direction: models.DirectionIncoming, Body: "m", Timestamp: testTime.Add(time.Duration(i) * time.Minute)}
		if err := st.AddMessage(msg); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}
	msgs, err := st.ListMessages("56911111111", 2)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	// Most recent two, oldest first.
	if msgs[0].ID != "d" || msgs[1].ID != "e" {
		t.Errorf("messages = %s, %s, want d, e", msgs[0].ID, msgs[1].ID)
	}
}

func TestListSessionsOrdersByRecency(t *testing.T) {
	st := NewInMemoryStore()
	older := models.Session{PartyID: "56911111111", State: models.StateNone, LastMessageAt: testTime}
	newer := models.Session{PartyID: "56922222222", State: models.StateNone, LastMessageAt: testTime.Add(time.Hour)}
	for _, sess := range []models.Session{older, newer} {
		if err := st.SaveSession(sess); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}
	sessions, err := st.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].PartyID != "56922222222" {
		t.Errorf("sessions[0] = %v, want most recent first", sessions)
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://u:p@localhost/db": "postgres",
		"host=localhost user=bot":       "postgres",
		"/var/lib/backendbot/bot.db":    "sqlite",
		"bot.db":                        "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %s, want %s", dsn, got, want)
		}
	}
}
