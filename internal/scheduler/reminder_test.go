package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/GTaccount22/BackendBot/internal/store"
)

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string]string // to -> last body
	fail bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: make(map[string]string)}
}

func (r *recordingSender) SendMessage(ctx context.Context, to string, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return context.DeadlineExceeded
	}
	r.sent[to] = body
	return nil
}

func sweepFixture(t *testing.T) (store.Store, *recordingSender) {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SeedServices([]models.Service{{ID: 1, Name: "Manicure", Price: 12}}); err != nil {
		t.Fatalf("SeedServices failed: %v", err)
	}
	if err := st.CreateClient(models.Client{ID: "c-1", Name: "Juana", Phone: "56911111111", CreatedAt: testNow}); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	return st, newRecordingSender()
}

func addBooking(t *testing.T, st store.Store, id string, startsAt time.Time) {
	t.Helper()
	b := models.Booking{ID: id, ClientID: "c-1", ServiceID: 1, StartsAt: startsAt,
		Status: models.BookingStatusPending, CreatedAt: testNow}
	if err := st.CreateBooking(b); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
}

func TestReminderSweepSendsAndMarks(t *testing.T) {
	st, sender := sweepFixture(t)
	addBooking(t, st, "b-1", testNow.Add(3*time.Hour))

	sweep := NewReminderSweep(st, sender)
	sweep.Run(context.Background(), testNow)

	body, ok := sender.sent["56911111111"]
	if !ok {
		t.Fatal("no reminder sent")
	}
	if !strings.Contains(body, "Manicure") {
		t.Errorf("reminder = %q, want service name", body)
	}

	due, err := st.ListPendingBookingsBetween(testNow, testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListPendingBookingsBetween failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due after sweep = %d, want 0", len(due))
	}
}

func TestReminderSweepIgnoresBookingsOutsideWindow(t *testing.T) {
	st, sender := sweepFixture(t)
	addBooking(t, st, "b-far", testNow.Add(48*time.Hour))

	sweep := NewReminderSweep(st, sender)
	sweep.Run(context.Background(), testNow)

	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want none for bookings outside the window", sender.sent)
	}
}

func TestReminderSweepRetriesAfterSendFailure(t *testing.T) {
	st, sender := sweepFixture(t)
	addBooking(t, st, "b-1", testNow.Add(3*time.Hour))

	sweep := NewReminderSweep(st, sender)
	sender.fail = true
	sweep.Run(context.Background(), testNow)

	// The failed send must not mark the booking.
	due, err := st.ListPendingBookingsBetween(testNow, testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListPendingBookingsBetween failed: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due after failed sweep = %d, want 1", len(due))
	}

	sender.fail = false
	sweep.Run(context.Background(), testNow)
	if _, ok := sender.sent["56911111111"]; !ok {
		t.Error("reminder not sent on retry")
	}
}

func TestReminderSweepMarksOrphanedBooking(t *testing.T) {
	st, sender := sweepFixture(t)
	b := models.Booking{ID: "b-orphan", ClientID: "c-gone", ServiceID: 1,
		StartsAt: testNow.Add(3 * time.Hour), Status: models.BookingStatusPending, CreatedAt: testNow}
	if err := st.CreateBooking(b); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	sweep := NewReminderSweep(st, sender)
	sweep.Run(context.Background(), testNow)

	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want none for a booking with no client", sender.sent)
	}

	// The booking is marked so the sweep does not retry it forever.
	due, err := st.ListPendingBookingsBetween(testNow, testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListPendingBookingsBetween failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due after sweep = %d, want 0", len(due))
	}
}

func TestReminderSweepCustomWindow(t *testing.T) {
	st, sender := sweepFixture(t)
	addBooking(t, st, "b-1", testNow.Add(3*time.Hour))

	sweep := NewReminderSweep(st, sender, WithReminderWindow(time.Hour))
	sweep.Run(context.Background(), testNow)

	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want none with 1h window", sender.sent)
	}
}
