package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/GTaccount22/BackendBot/internal/store"
)

// ReminderCronExpr runs the sweep at the top of every hour.
const ReminderCronExpr = "0 * * * *"

// DefaultReminderWindow is how far ahead the sweep looks for upcoming bookings.
const DefaultReminderWindow = 24 * time.Hour

// DefaultSweepTimeout bounds one full sweep run.
const DefaultSweepTimeout = 2 * time.Minute

const reminderMessageFormat = "Recordatorio 📅: tienes una cita de %s el %s. ¡Te esperamos!"

// Sender delivers a reminder text to a party.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// ReminderSweep finds pending bookings starting within the window that have
// not been reminded yet and sends each client a reminder message.
type ReminderSweep struct {
	st     store.Store
	sender Sender
	window time.Duration
}

// ReminderOpts holds configuration options for the reminder sweep.
type ReminderOpts struct {
	Window time.Duration
}

// ReminderOption defines a configuration option for the reminder sweep.
type ReminderOption func(*ReminderOpts)

// WithReminderWindow overrides the look-ahead window.
func WithReminderWindow(window time.Duration) ReminderOption {
	return func(o *ReminderOpts) { o.Window = window }
}

// NewReminderSweep creates a reminder sweep over the given store and sender.
func NewReminderSweep(st store.Store, sender Sender, opts ...ReminderOption) *ReminderSweep {
	var cfg ReminderOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultReminderWindow
	}
	return &ReminderSweep{st: st, sender: sender, window: cfg.Window}
}

// Register schedules the sweep on the given scheduler.
func (rs *ReminderSweep) Register(sched *Scheduler) error {
	return sched.AddJob(ReminderCronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultSweepTimeout)
		defer cancel()
		rs.Run(ctx, time.Now())
	})
}

// Run performs one sweep. A booking is marked reminded only after its
// message was handed to the sender, so a failed send is retried on the
// next run rather than silently lost.
func (rs *ReminderSweep) Run(ctx context.Context, now time.Time) {
	due, err := rs.st.ListPendingBookingsBetween(now, now.Add(rs.window))
	if err != nil {
		slog.Error("ReminderSweep failed to list due bookings", "error", err)
		return
	}
	if len(due) == 0 {
		slog.Debug("ReminderSweep found no due bookings")
		return
	}
	slog.Info("ReminderSweep processing due bookings", "count", len(due))

	services, err := rs.st.ListServices()
	if err != nil {
		slog.Error("ReminderSweep failed to list services", "error", err)
		return
	}
	names := make(map[int64]string, len(services))
	for _, svc := range services {
		names[svc.ID] = svc.Name
	}

	for _, booking := range due {
		if err := rs.remind(ctx, booking, names); err != nil {
			slog.Error("ReminderSweep failed to remind", "error", err, "bookingID", booking.ID)
		}
	}
}

func (rs *ReminderSweep) remind(ctx context.Context, booking models.Booking, names map[int64]string) error {
	client, err := rs.st.GetClient(booking.ClientID)
	if errors.Is(err, models.ErrClientNotFound) {
		// Orphaned booking; mark it so the sweep stops retrying.
		if err := rs.st.MarkReminderSent(booking.ID); err != nil {
			return fmt.Errorf("failed to mark orphaned booking %s: %w", booking.ID, err)
		}
		slog.Warn("ReminderSweep skipping booking with unknown client", "bookingID", booking.ID, "clientID", booking.ClientID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up client %s: %w", booking.ClientID, err)
	}

	serviceName := names[booking.ServiceID]
	if serviceName == "" {
		serviceName = "tu servicio"
	}
	body := fmt.Sprintf(reminderMessageFormat, serviceName, booking.StartsAt.Local().Format("02-01-2006 15:04"))

	if err := rs.sender.SendMessage(ctx, client.Phone, body); err != nil {
		return fmt.Errorf("failed to send reminder to %s: %w", client.Phone, err)
	}
	if err := rs.st.MarkReminderSent(booking.ID); err != nil {
		return fmt.Errorf("failed to mark reminder sent for %s: %w", booking.ID, err)
	}
	slog.Debug("ReminderSweep reminder sent", "bookingID", booking.ID, "to", client.Phone)
	return nil
}
