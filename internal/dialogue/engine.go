// Package dialogue implements the conversational appointment-booking engine.
//
// The Engine is the per-conversation state machine: given the stored
// session and one inbound message it produces the next session state, one
// or two outbound messages and, on a successful date turn, a booking. All
// collaborators (store, message channel, console sink) are injected
// interfaces, so the engine is testable with in-memory fakes.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/GTaccount22/BackendBot/internal/store"
	"github.com/google/uuid"
)

// Sender delivers outbound text to a party. Delivery is fire-and-forget
// from the dialogue's perspective: a failed send is logged but never blocks
// the state transition from being committed.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Notifier receives console events after every inbound or outbound message.
// The engine never depends on its success.
type Notifier interface {
	Publish(event models.ConsoleEvent)
}

// noopNotifier is used when no console sink is wired.
type noopNotifier struct{}

func (noopNotifier) Publish(models.ConsoleEvent) {}

// Opts holds configuration options for the dialogue engine.
type Opts struct {
	Interpreter *Interpreter
	Notifier    Notifier
	Clock       func() time.Time
}

// Option defines a configuration option for the dialogue engine.
type Option func(*Opts)

// WithInterpreter sets the date interpreter.
func WithInterpreter(i *Interpreter) Option {
	return func(o *Opts) { o.Interpreter = i }
}

// WithNotifier sets the console notification sink.
func WithNotifier(n Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithClock sets the time source. Used by tests to pin "now".
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) { o.Clock = clock }
}

// Engine drives the booking dialogue.
type Engine struct {
	store    store.Store
	sender   Sender
	notifier Notifier
	interp   *Interpreter
	clock    func() time.Time
	locks    *partyLocks
}

// NewEngine creates a dialogue engine over the given store and sender.
func NewEngine(st store.Store, sender Sender, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Interpreter == nil {
		cfg.Interpreter = NewInterpreter()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = noopNotifier{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		store:    st,
		sender:   sender,
		notifier: cfg.Notifier,
		interp:   cfg.Interpreter,
		clock:    cfg.Clock,
		locks:    newPartyLocks(),
	}
}

// HandleMessage processes one inbound message for a party: one complete
// dialogue turn. Turns for the same party are serialized; the session is
// only advanced after the turn's durable side effects (client insert,
// booking insert) succeeded, so a failed turn leaves the session exactly
// as it was and the party can simply resend.
func (e *Engine) HandleMessage(ctx context.Context, partyID, text string, receivedAt time.Time) error {
	if partyID == "" {
		return models.ErrEmptyRecipient
	}
	lock := e.locks.acquire(partyID)
	defer lock.Unlock()

	now := receivedAt
	if now.IsZero() {
		now = e.clock()
	}

	sess, err := e.store.GetSession(partyID)
	if err != nil {
		return e.failTurn(ctx, partyID, fmt.Errorf("failed to load session: %w", err))
	}
	if sess == nil {
		sess = &models.Session{PartyID: partyID, State: models.StateNone, CreatedAt: now}
	}
	if !models.IsValidSessionState(sess.State) {
		slog.Warn("Engine found unknown session state, resetting", "partyID", partyID, "state", sess.State)
		sess.State = models.StateNone
	}

	e.recordMessage(partyID, models.DirectionIncoming, text, now, "")
	sess.LastMessage = text
	sess.LastMessageAt = now
	sess.UpdatedAt = now

	slog.Debug("Engine handling turn", "partyID", partyID, "state", sess.State, "body_length", len(text))

	switch sess.State {
	case models.StateNone:
		err = e.handleFirstContact(ctx, sess, now)
	case models.StateAwaitingName:
		err = e.handleAwaitingName(ctx, sess, text, now)
	case models.StateShowingServices:
		err = e.handleShowingServices(ctx, sess, text, now)
	case models.StateAwaitingDate:
		err = e.handleAwaitingDate(ctx, sess, text, now)
	}
	if err != nil {
		return e.failTurn(ctx, partyID, err)
	}
	return nil
}

// handleFirstContact greets an unseen party. A party whose client record
// already exists (for example after a session reset) skips name collection
// and goes straight to the menu.
func (e *Engine) handleFirstContact(ctx context.Context, sess *models.Session, now time.Time) error {
	client, err := e.store.GetClientByPhone(sess.PartyID)
	if err != nil {
		return fmt.Errorf("failed to look up client: %w", err)
	}
	if client != nil {
		services, err := e.catalog()
		if err != nil {
			return err
		}
		sess.ClientID = client.ID
		sess.State = models.StateShowingServices
		if err := e.store.SaveSession(*sess); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		e.send(ctx, sess.PartyID, greetingForKnownClient(client.Name), now)
		e.send(ctx, sess.PartyID, serviceMenu(services), now)
		return nil
	}

	sess.State = models.StateAwaitingName
	if err := e.store.SaveSession(*sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	e.send(ctx, sess.PartyID, msgGreeting, now)
	return nil
}

// handleAwaitingName validates the name, creates the client exactly once
// and moves to the service menu.
func (e *Engine) handleAwaitingName(ctx context.Context, sess *models.Session, text string, now time.Time) error {
	// Guard: a session that already links a client must not collect a name
	// again (redelivered events, context resets).
	if sess.ClientID != "" {
		return e.resendMenu(ctx, sess, now)
	}

	name := strings.TrimSpace(text)
	if utf8.RuneCountInString(name) < models.MinClientNameLength {
		if err := e.store.SaveSession(*sess); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		e.send(ctx, sess.PartyID, msgInvalidName, now)
		return nil
	}

	client, err := e.store.GetClientByPhone(sess.PartyID)
	if err != nil {
		return fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil {
		newClient := models.Client{ID: uuid.New().String(), Name: name, Phone: sess.PartyID, CreatedAt: now}
		if err := e.store.CreateClient(newClient); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		// Re-read: CreateClient is a no-op on a concurrent duplicate, so the
		// stored row is authoritative for the ID.
		client, err = e.store.GetClientByPhone(sess.PartyID)
		if err != nil || client == nil {
			return fmt.Errorf("failed to load created client: %w", err)
		}
		slog.Info("Engine created client", "partyID", sess.PartyID, "clientID", client.ID)
	}

	services, err := e.catalog()
	if err != nil {
		return err
	}

	sess.ClientID = client.ID
	sess.State = models.StateShowingServices
	if err := e.store.SaveSession(*sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	e.send(ctx, sess.PartyID, welcomeForNewClient(client.Name), now)
	e.send(ctx, sess.PartyID, serviceMenu(services), now)
	return nil
}

// handleShowingServices parses a numeric menu selection. Anything that is
// not an integer inside the catalog range just gets the menu again.
func (e *Engine) handleShowingServices(ctx context.Context, sess *models.Session, text string, now time.Time) error {
	services, err := e.catalog()
	if err != nil {
		return err
	}

	choice, convErr := strconv.Atoi(strings.TrimSpace(text))
	if convErr != nil || choice < 1 || choice > len(services) {
		if err := e.store.SaveSession(*sess); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		e.send(ctx, sess.PartyID, invalidSelection(services), now)
		return nil
	}

	selected := services[choice-1]
	sess.SelectedServiceID = selected.ID
	sess.State = models.StateAwaitingDate
	if err := e.store.SaveSession(*sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	slog.Debug("Engine service selected", "partyID", sess.PartyID, "serviceID", selected.ID)
	e.send(ctx, sess.PartyID, fmt.Sprintf(msgAskDateFormat, selected.Name), now)
	return nil
}

// handleAwaitingDate interprets the requested slot and books it. Every
// rejection (unparseable, past, out of hours, taken) keeps the session in
// AWAITING_DATE so the party can retry with another date.
func (e *Engine) handleAwaitingDate(ctx context.Context, sess *models.Session, text string, now time.Time) error {
	// Self-healing: the dialogue must never get stuck in AWAITING_DATE
	// without a selection or a client to book for.
	if sess.SelectedServiceID == 0 || sess.ClientID == "" {
		slog.Warn("Engine AWAITING_DATE without context, resetting to menu", "partyID", sess.PartyID,
			"serviceID", sess.SelectedServiceID, "clientID_set", sess.ClientID != "")
		return e.resendMenu(ctx, sess, now)
	}

	when, interpErr := e.interp.Interpret(text, now)
	if interpErr != nil {
		var reply string
		switch {
		case errors.Is(interpErr, models.ErrNotFuture):
			reply = msgPastDate
		case errors.Is(interpErr, models.ErrOutOfHours):
			reply = fmt.Sprintf(msgOutOfHoursFormat, e.interp.OpenHour(), e.interp.CloseHour())
		default:
			reply = msgBadDate
		}
		if err := e.store.SaveSession(*sess); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		e.send(ctx, sess.PartyID, reply, now)
		return nil
	}

	booking := models.Booking{
		ID:        uuid.New().String(),
		ClientID:  sess.ClientID,
		ServiceID: sess.SelectedServiceID,
		StartsAt:  when.UTC(),
		Status:    models.BookingStatusPending,
		CreatedAt: now,
	}
	if err := e.store.CreateBooking(booking); err != nil {
		if errors.Is(err, models.ErrSlotTaken) {
			if saveErr := e.store.SaveSession(*sess); saveErr != nil {
				return fmt.Errorf("failed to save session: %w", saveErr)
			}
			e.send(ctx, sess.PartyID, msgSlotTaken, now)
			return nil
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	slog.Info("Engine booking created", "partyID", sess.PartyID, "bookingID", booking.ID,
		"serviceID", booking.ServiceID, "startsAt", booking.StartsAt)

	serviceName := e.serviceName(sess.SelectedServiceID)
	clientName := e.clientName(sess.PartyID)

	sess.SelectedServiceID = 0
	sess.State = models.StateShowingServices
	if err := e.store.SaveSession(*sess); err != nil {
		// The booking is durable; report the turn as failed so the session
		// stays un-advanced and the next message self-heals to the menu.
		return fmt.Errorf("failed to save session: %w", err)
	}

	e.send(ctx, sess.PartyID, fmt.Sprintf(msgConfirmedFormat, clientName, serviceName,
		when.In(now.Location()).Format(StructuredDateLayout)), now)
	return nil
}

// resendMenu resets the session to SHOWING_SERVICES and sends the menu.
func (e *Engine) resendMenu(ctx context.Context, sess *models.Session, now time.Time) error {
	services, err := e.catalog()
	if err != nil {
		return err
	}
	sess.SelectedServiceID = 0
	sess.State = models.StateShowingServices
	if err := e.store.SaveSession(*sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	e.send(ctx, sess.PartyID, serviceMenu(services), now)
	return nil
}

// OperatorSend delivers a console operator's reply to a party, assigning
// the operator to the chat on first contact. It shares the per-party lock
// with HandleMessage so console replies and dialogue turns do not
// interleave their session writes.
func (e *Engine) OperatorSend(ctx context.Context, partyID, operator, text string) error {
	if partyID == "" {
		return models.ErrEmptyRecipient
	}
	lock := e.locks.acquire(partyID)
	defer lock.Unlock()

	sess, err := e.store.GetSession(partyID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return models.ErrSessionNotFound
	}

	now := e.clock()
	if sess.AssignedOperator == "" && operator != "" {
		sess.AssignedOperator = operator
		slog.Info("Engine assigned operator to chat", "partyID", partyID, "operator", operator)
	}
	sess.LastMessage = text
	sess.LastMessageAt = now
	sess.UpdatedAt = now
	if err := e.store.SaveSession(*sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	e.recordMessage(partyID, models.DirectionOutgoing, text, now, sess.AssignedOperator)
	if err := e.sender.SendMessage(ctx, partyID, text); err != nil {
		slog.Error("Engine operator send failed", "error", err, "partyID", partyID, "operator", operator)
		return fmt.Errorf("failed to send operator message: %w", err)
	}
	return nil
}

// send delivers one outbound reply, logs it and fans it out to the console.
// Send failures are logged and swallowed: message loss is preferred over
// blocking or rolling back a committed transition.
func (e *Engine) send(ctx context.Context, partyID, body string, now time.Time) {
	if err := e.sender.SendMessage(ctx, partyID, body); err != nil {
		slog.Error("Engine outbound send failed", "error", err, "partyID", partyID)
	}
	e.recordMessage(partyID, models.DirectionOutgoing, body, now, "")
}

// recordMessage persists a message to the log and publishes it to the
// console sink. Both are best-effort.
func (e *Engine) recordMessage(partyID string, direction models.MessageDirection, body string, ts time.Time, operator string) {
	if len(body) > models.MaxMessageBodyLength {
		// Back off to a rune boundary so the cut never splits a UTF-8 sequence.
		cut := models.MaxMessageBodyLength
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	msg := models.Message{ID: uuid.New().String(), PartyID: partyID, Direction: direction, Body: body, Timestamp: ts}
	if err := e.store.AddMessage(msg); err != nil {
		slog.Error("Engine failed to log message", "error", err, "partyID", partyID, "direction", direction)
	}
	e.notifier.Publish(models.ConsoleEvent{PartyID: partyID, Text: body, Direction: direction, Operator: operator, Timestamp: ts})
}

// failTurn abandons a turn after a collaborator failure: the session was
// not advanced, and the party gets a best-effort error reply so the turn
// never ends silently.
func (e *Engine) failTurn(ctx context.Context, partyID string, err error) error {
	slog.Error("Engine turn failed", "error", err, "partyID", partyID)
	if sendErr := e.sender.SendMessage(ctx, partyID, msgTurnError); sendErr != nil {
		slog.Error("Engine failed to send turn error reply", "error", sendErr, "partyID", partyID)
	}
	return err
}

// catalog fetches the service list, treating an empty catalog as a
// collaborator failure: there is nothing bookable to offer.
func (e *Engine) catalog() ([]models.Service, error) {
	services, err := e.store.ListServices()
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	if len(services) == 0 {
		return nil, models.ErrEmptyCatalog
	}
	return services, nil
}

// serviceName resolves a service name for the confirmation text.
func (e *Engine) serviceName(serviceID int64) string {
	services, err := e.store.ListServices()
	if err == nil {
		for _, svc := range services {
			if svc.ID == serviceID {
				return svc.Name
			}
		}
	}
	return "tu servicio"
}

// clientName resolves the client's name for the confirmation text.
func (e *Engine) clientName(partyID string) string {
	client, err := e.store.GetClientByPhone(partyID)
	if err == nil && client != nil {
		return client.Name
	}
	return "gracias"
}
