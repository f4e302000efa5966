package dialogue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/GTaccount22/BackendBot/internal/models"
)

// partyQueueSize bounds the per-party backlog. A party flooding faster
// than its turns complete loses messages rather than stalling the pump;
// the channel is at-least-once, so the party can resend.
const partyQueueSize = 16

// Dispatcher pumps inbound channel events into the engine. Events for one
// party are queued to a dedicated worker so their turns run strictly in
// arrival order; different parties run fully concurrently.
type Dispatcher struct {
	engine *Engine

	mu     sync.Mutex
	queues map[string]chan models.Response
}

// NewDispatcher creates a Dispatcher over the given engine.
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		queues: make(map[string]chan models.Response),
	}
}

// Start consumes responses until the channel closes or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context, responses <-chan models.Response) {
	slog.Info("Dispatcher starting inbound pump")
	go func() {
		defer slog.Info("Dispatcher stopped inbound pump")
		for {
			select {
			case resp, ok := <-responses:
				if !ok {
					return
				}
				d.dispatch(ctx, resp)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// dispatch routes one event to its party worker, spawning the worker on
// first contact.
func (d *Dispatcher) dispatch(ctx context.Context, resp models.Response) {
	if resp.From == "" {
		slog.Warn("Dispatcher dropping event without sender")
		return
	}

	d.mu.Lock()
	q, ok := d.queues[resp.From]
	if !ok {
		q = make(chan models.Response, partyQueueSize)
		d.queues[resp.From] = q
		go d.partyWorker(ctx, resp.From, q)
	}
	d.mu.Unlock()

	select {
	case q <- resp:
	default:
		slog.Warn("Dispatcher party queue full, dropping event", "from", resp.From)
	}
}

// partyWorker processes one party's events in order.
func (d *Dispatcher) partyWorker(ctx context.Context, partyID string, q <-chan models.Response) {
	for {
		select {
		case resp := <-q:
			receivedAt := time.Unix(resp.Time, 0)
			if resp.Time == 0 {
				receivedAt = time.Now()
			}
			if err := d.engine.HandleMessage(ctx, resp.From, resp.Body, receivedAt); err != nil {
				slog.Error("Dispatcher turn failed", "error", err, "from", resp.From)
			}
		case <-ctx.Done():
			return
		}
	}
}
