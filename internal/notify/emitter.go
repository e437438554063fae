package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/servimarket/disputes/internal/dispute"
	"github.com/servimarket/disputes/internal/idgen"
)

// Emitter turns dispute lifecycle callbacks into webhook events for both
// parties. All methods are fire-and-forget: errors are logged, never
// returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(c *dispute.Case, et EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	data["disputeId"] = c.ID
	data["bookingId"] = c.BookingID
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      et,
		Timestamp: time.Now(),
		Data:      data,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, party := range []string{c.CustomerID, c.VendorID} {
		if err := e.d.DispatchToParty(ctx, party, event); err != nil {
			e.logger.Warn("webhook emit failed",
				"event", et, "dispute_id", c.ID, "party", party, "error", err)
		}
	}
}

func (e *Emitter) DisputeOpened(ctx context.Context, c *dispute.Case) {
	e.emit(c, EventDisputeOpened, map[string]interface{}{
		"openedBy":    c.OpenedBy,
		"reason":      c.Reason,
		"amountCents": c.AmountCents,
		"currency":    c.Currency,
		"deadline":    c.Deadline,
	})
}

func (e *Emitter) PhaseChanged(ctx context.Context, c *dispute.Case, from dispute.Phase, trigger string) {
	e.emit(c, EventPhaseChanged, map[string]interface{}{
		"from":     string(from),
		"to":       string(c.Phase),
		"trigger":  trigger,
		"deadline": c.Deadline,
	})
}

func (e *Emitter) DeadlineApproaching(ctx context.Context, c *dispute.Case) {
	e.emit(c, EventDeadlineApproaching, map[string]interface{}{
		"phase":    string(c.Phase),
		"deadline": c.Deadline,
	})
}

func (e *Emitter) Resolved(ctx context.Context, c *dispute.Case) {
	et := EventDisputeResolved
	data := map[string]interface{}{
		"outcome": string(c.Outcome),
	}
	if c.Outcome == dispute.OutcomeExternal {
		et = EventDisputeEscalated
	} else if c.ResolvedSplit != nil {
		data["customerCents"] = c.ResolvedSplit.CustomerCents
		data["vendorCents"] = c.ResolvedSplit.VendorCents
	}
	e.emit(c, et, data)
}

// Compile-time assertion that Emitter implements dispute.Notifier.
var _ dispute.Notifier = (*Emitter)(nil)
