package dispute

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/servimarket/disputes/internal/logging"
	"github.com/servimarket/disputes/internal/metrics"
)

// Scheduler advances disputes whose deadlines have lapsed and retries
// pending background work. Every mutation rides the same optimistic phase
// guard as party actions, so losing a race to a party is a skip, not an
// error, and running two scheduler instances is safe.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	warning  time.Duration
	batch    int
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a scheduler ticking at interval. warning is how far
// ahead of a deadline the approaching notice fires.
func NewScheduler(svc *Service, interval, warning time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		svc:      svc,
		interval: interval,
		warning:  warning,
		batch:    100,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop terminates the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("dispute scheduler started", "interval", s.interval)
	for {
		select {
		case <-s.stop:
			s.logger.Info("dispute scheduler stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one pass of all background work.
func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	ctx = logging.WithLogger(ctx, s.logger)

	metrics.SchedulerTicksTotal.Inc()

	s.svc.AdvanceDeadlines(ctx, time.Now(), s.batch)
	s.svc.RetryDecisions(ctx, s.batch)
	s.svc.RetrySettlements(ctx, s.batch)
	s.svc.fees.RetryFailed(ctx, s.batch)
	if s.warning > 0 {
		s.svc.WarnDeadlines(ctx, time.Now(), s.warning, s.batch)
	}
}

// AdvanceDeadlines moves every case whose phase deadline has lapsed to its
// next phase. A concurrent party action wins the race; the case is skipped.
func (s *Service) AdvanceDeadlines(ctx context.Context, now time.Time, limit int) int {
	cases, err := s.store.ListDeadlineElapsed(ctx, now, limit)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list lapsed disputes", "error", err)
		return 0
	}

	advanced := 0
	for _, c := range cases {
		if err := s.advance(ctx, c); err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyResolved) {
				continue
			}
			logging.FromContext(ctx).Error("failed to advance dispute",
				logging.DisputeID(c.ID), "phase", c.Phase, "error", err)
			continue
		}
		advanced++
	}
	return advanced
}

// advance applies the lapse rule for the case's current phase.
func (s *Service) advance(ctx context.Context, c *Case) error {
	switch c.Phase {
	case PhaseInNegotiation:
		return s.startMediation(ctx, c, "scheduler")
	case PhaseAIMediation:
		return s.startReview(ctx, c, "scheduler")
	case PhaseAIReview:
		// No agreement on the ruling inside the window; the dispute leaves
		// the platform and the opener bears the escalation fee.
		return s.escalate(ctx, c, c.OpenedBy, "scheduler")
	default:
		return nil
	}
}

// RetryDecisions re-requests rulings for review-phase cases that have none
// yet, up to the attempt bound. Past the bound the case waits out its
// deadline and escalates.
func (s *Service) RetryDecisions(ctx context.Context, limit int) {
	cases, err := s.store.ListAwaitingDecision(ctx, limit)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list disputes awaiting ruling", "error", err)
		return
	}
	for _, c := range cases {
		if c.DecisionAttempts >= maxDecisionAttempts {
			continue
		}
		s.requestDecision(ctx, c)
	}
}

// RetrySettlements replays escrow settlement for resolved cases that did
// not settle, reusing each case's recorded operation id.
func (s *Service) RetrySettlements(ctx context.Context, limit int) {
	cases, err := s.store.ListUnsettled(ctx, limit)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list unsettled disputes", "error", err)
		return
	}
	for _, c := range cases {
		s.settle(ctx, c)
	}
}

// WarnDeadlines emits a deadline-approaching notice once per phase for
// cases entering the warning window.
func (s *Service) WarnDeadlines(ctx context.Context, now time.Time, window time.Duration, limit int) {
	cases, err := s.store.ListDeadlineApproaching(ctx, now, window, limit)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list approaching deadlines", "error", err)
		return
	}
	for _, c := range cases {
		if err := s.store.MarkDeadlineWarned(ctx, c.ID); err != nil {
			logging.FromContext(ctx).Error("failed to mark deadline warned",
				logging.DisputeID(c.ID), "error", err)
			continue
		}
		s.notifier.DeadlineApproaching(ctx, c)
	}
}
