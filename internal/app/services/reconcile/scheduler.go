package reconcile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/metrics"
	"github.com/bookmate/bookmate/internal/app/system"
	"github.com/bookmate/bookmate/internal/logging"
)

var _ system.Service = (*Scheduler)(nil)

// Scheduler runs RunAll on a cron schedule. A tick that fires while the
// previous one is still running is skipped.
type Scheduler struct {
	service *Service
	spec    string
	timeout time.Duration
	log     *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running atomic.Bool
	skipped atomic.Int64
}

// NewScheduler creates a scheduler for a standard cron spec or descriptor
// such as "@every 6h".
func NewScheduler(service *Service, spec string, log *logging.Logger) (*Scheduler, error) {
	if log == nil {
		log = logging.NewNop()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	return &Scheduler{service: service, spec: spec, timeout: 30 * time.Minute, log: log}, nil
}

func (s *Scheduler) Name() string { return "reconcile-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.spec, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return err
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.log.WithField("schedule", s.spec).Info("reconcile scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("reconcile scheduler stopped")
	return nil
}

// Skipped reports how many ticks were dropped because a run was in progress.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		metrics.RecordReconcileSkip()
		s.log.Warn("previous reconciliation still running; skipping tick")
		return
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	ctx = logging.WithActor(ctx, "scheduler")

	if err := s.service.RunAll(ctx, reconciliation.TriggerScheduled); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("scheduled reconciliation finished with errors")
	}
}
