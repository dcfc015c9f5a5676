package worker

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/bank-backoffice/internal/domain"
	"github.com/josh-kwaku/bank-backoffice/internal/logging"
)

type TickOutcome string

const (
	TickDrained   TickOutcome = "drained"
	TickSkipped   TickOutcome = "skipped"
	TickDisabled  TickOutcome = "disabled"
	TickNotLeader TickOutcome = "not_leader"
	TickFailed    TickOutcome = "failed"
)

// Lease grants exclusive use of the scheduler across processes. release is
// only meaningful when ok is true.
type Lease interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

type TickRecorder interface {
	ObserveTick(outcome string, drained int)
}

// Scheduler periodically reloads UNPROCESSED transactions from storage and
// drains them oldest first. It recovers work that never reached the Consumer.
type Scheduler struct {
	proc     processor
	source   unprocessedSource
	lease    Lease
	metrics  TickRecorder
	logger   *slog.Logger
	interval time.Duration

	enabled  atomic.Bool
	draining atomic.Bool
	locks    *AccountLocks

	mu    sync.Mutex
	queue byDate
}

// NewScheduler builds a scheduler. lease and metrics may be nil.
func NewScheduler(proc processor, source unprocessedSource, lease Lease, interval time.Duration, enabled bool, metrics TickRecorder, logger *slog.Logger) *Scheduler {
	s := &Scheduler{
		proc:     proc,
		source:   source,
		lease:    lease,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		locks:    NewAccountLocks(),
	}
	s.enabled.Store(enabled)
	return s
}

// UseAccountLocks makes the scheduler wait for the accounts of each
// transaction under l before processing it. Pass the Consumer's locks so the
// two never work on a shared account at once. Call before Start.
func (s *Scheduler) UseAccountLocks(l *AccountLocks) {
	s.locks = l
}

func (s *Scheduler) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

func (s *Scheduler) Enabled() bool {
	return s.enabled.Load()
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one recovery pass. A tick that starts while another is still
// draining returns TickSkipped immediately.
func (s *Scheduler) Tick(ctx context.Context) TickOutcome {
	if !s.enabled.Load() {
		s.observe(TickDisabled, 0)
		return TickDisabled
	}
	if !s.draining.CompareAndSwap(false, true) {
		s.logger.Debug("scheduler tick skipped, previous drain still running")
		s.observe(TickSkipped, 0)
		return TickSkipped
	}
	defer s.draining.Store(false)

	log := s.logger.With("run_id", uuid.NewString())

	if s.lease != nil {
		release, ok, err := s.lease.Acquire(ctx)
		if err != nil {
			log.Error("scheduler lease failed", "error", err)
			s.observe(TickFailed, 0)
			return TickFailed
		}
		if !ok {
			log.Debug("scheduler lease held elsewhere")
			s.observe(TickNotLeader, 0)
			return TickNotLeader
		}
		defer release()
	}

	if err := s.refill(ctx); err != nil {
		log.Error("failed to load unprocessed transactions", "error", err)
		s.observe(TickFailed, 0)
		return TickFailed
	}

	drained := s.drain(ctx, log)
	if drained > 0 {
		log.Info("scheduler drained backlog", "count", drained)
	}
	s.observe(TickDrained, drained)
	return TickDrained
}

func (s *Scheduler) refill(ctx context.Context) error {
	s.mu.Lock()
	empty := s.queue.Len() == 0
	s.mu.Unlock()
	if !empty {
		return nil
	}

	txs, err := s.source.FindUnprocessed(ctx)
	if err != nil {
		return fmt.Errorf("refill: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		heap.Push(&s.queue, tx)
	}
	return nil
}

// drain processes until the queue is empty or ctx is done. A started
// transaction always runs to completion. One still waiting for its accounts
// when ctx ends goes back on the queue for the next tick.
func (s *Scheduler) drain(ctx context.Context, log *slog.Logger) int {
	drained := 0
	for ctx.Err() == nil {
		s.mu.Lock()
		if s.queue.Len() == 0 {
			s.mu.Unlock()
			break
		}
		tx := heap.Pop(&s.queue).(*domain.Transaction)
		s.mu.Unlock()

		accounts := tx.Accounts()
		if err := s.locks.Lock(ctx, accounts); err != nil {
			s.mu.Lock()
			heap.Push(&s.queue, tx)
			s.mu.Unlock()
			break
		}

		txLog := log.With("transaction_id", tx.ID, "category", tx.Category)
		runCtx := logging.WithLogger(context.WithoutCancel(ctx), txLog)
		if _, err := s.proc.Process(runCtx, tx); err != nil {
			txLog.Error("recovered transaction failed", "error", err)
		}
		s.locks.Unlock(accounts)
		drained++
	}
	return drained
}

func (s *Scheduler) observe(outcome TickOutcome, drained int) {
	if s.metrics != nil {
		s.metrics.ObserveTick(string(outcome), drained)
	}
}

// byDate is a min-heap of transactions, earliest date first.
type byDate []*domain.Transaction

func (h byDate) Len() int           { return len(h) }
func (h byDate) Less(i, j int) bool { return h[i].Before(h[j]) }
func (h byDate) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *byDate) Push(x any) {
	*h = append(*h, x.(*domain.Transaction))
}

func (h *byDate) Pop() any {
	old := *h
	n := len(old)
	tx := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return tx
}
