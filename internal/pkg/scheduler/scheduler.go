package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/utils/worker"
)

// Task is one deferred unit of follow-up work. It performs its own
// ledger calls, store updates and callback delivery, and must re-check
// the loan record's state before acting: a cancellation may have landed
// between scheduling and firing.
type Task func(ctx context.Context) error

// LoanAuditor records follow-up failures against the loan record.
type LoanAuditor interface {
	AppendError(ctx context.Context, applicationNumber, stage, message string)
}

// Scheduler runs the asynchronous half of the two-phase notification
// pattern: the caller has already answered synchronously by the time a
// follow-up is queued, so nothing that happens here may propagate back
// out. Tasks fire on a timer and execute on the shared worker pool.
// Pending tasks are held in memory and do not survive a restart.
type Scheduler struct {
	pool        *worker.WorkerPool
	audit       LoanAuditor
	taskTimeout time.Duration
	pending     int64
}

func New(pool *worker.WorkerPool, audit LoanAuditor) *Scheduler {
	return &Scheduler{
		pool:        pool,
		audit:       audit,
		taskTimeout: 2 * time.Minute,
	}
}

// ScheduleFollowUp queues task to run after delay. Fire-and-forget:
// delivery failures are logged and audited, never returned.
func (s *Scheduler) ScheduleFollowUp(kind, applicationNumber string, delay time.Duration, task Task) {
	atomic.AddInt64(&s.pending, 1)

	time.AfterFunc(delay, func() {
		s.pool.Submit(func() {
			defer atomic.AddInt64(&s.pending, -1)
			s.run(kind, applicationNumber, task)
		})
	})
}

func (s *Scheduler) run(kind, applicationNumber string, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), s.taskTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("follow-up %s panicked: %v", kind, r)
			logger.Error(ctx, message)
			if s.audit != nil && applicationNumber != "" {
				s.audit.AppendError(ctx, applicationNumber, kind, message)
			}
		}
	}()

	if err := task(ctx); err != nil {
		logger.Error(ctx, "follow-up %s for %s failed: %v", kind, applicationNumber, err)
		if s.audit != nil && applicationNumber != "" {
			s.audit.AppendError(ctx, applicationNumber, kind, err.Error())
		}
	}
}

// QueueDepth reports how many follow-ups are scheduled or running.
func (s *Scheduler) QueueDepth() int64 {
	return atomic.LoadInt64(&s.pending)
}
