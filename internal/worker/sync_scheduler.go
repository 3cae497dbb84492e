package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/pkg/distlock"
)

// SchedulerUserStore is the slice of user persistence scheduling needs.
type SchedulerUserStore interface {
	ListSyncDue(ctx context.Context, staleAfter time.Duration, limit int) ([]domain.User, error)
	ResetMonthlyAPICounters(ctx context.Context) (int64, error)
}

// Scheduler ticks on an interval and enqueues sync jobs for users whose
// accounts have gone stale. One instance wins the distributed lock per
// tick, so the scheduler is safe to run on every worker node. It also
// owns the daily failed-email reprocess sweep and the monthly usage
// counter reset.
type Scheduler struct {
	users    SchedulerUserStore
	accounts AccountStore
	queue    *Queue
	aiWorker *AIWorker
	lock     distlock.Lock

	interval   time.Duration
	staleAfter time.Duration
	batchSize  int

	reports *ReportWorker

	lastReprocessDay string
	lastResetMonth   string
	lastReportWeek   string
}

// WithReportWorker enables the weekly digest pass.
func (s *Scheduler) WithReportWorker(w *ReportWorker) *Scheduler {
	s.reports = w
	return s
}

// NewScheduler creates the sync scheduler.
func NewScheduler(users SchedulerUserStore, accounts AccountStore, queue *Queue, aiWorker *AIWorker, lock distlock.Lock, interval, staleAfter time.Duration, batchSize int) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Scheduler{
		users:      users,
		accounts:   accounts,
		queue:      queue,
		aiWorker:   aiWorker,
		lock:       lock,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
	}
}

// Run ticks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[worker.Scheduler] Started (interval=%s, stale_after=%s)", s.interval, s.staleAfter)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Immediate first pass so a fresh deploy doesn't wait a full interval.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[worker.Scheduler] Stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass if this instance wins the lock.
func (s *Scheduler) Tick(ctx context.Context) {
	acquired, err := s.lock.TryAcquire(ctx)
	if err != nil {
		log.Printf("[worker.Scheduler] Lock error: %v", err)
		return
	}
	if !acquired {
		return
	}
	defer s.lock.Release(ctx)

	if n, err := s.queue.PromoteDelayed(ctx); err != nil {
		log.Printf("[worker.Scheduler] Promote delayed jobs: %v", err)
	} else if n > 0 {
		log.Printf("[worker.Scheduler] Promoted %d delayed jobs", n)
	}

	if err := s.enqueueStale(ctx); err != nil {
		log.Printf("[worker.Scheduler] Enqueue stale accounts: %v", err)
	}
	s.dailySweep(ctx)
	s.weeklyReports(ctx)
	s.monthlyReset(ctx)
}

// weeklyReports queues digests once per ISO week, on Sundays.
func (s *Scheduler) weeklyReports(ctx context.Context) {
	if s.reports == nil {
		return
	}
	now := time.Now().UTC()
	if now.Weekday() != time.Sunday {
		return
	}
	year, week := now.ISOWeek()
	key := fmt.Sprintf("%d-%02d", year, week)
	if s.lastReportWeek == key {
		return
	}
	if _, err := s.reports.EnqueueWeekly(ctx); err != nil {
		log.Printf("[worker.Scheduler] Weekly report pass: %v", err)
		return
	}
	s.lastReportWeek = key
}

func (s *Scheduler) enqueueStale(ctx context.Context) error {
	users, err := s.users.ListSyncDue(ctx, s.staleAfter, s.batchSize)
	if err != nil {
		return err
	}

	jobs := 0
	for _, user := range users {
		accounts, err := s.accounts.ListActiveByUser(ctx, user.ID)
		if err != nil {
			log.Printf("[worker.Scheduler] List accounts for user %s: %v", user.ID, err)
			continue
		}
		for _, account := range accounts {
			job := NewJob(QueueSync, JobSyncAccount, user.ID)
			job.AccountID = account.ID
			if err := s.queue.Enqueue(ctx, job); err != nil {
				return fmt.Errorf("enqueue sync for account %s: %w", account.ID, err)
			}
			jobs++
		}
	}
	if jobs > 0 {
		log.Printf("[worker.Scheduler] Queued %d sync jobs for %d users", jobs, len(users))
	}
	return nil
}

// dailySweep requeues yesterday's failed analyses once per day.
func (s *Scheduler) dailySweep(ctx context.Context) {
	if s.aiWorker == nil {
		return
	}
	today := time.Now().UTC().Format("2006-01-02")
	if s.lastReprocessDay == today {
		return
	}
	if _, err := s.aiWorker.ReprocessFailed(ctx, 500); err != nil {
		log.Printf("[worker.Scheduler] Reprocess sweep: %v", err)
		return
	}
	s.lastReprocessDay = today
}

// monthlyReset zeroes per-user API counters on the first tick of a new
// month.
func (s *Scheduler) monthlyReset(ctx context.Context) {
	month := time.Now().UTC().Format("2006-01")
	if s.lastResetMonth == "" {
		// Skip the reset on process start; counters were handled by the
		// previous run of this month.
		s.lastResetMonth = month
		return
	}
	if s.lastResetMonth == month {
		return
	}
	n, err := s.users.ResetMonthlyAPICounters(ctx)
	if err != nil {
		log.Printf("[worker.Scheduler] Monthly counter reset: %v", err)
		return
	}
	s.lastResetMonth = month
	log.Printf("[worker.Scheduler] Reset monthly API counters for %d users", n)
}
