package worker

import (
	"context"
	"log"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/report"
	"github.com/emailmind/emailmind/internal/service/mailbox"
)

// ReportUserStore is the slice of user persistence reporting needs.
type ReportUserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListActive(ctx context.Context, limit int) ([]domain.User, error)
}

// StatsSource supplies mailbox statistics for the digest.
type StatsSource interface {
	Stats(ctx context.Context, userID string) (*mailbox.Stats, error)
}

// InsightSource generates the insight content for the digest.
type InsightSource interface {
	PatternInsights(ctx context.Context, userID, period string) ([]domain.ActionableInsight, error)
	UnsubscribeCandidates(ctx context.Context, userID string) ([]domain.UnsubscribeCandidate, error)
}

// ReportWorker builds and sends the weekly digest email.
type ReportWorker struct {
	users    ReportUserStore
	stats    StatsSource
	insights InsightSource
	reports  *report.Service
	queue    *Queue
}

// NewReportWorker creates a report worker.
func NewReportWorker(users ReportUserStore, stats StatsSource, insights InsightSource, reports *report.Service, queue *Queue) *ReportWorker {
	return &ReportWorker{users: users, stats: stats, insights: insights, reports: reports, queue: queue}
}

// EnqueueWeekly queues a report job for every active user.
func (w *ReportWorker) EnqueueWeekly(ctx context.Context) (int, error) {
	users, err := w.users.ListActive(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, user := range users {
		if err := w.queue.Enqueue(ctx, NewJob(QueueReports, JobWeeklyReport, user.ID)); err != nil {
			return 0, err
		}
	}
	log.Printf("[worker.ReportWorker] Queued weekly reports for %d users", len(users))
	return len(users), nil
}

// Process builds and sends one user's digest.
func (w *ReportWorker) Process(ctx context.Context, job *Job) error {
	user, err := w.users.GetByID(ctx, job.UserID)
	if err != nil {
		return err
	}

	stats, err := w.stats.Stats(ctx, user.ID)
	if err != nil {
		return err
	}

	digest := &report.Digest{
		User:        user,
		PeriodStart: time.Now().UTC().AddDate(0, 0, -7),
		PeriodEnd:   time.Now().UTC(),
		Stats:       stats,
	}

	// Insight generation is best effort; a digest with stats alone is
	// still worth sending.
	if insights, err := w.insights.PatternInsights(ctx, user.ID, "week"); err != nil {
		log.Printf("[worker.ReportWorker] Pattern insights for user %s: %v", user.ID, err)
	} else {
		for _, insight := range insights {
			digest.Insights = append(digest.Insights, insight.Title)
		}
	}
	if candidates, err := w.insights.UnsubscribeCandidates(ctx, user.ID); err != nil {
		log.Printf("[worker.ReportWorker] Unsubscribe scan for user %s: %v", user.ID, err)
	} else {
		digest.UnsubscribeCount = len(candidates)
	}

	return w.reports.SendDigest(ctx, digest)
}

// Run consumes report jobs until the context is canceled.
func (w *ReportWorker) Run(ctx context.Context) {
	log.Printf("[worker.ReportWorker] Started")
	for {
		if ctx.Err() != nil {
			log.Printf("[worker.ReportWorker] Stopped")
			return
		}
		job, err := w.queue.Dequeue(ctx, QueueReports, 5*time.Second)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[worker.ReportWorker] Dequeue error: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := w.Process(ctx, job); err != nil {
			log.Printf("[worker.ReportWorker] Job %s failed: %v", job.ID, err)
		}
	}
}
