package worker

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/emailmind/emailmind/internal/ai"
)

const (
	maxAnalysisAttempts = 3
	retryBaseDelay      = 60 * time.Second
)

// AIWorker consumes analysis jobs and annotates emails with the
// configured analyzer. Failures retry with exponential backoff; after
// the attempt budget the email is marked failed for the daily reprocess
// sweep.
type AIWorker struct {
	analyzer ai.Analyzer
	emails   EmailStore
	owners   AccountOwnerStore
	queue    *Queue
}

// AccountOwnerStore resolves which user owns an account.
type AccountOwnerStore interface {
	OwnerOf(ctx context.Context, accountID string) (string, error)
}

// NewAIWorker creates an AI analysis worker.
func NewAIWorker(analyzer ai.Analyzer, emails EmailStore, owners AccountOwnerStore, queue *Queue) *AIWorker {
	return &AIWorker{analyzer: analyzer, emails: emails, owners: owners, queue: queue}
}

// Process handles one analysis job.
func (w *AIWorker) Process(ctx context.Context, job *Job) error {
	email, err := w.emails.Get(ctx, job.UserID, job.EmailID)
	if err != nil {
		return err
	}

	analysis, err := w.analyzer.AnalyzeEmail(ctx, email.Subject, email.BodyText)
	if err != nil {
		return w.retryOrFail(ctx, job, err)
	}
	if err := w.emails.SetAnnotations(ctx, job.EmailID, *analysis); err != nil {
		return err
	}
	log.Printf("[worker.AIWorker] Analyzed email %s: category=%s priority=%s", job.EmailID, analysis.Category, analysis.Priority)
	return nil
}

// retryOrFail schedules a retry with 60s, 120s, 240s backoff, or marks
// the email failed once attempts run out.
func (w *AIWorker) retryOrFail(ctx context.Context, job *Job, cause error) error {
	job.Attempts++
	if job.Attempts < maxAnalysisAttempts {
		delay := time.Duration(math.Pow(2, float64(job.Attempts-1))) * retryBaseDelay
		log.Printf("[worker.AIWorker] Analysis of email %s failed (attempt %d): %v, retrying in %s", job.EmailID, job.Attempts, cause, delay)
		return w.queue.EnqueueDelayed(ctx, job, delay)
	}

	log.Printf("[worker.AIWorker] Analysis of email %s failed permanently: %v", job.EmailID, cause)
	return w.emails.MarkFailed(ctx, job.EmailID, cause.Error())
}

// ReprocessFailed re-queues emails that failed analysis in the last day.
// Run by the scheduler's daily sweep.
func (w *AIWorker) ReprocessFailed(ctx context.Context, limit int) (int, error) {
	failed, err := w.emails.ListFailedSince(ctx, time.Now().Add(-24*time.Hour), limit)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, email := range failed {
		userID, err := w.owners.OwnerOf(ctx, email.AccountID)
		if err != nil {
			log.Printf("[worker.AIWorker] Cannot resolve owner of account %s: %v", email.AccountID, err)
			continue
		}
		job := NewJob(QueueAIAnalysis, JobAnalyzeEmail, userID)
		job.AccountID = email.AccountID
		job.EmailID = email.ID
		if err := w.queue.Enqueue(ctx, job); err != nil {
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		log.Printf("[worker.AIWorker] Requeued %d failed emails for reprocessing", queued)
	}
	return queued, nil
}

// Run consumes analysis jobs until the context is canceled.
func (w *AIWorker) Run(ctx context.Context) {
	log.Printf("[worker.AIWorker] Started")
	for {
		if ctx.Err() != nil {
			log.Printf("[worker.AIWorker] Stopped")
			return
		}
		job, err := w.queue.Dequeue(ctx, QueueAIAnalysis, 5*time.Second)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[worker.AIWorker] Dequeue error: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := w.Process(ctx, job); err != nil {
			log.Printf("[worker.AIWorker] Job %s failed: %v", job.ID, err)
		}
	}
}
