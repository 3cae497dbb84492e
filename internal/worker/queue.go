package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue names. Jobs are JSON blobs moved with LPUSH/BRPOP; delayed
// retries sit in a sorted set scored by their ready time.
const (
	QueueSync       = "emailmind:queue:sync"
	QueueAIAnalysis = "emailmind:queue:ai_analysis"
	QueueReports    = "emailmind:queue:reports"

	delayedSet = "emailmind:queue:delayed"
)

// Job types.
const (
	JobSyncAccount  = "sync_account"
	JobAnalyzeEmail = "analyze_email"
	JobWeeklyReport = "weekly_report"
)

// Job is one unit of background work.
type Job struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Queue     string `json:"queue"`
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id,omitempty"`
	EmailID   string `json:"email_id,omitempty"`

	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates a job bound to a queue.
func NewJob(queue, jobType, userID string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Queue:      queue,
		UserID:     userID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is a Redis-backed job queue.
type Queue struct {
	redis *redis.Client
}

// NewQueue creates a queue on the given Redis client.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{redis: client}
}

// Enqueue pushes a job onto its queue.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.redis.LPush(ctx, job.Queue, data).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue blocks up to timeout waiting for a job. Returns nil with no
// error when the timeout elapses.
func (q *Queue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	res, err := q.redis.BRPop(ctx, timeout, queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue from %s: %w", queue, err)
	}
	// BRPOP returns [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// EnqueueDelayed schedules a job to become runnable after the delay.
func (q *Queue) EnqueueDelayed(ctx context.Context, job *Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	readyAt := float64(time.Now().Add(delay).Unix())
	if err := q.redis.ZAdd(ctx, delayedSet, redis.Z{Score: readyAt, Member: data}).Err(); err != nil {
		return fmt.Errorf("schedule job %s: %w", job.ID, err)
	}
	return nil
}

// PromoteDelayed moves due delayed jobs back onto their queues. Returns
// how many were promoted.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	members, err := q.redis.ZRangeByScore(ctx, delayedSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	promoted := 0
	for _, raw := range members {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.redis.ZRem(ctx, delayedSet, raw)
			continue
		}
		// Remove before pushing so a crash duplicates nothing.
		removed, err := q.redis.ZRem(ctx, delayedSet, raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.redis.LPush(ctx, job.Queue, raw).Err(); err != nil {
			return promoted, fmt.Errorf("promote job %s: %w", job.ID, err)
		}
		promoted++
	}
	return promoted, nil
}

// Depth returns the number of pending jobs on a queue.
func (q *Queue) Depth(ctx context.Context, queue string) (int64, error) {
	return q.redis.LLen(ctx, queue).Result()
}

// DelayedDepth returns the number of scheduled jobs.
func (q *Queue) DelayedDepth(ctx context.Context) (int64, error) {
	return q.redis.ZCard(ctx, delayedSet).Result()
}
