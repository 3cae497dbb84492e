package worker

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStatus is a point-in-time snapshot of worker infrastructure.
type HealthStatus struct {
	Healthy     bool             `json:"healthy"`
	Database    bool             `json:"database"`
	Redis       bool             `json:"redis"`
	QueueDepths map[string]int64 `json:"queue_depths"`
	CheckedAt   time.Time        `json:"checked_at"`
}

// HealthMonitor pings the database and Redis on an interval and tracks
// queue depths. The latest snapshot is served by the health endpoint.
type HealthMonitor struct {
	db       *sql.DB
	redis    *redis.Client
	queue    *Queue
	interval time.Duration

	mu     sync.RWMutex
	latest HealthStatus
}

// NewHealthMonitor creates a monitor with a 5 minute check interval.
func NewHealthMonitor(db *sql.DB, redisClient *redis.Client, queue *Queue) *HealthMonitor {
	return &HealthMonitor{
		db:       db,
		redis:    redisClient,
		queue:    queue,
		interval: 5 * time.Minute,
	}
}

// Status returns the most recent snapshot.
func (m *HealthMonitor) Status() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Check runs one health pass and records the snapshot.
func (m *HealthMonitor) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Database:    true,
		Redis:       true,
		QueueDepths: make(map[string]int64),
		CheckedAt:   time.Now().UTC(),
	}

	if err := m.db.PingContext(ctx); err != nil {
		status.Database = false
		log.Printf("[worker.HealthMonitor] Database ping failed: %v", err)
	}
	if err := m.redis.Ping(ctx).Err(); err != nil {
		status.Redis = false
		log.Printf("[worker.HealthMonitor] Redis ping failed: %v", err)
	} else {
		for _, name := range []string{QueueSync, QueueAIAnalysis, QueueReports} {
			depth, err := m.queue.Depth(ctx, name)
			if err != nil {
				log.Printf("[worker.HealthMonitor] Queue depth for %s: %v", name, err)
				continue
			}
			status.QueueDepths[name] = depth
		}
		if delayed, err := m.queue.DelayedDepth(ctx); err == nil {
			status.QueueDepths["delayed"] = delayed
		}
	}
	status.Healthy = status.Database && status.Redis

	m.mu.Lock()
	m.latest = status
	m.mu.Unlock()
	return status
}

// Run checks on an interval until the context is canceled.
func (m *HealthMonitor) Run(ctx context.Context) {
	log.Printf("[worker.HealthMonitor] Started (interval=%s)", m.interval)
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[worker.HealthMonitor] Stopped")
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
