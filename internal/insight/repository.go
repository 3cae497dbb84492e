package insight

import (
	"context"
	"errors"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
)

// Sentinel errors for the insight service layer.
var (
	ErrTierRequired     = errors.New("executive summary requires professional or enterprise plan")
	ErrInsufficientData = errors.New("insufficient data for trend analysis")
	ErrNoEmails         = errors.New("no emails found for analysis")
)

// SenderEngagement aggregates one sender's newsletter/promotional volume
// and how often the user opened it.
type SenderEngagement struct {
	Sender string
	Count  int
	Opened int
}

// DailyCount is one day's email volume.
type DailyCount struct {
	Date  time.Time
	Count int
}

// PeriodSummary aggregates a window of annotated email for prompt building.
type PeriodSummary struct {
	TotalEmails    int
	ActionRequired int
	AvgSentiment   float64
	ByCategory     map[string]int
	ByPriority     map[string]int
	TopSenders     map[string]int
	ImportantCount int
	RepliedCount   int
}

// Statistics defines the SQL aggregates the insight service reads.
type Statistics interface {
	// SenderEngagement returns per-sender volume and open counts for
	// newsletter/promotional email received since the given time.
	SenderEngagement(ctx context.Context, userID string, since time.Time) ([]SenderEngagement, error)

	// DailyCounts returns per-day email volume for the last N days,
	// oldest first. Days with no email are omitted.
	DailyCounts(ctx context.Context, userID string, days int) ([]DailyCount, error)

	// PeriodSummary aggregates the user's annotated email over the last
	// N days.
	PeriodSummary(ctx context.Context, userID string, days int) (*PeriodSummary, error)
}

// Store persists generated insights.
type Store interface {
	Create(ctx context.Context, in *domain.AIInsight) error
	ListByUser(ctx context.Context, userID string, typ domain.InsightType, limit int) ([]domain.AIInsight, error)
	Latest(ctx context.Context, userID string, typ domain.InsightType) (*domain.AIInsight, error)
}
