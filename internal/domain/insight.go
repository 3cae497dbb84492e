package domain

import (
	"encoding/json"
	"time"
)

// InsightType identifies what kind of AI insight a record holds.
type InsightType string

const (
	InsightEmailAnalysis    InsightType = "email_analysis"
	InsightPatterns         InsightType = "email_patterns"
	InsightExecutiveSummary InsightType = "executive_summary"
	InsightTrendPrediction  InsightType = "trend_prediction"
	InsightThreadAnalysis   InsightType = "thread_analysis"
)

// AIInsight is a persisted AI-generated insight for a user.
type AIInsight struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	Type       InsightType     `json:"type" db:"insight_type"`
	TimePeriod string          `json:"time_period" db:"time_period"`
	Data       json.RawMessage `json:"data" db:"insights_data"`
	CreatedAt  time.Time       `json:"generated_at" db:"created_at"`
}

// EmailAnalysis is the full AI annotation for a single email.
type EmailAnalysis struct {
	Category       Category  `json:"category"`
	Priority       string    `json:"priority"`
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	KeyTopics      []string  `json:"key_topics"`
	RequiresAction bool      `json:"requires_action"`
	ActionType     string    `json:"action_type"`
	Summary        string    `json:"summary"`
	Confidence     float64   `json:"confidence_score"`
}

// ImportanceScore maps the model's priority label onto a 0..1 score.
func (a EmailAnalysis) ImportanceScore() float64 {
	switch a.Priority {
	case "urgent":
		return 1.0
	case "high":
		return 0.8
	case "medium":
		return 0.5
	case "low":
		return 0.2
	default:
		return 0.5
	}
}

// ActionItems lists the concrete follow-ups the analysis calls for.
func (a EmailAnalysis) ActionItems() []string {
	if !a.RequiresAction || a.ActionType == "" {
		return nil
	}
	return []string{a.ActionType}
}

// ActionableInsight is one recommendation produced from batch analysis.
type ActionableInsight struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Impact      string   `json:"impact"`
	ActionItems []string `json:"action_items"`
}

// UnsubscribeCandidate is a low-engagement sender the user may want to drop.
type UnsubscribeCandidate struct {
	Sender     string  `json:"sender"`
	EmailCount int     `json:"email_count"`
	OpenRate   float64 `json:"open_rate"`
	Reason     string  `json:"recommendation_reason"`
	Confidence float64 `json:"confidence"`
}

// TrendPrediction is the volume forecast computed from recent history.
type TrendPrediction struct {
	Direction         string  `json:"trend_direction"`
	ChangePercent     float64 `json:"trend_percentage"`
	PredictedNextWeek int     `json:"predicted_next_week"`
	Confidence        float64 `json:"confidence"`
	Recommendation    string  `json:"recommendation"`
}

// ExecutiveSummary is the professional/enterprise periodic digest.
type ExecutiveSummary struct {
	Period          string            `json:"period"`
	KeyMetrics      map[string]string `json:"key_metrics"`
	Highlights      []string          `json:"highlights"`
	Concerns        []string          `json:"concerns"`
	Recommendations []string          `json:"recommendations"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
