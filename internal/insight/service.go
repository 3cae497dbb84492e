package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/emailmind/emailmind/internal/ai"
	"github.com/emailmind/emailmind/internal/domain"
)

// Service generates and persists AI insights.
type Service struct {
	stats    Statistics
	store    Store
	analyzer ai.Analyzer
}

// NewService creates an insight service.
func NewService(stats Statistics, store Store, analyzer ai.Analyzer) *Service {
	return &Service{stats: stats, store: store, analyzer: analyzer}
}

func periodDays(period string) int {
	switch period {
	case "month":
		return 30
	case "quarter":
		return 90
	default:
		return 7
	}
}

// PatternInsights analyzes the user's recent email patterns and returns
// 3-5 actionable insights. The result is persisted for History.
func (s *Service) PatternInsights(ctx context.Context, userID, period string) ([]domain.ActionableInsight, error) {
	days := periodDays(period)
	summary, err := s.stats.PeriodSummary(ctx, userID, days)
	if err != nil {
		return nil, err
	}
	if summary.TotalEmails == 0 {
		return nil, ErrNoEmails
	}

	categories, _ := json.Marshal(summary.ByCategory)
	priorities, _ := json.Marshal(summary.ByPriority)
	prompt := ai.InsightsPrompt(summary.TotalEmails, string(categories), string(priorities), summary.ActionRequired)

	reply, err := s.analyzer.Complete(ctx, ai.InsightsSystemPrompt, prompt, 800, 0.4)
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", err)
	}

	var parsed struct {
		Insights []domain.ActionableInsight `json:"insights"`
	}
	if err := json.Unmarshal([]byte(extractObject(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("parse insights: %w", err)
	}

	s.persist(ctx, userID, domain.InsightPatterns, period, parsed)
	return parsed.Insights, nil
}

// UnsubscribeCandidates flags low-engagement newsletter and promotional
// senders from the last 90 days: more than 5 emails with under a 10% open
// rate. Returns at most the 10 highest-confidence candidates.
func (s *Service) UnsubscribeCandidates(ctx context.Context, userID string) ([]domain.UnsubscribeCandidate, error) {
	since := time.Now().AddDate(0, 0, -90)
	engagement, err := s.stats.SenderEngagement(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	var candidates []domain.UnsubscribeCandidate
	for _, e := range engagement {
		if e.Count == 0 {
			continue
		}
		openRate := float64(e.Opened) / float64(e.Count)
		if e.Count > 5 && openRate < 0.1 {
			candidates = append(candidates, domain.UnsubscribeCandidate{
				Sender:     e.Sender,
				EmailCount: e.Count,
				OpenRate:   openRate,
				Reason:     fmt.Sprintf("Low engagement: %.1f%% open rate over %d emails", openRate*100, e.Count),
				Confidence: math.Min(0.9, (1-openRate)*(float64(e.Count)/20)),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}
	return candidates, nil
}

// PredictTrends forecasts next week's email volume from the last 30 days.
// Requires at least a week of history.
func (s *Service) PredictTrends(ctx context.Context, userID string) (*domain.TrendPrediction, error) {
	daily, err := s.stats.DailyCounts(ctx, userID, 30)
	if err != nil {
		return nil, err
	}
	if len(daily) < 7 {
		return nil, ErrInsufficientData
	}

	recent := 0
	for _, d := range daily[len(daily)-7:] {
		recent += d.Count
	}
	previous := 0
	if len(daily) >= 14 {
		for _, d := range daily[len(daily)-14 : len(daily)-7] {
			previous += d.Count
		}
	}

	direction := "decreasing"
	if recent > previous {
		direction = "increasing"
	}
	changePct := 0.0
	if previous > 0 {
		changePct = math.Abs(float64(recent-previous) / float64(previous) * 100)
	}

	factor := changePct / 100
	if direction == "decreasing" {
		factor = -factor
	}

	p := &domain.TrendPrediction{
		Direction:         direction,
		ChangePercent:     math.Round(changePct*10) / 10,
		PredictedNextWeek: int(float64(recent) * (1 + factor)),
		Confidence:        math.Min(0.8, float64(len(daily))/30),
		Recommendation:    fmt.Sprintf("Email volume is %s by %.1f%%", direction, changePct),
	}

	s.persist(ctx, userID, domain.InsightTrendPrediction, "month", p)
	return p, nil
}

// ExecutiveSummary builds the periodic digest for professional and
// enterprise users.
func (s *Service) ExecutiveSummary(ctx context.Context, user *domain.User, period string) (*domain.ExecutiveSummary, error) {
	if user.Tier != domain.TierProfessional && user.Tier != domain.TierEnterprise {
		return nil, ErrTierRequired
	}

	days := periodDays(period)
	summary, err := s.stats.PeriodSummary(ctx, user.ID, days)
	if err != nil {
		return nil, err
	}
	if summary.TotalEmails == 0 {
		return nil, ErrNoEmails
	}

	keyMetrics := map[string]string{
		"total_emails":     fmt.Sprintf("%d", summary.TotalEmails),
		"important_emails": fmt.Sprintf("%d", summary.ImportantCount),
		"action_required":  fmt.Sprintf("%d", summary.ActionRequired),
		"response_rate":    fmt.Sprintf("%.1f%%", responseRate(summary)),
	}
	metrics, _ := json.Marshal(keyMetrics)

	reply, err := s.analyzer.Complete(ctx, ai.ExecutiveSystemPrompt, ai.ExecutiveSummaryPrompt(period, string(metrics)), 600, 0.2)
	if err != nil {
		return nil, fmt.Errorf("generate executive summary: %w", err)
	}

	var parsed struct {
		Highlights      []string `json:"highlights"`
		Concerns        []string `json:"concerns"`
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(extractObject(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("parse executive summary: %w", err)
	}

	out := &domain.ExecutiveSummary{
		Period:          period,
		KeyMetrics:      keyMetrics,
		Highlights:      parsed.Highlights,
		Concerns:        parsed.Concerns,
		Recommendations: parsed.Recommendations,
		GeneratedAt:     time.Now().UTC(),
	}
	s.persist(ctx, user.ID, domain.InsightExecutiveSummary, period, out)
	return out, nil
}

// History lists previously generated insights, newest first.
func (s *Service) History(ctx context.Context, userID string, typ domain.InsightType, limit int) ([]domain.AIInsight, error) {
	return s.store.ListByUser(ctx, userID, typ, limit)
}

func (s *Service) persist(ctx context.Context, userID string, typ domain.InsightType, period string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[insight.Service] marshal %s insight: %v", typ, err)
		return
	}
	if err := s.store.Create(ctx, &domain.AIInsight{
		UserID:     userID,
		Type:       typ,
		TimePeriod: period,
		Data:       data,
	}); err != nil {
		log.Printf("[insight.Service] persist %s insight: %v", typ, err)
	}
}

func responseRate(s *PeriodSummary) float64 {
	if s.TotalEmails == 0 {
		return 0
	}
	return float64(s.RepliedCount) / float64(s.TotalEmails) * 100
}

// extractObject pulls the first JSON object out of a model reply that may
// be wrapped in prose or a code fence.
func extractObject(s string) string {
	start := -1
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return s
}
