package insight_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/insight"
)

// stubAnalyzer returns a canned completion.
type stubAnalyzer struct {
	reply string
	err   error
	calls int
}

func (s *stubAnalyzer) AnalyzeEmail(context.Context, string, string) (*domain.EmailAnalysis, error) {
	return nil, nil
}

func (s *stubAnalyzer) Complete(context.Context, string, string, int, float64) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubStats struct {
	engagement []insight.SenderEngagement
	daily      []insight.DailyCount
	summary    *insight.PeriodSummary
}

func (s *stubStats) SenderEngagement(context.Context, string, time.Time) ([]insight.SenderEngagement, error) {
	return s.engagement, nil
}

func (s *stubStats) DailyCounts(context.Context, string, int) ([]insight.DailyCount, error) {
	return s.daily, nil
}

func (s *stubStats) PeriodSummary(context.Context, string, int) (*insight.PeriodSummary, error) {
	return s.summary, nil
}

type memStore struct{ created []domain.AIInsight }

func (m *memStore) Create(_ context.Context, in *domain.AIInsight) error {
	m.created = append(m.created, *in)
	return nil
}

func (m *memStore) ListByUser(_ context.Context, _ string, typ domain.InsightType, _ int) ([]domain.AIInsight, error) {
	var out []domain.AIInsight
	for _, in := range m.created {
		if typ == "" || in.Type == typ {
			out = append(out, in)
		}
	}
	return out, nil
}

func (m *memStore) Latest(_ context.Context, _ string, _ domain.InsightType) (*domain.AIInsight, error) {
	if len(m.created) == 0 {
		return nil, nil
	}
	return &m.created[len(m.created)-1], nil
}

func days(counts ...int) []insight.DailyCount {
	out := make([]insight.DailyCount, len(counts))
	base := time.Now().AddDate(0, 0, -len(counts))
	for i, c := range counts {
		out[i] = insight.DailyCount{Date: base.AddDate(0, 0, i), Count: c}
	}
	return out
}

func TestUnsubscribeCandidates(t *testing.T) {
	stats := &stubStats{engagement: []insight.SenderEngagement{
		{Sender: "deals@shop.com", Count: 20, Opened: 1},   // 5% open rate
		{Sender: "news@paper.com", Count: 10, Opened: 5},   // 50%, engaged
		{Sender: "spam@blast.com", Count: 4, Opened: 0},    // too few emails
		{Sender: "digest@site.com", Count: 12, Opened: 0},  // 0%
	}}
	svc := insight.NewService(stats, &memStore{}, &stubAnalyzer{})

	candidates, err := svc.UnsubscribeCandidates(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	// 5% open rate over 20 emails: confidence min(0.9, 0.95*20/20) = 0.9
	assert.Equal(t, "deals@shop.com", candidates[0].Sender)
	assert.InDelta(t, 0.9, candidates[0].Confidence, 1e-9)

	// 0% open rate over 12 emails: confidence min(0.9, 1.0*12/20) = 0.6
	assert.Equal(t, "digest@site.com", candidates[1].Sender)
	assert.InDelta(t, 0.6, candidates[1].Confidence, 1e-9)
}

func TestUnsubscribeCandidatesOrdering(t *testing.T) {
	stats := &stubStats{engagement: []insight.SenderEngagement{
		{Sender: "a@x.com", Count: 12, Opened: 0}, // confidence 0.6
		{Sender: "b@x.com", Count: 20, Opened: 1}, // confidence 0.9
	}}
	svc := insight.NewService(stats, &memStore{}, &stubAnalyzer{})

	candidates, err := svc.UnsubscribeCandidates(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "b@x.com", candidates[0].Sender)
	assert.Equal(t, "a@x.com", candidates[1].Sender)
}

func TestPredictTrendsInsufficientData(t *testing.T) {
	svc := insight.NewService(&stubStats{daily: days(3, 4, 5)}, &memStore{}, &stubAnalyzer{})

	_, err := svc.PredictTrends(context.Background(), "u1")
	assert.ErrorIs(t, err, insight.ErrInsufficientData)
}

func TestPredictTrendsIncreasing(t *testing.T) {
	// Previous week 70 emails, recent week 140.
	store := &memStore{}
	svc := insight.NewService(&stubStats{
		daily: days(10, 10, 10, 10, 10, 10, 10, 20, 20, 20, 20, 20, 20, 20),
	}, store, &stubAnalyzer{})

	p, err := svc.PredictTrends(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "increasing", p.Direction)
	assert.InDelta(t, 100.0, p.ChangePercent, 1e-9)
	assert.Equal(t, 280, p.PredictedNextWeek)
	assert.InDelta(t, 14.0/30, p.Confidence, 1e-9)

	require.Len(t, store.created, 1)
	assert.Equal(t, domain.InsightTrendPrediction, store.created[0].Type)
}

func TestExecutiveSummaryTierGate(t *testing.T) {
	svc := insight.NewService(&stubStats{}, &memStore{}, &stubAnalyzer{})

	_, err := svc.ExecutiveSummary(context.Background(), &domain.User{
		ID: "u1", Tier: domain.TierStarter,
	}, "week")
	assert.ErrorIs(t, err, insight.ErrTierRequired)
}

func TestExecutiveSummary(t *testing.T) {
	analyzer := &stubAnalyzer{reply: `{"highlights":["Inbox under control"],"concerns":["Slow replies to clients"],"recommendations":["Batch email twice daily"]}`}
	store := &memStore{}
	svc := insight.NewService(&stubStats{
		summary: &insight.PeriodSummary{TotalEmails: 200, ImportantCount: 12, ActionRequired: 30, RepliedCount: 50},
	}, store, analyzer)

	out, err := svc.ExecutiveSummary(context.Background(), &domain.User{
		ID: "u1", Tier: domain.TierProfessional,
	}, "week")
	require.NoError(t, err)
	assert.Equal(t, "week", out.Period)
	assert.Equal(t, []string{"Inbox under control"}, out.Highlights)
	assert.Equal(t, "200", out.KeyMetrics["total_emails"])
	assert.Equal(t, "25.0%", out.KeyMetrics["response_rate"])

	require.Len(t, store.created, 1)
	assert.Equal(t, domain.InsightExecutiveSummary, store.created[0].Type)
}

func TestPatternInsights(t *testing.T) {
	analyzer := &stubAnalyzer{reply: "```json\n" + `{"insights":[{"type":"productivity","title":"Mute the noise","description":"40% of volume is promotional.","impact":"high","action_items":["Unsubscribe from top 3 senders"]}]}` + "\n```"}
	store := &memStore{}
	svc := insight.NewService(&stubStats{
		summary: &insight.PeriodSummary{
			TotalEmails:    100,
			ActionRequired: 15,
			ByCategory:     map[string]int{"promotional": 40, "work": 60},
			ByPriority:     map[string]int{"high": 10},
		},
	}, store, analyzer)

	insights, err := svc.PatternInsights(context.Background(), "u1", "week")
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Mute the noise", insights[0].Title)
	assert.Equal(t, 1, analyzer.calls)
	require.Len(t, store.created, 1)
	assert.Equal(t, domain.InsightPatterns, store.created[0].Type)
}

func TestPatternInsightsNoEmails(t *testing.T) {
	svc := insight.NewService(&stubStats{summary: &insight.PeriodSummary{}}, &memStore{}, &stubAnalyzer{})
	_, err := svc.PatternInsights(context.Background(), "u1", "week")
	assert.ErrorIs(t, err, insight.ErrNoEmails)
}
