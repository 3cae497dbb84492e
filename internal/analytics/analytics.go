// Package analytics computes email statistics for the dashboard: volume
// overviews, sender rankings, time series, category trends, and response
// time productivity metrics. Everything is SQL aggregation; no model
// calls happen here.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lib/pq"
)

// Service computes analytics directly against PostgreSQL.
type Service struct{ db *sql.DB }

// NewService creates an analytics service.
func NewService(db *sql.DB) *Service { return &Service{db: db} }

// Overview is the headline dashboard numbers for a date range.
type Overview struct {
	TotalEmails          int             `json:"total_emails"`
	UnreadEmails         int             `json:"unread_emails"`
	ImportantEmails      int             `json:"important_emails"`
	AvgResponseTimeHours float64         `json:"avg_response_time_hours"`
	TopCategories        []CategoryCount `json:"top_categories"`
	DateRangeDays        int             `json:"date_range_days"`
}

// CategoryCount is one category's email volume.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// SenderStats summarizes one sender's traffic.
type SenderStats struct {
	SenderEmail     string    `json:"sender_email"`
	SenderName      string    `json:"sender_name"`
	TotalEmails     int       `json:"total_emails"`
	UnreadEmails    int       `json:"unread_emails"`
	AvgSentiment    float64   `json:"avg_sentiment"`
	LastEmailDate   time.Time `json:"last_email_date"`
	PrimaryCategory string    `json:"primary_category"`
}

// TimeSeriesPoint is one bucket of the volume time series.
type TimeSeriesPoint struct {
	Timestamp    string `json:"timestamp"`
	TotalEmails  int    `json:"total_emails"`
	UnreadEmails int    `json:"unread_emails"`
	Important    int    `json:"high_priority_emails"`
}

// TimeSeries is email volume bucketed by hour, day, or week.
type TimeSeries struct {
	DataPoints      []TimeSeriesPoint `json:"data_points"`
	Granularity     string            `json:"granularity"`
	VolumeTrendPct  float64           `json:"volume_trend_percentage"`
	TotalDataPoints int               `json:"total_data_points"`
}

// CategoryBreakdown is one category's share and movement vs the previous
// period of the same length.
type CategoryBreakdown struct {
	Category     string  `json:"category"`
	EmailCount   int     `json:"email_count"`
	Percentage   float64 `json:"percentage"`
	TrendPct     float64 `json:"trend_percentage"`
	AvgSentiment float64 `json:"avg_sentiment"`
	UnreadCount  int     `json:"unread_count"`
}

// ResponseTimes holds response latency statistics in mixed units,
// matching what the dashboard renders.
type ResponseTimes struct {
	AvgResponseHours    float64 `json:"avg_response_hours"`
	MedianResponseHours float64 `json:"median_response_hours"`
	MinResponseMinutes  float64 `json:"min_response_minutes"`
	MaxResponseHours    float64 `json:"max_response_hours"`
	TotalResponded      int     `json:"total_responded_emails"`
}

// HourCount is email volume for one hour of the day (0-23).
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// DayCount is email volume for one day of the week.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Productivity bundles response times with receipt patterns.
type Productivity struct {
	ResponseTimes ResponseTimes `json:"response_times"`
	Hourly        []HourCount   `json:"hourly_distribution"`
	Weekly        []DayCount    `json:"weekly_distribution"`
}

func clampDays(days int) int {
	if days < 1 {
		return 30
	}
	if days > 365 {
		return 365
	}
	return days
}

// Overview returns the headline numbers for the last N days.
func (s *Service) Overview(ctx context.Context, userID string, days int) (*Overview, error) {
	days = clampDays(days)
	interval := fmt.Sprintf("%d days", days)
	o := &Overview{DateRangeDays: days}

	var avgResponseMinutes sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE NOT e.is_read),
			COUNT(*) FILTER (WHERE e.is_important OR e.ai_importance_score >= 0.8),
			AVG(e.response_time_minutes)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval AND e.deleted_at IS NULL
	`, userID, interval).Scan(&o.TotalEmails, &o.UnreadEmails, &o.ImportantEmails, &avgResponseMinutes)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	if avgResponseMinutes.Valid {
		o.AvgResponseTimeHours = math.Round(avgResponseMinutes.Float64/60*100) / 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.ai_category, COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval
		  AND e.ai_category IS NOT NULL AND e.ai_category <> '' AND e.deleted_at IS NULL
		GROUP BY e.ai_category
		ORDER BY COUNT(*) DESC
		LIMIT 5
	`, userID, interval)
	if err != nil {
		return nil, fmt.Errorf("overview categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		o.TopCategories = append(o.TopCategories, c)
	}
	return o, rows.Err()
}

// TopSenders ranks senders by volume over the last N days.
func (s *Service) TopSenders(ctx context.Context, userID string, days, limit int) ([]SenderStats, error) {
	days = clampDays(days)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.sender_email, COALESCE(MAX(e.sender_name), ''),
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT e.is_read),
			COALESCE(AVG(e.ai_sentiment_score), 0),
			MAX(e.received_date),
			array_agg(e.ai_category) FILTER (WHERE e.ai_category IS NOT NULL AND e.ai_category <> '')
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval
		  AND e.sender_email <> '' AND e.deleted_at IS NULL
		GROUP BY e.sender_email
		ORDER BY COUNT(*) DESC
		LIMIT $3
	`, userID, fmt.Sprintf("%d days", days), limit)
	if err != nil {
		return nil, fmt.Errorf("top senders: %w", err)
	}
	defer rows.Close()

	var out []SenderStats
	for rows.Next() {
		var st SenderStats
		var categories []sql.NullString
		if err := rows.Scan(&st.SenderEmail, &st.SenderName, &st.TotalEmails, &st.UnreadEmails,
			&st.AvgSentiment, &st.LastEmailDate, pq.Array(&categories)); err != nil {
			return nil, fmt.Errorf("scan sender: %w", err)
		}
		st.AvgSentiment = math.Round(st.AvgSentiment*100) / 100
		if st.SenderName == "" {
			st.SenderName = st.SenderEmail
		}
		st.PrimaryCategory = mostCommon(categories)
		out = append(out, st)
	}
	return out, rows.Err()
}

func mostCommon(values []sql.NullString) string {
	counts := map[string]int{}
	for _, v := range values {
		if v.Valid && v.String != "" {
			counts[v.String]++
		}
	}
	best, bestN := "uncategorized", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

var granularityFormats = map[string]string{
	"hour": "YYYY-MM-DD HH24:00",
	"day":  "YYYY-MM-DD",
	"week": "YYYY-MM-DD",
}

// TimeSeries buckets email volume by the given granularity (hour, day, or
// week) and reports the volume trend of the last 7 buckets against the 7
// before them.
func (s *Service) TimeSeries(ctx context.Context, userID string, days int, granularity string) (*TimeSeries, error) {
	days = clampDays(days)
	format, ok := granularityFormats[granularity]
	if !ok {
		granularity, format = "day", granularityFormats["day"]
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(date_trunc($3, e.received_date), $4),
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT e.is_read),
			COUNT(*) FILTER (WHERE e.ai_importance_score >= 0.8)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval AND e.deleted_at IS NULL
		GROUP BY 1
		ORDER BY 1
	`, userID, fmt.Sprintf("%d days", days), granularity, format)
	if err != nil {
		return nil, fmt.Errorf("time series: %w", err)
	}
	defer rows.Close()

	ts := &TimeSeries{Granularity: granularity}
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Timestamp, &p.TotalEmails, &p.UnreadEmails, &p.Important); err != nil {
			return nil, fmt.Errorf("scan time series point: %w", err)
		}
		ts.DataPoints = append(ts.DataPoints, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ts.TotalDataPoints = len(ts.DataPoints)
	ts.VolumeTrendPct = volumeTrend(ts.DataPoints)
	return ts, nil
}

func volumeTrend(points []TimeSeriesPoint) float64 {
	if len(points) < 14 {
		return 0
	}
	current, previous := 0, 0
	for _, p := range points[len(points)-7:] {
		current += p.TotalEmails
	}
	for _, p := range points[len(points)-14 : len(points)-7] {
		previous += p.TotalEmails
	}
	if previous == 0 {
		return 0
	}
	return math.Round(float64(current-previous)/float64(previous)*100*100) / 100
}

// CategoryTrends compares each category's volume in the last N days with
// the N days before, sorted by volume.
func (s *Service) CategoryTrends(ctx context.Context, userID string, days int) ([]CategoryBreakdown, error) {
	days = clampDays(days)
	interval := fmt.Sprintf("%d days", days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.ai_category, COUNT(*),
			COALESCE(AVG(e.ai_sentiment_score), 0),
			COUNT(*) FILTER (WHERE NOT e.is_read)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval
		  AND e.ai_category IS NOT NULL AND e.ai_category <> '' AND e.deleted_at IS NULL
		GROUP BY e.ai_category
	`, userID, interval)
	if err != nil {
		return nil, fmt.Errorf("category trends: %w", err)
	}
	defer rows.Close()

	var out []CategoryBreakdown
	total := 0
	for rows.Next() {
		var c CategoryBreakdown
		if err := rows.Scan(&c.Category, &c.EmailCount, &c.AvgSentiment, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan category trend: %w", err)
		}
		c.AvgSentiment = math.Round(c.AvgSentiment*100) / 100
		total += c.EmailCount
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prevRows, err := s.db.QueryContext(ctx, `
		SELECT e.ai_category, COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1
		  AND e.received_date >= NOW() - ($2::interval * 2)
		  AND e.received_date < NOW() - $2::interval
		  AND e.ai_category IS NOT NULL AND e.ai_category <> '' AND e.deleted_at IS NULL
		GROUP BY e.ai_category
	`, userID, interval)
	if err != nil {
		return nil, fmt.Errorf("category trends previous: %w", err)
	}
	defer prevRows.Close()

	previous := map[string]int{}
	for prevRows.Next() {
		var category string
		var n int
		if err := prevRows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scan previous category: %w", err)
		}
		previous[category] = n
	}
	if err := prevRows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if total > 0 {
			out[i].Percentage = math.Round(float64(out[i].EmailCount)/float64(total)*100*100) / 100
		}
		if prev := previous[out[i].Category]; prev > 0 {
			out[i].TrendPct = math.Round(float64(out[i].EmailCount-prev)/float64(prev)*100*100) / 100
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EmailCount > out[j].EmailCount })
	return out, nil
}

// Productivity returns response latency statistics and when email arrives
// by hour of day and day of week.
func (s *Service) Productivity(ctx context.Context, userID string, days int) (*Productivity, error) {
	days = clampDays(days)
	interval := fmt.Sprintf("%d days", days)
	p := &Productivity{}

	var avg, median, min, max sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(e.response_time_minutes),
			percentile_cont(0.5) WITHIN GROUP (ORDER BY e.response_time_minutes),
			MIN(e.response_time_minutes),
			MAX(e.response_time_minutes),
			COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval
		  AND e.response_time_minutes IS NOT NULL AND e.deleted_at IS NULL
	`, userID, interval).Scan(&avg, &median, &min, &max, &p.ResponseTimes.TotalResponded)
	if err != nil {
		return nil, fmt.Errorf("productivity response times: %w", err)
	}
	p.ResponseTimes.AvgResponseHours = roundHours(avg)
	p.ResponseTimes.MedianResponseHours = roundHours(median)
	if min.Valid {
		p.ResponseTimes.MinResponseMinutes = min.Float64
	}
	p.ResponseTimes.MaxResponseHours = roundHours(max)

	hourRows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(HOUR FROM e.received_date)::int, COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval AND e.deleted_at IS NULL
		GROUP BY 1
		ORDER BY 1
	`, userID, interval)
	if err != nil {
		return nil, fmt.Errorf("productivity hourly: %w", err)
	}
	defer hourRows.Close()

	for hourRows.Next() {
		var h HourCount
		if err := hourRows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, fmt.Errorf("scan hourly: %w", err)
		}
		p.Hourly = append(p.Hourly, h)
	}
	if err := hourRows.Err(); err != nil {
		return nil, err
	}

	dowRows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(DOW FROM e.received_date)::int, COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval AND e.deleted_at IS NULL
		GROUP BY 1
		ORDER BY 1
	`, userID, interval)
	if err != nil {
		return nil, fmt.Errorf("productivity weekly: %w", err)
	}
	defer dowRows.Close()

	dayNames := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	for dowRows.Next() {
		var dow, count int
		if err := dowRows.Scan(&dow, &count); err != nil {
			return nil, fmt.Errorf("scan weekly: %w", err)
		}
		if dow >= 0 && dow < len(dayNames) {
			p.Weekly = append(p.Weekly, DayCount{Day: dayNames[dow], Count: count})
		}
	}
	return p, dowRows.Err()
}

func roundHours(minutes sql.NullFloat64) float64 {
	if !minutes.Valid {
		return 0
	}
	return math.Round(minutes.Float64/60*100) / 100
}
