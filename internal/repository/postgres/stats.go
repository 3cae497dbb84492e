package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emailmind/emailmind/internal/insight"
)

// StatsRepo implements insight.Statistics against PostgreSQL.
type StatsRepo struct{ db *sql.DB }

// NewStatsRepo creates a Postgres-backed statistics repository.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

func (r *StatsRepo) SenderEngagement(ctx context.Context, userID string, since time.Time) ([]insight.SenderEngagement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.sender_email, COUNT(*), COUNT(*) FILTER (WHERE e.is_read)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1
		  AND e.ai_category IN ('newsletter', 'promotional')
		  AND e.received_date >= $2
		  AND e.deleted_at IS NULL
		GROUP BY e.sender_email
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("sender engagement: %w", err)
	}
	defer rows.Close()

	var out []insight.SenderEngagement
	for rows.Next() {
		var e insight.SenderEngagement
		if err := rows.Scan(&e.Sender, &e.Count, &e.Opened); err != nil {
			return nil, fmt.Errorf("scan sender engagement: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *StatsRepo) DailyCounts(ctx context.Context, userID string, days int) ([]insight.DailyCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date_trunc('day', e.received_date) AS day, COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1
		  AND e.received_date >= NOW() - $2::interval
		  AND e.deleted_at IS NULL
		GROUP BY day
		ORDER BY day
	`, userID, fmt.Sprintf("%d days", days))
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	defer rows.Close()

	var out []insight.DailyCount
	for rows.Next() {
		var d insight.DailyCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *StatsRepo) PeriodSummary(ctx context.Context, userID string, days int) (*insight.PeriodSummary, error) {
	interval := fmt.Sprintf("%d days", days)
	s := &insight.PeriodSummary{
		ByCategory: map[string]int{},
		ByPriority: map[string]int{},
		TopSenders: map[string]int{},
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE cardinality(e.ai_action_items) > 0),
			COALESCE(AVG(e.ai_sentiment_score), 0),
			COUNT(*) FILTER (WHERE e.is_important),
			COUNT(*) FILTER (WHERE e.is_replied)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval AND e.deleted_at IS NULL
	`, userID, interval).Scan(&s.TotalEmails, &s.ActionRequired, &s.AvgSentiment, &s.ImportantCount, &s.RepliedCount)
	if err != nil {
		return nil, fmt.Errorf("period summary: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT e.ai_category,
			CASE
				WHEN e.ai_importance_score >= 0.8 THEN 'high'
				WHEN e.ai_importance_score >= 0.5 THEN 'medium'
				ELSE 'low'
			END AS priority,
			COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval
		  AND e.is_processed AND e.deleted_at IS NULL
		GROUP BY 1, 2
	`, userID, interval)
	if err != nil {
		return nil, fmt.Errorf("period summary breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category, priority string
		var n int
		if err := rows.Scan(&category, &priority, &n); err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		if category != "" {
			s.ByCategory[category] += n
		}
		s.ByPriority[priority] += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	senderRows, err := r.db.QueryContext(ctx, `
		SELECT e.sender_email, COUNT(*)
		FROM emails e
		JOIN email_accounts a ON a.id = e.email_account_id
		WHERE a.user_id = $1 AND e.received_date >= NOW() - $2::interval AND e.deleted_at IS NULL
		GROUP BY e.sender_email
		ORDER BY COUNT(*) DESC
		LIMIT 5
	`, userID, interval)
	if err != nil {
		return nil, fmt.Errorf("period summary senders: %w", err)
	}
	defer senderRows.Close()

	for senderRows.Next() {
		var sender string
		var n int
		if err := senderRows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan top sender: %w", err)
		}
		s.TopSenders[sender] = n
	}
	return s, senderRows.Err()
}
