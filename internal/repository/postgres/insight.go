package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/emailmind/emailmind/internal/domain"
)

// InsightRepo implements AI insight persistence against PostgreSQL.
type InsightRepo struct{ db *sql.DB }

// NewInsightRepo creates a Postgres-backed insight repository.
func NewInsightRepo(db *sql.DB) *InsightRepo { return &InsightRepo{db: db} }

func (r *InsightRepo) Create(ctx context.Context, in *domain.AIInsight) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Data == nil {
		in.Data = json.RawMessage("{}")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_insights (id, user_id, insight_type, time_period, insights_data, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, in.ID, in.UserID, in.Type, in.TimePeriod, []byte(in.Data))
	if err != nil {
		return fmt.Errorf("create insight: %w", err)
	}
	return nil
}

// ListByUser returns the user's insights newest first, optionally filtered
// by type.
func (r *InsightRepo) ListByUser(ctx context.Context, userID string, typ domain.InsightType, limit int) ([]domain.AIInsight, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}

	query := `SELECT id, user_id, insight_type, COALESCE(time_period,''), insights_data, created_at
		FROM ai_insights WHERE user_id = $1`
	args := []any{userID}
	if typ != "" {
		args = append(args, typ)
		query += fmt.Sprintf(" AND insight_type = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var out []domain.AIInsight
	for rows.Next() {
		var in domain.AIInsight
		var data []byte
		if err := rows.Scan(&in.ID, &in.UserID, &in.Type, &in.TimePeriod, &data, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		in.Data = json.RawMessage(data)
		out = append(out, in)
	}
	return out, rows.Err()
}

// Latest returns the most recent insight of a type, or ErrNotFound.
func (r *InsightRepo) Latest(ctx context.Context, userID string, typ domain.InsightType) (*domain.AIInsight, error) {
	var in domain.AIInsight
	var data []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, insight_type, COALESCE(time_period,''), insights_data, created_at
		FROM ai_insights
		WHERE user_id = $1 AND insight_type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, typ).Scan(&in.ID, &in.UserID, &in.Type, &in.TimePeriod, &data, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest insight: %w", err)
	}
	in.Data = json.RawMessage(data)
	return &in, nil
}
