package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/repository/postgres"
	"github.com/emailmind/emailmind/internal/service/mailbox"
)

func newMock(t *testing.T) (*postgres.EmailRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.NewEmailRepo(db), mock
}

func emailRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "email_account_id", "message_id", "thread_id",
		"subject", "sender_email", "sender_name", "recipient_emails", "cc_emails", "bcc_emails",
		"body_text", "body_html", "snippet", "sent_date", "received_date", "labels",
		"is_read", "is_replied", "is_important", "is_archived", "has_attachments",
		"response_time_minutes",
		"ai_category", "ai_importance_score", "ai_sentiment", "ai_sentiment_score",
		"ai_summary", "ai_action_items", "ai_confidence",
		"is_processed", "processing_error", "processed_at",
		"created_at", "updated_at",
	}).AddRow(
		"e1", "a1", "<msg-1@example.com>", "t1",
		"Quarterly report", "boss@corp.com", "The Boss",
		pq.Array([]string{"me@corp.com"}), pq.Array([]string{}), pq.Array([]string{}),
		"Please review.", "", "Please review.", now, now, pq.Array([]string{"INBOX"}),
		false, false, false, false, false,
		nil,
		"work", 0.8, "neutral", 0.0,
		"Review request", pq.Array([]string{"reply"}), 0.9,
		true, "", now,
		now, now,
	)
}

func TestEmailRepoList(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM emails e\s+JOIN email_accounts a ON a\.id = e\.email_account_id\s+WHERE a\.user_id = \$1 AND e\.is_archived = false AND e\.deleted_at IS NULL AND e\.ai_category = \$2 ORDER BY e\.received_date DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("u1", "work", 25, 0).
		WillReturnRows(emailRows())

	emails, err := repo.List(context.Background(), "u1", mailbox.ListFilter{
		Category: domain.CategoryWork,
		Limit:    25,
	})
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "e1", emails[0].ID)
	assert.Equal(t, domain.CategoryWork, emails[0].AICategory)
	assert.Equal(t, []string{"me@corp.com"}, emails[0].Recipients)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepoListCapsPageSize(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM emails e`).
		WithArgs("u1", 100, 0).
		WillReturnRows(emailRows())

	_, err := repo.List(context.Background(), "u1", mailbox.ListFilter{Limit: 5000})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepoGetNotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM emails e`).
		WithArgs("missing", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, mailbox.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepoExistsByMessageID(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("a1", "<msg-1@example.com>").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByMessageID(context.Background(), "a1", "<msg-1@example.com>")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepoSetReadMissingRow(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(`UPDATE emails SET is_read = \$1`).
		WithArgs(true, "missing", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRead(context.Background(), "u1", "missing", true)
	assert.ErrorIs(t, err, mailbox.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepoStats(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "unread", "important", "processed", "recent"}).
			AddRow(120, 30, 5, 110, 12))
	mock.ExpectQuery(`SELECT e\.ai_category, COUNT\(\*\)`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"ai_category", "count"}).
			AddRow("work", 70).
			AddRow("promotional", 40))

	stats, err := repo.Stats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 120, stats.Total)
	assert.Equal(t, 30, stats.Unread)
	assert.Equal(t, map[string]int{"work": 70, "promotional": 40}, stats.ByCategory)
	assert.NoError(t, mock.ExpectationsWereMet())
}
