package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/report"
	"github.com/emailmind/emailmind/internal/service/mailbox"
)

type fakeSender struct {
	to, subject, html, text string
	calls                   int
}

func (f *fakeSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error) {
	f.calls++
	f.to = to
	f.subject = subject
	f.html = htmlBody
	f.text = textBody
	return "msg-1", nil
}

func TestRendererFilters(t *testing.T) {
	r := report.NewRenderer()

	out, err := r.Render(`Hello {{ name | default: "there" }}`, map[string]interface{}{"name": ""})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)

	out, err = r.Render(`{{ rate | percent }}`, map[string]interface{}{"rate": 0.423})
	require.NoError(t, err)
	assert.Equal(t, "42.3%", out)
}

func TestSendDigest(t *testing.T) {
	sender := &fakeSender{}
	svc := report.NewService(sender)

	end := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	err := svc.SendDigest(context.Background(), &report.Digest{
		User:        &domain.User{ID: "u1", Email: "ada@example.com", FullName: "Ada Lovelace"},
		PeriodStart: end.AddDate(0, 0, -7),
		PeriodEnd:   end,
		Stats: &mailbox.Stats{
			Total:      120,
			Unread:     14,
			Important:  9,
			ByCategory: map[string]int{"work": 70, "newsletter": 30},
		},
		Insights:         []string{"Most email arrives before 10am", "Newsletters doubled this week"},
		UnsubscribeCount: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "ada@example.com", sender.to)
	assert.Equal(t, "Your EmailMind weekly report for Jun 8", sender.subject)
	assert.Contains(t, sender.html, "Your week in email, Ada")
	assert.Contains(t, sender.html, "<strong>120</strong>")
	assert.Contains(t, sender.html, "work")
	assert.Contains(t, sender.html, "Most email arrives before 10am")
	assert.Contains(t, sender.html, "<strong>3</strong> newsletters")
	assert.Contains(t, sender.text, "- Newsletters doubled this week")
}

func TestSendDigestNoStats(t *testing.T) {
	sender := &fakeSender{}
	svc := report.NewService(sender)

	err := svc.SendDigest(context.Background(), &report.Digest{
		User:      &domain.User{ID: "u1", Email: "bob@example.com", FullName: "Bob"},
		PeriodEnd: time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Contains(t, sender.html, "Your week in email, Bob")
	assert.Contains(t, sender.html, "<strong>0</strong>")
}
