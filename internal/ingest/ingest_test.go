package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emailmind/emailmind/internal/domain"
)

const multipartFixture = "From: Ada Lovelace <ada@example.com>\r\n" +
	"To: grace@example.com, alan@example.com\r\n" +
	"Cc: <kurt@example.com>\r\n" +
	"Subject: =?UTF-8?Q?Quarterly_plan?=\r\n" +
	"Date: Mon, 02 Jun 2025 10:30:00 +0000\r\n" +
	"Message-ID: <abc-123@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Please review the attached plan\r\nbefore Friday.\r\n" +
	"--outer\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Please review the attached plan before Friday.</p>\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf; name=\"plan.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"plan.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func TestParseRFC822Multipart(t *testing.T) {
	msg, err := parseRFC822(strings.NewReader(multipartFixture))
	require.NoError(t, err)

	assert.Equal(t, "abc-123@example.com", msg.MessageID)
	assert.Equal(t, "Quarterly plan", msg.Subject)
	assert.Equal(t, "ada@example.com", msg.SenderEmail)
	assert.Equal(t, "Ada Lovelace", msg.SenderName)
	assert.Equal(t, []string{"grace@example.com", "alan@example.com"}, msg.Recipients)
	assert.Equal(t, []string{"kurt@example.com"}, msg.CC)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC), msg.SentDate)

	assert.Contains(t, msg.BodyText, "Please review the attached plan")
	assert.Contains(t, msg.BodyHTML, "<p>")

	require.True(t, msg.HasAttachments)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "plan.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), msg.Attachments[0].Data)

	assert.Contains(t, msg.Snippet, "Please review")
	assert.NotContains(t, msg.Snippet, "\n")
}

func TestParseRFC822PlainBody(t *testing.T) {
	raw := "From: bob@example.com\r\n" +
		"Subject: hello\r\n" +
		"\r\n" +
		"just text\r\n"
	msg, err := parseRFC822(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", msg.SenderEmail)
	assert.Equal(t, "just text\r\n", msg.BodyText)
	assert.False(t, msg.HasAttachments)
	assert.False(t, msg.SentDate.IsZero())
}

func gmailBody(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestGmailFetch(t *testing.T) {
	var listQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/me/messages":
			listQuery = r.URL.Query().Get("q")
			json.NewEncoder(w).Encode(map[string]any{
				"messages": []map[string]string{{"id": "m1", "threadId": "t1"}},
			})
		case r.URL.Path == "/users/me/messages/m1":
			assert.Equal(t, "full", r.URL.Query().Get("format"))
			json.NewEncoder(w).Encode(map[string]any{
				"id":           "m1",
				"threadId":     "t1",
				"labelIds":     []string{"INBOX", "UNREAD"},
				"snippet":      "Standup moved to 10am",
				"internalDate": "1748858400000",
				"payload": map[string]any{
					"mimeType": "multipart/alternative",
					"headers": []map[string]string{
						{"name": "From", "value": "Carol <carol@example.com>"},
						{"name": "To", "value": "me@example.com"},
						{"name": "Subject", "value": "Standup"},
						{"name": "Date", "value": "Mon, 02 Jun 2025 10:00:00 +0000"},
					},
					"parts": []map[string]any{
						{
							"mimeType": "text/plain",
							"body":     map[string]any{"data": gmailBody("Standup moved to 10am."), "size": 22},
						},
						{
							"mimeType": "application/pdf",
							"filename": "agenda.pdf",
							"body":     map[string]any{"size": 1024},
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := NewGmailFetcher("cid", "secret",
		WithGmailBaseURL(server.URL),
		WithGmailHTTPClient(server.Client()),
	)
	account := &domain.EmailAccount{Provider: domain.ProviderGmail, AccessToken: "tok"}

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	msgs, err := f.Fetch(context.Background(), account, since, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "in:inbox after:1748736000", listQuery)

	got := msgs[0]
	assert.Equal(t, "m1", got.MessageID)
	assert.Equal(t, "t1", got.ThreadID)
	assert.Equal(t, "carol@example.com", got.SenderEmail)
	assert.Equal(t, "Carol", got.SenderName)
	assert.Equal(t, "Standup", got.Subject)
	assert.Equal(t, "Standup moved to 10am.", got.BodyText)
	assert.False(t, got.IsRead)
	assert.True(t, got.HasAttachments)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "agenda.pdf", got.Attachments[0].Filename)
	assert.Equal(t, time.UnixMilli(1748858400000).UTC(), got.ReceivedDate)
}

func TestGmailFetchAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":401}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	f := NewGmailFetcher("cid", "secret",
		WithGmailBaseURL(server.URL),
		WithGmailHTTPClient(server.Client()),
	)
	_, err := f.Fetch(context.Background(), &domain.EmailAccount{}, time.Time{}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.ProviderOutlook, NewOutlookFetcher())

	f, err := r.For(domain.ProviderOutlook)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), &domain.EmailAccount{}, time.Time{}, 10)
	assert.ErrorIs(t, err, ErrProviderNotImplemented)

	_, err = r.For(domain.ProviderGmail)
	assert.ErrorIs(t, err, ErrNoFetcher)
}
