package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/emailmind/emailmind/internal/domain"
)

const defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailFetcher pulls messages through the Gmail REST API using the
// account's stored OAuth tokens. Expired access tokens are refreshed
// transparently by the oauth2 token source.
type GmailFetcher struct {
	oauthConfig *oauth2.Config
	baseURL     string
	httpClient  *http.Client
}

// GmailOption overrides GmailFetcher defaults.
type GmailOption func(*GmailFetcher)

// WithGmailBaseURL points the fetcher at a different API endpoint.
func WithGmailBaseURL(u string) GmailOption {
	return func(f *GmailFetcher) { f.baseURL = u }
}

// WithGmailHTTPClient replaces the transport, bypassing OAuth refresh.
func WithGmailHTTPClient(c *http.Client) GmailOption {
	return func(f *GmailFetcher) { f.httpClient = c }
}

// NewGmailFetcher creates a Gmail fetcher with the app's OAuth client
// credentials.
func NewGmailFetcher(clientID, clientSecret string, opts ...GmailOption) *GmailFetcher {
	f := &GmailFetcher{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.readonly",
				"https://www.googleapis.com/auth/gmail.modify",
			},
			Endpoint: google.Endpoint,
		},
		baseURL: defaultGmailBaseURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailPart struct {
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Headers  []gmailHeader `json:"headers"`
	Body     struct {
		Size int64  `json:"size"`
		Data string `json:"data"`
	} `json:"body"`
	Parts []gmailPart `json:"parts"`
}

type gmailMessage struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"threadId"`
	LabelIDs     []string  `json:"labelIds"`
	Snippet      string    `json:"snippet"`
	InternalDate string    `json:"internalDate"`
	Payload      gmailPart `json:"payload"`
}

type gmailMessageList struct {
	Messages []struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

func (f *GmailFetcher) client(ctx context.Context, account *domain.EmailAccount) *http.Client {
	if f.httpClient != nil {
		return f.httpClient
	}
	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
	}
	if account.TokenExpiresAt != nil {
		token.Expiry = *account.TokenExpiresAt
	}
	return oauth2.NewClient(ctx, f.oauthConfig.TokenSource(ctx, token))
}

func (f *GmailFetcher) get(ctx context.Context, client *http.Client, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail API status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Verify checks token validity by fetching the Gmail profile.
func (f *GmailFetcher) Verify(ctx context.Context, account *domain.EmailAccount) error {
	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	return f.get(ctx, f.client(ctx, account), "/users/me/profile", &profile)
}

// Fetch lists inbox messages since the given time and hydrates each one
// with a full-format get.
func (f *GmailFetcher) Fetch(ctx context.Context, account *domain.EmailAccount, since time.Time, max int) ([]Message, error) {
	if max <= 0 || max > 500 {
		max = 100
	}
	client := f.client(ctx, account)

	q := "in:inbox"
	if !since.IsZero() {
		q += fmt.Sprintf(" after:%d", since.Unix())
	}
	path := fmt.Sprintf("/users/me/messages?maxResults=%d&q=%s", max, url.QueryEscape(q))

	var list gmailMessageList
	if err := f.get(ctx, client, path, &list); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		var raw gmailMessage
		if err := f.get(ctx, client, "/users/me/messages/"+ref.ID+"?format=full", &raw); err != nil {
			return nil, err
		}
		messages = append(messages, parseGmailMessage(&raw))
	}
	return messages, nil
}

func parseGmailMessage(raw *gmailMessage) Message {
	headers := make(map[string]string, len(raw.Payload.Headers))
	for _, h := range raw.Payload.Headers {
		headers[http.CanonicalHeaderKey(h.Name)] = h.Value
	}

	msg := Message{
		MessageID: raw.ID,
		ThreadID:  raw.ThreadID,
		Subject:   decodeHeader(headers["Subject"]),
		Labels:    raw.LabelIDs,
		Snippet:   raw.Snippet,
		IsRead:    true,
	}
	for _, l := range raw.LabelIDs {
		if l == "UNREAD" {
			msg.IsRead = false
		}
	}

	if from, err := mail.ParseAddress(headers["From"]); err == nil {
		msg.SenderEmail = from.Address
		msg.SenderName = from.Name
	} else {
		msg.SenderEmail = headers["From"]
	}
	msg.Recipients = addressList(headers["To"])
	msg.CC = addressList(headers["Cc"])

	if ms, err := strconv.ParseInt(raw.InternalDate, 10, 64); err == nil && ms > 0 {
		msg.ReceivedDate = time.UnixMilli(ms).UTC()
	} else {
		msg.ReceivedDate = time.Now().UTC()
	}
	if date, err := mail.ParseDate(headers["Date"]); err == nil {
		msg.SentDate = date.UTC()
	} else {
		msg.SentDate = msg.ReceivedDate
	}

	walkGmailPart(&msg, &raw.Payload)
	msg.HasAttachments = len(msg.Attachments) > 0
	if msg.Snippet == "" {
		msg.Snippet = snippet(msg.BodyText, 200)
	}
	return msg
}

// walkGmailPart collects the first plain and HTML bodies plus attachment
// metadata. Gmail serves attachment bytes through a separate endpoint, so
// Data stays nil here.
func walkGmailPart(msg *Message, part *gmailPart) {
	if part.Filename != "" {
		msg.Attachments = append(msg.Attachments, AttachmentPart{
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Size:        part.Body.Size,
		})
		return
	}

	if part.Body.Data != "" {
		data, err := decodeBase64URL(part.Body.Data)
		if err == nil {
			switch part.MimeType {
			case "text/plain":
				if msg.BodyText == "" {
					msg.BodyText = string(data)
				}
			case "text/html":
				if msg.BodyHTML == "" {
					msg.BodyHTML = string(data)
				}
			}
		}
	}

	for i := range part.Parts {
		walkGmailPart(msg, &part.Parts[i])
	}
}

// decodeBase64URL accepts both padded and unpadded base64url, which the
// Gmail API mixes freely.
func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
