package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
)

var (
	// ErrProviderNotImplemented is returned for providers we accept but
	// cannot fetch from yet.
	ErrProviderNotImplemented = errors.New("provider not implemented")

	// ErrNoFetcher is returned when no fetcher is registered for an
	// account's provider.
	ErrNoFetcher = errors.New("no fetcher for provider")
)

// AttachmentPart is one attachment found while parsing a message. Data is
// nil when the provider only reports metadata.
type AttachmentPart struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Message is a raw fetched email before persistence and AI analysis.
type Message struct {
	MessageID   string
	ThreadID    string
	Subject     string
	SenderName  string
	SenderEmail string
	Recipients  []string
	CC          []string

	BodyText string
	BodyHTML string
	Snippet  string

	SentDate       time.Time
	ReceivedDate   time.Time
	Labels         []string
	IsRead         bool
	HasAttachments bool
	Attachments    []AttachmentPart
}

// Fetcher pulls recent messages from one kind of mailbox.
type Fetcher interface {
	// Fetch returns up to max messages received since the given time,
	// newest first. A zero since means no lower bound.
	Fetch(ctx context.Context, account *domain.EmailAccount, since time.Time, max int) ([]Message, error)

	// Verify checks that the account's credentials work.
	Verify(ctx context.Context, account *domain.EmailAccount) error
}

// Registry routes accounts to their provider's fetcher.
type Registry struct {
	fetchers map[domain.Provider]Fetcher
}

// NewRegistry builds a registry from the given fetchers.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[domain.Provider]Fetcher)}
}

// Register adds or replaces the fetcher for a provider.
func (r *Registry) Register(p domain.Provider, f Fetcher) {
	r.fetchers[p] = f
}

// For returns the fetcher for an account's provider.
func (r *Registry) For(p domain.Provider) (Fetcher, error) {
	f, ok := r.fetchers[p]
	if !ok {
		return nil, ErrNoFetcher
	}
	return f, nil
}

// snippet returns the first n runes of s collapsed to a single line.
func snippet(s string, n int) string {
	out := make([]rune, 0, n)
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		if r == ' ' && len(out) > 0 && out[len(out)-1] == ' ' {
			continue
		}
		out = append(out, r)
		if len(out) >= n {
			break
		}
	}
	return string(out)
}
