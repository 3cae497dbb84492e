package ingest

import (
	"context"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
)

// OutlookFetcher will use the Microsoft Graph API. Accounts can be
// connected and stored today; fetching is not wired up yet.
// TODO: implement Graph /me/messages fetching with delta queries.
type OutlookFetcher struct{}

// NewOutlookFetcher creates the placeholder Outlook fetcher.
func NewOutlookFetcher() *OutlookFetcher {
	return &OutlookFetcher{}
}

func (f *OutlookFetcher) Verify(ctx context.Context, account *domain.EmailAccount) error {
	return ErrProviderNotImplemented
}

func (f *OutlookFetcher) Fetch(ctx context.Context, account *domain.EmailAccount, since time.Time, max int) ([]Message, error) {
	return nil, ErrProviderNotImplemented
}
