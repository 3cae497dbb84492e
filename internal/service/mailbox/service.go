package mailbox

import (
	"context"
	"fmt"
	"log"

	"github.com/emailmind/emailmind/internal/domain"
)

// Service implements mailbox business logic. All public methods are safe
// for concurrent use if the underlying repositories are concurrency-safe.
type Service struct {
	accounts AccountRepository
	emails   EmailRepository
}

// NewService creates a mailbox service backed by the given repositories.
func NewService(accounts AccountRepository, emails EmailRepository) *Service {
	return &Service{accounts: accounts, emails: emails}
}

// AddAccount validates and registers a new connected mailbox. OAuth
// providers need a refresh token; plain IMAP needs server and credentials.
func (s *Service) AddAccount(ctx context.Context, userID string, input AddAccountInput) (*domain.EmailAccount, error) {
	if !input.Provider.Valid() {
		return nil, ErrUnsupportedProvider
	}
	if input.EmailAddress == "" {
		return nil, fmt.Errorf("email_address is required")
	}

	switch input.Provider {
	case domain.ProviderGmail, domain.ProviderOutlook:
		if input.RefreshToken == "" {
			return nil, ErrMissingCredentials
		}
	case domain.ProviderIMAP:
		if input.IMAPServer == "" || input.IMAPUsername == "" || input.IMAPPassword == "" {
			return nil, ErrMissingCredentials
		}
		if input.IMAPPort == 0 {
			input.IMAPPort = 993
		}
	}

	a := &domain.EmailAccount{
		UserID:         userID,
		Provider:       input.Provider,
		EmailAddress:   input.EmailAddress,
		DisplayName:    input.DisplayName,
		AccessToken:    input.AccessToken,
		RefreshToken:   input.RefreshToken,
		TokenExpiresAt: input.TokenExpiresAt,
		IMAPServer:     input.IMAPServer,
		IMAPPort:       input.IMAPPort,
		IMAPUsername:   input.IMAPUsername,
		IMAPPassword:   input.IMAPPassword,
		IsActive:       true,
		SyncFromDate:   input.SyncFromDate,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}

	log.Printf("[mailbox.Service] Connected %s account %s for user %s", a.Provider, a.EmailAddress, userID)
	return a, nil
}

// ListAccounts returns the user's connected mailboxes.
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]domain.EmailAccount, error) {
	return s.accounts.ListByUser(ctx, userID)
}

// RemoveAccount disconnects a mailbox.
func (s *Service) RemoveAccount(ctx context.Context, userID, accountID string) error {
	return s.accounts.Delete(ctx, userID, accountID)
}

// ListEmails returns the user's emails matching the filter.
func (s *Service) ListEmails(ctx context.Context, userID string, f ListFilter) ([]domain.Email, error) {
	return s.emails.List(ctx, userID, f)
}

// GetEmail returns a single message and marks it read as a side effect of
// the user opening it.
func (s *Service) GetEmail(ctx context.Context, userID, id string) (*domain.Email, error) {
	e, err := s.emails.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !e.IsRead {
		if err := s.emails.SetRead(ctx, userID, id, true); err != nil {
			log.Printf("[mailbox.Service] mark read %s: %v", id, err)
		} else {
			e.IsRead = true
		}
	}
	return e, nil
}

// Valid email actions accepted by ApplyAction.
const (
	ActionMarkRead      = "mark_read"
	ActionMarkUnread    = "mark_unread"
	ActionMarkImportant = "mark_important"
	ActionArchive       = "archive"
	ActionDelete        = "delete"
)

// ApplyAction applies a named user action to a message.
func (s *Service) ApplyAction(ctx context.Context, userID, id, action string) error {
	switch action {
	case ActionMarkRead:
		return s.emails.SetRead(ctx, userID, id, true)
	case ActionMarkUnread:
		return s.emails.SetRead(ctx, userID, id, false)
	case ActionMarkImportant:
		return s.emails.SetImportant(ctx, userID, id, true)
	case ActionArchive:
		return s.emails.SetArchived(ctx, userID, id, true)
	case ActionDelete:
		return s.emails.SoftDelete(ctx, userID, id)
	default:
		return ErrInvalidAction
	}
}

// Stats returns the user's mailbox counters.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	return s.emails.Stats(ctx, userID)
}
