package mailbox

import (
	"context"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
)

// AccountRepository defines the data access contract for email accounts.
// Implementations must be safe for concurrent use.
type AccountRepository interface {
	// Get returns a single account. Returns ErrNotFound if it doesn't exist
	// or belongs to another user.
	Get(ctx context.Context, userID, id string) (*domain.EmailAccount, error)

	// ListByUser returns all of the user's accounts, oldest first.
	ListByUser(ctx context.Context, userID string) ([]domain.EmailAccount, error)

	// Create inserts a new account, generating an ID if unset.
	Create(ctx context.Context, a *domain.EmailAccount) error

	// Delete removes an account and its messages.
	Delete(ctx context.Context, userID, id string) error
}

// EmailRepository defines the data access contract for emails.
type EmailRepository interface {
	// List returns the user's emails matching the filter, newest first,
	// archived and deleted messages excluded.
	List(ctx context.Context, userID string, f ListFilter) ([]domain.Email, error)

	// Get returns a single email. Returns ErrNotFound if it doesn't exist
	// or belongs to another user.
	Get(ctx context.Context, userID, id string) (*domain.Email, error)

	SetRead(ctx context.Context, userID, id string, read bool) error
	SetImportant(ctx context.Context, userID, id string, important bool) error
	SetArchived(ctx context.Context, userID, id string, archived bool) error

	// SoftDelete hides a message from all listings without destroying the row.
	SoftDelete(ctx context.Context, userID, id string) error

	// Stats returns per-user mailbox counters.
	Stats(ctx context.Context, userID string) (*Stats, error)
}

// ListFilter narrows an email listing. A zero value lists the newest
// unarchived messages.
type ListFilter struct {
	Category      domain.Category
	MinImportance *float64
	UnreadOnly    bool
	Limit         int
	Offset        int
}

// Stats is a quick per-user mailbox summary.
type Stats struct {
	Total       int            `json:"total_emails"`
	Unread      int            `json:"unread"`
	Important   int            `json:"important"`
	Processed   int            `json:"processed"`
	Last24Hours int            `json:"last_24_hours"`
	ByCategory  map[string]int `json:"by_category"`
}

// AddAccountInput holds the fields for connecting a new mailbox.
type AddAccountInput struct {
	Provider     domain.Provider `json:"provider"`
	EmailAddress string          `json:"email_address"`
	DisplayName  string          `json:"display_name"`

	AccessToken    string     `json:"access_token,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`

	IMAPServer   string `json:"imap_server,omitempty"`
	IMAPPort     int    `json:"imap_port,omitempty"`
	IMAPUsername string `json:"imap_username,omitempty"`
	IMAPPassword string `json:"imap_password,omitempty"`

	SyncFromDate *time.Time `json:"sync_from_date,omitempty"`
}
