package domain

import "time"

// Provider identifies where an email account's messages come from.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderIMAP    Provider = "imap"
)

// Valid reports whether the provider is supported.
func (p Provider) Valid() bool {
	return p == ProviderGmail || p == ProviderOutlook || p == ProviderIMAP
}

// EmailAccount is a connected mailbox belonging to a user.
type EmailAccount struct {
	ID           string   `json:"id" db:"id"`
	UserID       string   `json:"user_id" db:"user_id"`
	Provider     Provider `json:"provider" db:"provider"`
	EmailAddress string   `json:"email_address" db:"email_address"`
	DisplayName  string   `json:"display_name" db:"display_name"`

	// OAuth tokens (gmail/outlook).
	AccessToken    string     `json:"-" db:"access_token"`
	RefreshToken   string     `json:"-" db:"refresh_token"`
	TokenExpiresAt *time.Time `json:"-" db:"token_expires_at"`

	// IMAP settings.
	IMAPServer   string `json:"imap_server,omitempty" db:"imap_server"`
	IMAPPort     int    `json:"imap_port,omitempty" db:"imap_port"`
	IMAPUsername string `json:"imap_username,omitempty" db:"imap_username"`
	IMAPPassword string `json:"-" db:"imap_password"`

	IsActive     bool       `json:"is_active" db:"is_active"`
	LastSyncAt   *time.Time `json:"last_sync_at" db:"last_sync_at"`
	SyncFromDate *time.Time `json:"sync_from_date" db:"sync_from_date"`
	TotalEmails  int        `json:"total_emails" db:"total_emails"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Category is the AI-assigned email category.
type Category string

const (
	CategoryWork          Category = "work"
	CategoryPersonal      Category = "personal"
	CategoryPromotional   Category = "promotional"
	CategorySocial        Category = "social"
	CategoryNotification  Category = "notification"
	CategorySpam          Category = "spam"
	CategoryNewsletter    Category = "newsletter"
	CategoryUncategorized Category = "uncategorized"
)

// Sentiment is the AI-assigned overall tone of a message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Email is a single ingested message with its AI annotations.
type Email struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"email_account_id"`

	MessageID string `json:"message_id" db:"message_id"`
	ThreadID  string `json:"thread_id,omitempty" db:"thread_id"`

	Subject     string   `json:"subject" db:"subject"`
	SenderEmail string   `json:"sender_email" db:"sender_email"`
	SenderName  string   `json:"sender_name" db:"sender_name"`
	Recipients  []string `json:"recipient_emails" db:"recipient_emails"`
	CC          []string `json:"cc_emails,omitempty" db:"cc_emails"`
	BCC         []string `json:"bcc_emails,omitempty" db:"bcc_emails"`

	BodyText string `json:"body_text" db:"body_text"`
	BodyHTML string `json:"body_html,omitempty" db:"body_html"`
	Snippet  string `json:"snippet" db:"snippet"`

	SentDate     time.Time `json:"sent_date" db:"sent_date"`
	ReceivedDate time.Time `json:"received_date" db:"received_date"`
	Labels       []string  `json:"labels,omitempty" db:"labels"`

	IsRead         bool `json:"is_read" db:"is_read"`
	IsReplied      bool `json:"is_replied" db:"is_replied"`
	IsImportant    bool `json:"is_important" db:"is_important"`
	IsArchived     bool `json:"is_archived" db:"is_archived"`
	HasAttachments bool `json:"has_attachments" db:"has_attachments"`

	// Minutes from received to the user's reply, when known.
	ResponseTimeMinutes *float64 `json:"response_time_minutes,omitempty" db:"response_time_minutes"`

	// AI annotations. Nil/zero until the AI worker has run.
	AICategory        Category  `json:"ai_category,omitempty" db:"ai_category"`
	AIImportanceScore *float64  `json:"ai_importance_score,omitempty" db:"ai_importance_score"`
	AISentiment       Sentiment `json:"ai_sentiment,omitempty" db:"ai_sentiment"`
	AISentimentScore  *float64  `json:"ai_sentiment_score,omitempty" db:"ai_sentiment_score"`
	AISummary         string    `json:"ai_summary,omitempty" db:"ai_summary"`
	AIActionItems     []string  `json:"ai_action_items,omitempty" db:"ai_action_items"`
	AIConfidence      *float64  `json:"ai_confidence,omitempty" db:"ai_confidence"`

	IsProcessed     bool       `json:"is_processed" db:"is_processed"`
	ProcessingError string     `json:"-" db:"processing_error"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Attachment is file metadata for an email attachment. The blob itself
// lives in S3 at StoragePath.
type Attachment struct {
	ID          string    `json:"id" db:"id"`
	EmailID     string    `json:"email_id" db:"email_id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Thread groups messages that share a provider conversation.
type Thread struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	ProviderThreadID string    `json:"provider_thread_id" db:"provider_thread_id"`
	Subject          string    `json:"subject" db:"subject"`
	Participants     []string  `json:"participants" db:"participants"`
	MessageCount     int       `json:"message_count" db:"message_count"`
	AISummary        string    `json:"ai_summary,omitempty" db:"ai_summary"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
