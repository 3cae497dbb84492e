package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/ingest"
)

// AccountStore is the slice of account persistence syncing needs.
type AccountStore interface {
	Get(ctx context.Context, userID, id string) (*domain.EmailAccount, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.EmailAccount, error)
	MarkSynced(ctx context.Context, id string, added int) error
}

// EmailStore is the slice of email persistence the workers need.
type EmailStore interface {
	Get(ctx context.Context, userID, id string) (*domain.Email, error)
	ExistsByMessageID(ctx context.Context, accountID, messageID string) (bool, error)
	Create(ctx context.Context, e *domain.Email) error
	SetAnnotations(ctx context.Context, id string, a domain.EmailAnalysis) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListFailedSince(ctx context.Context, since time.Time, limit int) ([]domain.Email, error)
	UpsertThread(ctx context.Context, t *domain.Thread) error
}

// SyncUserStore is the slice of user persistence syncing needs.
type SyncUserStore interface {
	TouchEmailSync(ctx context.Context, id string) error
	AddEmailsProcessed(ctx context.Context, id string, n int) error
}

// AttachmentSaver stores attachment blobs. Nil disables blob storage.
type AttachmentSaver interface {
	Save(ctx context.Context, userID, emailID, filename, contentType string, data []byte) (string, error)
}

// AttachmentMetaStore persists attachment rows.
type AttachmentMetaStore interface {
	Create(ctx context.Context, a *domain.Attachment) error
}

// SyncProcessor pulls new messages for one account and persists them,
// queueing each stored email for AI analysis.
type SyncProcessor struct {
	fetchers    *ingest.Registry
	accounts    AccountStore
	emails      EmailStore
	users       SyncUserStore
	queue       *Queue
	blobs       AttachmentSaver
	attachments AttachmentMetaStore

	maxFetch int
}

// NewSyncProcessor creates a sync processor. blobs and attachments may be
// nil when S3 storage is disabled.
func NewSyncProcessor(fetchers *ingest.Registry, accounts AccountStore, emails EmailStore, users SyncUserStore, queue *Queue, blobs AttachmentSaver, attachments AttachmentMetaStore, maxFetch int) *SyncProcessor {
	if maxFetch <= 0 {
		maxFetch = 100
	}
	return &SyncProcessor{
		fetchers:    fetchers,
		accounts:    accounts,
		emails:      emails,
		users:       users,
		queue:       queue,
		blobs:       blobs,
		attachments: attachments,
		maxFetch:    maxFetch,
	}
}

// SyncAccount fetches and stores new messages for one account. Returns
// how many emails were stored.
func (p *SyncProcessor) SyncAccount(ctx context.Context, userID, accountID string) (int, error) {
	account, err := p.accounts.Get(ctx, userID, accountID)
	if err != nil {
		return 0, err
	}

	fetcher, err := p.fetchers.For(account.Provider)
	if err != nil {
		return 0, fmt.Errorf("account %s: %w", accountID, err)
	}

	since := time.Time{}
	if account.LastSyncAt != nil {
		since = *account.LastSyncAt
	} else if account.SyncFromDate != nil {
		since = *account.SyncFromDate
	}

	messages, err := fetcher.Fetch(ctx, account, since, p.maxFetch)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", account.EmailAddress, err)
	}

	stored := 0
	for i := range messages {
		created, err := p.storeMessage(ctx, account, &messages[i])
		if err != nil {
			log.Printf("[worker.SyncProcessor] Failed to store message %s: %v", messages[i].MessageID, err)
			continue
		}
		if created {
			stored++
		}
	}

	if err := p.accounts.MarkSynced(ctx, accountID, stored); err != nil {
		return stored, err
	}
	if err := p.users.TouchEmailSync(ctx, userID); err != nil {
		return stored, err
	}
	if stored > 0 {
		if err := p.users.AddEmailsProcessed(ctx, userID, stored); err != nil {
			return stored, err
		}
	}

	log.Printf("[worker.SyncProcessor] Synced %s: %d fetched, %d new", account.EmailAddress, len(messages), stored)
	return stored, nil
}

// storeMessage persists one fetched message. Returns false when the
// message was already present.
func (p *SyncProcessor) storeMessage(ctx context.Context, account *domain.EmailAccount, msg *ingest.Message) (bool, error) {
	exists, err := p.emails.ExistsByMessageID(ctx, account.ID, msg.MessageID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	email := &domain.Email{
		AccountID:      account.ID,
		MessageID:      msg.MessageID,
		ThreadID:       msg.ThreadID,
		Subject:        msg.Subject,
		SenderEmail:    msg.SenderEmail,
		SenderName:     msg.SenderName,
		Recipients:     msg.Recipients,
		CC:             msg.CC,
		BodyText:       msg.BodyText,
		BodyHTML:       msg.BodyHTML,
		Snippet:        msg.Snippet,
		SentDate:       msg.SentDate,
		ReceivedDate:   msg.ReceivedDate,
		Labels:         msg.Labels,
		IsRead:         msg.IsRead,
		HasAttachments: msg.HasAttachments,
	}
	if err := p.emails.Create(ctx, email); err != nil {
		return false, err
	}

	if msg.ThreadID != "" {
		participants := append([]string{msg.SenderEmail}, msg.Recipients...)
		err := p.emails.UpsertThread(ctx, &domain.Thread{
			UserID:           account.UserID,
			ProviderThreadID: msg.ThreadID,
			Subject:          msg.Subject,
			Participants:     participants,
		})
		if err != nil {
			log.Printf("[worker.SyncProcessor] Thread upsert for %s failed: %v", msg.ThreadID, err)
		}
	}

	p.saveAttachments(ctx, account.UserID, email.ID, msg.Attachments)

	job := NewJob(QueueAIAnalysis, JobAnalyzeEmail, account.UserID)
	job.AccountID = account.ID
	job.EmailID = email.ID
	if err := p.queue.Enqueue(ctx, job); err != nil {
		log.Printf("[worker.SyncProcessor] Failed to queue analysis for email %s: %v", email.ID, err)
	}
	return true, nil
}

func (p *SyncProcessor) saveAttachments(ctx context.Context, userID, emailID string, parts []ingest.AttachmentPart) {
	if p.blobs == nil || p.attachments == nil {
		return
	}
	for _, part := range parts {
		// Metadata-only parts (Gmail) are recorded without a blob.
		storagePath := ""
		if part.Data != nil {
			path, err := p.blobs.Save(ctx, userID, emailID, part.Filename, part.ContentType, part.Data)
			if err != nil {
				log.Printf("[worker.SyncProcessor] Attachment upload failed for email %s: %v", emailID, err)
				continue
			}
			storagePath = path
		}
		err := p.attachments.Create(ctx, &domain.Attachment{
			EmailID:     emailID,
			Filename:    part.Filename,
			ContentType: part.ContentType,
			SizeBytes:   part.Size,
			StoragePath: storagePath,
		})
		if err != nil {
			log.Printf("[worker.SyncProcessor] Attachment record failed for email %s: %v", emailID, err)
		}
	}
}

// Run consumes sync jobs until the context is canceled.
func (p *SyncProcessor) Run(ctx context.Context, queue *Queue) {
	log.Printf("[worker.SyncProcessor] Started")
	for {
		if ctx.Err() != nil {
			log.Printf("[worker.SyncProcessor] Stopped")
			return
		}
		job, err := queue.Dequeue(ctx, QueueSync, 5*time.Second)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[worker.SyncProcessor] Dequeue error: %v", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if job == nil {
			continue
		}
		if _, err := p.SyncAccount(ctx, job.UserID, job.AccountID); err != nil {
			log.Printf("[worker.SyncProcessor] Sync job %s failed: %v", job.ID, err)
		}
	}
}
