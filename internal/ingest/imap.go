package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/emailmind/emailmind/internal/domain"
)

// IMAPFetcher pulls messages from a generic IMAP server over TLS using
// the account's stored credentials.
type IMAPFetcher struct {
	dialTimeout time.Duration
}

// NewIMAPFetcher creates an IMAP fetcher.
func NewIMAPFetcher() *IMAPFetcher {
	return &IMAPFetcher{dialTimeout: 30 * time.Second}
}

func (f *IMAPFetcher) connect(account *domain.EmailAccount) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPServer, account.IMAPPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.Timeout = f.dialTimeout

	if err := c.Login(account.IMAPUsername, account.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("login %s: %w", account.IMAPUsername, err)
	}
	return c, nil
}

// Verify logs in and selects INBOX.
func (f *IMAPFetcher) Verify(ctx context.Context, account *domain.EmailAccount) error {
	c, err := f.connect(account)
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return fmt.Errorf("select inbox: %w", err)
	}
	return nil
}

// Fetch retrieves the newest messages from INBOX received since the given
// time.
func (f *IMAPFetcher) Fetch(ctx context.Context, account *domain.EmailAccount, since time.Time, max int) ([]Message, error) {
	if max <= 0 || max > 500 {
		max = 100
	}

	c, err := f.connect(account)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	// Sequence numbers ascend with age, keep the newest.
	if len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchFlags, imap.FetchInternalDate}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, ch)
	}()

	var messages []Message
	for raw := range ch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body := raw.GetBody(section)
		if body == nil {
			continue
		}
		msg, err := parseRFC822(body)
		if err != nil {
			log.Printf("[ingest.IMAPFetcher] Skipping unparseable message seq=%d: %v", raw.SeqNum, err)
			continue
		}
		if !raw.InternalDate.IsZero() {
			msg.ReceivedDate = raw.InternalDate.UTC()
		}
		for _, flag := range raw.Flags {
			if flag == imap.SeenFlag {
				msg.IsRead = true
			}
		}
		messages = append(messages, *msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return messages, nil
}
