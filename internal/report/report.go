package report

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/service/mailbox"
)

// digestHTMLTemplate is the weekly insight email body.
const digestHTMLTemplate = `<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #1a1a2e;">
  <h2>Your week in email, {{ first_name | default: "there" }}</h2>
  <p>Between {{ period_start }} and {{ period_end }} you received <strong>{{ total_emails }}</strong> emails.</p>
  <ul>
    <li><strong>{{ unread_emails }}</strong> still unread</li>
    <li><strong>{{ important_emails }}</strong> flagged important</li>
  </ul>
  {% if top_category != "" %}
  <p>Your busiest category was <strong>{{ top_category }}</strong> with {{ top_category_count }} messages.</p>
  {% endif %}
  {% if insights.size > 0 %}
  <h3>Insights</h3>
  <ul>
  {% for insight in insights %}
    <li>{{ insight }}</li>
  {% endfor %}
  </ul>
  {% endif %}
  {% if unsubscribe_count > 0 %}
  <p>We found <strong>{{ unsubscribe_count }}</strong> newsletters you rarely open. Review them in your dashboard.</p>
  {% endif %}
  <p style="color: #888; font-size: 12px;">Sent by EmailMind. Manage report settings in your account.</p>
</body>
</html>`

const digestTextTemplate = `Your week in email, {{ first_name | default: "there" }}

Between {{ period_start }} and {{ period_end }} you received {{ total_emails }} emails.
Unread: {{ unread_emails }}
Important: {{ important_emails }}
{% for insight in insights %}- {{ insight }}
{% endfor %}`

// Sender delivers a rendered report email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error)
}

// sesAPI is the slice of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends report email through AWS SES v2.
type SESSender struct {
	client sesAPI
	from   string
}

// NewSESSender creates a sender using the default credential chain.
func NewSESSender(ctx context.Context, region, fromAddress string) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SESSender{client: sesv2.NewFromConfig(awsCfg), from: fromAddress}, nil
}

// NewSESSenderWithClient wires a caller-provided SES client.
func NewSESSenderWithClient(client sesAPI, fromAddress string) *SESSender {
	return &SESSender{client: client, from: fromAddress}
}

// Send delivers one email and returns the SES message ID.
func (s *SESSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("EmailMind <%s>", s.from)),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if textBody != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(textBody), Charset: aws.String("UTF-8")}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sending report email: %w", err)
	}
	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	return messageID, nil
}

// Digest is everything the weekly report template needs.
type Digest struct {
	User        *domain.User
	PeriodStart time.Time
	PeriodEnd   time.Time
	Stats       *mailbox.Stats
	Insights    []string

	// UnsubscribeCount is how many low-engagement newsletters were found.
	UnsubscribeCount int
}

// Service renders and delivers weekly digests.
type Service struct {
	renderer *Renderer
	sender   Sender
}

// NewService creates the report service.
func NewService(sender Sender) *Service {
	return &Service{renderer: NewRenderer(), sender: sender}
}

func firstName(u *domain.User) string {
	for i, r := range u.FullName {
		if r == ' ' {
			return u.FullName[:i]
		}
	}
	return u.FullName
}

func (s *Service) bindings(d *Digest) map[string]interface{} {
	topCategory := ""
	topCount := 0
	if d.Stats != nil {
		for cat, n := range d.Stats.ByCategory {
			if n > topCount || (n == topCount && cat < topCategory) {
				topCategory = cat
				topCount = n
			}
		}
	}

	b := map[string]interface{}{
		"first_name":         firstName(d.User),
		"period_start":       d.PeriodStart.Format("Jan 2"),
		"period_end":         d.PeriodEnd.Format("Jan 2, 2006"),
		"total_emails":       0,
		"unread_emails":      0,
		"important_emails":   0,
		"top_category":       topCategory,
		"top_category_count": topCount,
		"insights":           d.Insights,
		"unsubscribe_count":  d.UnsubscribeCount,
	}
	if d.Stats != nil {
		b["total_emails"] = d.Stats.Total
		b["unread_emails"] = d.Stats.Unread
		b["important_emails"] = d.Stats.Important
	}
	return b
}

// SendDigest renders the weekly digest and emails it to the user.
func (s *Service) SendDigest(ctx context.Context, d *Digest) error {
	bindings := s.bindings(d)

	html, err := s.renderer.Render(digestHTMLTemplate, bindings)
	if err != nil {
		return err
	}
	text, err := s.renderer.Render(digestTextTemplate, bindings)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Your EmailMind weekly report for %s", d.PeriodEnd.Format("Jan 2"))
	messageID, err := s.sender.Send(ctx, d.User.Email, subject, html, text)
	if err != nil {
		return err
	}
	log.Printf("[report.Service] Sent weekly digest to user %s (id: %s)", d.User.ID, messageID)
	return nil
}
