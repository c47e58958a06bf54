package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"adaptrix/internal/infra/credentials"
)

// ErrNotConfigured is returned when no SendGrid key or sender is available.
var ErrNotConfigured = errors.New("notify: feedback mailer not configured")

// ContactMessage is a message left through the public feedback form.
type ContactMessage struct {
	Name             string
	Email            string
	Message          string
	MarketingConsent bool
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type FeedbackMailerOptions struct {
	Key    credentials.KeyFunc
	From   string
	To     string
	Logger zerolog.Logger
}

// FeedbackMailer forwards contact messages to the team inbox via SendGrid.
type FeedbackMailer struct {
	key       credentials.KeyFunc
	from      string
	to        string
	logger    zerolog.Logger
	now       func() time.Time
	newClient func(key string) sendClient
}

func NewFeedbackMailer(opts FeedbackMailerOptions) *FeedbackMailer {
	return &FeedbackMailer{
		key:    opts.Key,
		from:   strings.TrimSpace(opts.From),
		to:     strings.TrimSpace(opts.To),
		logger: opts.Logger,
		now:    time.Now,
		newClient: func(key string) sendClient {
			return sendgrid.NewSendClient(key)
		},
	}
}

// Send delivers msg and returns the SendGrid message id when one is reported.
func (m *FeedbackMailer) Send(ctx context.Context, msg ContactMessage) (string, error) {
	if m == nil || m.key == nil || m.from == "" || m.to == "" {
		return "", ErrNotConfigured
	}
	key, err := m.key(ctx)
	if err != nil {
		return "", fmt.Errorf("notify: resolve key: %w", err)
	}
	if strings.TrimSpace(key) == "" {
		return "", ErrNotConfigured
	}

	email := m.build(msg)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	resp, err := m.newClient(key).SendWithContext(ctx, email)
	if err != nil {
		m.logger.Error().Err(err).Msg("notify: feedback email failed")
		return "", fmt.Errorf("notify: send: %w", err)
	}
	if resp.StatusCode != 202 {
		m.logger.Error().Int("status", resp.StatusCode).Msg("notify: feedback email rejected")
		return "", fmt.Errorf("notify: send failed with status %d", resp.StatusCode)
	}
	id := ""
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		id = ids[0]
	}
	m.logger.Info().Str("message_id", id).Msg("notify: feedback email sent")
	return id, nil
}

func (m *FeedbackMailer) build(msg ContactMessage) *mail.SGMailV3 {
	from := mail.NewEmail("Adaptrix Feedback", m.from)
	to := mail.NewEmail("Adaptrix", m.to)
	subject := "New Feedback from Adaptrix Landing Page"
	sender := strings.TrimSpace(msg.Name)
	if sender == "" {
		sender = msg.Email
	}
	stamp := m.now().UTC().Format(time.RFC3339)
	consent := "no"
	if msg.MarketingConsent {
		consent = "yes"
	}

	plain := fmt.Sprintf("From: %s <%s>\nTimestamp: %s\nMarketing consent: %s\n\n%s\n",
		sender, msg.Email, stamp, consent, msg.Message)
	body := fmt.Sprintf(`<h2>New Feedback Received</h2>
<p><strong>From:</strong> %s &lt;%s&gt;</p>
<p><strong>Timestamp:</strong> %s</p>
<p><strong>Marketing consent:</strong> %s</p>
<div style="margin-top: 20px; padding: 15px; background: #f5f5f5; border-radius: 5px;">
<h3>Message:</h3>
<p style="white-space: pre-wrap;">%s</p>
</div>`,
		html.EscapeString(sender), html.EscapeString(msg.Email), stamp, consent, html.EscapeString(msg.Message))

	email := mail.NewSingleEmail(from, subject, to, plain, body)
	email.SetReplyTo(mail.NewEmail(sender, msg.Email))
	return email
}
