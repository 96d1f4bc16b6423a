// Package notify sends rating notification emails.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail/v2"
	"golang.org/x/time/rate"

	"github.com/aimd54/addon-ratings/internal/config"
	"github.com/aimd54/addon-ratings/internal/metrics"
	"github.com/aimd54/addon-ratings/internal/models"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// Email kinds.
const (
	KindNewRating = "new_rating"
	KindNewReply  = "new_reply"
)

// Mailer sends rating emails over SMTP, bounded by a per-minute rate.
// A disabled mailer logs and drops every message.
type Mailer struct {
	from    string
	siteURL string
	enabled bool
	limiter *rate.Limiter
	send    func(*mail.Message) error
	log     *logger.Logger
}

// NewMailer creates an SMTP mailer using mandatory STARTTLS.
func NewMailer(cfg *config.SMTPConfig, siteURL string, log *logger.Logger) *Mailer {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify, //nolint:gosec // opt-in for local relays
	}
	return newMailer(cfg, siteURL, d.DialAndSend, log)
}

func newMailer(cfg *config.SMTPConfig, siteURL string, send func(...*mail.Message) error, log *logger.Logger) *Mailer {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	return &Mailer{
		from:    cfg.From,
		siteURL: strings.TrimSuffix(siteURL, "/"),
		enabled: cfg.Enabled,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute),
		send:    func(m *mail.Message) error { return send(m) },
		log:     log,
	}
}

// RatingAdded tells the add-on authors about a new rating.
func (m *Mailer) RatingAdded(ctx context.Context, addon *models.Addon, rating *models.Rating, authors []models.User) error {
	var to []string
	for _, a := range authors {
		if a.Email != "" {
			to = append(to, a.Email)
		}
	}
	if len(to) == 0 {
		return nil
	}

	score := 0
	if rating.Score != nil {
		score = *rating.Score
	}
	subject := fmt.Sprintf("Mozilla Add-on User Rating: %s", addon.Name)
	body := fmt.Sprintf(
		"A user has left a rating for your add-on, %s.\n\nRating: %d/5\n\n%s\n\nView the rating: %s\n",
		addon.Name, score, rating.BodyText(), m.ratingURL(rating.ID),
	)
	return m.deliver(ctx, KindNewRating, to, subject, body)
}

// ReplyAdded tells the original rating author that the developer replied.
func (m *Mailer) ReplyAdded(ctx context.Context, addon *models.Addon, original, reply *models.Rating) error {
	if original.User.Email == "" {
		return nil
	}
	subject := fmt.Sprintf("Mozilla Add-on Developer Reply: %s", addon.Name)
	body := fmt.Sprintf(
		"A developer has replied to your rating of %s.\n\n%s\n\nView the reply: %s\n",
		addon.Name, reply.BodyText(), m.ratingURL(original.ID),
	)
	return m.deliver(ctx, KindNewReply, []string{original.User.Email}, subject, body)
}

func (m *Mailer) ratingURL(id uint) string {
	return fmt.Sprintf("%s/api/v1/ratings/%d", m.siteURL, id)
}

func (m *Mailer) deliver(ctx context.Context, kind string, to []string, subject, body string) error {
	if !m.enabled {
		m.log.Debug().Str("kind", kind).Strs("to", to).Str("subject", subject).Msg("SMTP disabled, dropping email")
		metrics.RecordEmail(kind, "dropped")
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		metrics.RecordEmail(kind, "error")
		return fmt.Errorf("email rate limiter: %w", err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		metrics.RecordEmail(kind, "error")
		return fmt.Errorf("failed to send %s email: %w", kind, err)
	}
	metrics.RecordEmail(kind, "sent")
	m.log.Info().Str("kind", kind).Int("recipients", len(to)).Msg("Email sent")
	return nil
}
