// internal/infra/mail/smtp.go
package mail

import (
	"context"
	"fmt"
	"time"

	domainmail "notification_scheduler/internal/domain/mail"
	"notification_scheduler/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"
)

// SMTPConfig describes the relay used for outgoing notifications.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	RatePerSecond float64 // 0 disables throttling
	Burst         int
}

// SMTPTransport delivers messages through an SMTP relay, one connection per
// message. Sends are throttled to stay under the relay's rate limits.
type SMTPTransport struct {
	cfg     SMTPConfig
	opts    []gomail.Option
	limiter *rate.Limiter
	logger  *logrus.Entry
	now     func() time.Time
}

var _ domainmail.Transport = (*SMTPTransport)(nil)

// NewSMTPTransport validates the relay settings up front so a bad host or
// port fails at startup rather than on the first firing.
func NewSMTPTransport(cfg SMTPConfig, logger *logrus.Entry) (*SMTPTransport, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if _, err := gomail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("invalid smtp relay %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &SMTPTransport{cfg: cfg, opts: opts, limiter: limiter, logger: logger, now: time.Now}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, to, subject, body string) error {
	start := time.Now()
	err := t.send(ctx, to, subject, body)
	metrics.ObserveStoreRequest("smtp", "send", start, err)
	if err != nil {
		return fmt.Errorf("send to %s: %w: %w", to, domainmail.ErrTransportFailure, err)
	}
	t.logger.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("Mail sent")
	return nil
}

func (t *SMTPTransport) send(ctx context.Context, to, subject, body string) error {
	msg, err := NewMessage(t.cfg.From, to, subject, body, t.now())
	if err != nil {
		return err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	client, err := gomail.NewClient(t.cfg.Host, t.opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp deliver: %w", err)
	}
	return nil
}

// NewMessage builds a plain-text notification. Addresses are validated here,
// header encoding is left to go-mail.
func NewMessage(from, to, subject, body string, date time.Time) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(date)
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextPlain, body)
	return msg, nil
}
