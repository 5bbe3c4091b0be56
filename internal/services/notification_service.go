package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	pkglogger "github.com/BradenHooton/totpgate/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/sethvargo/go-retry"
)

// Notification kinds
const (
	NotificationTOTPEnabled  = "totp_enabled"
	NotificationTOTPDisabled = "totp_disabled"
)

// Notification tells a principal that their two-factor settings changed
type Notification struct {
	Kind        string
	PrincipalID string
	Email       string
	Name        string
	OccurredAt  time.Time
}

func newNotification(kind string, p *models.Principal, at time.Time) Notification {
	return Notification{
		Kind:        kind,
		PrincipalID: p.ID,
		Email:       p.Email,
		Name:        p.DisplayName(),
		OccurredAt:  at,
	}
}

// Notifier delivers a notification. Implementations may block.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier records notifications in the application log instead of sending them
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", notification.Kind),
		slog.String("principal_id", notification.PrincipalID),
		slog.String("email", pkglogger.SanitizedEmail(notification.Email)))
	return nil
}

// SESNotifier sends notifications by email using AWS SES
type SESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier creates a new AWS SES notifier
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Notify emails the principal. Principals without an email address are skipped.
func (s *SESNotifier) Notify(ctx context.Context, n Notification) error {
	if n.Email == "" {
		s.logger.Debug("notification skipped: no email address", slog.String("principal_id", n.PrincipalID))
		return nil
	}

	subject, textBody := renderNotification(n)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("notification email sent",
		slog.String("kind", n.Kind),
		slog.String("email", pkglogger.SanitizedEmail(n.Email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}

func renderNotification(n Notification) (subject, body string) {
	when := n.OccurredAt.UTC().Format(time.RFC1123)

	switch n.Kind {
	case NotificationTOTPDisabled:
		subject = "Two-factor authentication disabled"
		body = fmt.Sprintf(`Hello %s,

Two-factor authentication was turned off for your account on %s.

If you did not make this change, sign in and enable it again, then change your password.

This is an automated message. Please do not reply to this email.
`, n.Name, when)
	default:
		subject = "Two-factor authentication enabled"
		body = fmt.Sprintf(`Hello %s,

Two-factor authentication was turned on for your account on %s.
From now on you will be asked for a code from your authenticator app when you sign in.

This is an automated message. Please do not reply to this email.
`, n.Name, when)
	}

	return subject, body
}

// AsyncNotifier delivers notifications in the background with retries.
// Delivery failures are logged and never reach the caller.
type AsyncNotifier struct {
	next       Notifier
	logger     *slog.Logger
	timeout    time.Duration
	maxRetries uint64
	wg         sync.WaitGroup
}

// NewAsyncNotifier wraps next. Each notification gets timeout for all of its attempts.
func NewAsyncNotifier(next Notifier, maxRetries uint64, timeout time.Duration, logger *slog.Logger) *AsyncNotifier {
	return &AsyncNotifier{
		next:       next,
		logger:     logger,
		timeout:    timeout,
		maxRetries: maxRetries,
	}
}

// Dispatch starts delivery and returns immediately
func (a *AsyncNotifier) Dispatch(n Notification) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		b := retry.NewFibonacci(200 * time.Millisecond)
		b = retry.WithCappedDuration(5*time.Second, b)
		b = retry.WithMaxRetries(a.maxRetries, b)

		attempts := 0
		err := retry.Do(ctx, b, func(ctx context.Context) error {
			attempts++
			if err := a.next.Notify(ctx, n); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			a.logger.Error("notification delivery failed",
				slog.String("kind", n.Kind),
				slog.String("principal_id", n.PrincipalID),
				slog.Int("attempts", attempts),
				slog.Any("error", err))
		}
	}()
}

// Wait blocks until every dispatched notification has finished
func (a *AsyncNotifier) Wait() {
	a.wg.Wait()
}
