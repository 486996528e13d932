package notification

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/types"
	"github.com/cenkalti/backoff/v4"
)

// Client sends customer-facing notifications. Sending is fire and forget:
// failures are logged by the caller, never propagated into billing flows.
type Client interface {
	Send(ctx context.Context, target string, channel types.NotificationChannel, templateCode string, variables map[string]string) error
}

// Sender is a transport for a single notification attempt
type Sender interface {
	Deliver(ctx context.Context, target string, channel types.NotificationChannel, templateCode string, variables map[string]string) error
}

type client struct {
	sender Sender
	logger *logger.Logger
}

// NewClient wraps a transport with a bounded retry policy
func NewClient(sender Sender, logger *logger.Logger) Client {
	return &client{
		sender: sender,
		logger: logger,
	}
}

func (c *client) Send(ctx context.Context, target string, channel types.NotificationChannel, templateCode string, variables map[string]string) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	err := backoff.Retry(func() error {
		return c.sender.Deliver(ctx, target, channel, templateCode, variables)
	}, policy)
	if err != nil {
		c.logger.Errorw("failed to send notification",
			"error", err,
			"target", target,
			"channel", channel,
			"template_code", templateCode,
		)
		return err
	}

	return nil
}

// LogSender is a transport that only records the notification. It stands in
// for real email/SMS transports, which live outside the billing core.
type LogSender struct {
	logger *logger.Logger
}

// NewLogSender creates a log-only notification transport
func NewLogSender(logger *logger.Logger) Sender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Deliver(ctx context.Context, target string, channel types.NotificationChannel, templateCode string, variables map[string]string) error {
	s.logger.Infow("notification delivered",
		"target", target,
		"channel", channel,
		"template_code", templateCode,
		"variables", variables,
		"sent_at", time.Now().UTC(),
	)
	return nil
}
