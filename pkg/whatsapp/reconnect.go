package whatsapp

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type ReconnectConfig struct {
	// MaxAttempts caps Connect attempts per close event, 0 means unbounded.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c ReconnectConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.BaseDelay > 0 {
		b.InitialInterval = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		b.MaxInterval = c.MaxDelay
	}
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if c.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(c.MaxAttempts-1))
	}
	return backoff.WithContext(policy, ctx)
}

// retryConnect runs connect until it succeeds, returns a permanent error, the
// attempts run out or ctx is done.
func retryConnect(ctx context.Context, cfg ReconnectConfig, connect func() error, notify func(error, time.Duration)) error {
	return backoff.RetryNotify(connect, cfg.backOff(ctx), notify)
}

func backoffPermanent(err error) error {
	return backoff.Permanent(err)
}
