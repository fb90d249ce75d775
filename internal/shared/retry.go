// Package shared provides the application-facing cache and queue adapters.
// They wrap the service clients in a fixed retry budget and degrade to a miss
// or an empty queue once the budget is spent.
package shared

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"pkt.systems/pslog"

	"github.com/loganszeto/sharedstate/internal/client"
	"github.com/loganszeto/sharedstate/internal/loggingutil"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = 200 * time.Millisecond
)

type Option func(*policy)

// WithAttempts sets the number of tries per call, including the first.
func WithAttempts(n int) Option {
	return func(p *policy) { p.attempts = n }
}

// WithDelay sets the pause between tries.
func WithDelay(d time.Duration) Option {
	return func(p *policy) { p.delay = d }
}

func WithLogger(l pslog.Logger) Option {
	return func(p *policy) { p.logger = l }
}

type policy struct {
	attempts int
	delay    time.Duration
	logger   pslog.Logger
}

func newPolicy(sys string, opts []Option) policy {
	p := policy{attempts: DefaultAttempts, delay: DefaultDelay}
	for _, opt := range opts {
		opt(&p)
	}
	if p.attempts < 1 {
		p.attempts = 1
	}
	if p.delay < 0 {
		p.delay = 0
	}
	p.logger = loggingutil.WithSubsystem(p.logger, "shared", sys)
	return p
}

// retry runs fn until it succeeds or the budget is spent. Failed-status
// replies from the server are not retried.
func retry[T any](ctx context.Context, p policy, op string, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn(ctx)
		var serr *client.ServerError
		if errors.As(err, &serr) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.delay)),
		backoff.WithMaxTries(uint(p.attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("call failed, retrying", "op", op, "attempt", attempt, "retry_in", next.String(), "error", err)
		}),
	)
	if err != nil {
		p.logger.Error("call failed, giving up", "op", op, "attempts", attempt, "error", err)
	}
	return v, err
}
