package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// DefaultRetryBackoff is the wait before the single retry.
const DefaultRetryBackoff = 500 * time.Millisecond

// Retrying retries a failed model call once, and only while nothing has been
// forwarded to the caller yet.
type Retrying struct {
	next   Backend
	wait   time.Duration
	logger *slog.Logger
}

var _ Backend = (*Retrying)(nil)

// WithRetry wraps b with the retry-once policy.
func WithRetry(b Backend, wait time.Duration, logger *slog.Logger) *Retrying {
	if wait <= 0 {
		wait = DefaultRetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{next: b, wait: wait, logger: logger}
}

// Model returns the wrapped model name.
func (r *Retrying) Model() string {
	return r.next.Model()
}

// Stream calls the wrapped backend. Transient ErrModelBackend failures are
// retried once; ErrFatalAPI, caller cancellation and failures after the first
// delta are returned as is.
func (r *Retrying) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (*Response, error) {
	sent := false
	forward := onDelta
	if onDelta != nil {
		forward = func(delta string) error {
			sent = true
			return onDelta(delta)
		}
	}

	attempt := 0
	op := func() (*Response, error) {
		attempt++
		resp, err := r.next.Stream(ctx, req, forward)
		if err == nil {
			return resp, nil
		}
		if sent || ctx.Err() != nil || errors.Is(err, ErrFatalAPI) || !errors.Is(err, models.ErrModelBackend) {
			return nil, backoff.Permanent(err)
		}
		if attempt == 1 {
			r.logger.Warn("model call failed, retrying", "model", r.next.Model(), "error", err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.wait)),
		backoff.WithMaxTries(2),
	)
}
