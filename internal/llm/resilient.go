// File path: internal/llm/resilient.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/common/telemetry"
	"github.com/nicodishanthj/vitaplan/internal/llm/providers"
)

const maxRetryLimit = 5

// Resilient wraps a provider with a rate limiter and a small, bounded retry loop.
// Context cancellation, deadlines and permanent API errors are never retried.
type Resilient struct {
	next       Provider
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
}

type ResilientOption func(*Resilient)

// WithRetries sets the number of retries after the first attempt and the linear
// backoff step. Values above the hard limit are clamped.
func WithRetries(n int, backoff time.Duration) ResilientOption {
	return func(r *Resilient) {
		if n < 0 {
			n = 0
		}
		if n > maxRetryLimit {
			n = maxRetryLimit
		}
		r.maxRetries = n
		if backoff > 0 {
			r.backoff = backoff
		}
	}
}

// WithRateLimit allows perSecond sustained calls. Zero disables the limiter.
func WithRateLimit(perSecond float64, burst int) ResilientOption {
	return func(r *Resilient) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewResilient(next Provider, opts ...ResilientOption) *Resilient {
	r := &Resilient{next: next, backoff: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Name() string {
	return r.next.Name()
}

// Unwrap exposes the wrapped provider.
func (r *Resilient) Unwrap() Provider {
	return r.next
}

func (r *Resilient) Chat(ctx context.Context, messages []Message) (string, error) {
	messages, err := normalizeMessages(messages)
	if err != nil {
		return "", err
	}
	var out string
	err = r.do(ctx, "chat", func(ctx context.Context) error {
		var err error
		out, err = r.next.Chat(ctx, messages)
		return err
	})
	return out, err
}

func (r *Resilient) Embed(ctx context.Context, input []string) ([][]float32, error) {
	var out [][]float32
	err := r.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = r.next.Embed(ctx, input)
		return err
	})
	return out, err
}

func (r *Resilient) do(ctx context.Context, op string, call func(context.Context) error) error {
	logger := common.Logger()
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if r.limiter != nil {
			if waitErr := r.limiter.Wait(ctx); waitErr != nil {
				return waitErr
			}
		}
		err = call(ctx)
		telemetry.RecordGeneration(r.next.Name(), err == nil)
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) || attempt == r.maxRetries {
			break
		}
		delay := r.backoff * time.Duration(attempt+1)
		logger.Warn().
			Str("provider", r.next.Name()).
			Str("op", op).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("llm: call failed, retrying")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	return !providers.IsPermanent(err)
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

var _ Provider = (*Resilient)(nil)
