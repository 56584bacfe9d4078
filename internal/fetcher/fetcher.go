package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"farewatch/internal/model"
)

// FareSource retrieves one normalised fare observation for a route.
type FareSource interface {
	FetchFare(ctx context.Context, route model.Route) (model.PriceQuote, error)
}

// TrafficSource retrieves contextual air-traffic data for the destination.
type TrafficSource interface {
	FetchTraffic(ctx context.Context) (model.TrafficReading, error)
}

// QuotaGate is consulted before every remote call and committed once per
// attempt that reaches the network.
type QuotaGate interface {
	Reserve(provider string, now time.Time) bool
	Commit(provider string, now time.Time)
}

// ErrQuotaExceeded means the provider's local budget is exhausted. It is an
// expected steady-state condition: the source simply contributes nothing.
var ErrQuotaExceeded = errors.New("fetcher: provider quota exhausted")

// Kind classifies a provider failure.
type Kind int

const (
	// KindTransient covers network errors, timeouts, 5xx and 429. Eligible
	// for a bounded retry.
	KindTransient Kind = iota
	// KindAuth covers expired or invalid credentials. Never retried.
	KindAuth
	// KindBadRequest covers permanent non-auth 4xx. Indicates
	// misconfiguration; never retried.
	KindBadRequest
)

// Failure is a typed provider error carrying its retry classification.
type Failure struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s: %v (status %d)", f.Provider, f.Err, f.Status)
	}
	return fmt.Sprintf("%s: %v", f.Provider, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether the failure may be retried.
func (f *Failure) Retryable() bool {
	return f.Kind == KindTransient
}

// classifyStatus maps an HTTP status to a failure kind.
func classifyStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429 || status >= 500:
		return KindTransient
	default:
		return KindBadRequest
	}
}

func httpFailure(provider string, status int, body []byte) *Failure {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = "request failed"
	}
	return &Failure{
		Provider: provider,
		Kind:     classifyStatus(status),
		Status:   status,
		Err:      errors.New(msg),
	}
}

func transportFailure(provider string, err error) *Failure {
	return &Failure{Provider: provider, Kind: KindTransient, Err: err}
}

// RetryPolicy bounds retries of transient failures. Backoff doubles after
// every attempt.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p RetryPolicy) normalised() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	return p
}

// withRetry runs attempt up to MaxRetries+1 times, backing off between
// transient failures. Non-transient failures surface immediately.
func withRetry(ctx context.Context, policy RetryPolicy, logger zerolog.Logger, attempt func() error) error {
	policy = policy.normalised()
	backoff := policy.Backoff

	var lastErr error
	for try := 0; try <= policy.MaxRetries; try++ {
		if try > 0 {
			logger.Debug().Int("attempt", try).Dur("backoff", backoff).Msg("retrying after transient failure")
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err

		var failure *Failure
		if !errors.As(err, &failure) || !failure.Retryable() {
			return err
		}
	}
	return lastErr
}
