package health

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/log"
)

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as a definitive answer from a working endpoint, such as
// a node rejecting a transaction. Do returns it without trying another
// endpoint.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs fn against a healthy endpoint of group, failing over to the next
// healthy endpoint when fn fails. It makes at most 1+len(fallbacks) attempts,
// each bounded by the registry's per-call timeout. Errors marked Permanent
// are returned immediately, unwrapped. When the budget is spent the last
// error is returned wrapped in chains.ErrTimeout if it was a deadline, and
// in chains.ErrAllEndpointsUnhealthy otherwise.
func Do[T any](ctx context.Context, r *Registry, group string, fn func(ctx context.Context, endpoint string) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := r.Attempts(group)
	for attempt := 0; attempt < attempts; attempt++ {
		endpoint, err := r.SelectHealthy(ctx, group)
		if err != nil {
			if lastErr != nil {
				return zero, exhausted(group, lastErr)
			}
			return zero, err
		}
		if attempt > 0 {
			r.opts.Metrics.IncFailover(group)
		}

		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		start := time.Now()
		v, err := fn(callCtx, endpoint)
		cancel()
		r.opts.Metrics.ObserveCall(group, start, err)

		if err == nil {
			return v, nil
		}
		if p := (*permanentError)(nil); errors.As(err, &p) {
			return zero, p.err
		}
		if ctx.Err() != nil {
			return zero, chains.Wrap(chains.ErrTimeout, err)
		}

		lastErr = err
		log.Health.Warn().
			Str("group", group).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Int("budget", attempts).
			Err(err).
			Msg("Call failed, failing over")
		r.ReportFailure(group, endpoint)
	}

	return zero, exhausted(group, lastErr)
}

func exhausted(group string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return chains.Wrap(chains.ErrTimeout, err)
	case chains.Kind(err) != nil:
		return err
	default:
		return chains.Wrap(chains.ErrAllEndpointsUnhealthy, errors.Wrapf(err, "group %s", group))
	}
}
