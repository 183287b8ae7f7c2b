package chains

import (
	"context"

	"github.com/pkg/errors"
)

// Error taxonomy. Every error leaving the dispatch service matches one of
// these with errors.Is.
var (
	ErrUnsupportedChain      = errors.New("unsupported chain")
	ErrAllEndpointsUnhealthy = errors.New("all endpoints unhealthy")
	ErrNoFundsAvailable      = errors.New("no funds available")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInvalidAddress        = errors.New("invalid address")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrKeyDecryptionFailed   = errors.New("key decryption failed")
	ErrBroadcastRejected     = errors.New("broadcast rejected")
	ErrTimeout               = errors.New("timeout")
	ErrMalformedResponse     = errors.New("malformed provider response")
)

var taxonomy = []error{
	ErrUnsupportedChain,
	ErrAllEndpointsUnhealthy,
	ErrNoFundsAvailable,
	ErrInsufficientFunds,
	ErrInvalidAddress,
	ErrInvalidAmount,
	ErrKeyDecryptionFailed,
	ErrBroadcastRejected,
	ErrTimeout,
	ErrMalformedResponse,
}

// Kind returns the outermost taxonomy sentinel in err's chain, or nil.
func Kind(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if w, ok := e.(*wrapped); ok {
			return w.kind
		}
		for _, kind := range taxonomy {
			if e == kind {
				return kind
			}
		}
	}
	return nil
}

// Retryable reports whether the caller may retry after backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrAllEndpointsUnhealthy) || errors.Is(err, ErrTimeout)
}

// Classify guarantees err carries a taxonomy kind. Untyped deadline errors
// become ErrTimeout; anything else untyped is treated as a malformed provider
// response.
func Classify(err error) error {
	if err == nil || Kind(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(ErrTimeout, err)
	}
	return Wrap(ErrMalformedResponse, err)
}

// Wrap tags cause with a taxonomy kind while keeping cause reachable through
// errors.Is and errors.As.
func Wrap(kind, cause error) error {
	return &wrapped{kind: kind, cause: cause}
}

// Rejected wraps a node's rejection reason, passed through opaquely.
func Rejected(reason string) error {
	return errors.Wrap(ErrBroadcastRejected, reason)
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string { return w.kind.Error() + ": " + w.cause.Error() }

func (w *wrapped) Is(target error) bool { return target == w.kind }

func (w *wrapped) Cause() error { return w.cause }

func (w *wrapped) Unwrap() error { return w.cause }
