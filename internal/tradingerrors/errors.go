// Package tradingerrors defines the sentinel error kinds the orchestrator
// and agent loop dispatch on, and the classification/retry helper that
// decides how each kind is handled.
package tradingerrors

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, one per failure category the agent and
// orchestrator loops dispatch on. Call sites wrap one of these with
// fmt.Errorf("...: %w", ErrX) so errors.Is still matches through added
// context.
var (
	// ErrConfigurationMissing means a required setting (API key, DSN,
	// agent roster entry) is absent. The process should fail fast at
	// startup rather than limp along with a broken component.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrExternalUnavailable means a third-party dependency (broker,
	// cache, LLM transport) could not be reached. Callers recover
	// locally — degrade to a cached value, skip the tick's remainder,
	// or fall back to HOLD — rather than crash.
	ErrExternalUnavailable = errors.New("external dependency unavailable")

	// ErrParseError means an LLM response could not be parsed into a
	// decision. Callers retry once with feedback describing the parse
	// failure, then fall back to HOLD.
	ErrParseError = errors.New("response parse error")

	// ErrValidationError means a parsed decision failed schema or range
	// validation. Treated identically to HOLD: no order is placed.
	ErrValidationError = errors.New("validation error")

	// ErrInsufficientFunds means an order would exceed available
	// capital. Callers retry once with a reduced size, then abandon.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrGateBlocked means a risk gate (market clock, circuit breaker,
	// earnings, technical gates, signal combiner) refused the decision.
	// Reported to the caller; no order is placed and no retry follows.
	ErrGateBlocked = errors.New("gate blocked")

	// ErrBrokerReject means the broker rejected a submitted order.
	// Logged; recoverable rejections trigger one retry.
	ErrBrokerReject = errors.New("broker rejected order")

	// ErrInvariantViolation means an internal invariant (capital
	// conservation, position sign, idempotency) was violated. Fatal for
	// the current tick, but the service itself stays up.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Kind identifies which sentinel an error wraps, for dispatch without a
// long type-switch at every call site.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfigurationMissing
	KindExternalUnavailable
	KindParseError
	KindValidationError
	KindInsufficientFunds
	KindGateBlocked
	KindBrokerReject
	KindInvariantViolation
)

var sentinelsByKind = map[Kind]error{
	KindConfigurationMissing: ErrConfigurationMissing,
	KindExternalUnavailable:  ErrExternalUnavailable,
	KindParseError:           ErrParseError,
	KindValidationError:      ErrValidationError,
	KindInsufficientFunds:    ErrInsufficientFunds,
	KindGateBlocked:          ErrGateBlocked,
	KindBrokerReject:         ErrBrokerReject,
	KindInvariantViolation:   ErrInvariantViolation,
}

// Classify reports which Kind an error wraps, or KindUnknown if it
// matches none of the sentinels.
func Classify(err error) Kind {
	for kind, sentinel := range sentinelsByKind {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// Retryable reports whether a failure gets one retry with feedback
// before giving up: parse errors, insufficient funds, and recoverable
// broker rejections all get exactly one more attempt.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindParseError, KindInsufficientFunds, KindBrokerReject:
		return true
	default:
		return false
	}
}

// Wrap attaches context to a sentinel without losing errors.Is matching.
func Wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
