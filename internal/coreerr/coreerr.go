// Package coreerr defines the sentinel error values shared across the
// agent's components. Every layer boundary wraps with fmt.Errorf("...: %w",
// err) so errors.Is/errors.As still resolve to these sentinels after
// wrapping.
package coreerr

import "errors"

var (
	// ErrTransport covers network failures, disconnects, and auth lapses.
	// Transport implementations handle these internally (reconnect +
	// resnapshot); they must never propagate to the controller.
	ErrTransport = errors.New("transport error")

	// ErrInvalidOdds is returned when an odds value is not ladder-valid,
	// or quantization would land on 0 or ODDS_UNIT.
	ErrInvalidOdds = errors.New("invalid odds")

	// ErrOrderRejected is a venue business-rule rejection. Treated
	// identically to ErrInvalidOdds by callers.
	ErrOrderRejected = errors.New("order rejected")

	// ErrOrderGone means a cancel returned zero cancelled orders: the
	// order is already filled or already gone. Not itself a failure.
	ErrOrderGone = errors.New("order gone")

	// ErrRateLimited is returned by the venue adapter when the venue
	// throttles a request. Retried with backoff; if persistent, callers
	// treat it like ErrTransport.
	ErrRateLimited = errors.New("rate limited")

	// ErrPositionGone is returned when a queued operation is discarded
	// because its position was deleted before the operation ran.
	ErrPositionGone = errors.New("position gone")

	// ErrConfigInvalid marks bad operator input rejected at position
	// creation or edit, before any state mutation.
	ErrConfigInvalid = errors.New("invalid configuration")
)

// Transient reports whether an error should be retried with backoff by the
// Order Gateway, per the taxonomy: Transport and RateLimited are transient;
// everything else is not.
func Transient(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrRateLimited)
}
