package engine

import "errors"

// Domain rule violations. All of these reject the write synchronously and
// leave no partial state behind.
var (
	// ErrInvalidPriceForDirection is returned when an entry/stop/target or
	// rung price violates the direction inequality.
	ErrInvalidPriceForDirection = errors.New("price not valid for signal direction")

	// ErrLadderOverflow is returned when a rung would push the signal's
	// cumulative close percent above 100.
	ErrLadderOverflow = errors.New("cumulative close percent would exceed 100")

	// ErrImmutableField is returned when an edit touches a field frozen by
	// publication, or a rung that has already been applied to trades.
	ErrImmutableField = errors.New("field is immutable after publication")

	// ErrBreakevenNotArmed is returned when a breakeven close is requested
	// while the stop loss still sits away from entry.
	ErrBreakevenNotArmed = errors.New("breakeven close requested but stop loss is not at entry")

	// ErrAlreadyTerminal is returned when a close races against an earlier
	// settlement. The signal keeps the first terminal state it reached.
	ErrAlreadyTerminal = errors.New("signal already terminally closed")

	// ErrSignalNotActive is returned when a close or arm targets a signal
	// that has not been published yet.
	ErrSignalNotActive = errors.New("signal is not active")

	// ErrNotUpcoming is returned when a draft-only operation (delete, price
	// edit) targets a published signal.
	ErrNotUpcoming = errors.New("operation only allowed on upcoming signals")

	// ErrRiskTierNotAllowed is returned when a trade is opened with a risk
	// percent outside the configured tiers.
	ErrRiskTierNotAllowed = errors.New("risk percent is not an allowed tier")
)
