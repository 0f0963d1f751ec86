package domain

import "errors"

// Sentinel errors for the analytics core. Callers distinguish "not enough
// history yet" (a normal state for new fields) from structural problems
// with errors.Is.
var (
	// ErrInsufficientData means a series is shorter than a component's
	// minimum window. Returned, never fatal; callers treat it as "try
	// again when more observations exist".
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidBandSample means a sample is structurally unusable
	// (no bands at all, or marked invalid by the upstream mask).
	ErrInvalidBandSample = errors.New("invalid band sample")

	// ErrUnorderedHistory means a history snapshot is not strictly
	// chronological (out of order or duplicate dates).
	ErrUnorderedHistory = errors.New("history out of order")

	// ErrDegenerateInput means a zoning input has no samples to partition.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrPolicyMissing means the rate-policy table has no entry for the
	// requested input type. Hard failure: there is no safe default rate.
	ErrPolicyMissing = errors.New("rate policy missing for input type")
)
