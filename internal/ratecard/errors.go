package ratecard

import "errors"

var (
	// ErrNotFound is returned when no table is registered for a (carrier, service) key.
	ErrNotFound = errors.New("rate table not found")

	// ErrMalformedTable is returned when a table breaks a slab or surcharge invariant.
	ErrMalformedTable = errors.New("malformed rate table")
)
