package rate

import "errors"

var (
	// ErrInvalidWeight is returned for a shipment weight of zero or less.
	ErrInvalidWeight = errors.New("invalid weight")

	// ErrInvalidRequest covers the other request-level faults: missing service type,
	// negative dimensions or declared value.
	ErrInvalidRequest = errors.New("invalid shipment request")

	// ErrZoneNotPriced is returned when a carrier resolves a zone its table has no slabs for.
	ErrZoneNotPriced = errors.New("zone not priced")

	// ErrQuoteFault wraps an unexpected failure while pricing one carrier.
	ErrQuoteFault = errors.New("quote computation failed")
)
