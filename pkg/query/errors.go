package query

import "errors"

// Sentinel errors. Match with errors.Is; not-found conditions surface the
// storage and registry sentinels unchanged.
var (
	// ErrInvalidQuery is returned for malformed queries: unknown fields,
	// unsupported field/operator combinations, bad values.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrTimeout is returned when a traversal is cut short by its context.
	ErrTimeout = errors.New("query timed out")
)
