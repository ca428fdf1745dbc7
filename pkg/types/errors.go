package types

import "errors"

var (
	// ErrConfig marks an invalid configuration
	ErrConfig = errors.New("invalid configuration")

	// ErrPlanning marks sampling parameters that cannot produce a plan
	ErrPlanning = errors.New("cannot plan sample")

	// ErrProvider marks a failure to reach the block data provider for
	// information the whole run depends on, such as the chain height
	ErrProvider = errors.New("block data provider unavailable")

	// ErrFetch marks a failure fetching a single block
	ErrFetch = errors.New("block fetch failed")

	// ErrStatisticsDomain marks statistics requested over an empty or
	// degenerate sample
	ErrStatisticsDomain = errors.New("statistics undefined for sample")
)
