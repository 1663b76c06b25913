package recipe

import (
	"fmt"

	"github.com/earthcube-lab/buzzard/footprint"
)

// ConfigurationError reports an invalid recipe configuration: bad tilings,
// mismatched primitive name sets, missing callbacks, unresolvable pool
// references. It is always raised synchronously at construction time.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "recipe: invalid configuration: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ComputationError reports a failed user callback (compute or merge) or a
// failed primitive read feeding one. It propagates to every request
// depending on the tile; the tile is not retried automatically, but the
// recipe stays usable for other tiles.
type ComputationError struct {
	Stage string // "primitives", "compute" or "merge"
	Tile  footprint.Footprint
	Err   error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("recipe: %s failed for tile %v: %v", e.Stage, e.Tile, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// CacheIOError reports a failed cache-tile write. The tile is left absent
// on disk, so the next request recomputes it.
type CacheIOError struct {
	Tile footprint.Footprint
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("recipe: cache write failed for tile %v: %v", e.Tile, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// ConsistencyError reports overlapping or incomplete pixel coverage among
// contributing arrays during merge or assembly, or a callback result whose
// shape does not match its tile. It is fatal for the request; partial data
// is never papered over.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "recipe: inconsistent pixel coverage: " + e.Reason
}

func consistencyErrorf(format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Reason: fmt.Sprintf(format, args...)}
}
