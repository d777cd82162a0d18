package engine

import "errors"

var (
	// ErrInvalidConfig rejects a malformed WorldConfig; the caller must
	// fix the config and retry.
	ErrInvalidConfig = errors.New("invalid world config")

	// ErrWorldStillLoaded rejects delete while the id is present in the
	// registry table in any state.
	ErrWorldStillLoaded = errors.New("world still loaded")
)
