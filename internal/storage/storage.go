// Package storage defines the persistence bucket consumed by the world
// engine: an object store keyed by (bucket, world id) holding one meta
// document plus one blob per region. Writes replace whole objects.
package storage

import (
	"context"
	"errors"

	"worldvault.gg/internal/region"
)

var (
	// ErrNotFound reports a missing object. Callers treat it as a normal
	// outcome (world or region never persisted), not a fault.
	ErrNotFound = errors.New("object not found")

	// ErrUnavailable wraps transient backend faults. The engine does not
	// retry internally; retry policy belongs to the caller.
	ErrUnavailable = errors.New("storage unavailable")
)

// Backend is the async object store behind persistent worlds. A world
// exists iff its meta document exists. Implementations must be safe for
// concurrent use and give read-after-write consistency per key.
type Backend interface {
	Exists(ctx context.Context, bucket, worldID string) (bool, error)

	GetMeta(ctx context.Context, bucket, worldID string) ([]byte, error)
	PutMeta(ctx context.Context, bucket, worldID string, data []byte) error

	GetRegion(ctx context.Context, bucket, worldID string, coord region.Coord) ([]byte, error)
	PutRegion(ctx context.Context, bucket, worldID string, coord region.Coord, data []byte) error
	ListRegions(ctx context.Context, bucket, worldID string) ([]region.Coord, error)

	// DeleteAll removes the meta document and every region blob.
	// Deleting an absent world succeeds silently.
	DeleteAll(ctx context.Context, bucket, worldID string) error
}
