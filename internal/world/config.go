package world

import (
	"fmt"

	"worldvault.gg/internal/gen"
	"worldvault.gg/internal/region"
)

// FormatAnvil is the only region format tag currently supported.
const FormatAnvil = "anvil1"

type MemoryPolicy int

const (
	// InMemoryOnly worlds keep every resident region forever: no
	// eviction, no re-fetch after the initial load. Growth beyond
	// available memory is the caller's risk by contract.
	InMemoryOnly MemoryPolicy = iota

	// DiskBacked worlds may evict clean regions in LRU order under a
	// memory ceiling and re-fetch them from storage on next access.
	DiskBacked
)

func (p MemoryPolicy) String() string {
	switch p {
	case InMemoryOnly:
		return "in_memory_only"
	case DiskBacked:
		return "disk_backed"
	default:
		return fmt.Sprintf("memory_policy(%d)", int(p))
	}
}

func ParseMemoryPolicy(s string) (MemoryPolicy, error) {
	switch s {
	case "in_memory_only", "":
		return InMemoryOnly, nil
	case "disk_backed":
		return DiskBacked, nil
	default:
		return InMemoryOnly, fmt.Errorf("unknown memory policy %q", s)
	}
}

// Persistence names the bucket a world is stored under. A nil
// Persistence makes the world ephemeral: save and delete are forbidden.
type Persistence struct {
	Bucket string
}

// Config is the immutable creation descriptor for a world.
type Config struct {
	// ID is optional; empty means a fresh process-local id is assigned.
	ID string

	Persistence *Persistence
	Mode        gen.Mode
	Format      string // "" defaults to FormatAnvil
	Memory      MemoryPolicy

	Height               int // blocks per column; 0 defaults to region.DefaultHeight
	InitialRadiusChunks  int // procedural only: chunks generated up front
	MemoryCeilingRegions int // DiskBacked only: max resident regions, 0 = unlimited
}

func (c Config) Persistent() bool {
	return c.Persistence != nil
}

func (c Config) Bucket() string {
	if c.Persistence == nil {
		return ""
	}
	return c.Persistence.Bucket
}

func (c Config) ResolvedFormat() string {
	if c.Format == "" {
		return FormatAnvil
	}
	return c.Format
}

func (c Config) ResolvedHeight() int {
	if c.Height <= 0 {
		return region.DefaultHeight
	}
	return c.Height
}
