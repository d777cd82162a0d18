// Package gen implements the world generation strategy. The mode is a
// tagged variant: each variant carries exactly the fields it needs, so a
// Void world cannot even express a seed and a Template world cannot
// express hooks.
package gen

type Mode interface {
	isMode()
	Tag() string
}

const (
	TagVoid       = "VOID"
	TagProcedural = "PROCEDURAL"
	TagTemplate   = "TEMPLATE"
)

// Void produces no regions and no data points; chunks materialize as air
// on first access.
type Void struct{}

func (Void) isMode()     {}
func (Void) Tag() string { return TagVoid }

// Template materializes the world from a named template bundle. Content
// is resolved by the template registry, not generated here.
type Template struct {
	Name string
}

func (Template) isMode()     {}
func (Template) Tag() string { return TagTemplate }

// Procedural derives terrain deterministically from the seed. Hooks,
// when set, are caller-supplied capabilities the engine invokes but does
// not implement; nil hooks fall back to the default strategy.
type Procedural struct {
	Seed     int64
	Chunk    ChunkHook
	Biome    BiomeHook
	Populate PopulateHook
}

func (Procedural) isMode()     {}
func (Procedural) Tag() string { return TagProcedural }

type Biome string

const (
	BiomePlains Biome = "PLAINS"
	BiomeForest Biome = "FOREST"
	BiomeDesert Biome = "DESERT"
)

// ChunkHook replaces the base terrain pass for one chunk.
type ChunkHook interface {
	ShapeChunk(seed int64, cx, cz, height int, blocks []uint16)
}

// BiomeHook overrides biome selection per column.
type BiomeHook interface {
	BiomeAt(seed int64, x, z int) Biome
}

// PopulateHook runs after terrain shaping (ores, features).
type PopulateHook interface {
	Populate(seed int64, cx, cz, height int, blocks []uint16)
}
