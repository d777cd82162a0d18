package gen

import (
	"worldvault.gg/internal/datapoint"
	"worldvault.gg/internal/region"
)

// Block palette for the default strategy. Custom hooks may use their own
// palette above BlockReserved.
const (
	BlockAir uint16 = iota
	BlockStone
	BlockDirt
	BlockGrass
	BlockSand
	BlockGravel
	BlockCoalOre
	BlockIronOre

	BlockReserved uint16 = 64
)

type Params struct {
	Height              int // blocks per column
	InitialRadiusChunks int // chunk radius generated up front at create
	BiomeRegionSize     int // columns per biome cell
	OrePermille         int // ore density in stone, 0..1000
}

func (p Params) withDefaults() Params {
	if p.Height <= 0 {
		p.Height = region.DefaultHeight
	}
	if p.InitialRadiusChunks < 0 {
		p.InitialRadiusChunks = 0
	}
	if p.BiomeRegionSize <= 0 {
		p.BiomeRegionSize = 48
	}
	if p.OrePermille <= 0 {
		p.OrePermille = 12
	}
	return p
}

// Initial produces the up-front regions and data points for a freshly
// created procedural world. Chunks within InitialRadiusChunks of the
// origin are generated; everything beyond stays lazy.
func Initial(m Procedural, p Params) ([]*region.Region, []datapoint.Point) {
	p = p.withDefaults()
	byCoord := map[region.Coord]*region.Region{}
	r := p.InitialRadiusChunks
	for cz := -r; cz <= r; cz++ {
		for cx := -r; cx <= r; cx++ {
			rc := region.Of(cx, cz)
			reg := byCoord[rc]
			if reg == nil {
				reg = region.New(rc, p.Height)
				byCoord[rc] = reg
			}
			reg.Put(Chunk(m, p, cx, cz))
		}
	}

	regions := make([]*region.Region, 0, len(byCoord))
	for _, reg := range byCoord {
		regions = append(regions, reg)
	}

	sy := surfaceY(m.Seed, 0, 0, p)
	points := []datapoint.Point{
		{Key: "SPAWN", Pos: datapoint.Vec3{X: 0, Y: sy + 1, Z: 0}},
	}
	return regions, points
}

// Chunk generates one chunk. Deterministic in (seed, cx, cz).
func Chunk(m Procedural, p Params, cx, cz int) *region.Chunk {
	p = p.withDefaults()
	ch := region.NewChunk(cx, cz, p.Height)
	if m.Chunk != nil {
		m.Chunk.ShapeChunk(m.Seed, cx, cz, p.Height, ch.Blocks)
	} else {
		shapeDefault(m, p, ch)
	}
	if m.Populate != nil {
		m.Populate.Populate(m.Seed, cx, cz, p.Height, ch.Blocks)
	}
	return ch
}

func shapeDefault(m Procedural, p Params, ch *region.Chunk) {
	for lz := 0; lz < region.ChunkSpan; lz++ {
		for lx := 0; lx < region.ChunkSpan; lx++ {
			x := ch.CX*region.ChunkSpan + lx
			z := ch.CZ*region.ChunkSpan + lz
			biome := biomeAt(m, p, x, z)
			top := surfaceY(m.Seed, x, z, p)
			for y := 0; y <= top && y < p.Height; y++ {
				var b uint16
				switch {
				case y >= top:
					if biome == BiomeDesert {
						b = BlockSand
					} else {
						b = BlockGrass
					}
				case y >= top-3:
					if biome == BiomeDesert {
						b = BlockSand
					} else {
						b = BlockDirt
					}
				default:
					b = BlockStone
					h := hash3(m.Seed, x, y, z)
					if h%1000 < uint64(p.OrePermille) {
						if h>>10&1 == 0 {
							b = BlockCoalOre
						} else {
							b = BlockIronOre
						}
					}
				}
				ch.Set(lx, y, lz, b)
			}
		}
	}
}

func biomeAt(m Procedural, p Params, x, z int) Biome {
	if m.Biome != nil {
		return m.Biome.BiomeAt(m.Seed, x, z)
	}
	rx := floorDiv(x, p.BiomeRegionSize)
	rz := floorDiv(z, p.BiomeRegionSize)
	switch hash2(m.Seed, rx, rz) % 3 {
	case 0:
		return BiomePlains
	case 1:
		return BiomeForest
	default:
		return BiomeDesert
	}
}

// surfaceY gives the terrain height of a column, clamped to the world
// height. Smoothness does not matter here; determinism does.
func surfaceY(seed int64, x, z int, p Params) int {
	base := p.Height / 3
	v := int(hash2(seed, x>>2, z>>2) % 9)
	top := base + v
	if top >= p.Height {
		top = p.Height - 1
	}
	return top
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FNV-1a style coordinate hashes, stable across runs.
func hash2(seed int64, x, z int) uint64 {
	h := uint64(1469598103934665603)
	h = mix(h, uint64(seed))
	h = mix(h, uint64(int64(x)))
	h = mix(h, uint64(int64(z)))
	return h
}

func hash3(seed int64, x, y, z int) uint64 {
	h := hash2(seed, x, z)
	h = mix(h, uint64(int64(y)))
	return h
}

func mix(h, v uint64) uint64 {
	for i := 0; i < 8; i++ {
		h ^= (v >> (8 * i)) & 0xff
		h *= 1099511628211
	}
	return h
}
