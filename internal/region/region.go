package region

// A region is the unit of cache residency and durable storage: a fixed
// 32x32 group of chunks, written back as one object (replace-on-write).

const (
	ChunkSpan  = 16 // blocks per chunk edge
	RegionSpan = 32 // chunks per region edge

	DefaultHeight = 64
)

type Coord struct {
	RX int
	RZ int
}

type ChunkKey struct {
	CX int
	CZ int
}

// Of maps world chunk coordinates to the owning region coordinate.
func Of(cx, cz int) Coord {
	return Coord{RX: floorDiv(cx, RegionSpan), RZ: floorDiv(cz, RegionSpan)}
}

// Contains reports whether chunk (cx, cz) belongs to this region.
func (c Coord) Contains(cx, cz int) bool {
	return Of(cx, cz) == c
}

type Chunk struct {
	CX, CZ int
	Blocks []uint16 // len = ChunkSpan*ChunkSpan*height, x-major then z then y
}

func NewChunk(cx, cz, height int) *Chunk {
	return &Chunk{CX: cx, CZ: cz, Blocks: make([]uint16, ChunkSpan*ChunkSpan*height)}
}

func (c *Chunk) index(x, y, z int) int {
	return x + z*ChunkSpan + y*ChunkSpan*ChunkSpan
}

func (c *Chunk) Height() int {
	return len(c.Blocks) / (ChunkSpan * ChunkSpan)
}

func (c *Chunk) Get(x, y, z int) uint16 {
	return c.Blocks[c.index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b uint16) {
	c.Blocks[c.index(x, y, z)] = b
}

type Region struct {
	Coord  Coord
	Height int
	Chunks map[ChunkKey]*Chunk

	dirty bool
}

func New(coord Coord, height int) *Region {
	if height <= 0 {
		height = DefaultHeight
	}
	return &Region{Coord: coord, Height: height, Chunks: map[ChunkKey]*Chunk{}}
}

func (r *Region) Chunk(cx, cz int) *Chunk {
	return r.Chunks[ChunkKey{CX: cx, CZ: cz}]
}

// Put inserts ch and marks the region dirty. Chunks outside the region
// coordinate are rejected by the codec at encode time, not here.
func (r *Region) Put(ch *Chunk) {
	r.Chunks[ChunkKey{CX: ch.CX, CZ: ch.CZ}] = ch
	r.dirty = true
}

func (r *Region) Dirty() bool     { return r.dirty }
func (r *Region) MarkDirty()      { r.dirty = true }
func (r *Region) ClearDirty()     { r.dirty = false }
func (r *Region) ChunkCount() int { return len(r.Chunks) }

// ApproxBytes estimates resident memory for eviction accounting.
func (r *Region) ApproxBytes() int {
	return len(r.Chunks) * ChunkSpan * ChunkSpan * r.Height * 2
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Local converts world chunk coordinates into region-local offsets.
func Local(cx, cz int) (lx, lz int) {
	return mod(cx, RegionSpan), mod(cz, RegionSpan)
}
