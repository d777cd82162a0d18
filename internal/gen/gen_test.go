package gen

import (
	"testing"

	"worldvault.gg/internal/region"
)

func TestChunkDeterministic(t *testing.T) {
	m := Procedural{Seed: 1337}
	p := Params{Height: 64}
	a := Chunk(m, p, 3, -2)
	b := Chunk(m, p, 3, -2)
	for i := range a.Blocks {
		if a.Blocks[i] != b.Blocks[i] {
			t.Fatalf("same seed and coords produced different blocks at %d", i)
		}
	}
}

func TestChunkSeedChangesTerrain(t *testing.T) {
	p := Params{Height: 64}
	a := Chunk(Procedural{Seed: 1}, p, 0, 0)
	b := Chunk(Procedural{Seed: 2}, p, 0, 0)
	same := true
	for i := range a.Blocks {
		if a.Blocks[i] != b.Blocks[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical terrain")
	}
}

func TestChunkHasSurface(t *testing.T) {
	ch := Chunk(Procedural{Seed: 7}, Params{Height: 64}, 0, 0)
	// Bottom layer solid, top layer air for every column.
	for lz := 0; lz < region.ChunkSpan; lz++ {
		for lx := 0; lx < region.ChunkSpan; lx++ {
			if ch.Get(lx, 0, lz) == BlockAir {
				t.Fatalf("column (%d,%d) has air at bedrock level", lx, lz)
			}
			if ch.Get(lx, 63, lz) != BlockAir {
				t.Fatalf("column (%d,%d) solid at max height", lx, lz)
			}
		}
	}
}

func TestInitialCoversRadiusAndSpawn(t *testing.T) {
	m := Procedural{Seed: 42}
	regions, points := Initial(m, Params{Height: 64, InitialRadiusChunks: 2})

	chunks := 0
	for _, reg := range regions {
		if !reg.Dirty() {
			t.Fatalf("freshly generated region must be dirty")
		}
		chunks += reg.ChunkCount()
	}
	if chunks != 25 { // (2*2+1)^2
		t.Fatalf("chunk count = %d, want 25", chunks)
	}

	var spawn bool
	for _, p := range points {
		if p.Key == "SPAWN" {
			spawn = true
			if p.Pos.X != 0 || p.Pos.Z != 0 || p.Pos.Y <= 0 {
				t.Fatalf("spawn = %+v", p.Pos)
			}
		}
	}
	if !spawn {
		t.Fatalf("no SPAWN data point generated")
	}
}

func TestInitialZeroRadiusSingleChunk(t *testing.T) {
	regions, _ := Initial(Procedural{Seed: 1}, Params{Height: 64, InitialRadiusChunks: 0})
	if len(regions) != 1 || regions[0].ChunkCount() != 1 {
		t.Fatalf("zero radius should yield one chunk, got %d regions", len(regions))
	}
}

type flatHook struct{}

func (flatHook) ShapeChunk(seed int64, cx, cz, height int, blocks []uint16) {
	span := region.ChunkSpan * region.ChunkSpan
	for i := 0; i < span; i++ {
		blocks[i] = BlockStone // y=0 layer only
	}
}

type oreEverywhere struct{}

func (oreEverywhere) Populate(seed int64, cx, cz, height int, blocks []uint16) {
	for i := range blocks {
		if blocks[i] == BlockStone {
			blocks[i] = BlockIronOre
		}
	}
}

func TestHooksReplaceDefaultStrategy(t *testing.T) {
	m := Procedural{Seed: 9, Chunk: flatHook{}, Populate: oreEverywhere{}}
	ch := Chunk(m, Params{Height: 8}, 0, 0)
	if ch.Get(0, 0, 0) != BlockIronOre {
		t.Fatalf("populate hook did not run over chunk hook output")
	}
	for y := 1; y < 8; y++ {
		if ch.Get(0, y, 0) != BlockAir {
			t.Fatalf("chunk hook output overwritten at y=%d", y)
		}
	}
}

type singleBiome struct{ b Biome }

func (s singleBiome) BiomeAt(seed int64, x, z int) Biome { return s.b }

func TestBiomeHookControlsSurface(t *testing.T) {
	m := Procedural{Seed: 3, Biome: singleBiome{BiomeDesert}}
	ch := Chunk(m, Params{Height: 64}, 0, 0)
	for lz := 0; lz < region.ChunkSpan; lz++ {
		for lx := 0; lx < region.ChunkSpan; lx++ {
			top := 0
			for y := 63; y >= 0; y-- {
				if ch.Get(lx, y, lz) != BlockAir {
					top = y
					break
				}
			}
			if got := ch.Get(lx, top, lz); got != BlockSand {
				t.Fatalf("desert surface at (%d,%d) = %d, want sand", lx, lz, got)
			}
		}
	}
}

func TestModeTags(t *testing.T) {
	if (Void{}).Tag() != TagVoid {
		t.Fatalf("void tag")
	}
	if (Procedural{}).Tag() != TagProcedural {
		t.Fatalf("procedural tag")
	}
	if (Template{}).Tag() != TagTemplate {
		t.Fatalf("template tag")
	}
}
