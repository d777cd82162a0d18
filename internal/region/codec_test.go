package region

import (
	"bytes"
	"errors"
	"testing"
)

func buildRegion(t *testing.T) *Region {
	t.Helper()
	r := New(Coord{RX: 0, RZ: 0}, 32)
	for cx := 0; cx < 3; cx++ {
		for cz := 0; cz < 2; cz++ {
			ch := NewChunk(cx, cz, 32)
			ch.Set(cx, 5, cz, uint16(100+cx*10+cz))
			r.Put(ch)
		}
	}
	return r
}

func TestCodecRoundTrip(t *testing.T) {
	orig := buildRegion(t)
	blob, err := Encode(orig)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Coord != orig.Coord {
		t.Fatalf("coord = %+v, want %+v", got.Coord, orig.Coord)
	}
	if got.Height != orig.Height {
		t.Fatalf("height = %d, want %d", got.Height, orig.Height)
	}
	if got.ChunkCount() != orig.ChunkCount() {
		t.Fatalf("chunks = %d, want %d", got.ChunkCount(), orig.ChunkCount())
	}
	if got.Dirty() {
		t.Fatalf("decoded region must come back clean")
	}
	for k, ch := range orig.Chunks {
		dch := got.Chunks[k]
		if dch == nil {
			t.Fatalf("missing chunk %+v", k)
		}
		for i := range ch.Blocks {
			if ch.Blocks[i] != dch.Blocks[i] {
				t.Fatalf("chunk %+v block %d = %d, want %d", k, i, dch.Blocks[i], ch.Blocks[i])
			}
		}
	}
}

func TestCodecDeterministic(t *testing.T) {
	r := buildRegion(t)
	a, err := Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("identical regions must encode identically")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a region file at all")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("garbage decode err = %v, want ErrCorrupt", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("empty decode err = %v, want ErrCorrupt", err)
	}
}

func TestDecodeRejectsTruncation(t *testing.T) {
	blob, err := Encode(buildRegion(t))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, n := range []int{1, len(blob) / 2, len(blob) - 1} {
		if _, err := Decode(blob[:n]); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("truncated at %d: err = %v, want ErrCorrupt", n, err)
		}
	}
}

func TestEncodeRejectsForeignChunk(t *testing.T) {
	r := New(Coord{RX: 0, RZ: 0}, 32)
	r.Put(NewChunk(40, 0, 32)) // belongs to region (1,0)
	if _, err := Encode(r); err == nil {
		t.Fatalf("expected encode error for chunk outside region")
	}
}

func TestEncodeRejectsWrongBlockLength(t *testing.T) {
	r := New(Coord{RX: 0, RZ: 0}, 32)
	r.Put(NewChunk(0, 0, 16)) // wrong height for this region
	if _, err := Encode(r); err == nil {
		t.Fatalf("expected encode error for mismatched block length")
	}
}

func TestCodecEmptyRegion(t *testing.T) {
	r := New(Coord{RX: -3, RZ: 7}, 64)
	blob, err := Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ChunkCount() != 0 || got.Coord != r.Coord {
		t.Fatalf("empty region round-trip mismatch: %+v", got)
	}
}
