package region

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// Container layout: zstd stream holding a JSON header line followed by a
// gob body. Compatibility is judged by the header alone; callers never
// inspect the payload.

const (
	codecMagic   = "WVRG"
	codecVersion = 1
)

// ErrCorrupt is returned when a blob fails header validation or body
// decoding. No partial recovery is attempted.
var ErrCorrupt = errors.New("corrupt region")

type header struct {
	Magic   string `json:"magic"`
	Version int    `json:"version"`
	RX      int    `json:"rx"`
	RZ      int    `json:"rz"`
	Height  int    `json:"height"`
	Chunks  int    `json:"chunks"`
}

type chunkV1 struct {
	CX, CZ int
	Blocks []uint16
}

type bodyV1 struct {
	Chunks []chunkV1
}

// Encode serializes r. Output is deterministic for identical chunk
// contents: chunks are sorted by key and the encoder runs a single lane.
func Encode(r *Region) ([]byte, error) {
	keys := make([]ChunkKey, 0, len(r.Chunks))
	for k := range r.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})

	body := bodyV1{Chunks: make([]chunkV1, 0, len(keys))}
	for _, k := range keys {
		ch := r.Chunks[k]
		if !r.Coord.Contains(ch.CX, ch.CZ) {
			return nil, fmt.Errorf("chunk (%d,%d) outside region (%d,%d)", ch.CX, ch.CZ, r.Coord.RX, r.Coord.RZ)
		}
		if len(ch.Blocks) != ChunkSpan*ChunkSpan*r.Height {
			return nil, fmt.Errorf("chunk (%d,%d) blocks length %d, want %d", ch.CX, ch.CZ, len(ch.Blocks), ChunkSpan*ChunkSpan*r.Height)
		}
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		body.Chunks = append(body.Chunks, chunkV1{CX: ch.CX, CZ: ch.CZ, Blocks: blocks})
	}

	var out bytes.Buffer
	enc, err := zstd.NewWriter(&out,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriterSize(enc, 128*1024)
	hb, _ := json.Marshal(header{
		Magic:   codecMagic,
		Version: codecVersion,
		RX:      r.Coord.RX,
		RZ:      r.Coord.RZ,
		Height:  r.Height,
		Chunks:  len(body.Chunks),
	})
	if _, err := bw.Write(hb); err != nil {
		return nil, err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(bw).Encode(&body); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decode parses an encoded region blob, validating the header before
// touching the body.
func Decode(blob []byte) (*Region, error) {
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: open stream: %v", ErrCorrupt, err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 128*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Magic != codecMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, h.Magic)
	}
	if h.Version != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.Height <= 0 {
		return nil, fmt.Errorf("%w: height %d", ErrCorrupt, h.Height)
	}

	var body bodyV1
	if err := gob.NewDecoder(br).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrCorrupt, err)
	}
	if len(body.Chunks) != h.Chunks {
		return nil, fmt.Errorf("%w: chunk count %d, header says %d", ErrCorrupt, len(body.Chunks), h.Chunks)
	}

	coord := Coord{RX: h.RX, RZ: h.RZ}
	r := New(coord, h.Height)
	for _, ch := range body.Chunks {
		if !coord.Contains(ch.CX, ch.CZ) {
			return nil, fmt.Errorf("%w: chunk (%d,%d) outside region (%d,%d)", ErrCorrupt, ch.CX, ch.CZ, h.RX, h.RZ)
		}
		if len(ch.Blocks) != ChunkSpan*ChunkSpan*h.Height {
			return nil, fmt.Errorf("%w: chunk (%d,%d) blocks length %d", ErrCorrupt, ch.CX, ch.CZ, len(ch.Blocks))
		}
		k := ChunkKey{CX: ch.CX, CZ: ch.CZ}
		if _, dup := r.Chunks[k]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk (%d,%d)", ErrCorrupt, ch.CX, ch.CZ)
		}
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		r.Chunks[k] = &Chunk{CX: ch.CX, CZ: ch.CZ, Blocks: blocks}
	}
	r.ClearDirty()
	return r, nil
}
