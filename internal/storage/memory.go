package storage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"worldvault.gg/internal/region"
)

// Memory is a map-backed Backend for tests and single-process setups.
// It counts fetches so tests can assert on backend traffic, and can be
// flipped unavailable to exercise transient-fault paths.
type Memory struct {
	mu     sync.RWMutex
	worlds map[string]*memWorld

	metaGets   atomic.Uint64
	regionGets atomic.Uint64
	puts       atomic.Uint64

	unavailable atomic.Bool
}

type memWorld struct {
	meta    []byte
	regions map[region.Coord][]byte
}

func NewMemory() *Memory {
	return &Memory{worlds: map[string]*memWorld{}}
}

func memKey(bucket, worldID string) string {
	return bucket + "/" + worldID
}

func (m *Memory) check() error {
	if m.unavailable.Load() {
		return ErrUnavailable
	}
	return nil
}

func (m *Memory) Exists(ctx context.Context, bucket, worldID string) (bool, error) {
	if err := m.check(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := m.worlds[memKey(bucket, worldID)]
	return w != nil && w.meta != nil, nil
}

func (m *Memory) GetMeta(ctx context.Context, bucket, worldID string) ([]byte, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.metaGets.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := m.worlds[memKey(bucket, worldID)]
	if w == nil || w.meta == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(w.meta))
	copy(out, w.meta)
	return out, nil
}

func (m *Memory) PutMeta(ctx context.Context, bucket, worldID string, data []byte) error {
	if err := m.check(); err != nil {
		return err
	}
	m.puts.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.ensureLocked(bucket, worldID)
	w.meta = append([]byte(nil), data...)
	return nil
}

func (m *Memory) GetRegion(ctx context.Context, bucket, worldID string, coord region.Coord) ([]byte, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.regionGets.Add(1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := m.worlds[memKey(bucket, worldID)]
	if w == nil {
		return nil, ErrNotFound
	}
	b, ok := w.regions[coord]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *Memory) PutRegion(ctx context.Context, bucket, worldID string, coord region.Coord, data []byte) error {
	if err := m.check(); err != nil {
		return err
	}
	m.puts.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.ensureLocked(bucket, worldID)
	w.regions[coord] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) ListRegions(ctx context.Context, bucket, worldID string) ([]region.Coord, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	w := m.worlds[memKey(bucket, worldID)]
	if w == nil {
		return nil, nil
	}
	out := make([]region.Coord, 0, len(w.regions))
	for c := range w.regions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RX != out[j].RX {
			return out[i].RX < out[j].RX
		}
		return out[i].RZ < out[j].RZ
	})
	return out, nil
}

func (m *Memory) DeleteAll(ctx context.Context, bucket, worldID string) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.worlds, memKey(bucket, worldID))
	return nil
}

func (m *Memory) ensureLocked(bucket, worldID string) *memWorld {
	k := memKey(bucket, worldID)
	w := m.worlds[k]
	if w == nil {
		w = &memWorld{regions: map[region.Coord][]byte{}}
		m.worlds[k] = w
	}
	return w
}

// SetUnavailable makes every call fail with ErrUnavailable until reset.
func (m *Memory) SetUnavailable(v bool) { m.unavailable.Store(v) }

func (m *Memory) MetaGets() uint64   { return m.metaGets.Load() }
func (m *Memory) RegionGets() uint64 { return m.regionGets.Load() }
func (m *Memory) Puts() uint64       { return m.puts.Load() }
