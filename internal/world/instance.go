// Package world holds the runtime representation of one loaded world:
// a lazily populated region cache with dirty tracking and an immutable
// data point index. Instances are created and destroyed only by the
// engine registry.
package world

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"worldvault.gg/internal/datapoint"
	"worldvault.gg/internal/region"
	"worldvault.gg/internal/storage"
)

// ErrUnloading rejects chunk access once release has begun. Access is
// rejected, never queued.
var ErrUnloading = errors.New("world unloading")

type State int32

const (
	StateCreating State = iota
	StateLoaded
	StateReleasing
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateLoaded:
		return "loaded"
	case StateReleasing:
		return "releasing"
	case StateUnloaded:
		return "unloaded"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ChunkGen produces a chunk that has never been persisted (beyond the
// originally generated bounds). The registry supplies it per mode.
type ChunkGen func(cx, cz int) *region.Chunk

type cacheEntry struct {
	reg  *region.Region
	elem *list.Element // nil while dirty (pinned against eviction)
}

type fetchCall struct {
	done chan struct{}
	err  error
}

type Instance struct {
	id       string
	cfg      Config
	height   int
	backend  storage.Backend // nil for ephemeral worlds
	genChunk ChunkGen
	points   *datapoint.Index
	log      *zap.Logger

	state atomic.Int32
	// epoch rejects stale async completions: a fetch started before
	// release began must not insert into the cache afterwards.
	epoch atomic.Uint64

	mu      sync.Mutex
	regions map[region.Coord]*cacheEntry
	lru     *list.List // of region.Coord; front = most recent; clean entries only
	fetches map[region.Coord]*fetchCall
}

type Options struct {
	ID       string
	Config   Config
	Backend  storage.Backend
	GenChunk ChunkGen
	Points   *datapoint.Index
	Initial  []*region.Region
	// MarkDirty flags the initial regions for flushing on release
	// (freshly generated content); loaded regions come in clean.
	MarkDirty bool
	Logger    *zap.Logger
}

func New(o Options) *Instance {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	w := &Instance{
		id:       o.ID,
		cfg:      o.Config,
		height:   o.Config.ResolvedHeight(),
		backend:  o.Backend,
		genChunk: o.GenChunk,
		points:   o.Points,
		log:      log.With(zap.String("world", o.ID)),
		regions:  map[region.Coord]*cacheEntry{},
		lru:      list.New(),
		fetches:  map[region.Coord]*fetchCall{},
	}
	w.state.Store(int32(StateCreating))
	for _, reg := range o.Initial {
		if o.MarkDirty {
			reg.MarkDirty()
		} else {
			reg.ClearDirty()
		}
		w.insertLocked(reg.Coord, reg)
	}
	w.state.Store(int32(StateLoaded))
	return w
}

func (w *Instance) ID() string           { return w.id }
func (w *Instance) Bucket() string       { return w.cfg.Bucket() }
func (w *Instance) Config() Config       { return w.cfg }
func (w *Instance) Height() int          { return w.height }
func (w *Instance) State() State         { return State(w.state.Load()) }
func (w *Instance) Epoch() uint64        { return w.epoch.Load() }
func (w *Instance) Persistent() bool     { return w.cfg.Persistent() }

// DataPoints returns the coordinates registered under key, empty for
// unknown keys.
func (w *Instance) DataPoints(key string) []datapoint.Point {
	return w.points.Get(key)
}

func (w *Instance) DataPointIndex() *datapoint.Index { return w.points }

// Chunk returns the chunk at (cx, cz), fetching or generating its region
// as needed. Resident hits are synchronous; only region I/O suspends.
func (w *Instance) Chunk(ctx context.Context, cx, cz int) (*region.Chunk, error) {
	for {
		if w.State() != StateLoaded {
			return nil, ErrUnloading
		}
		rc := region.Of(cx, cz)

		w.mu.Lock()
		// Recheck under the lock: release may have begun since the check
		// above, and its flush walks the cache without holding mu. A
		// mutation slipping in here would land after the flush snapshot.
		if w.State() != StateLoaded {
			w.mu.Unlock()
			return nil, ErrUnloading
		}
		if e, ok := w.regions[rc]; ok {
			ch := e.reg.Chunk(cx, cz)
			if ch == nil {
				// Region exists but this chunk never did: generate into it.
				ch = w.genChunk(cx, cz)
				e.reg.Put(ch)
				w.pinDirtyLocked(e)
			} else {
				w.touchLocked(e)
			}
			w.mu.Unlock()
			return ch, nil
		}

		if w.backend == nil || !w.cfg.Persistent() || w.cfg.Memory == InMemoryOnly {
			// Never persisted, or re-fetch forbidden by policy: the
			// region can only be fresh content.
			reg := region.New(rc, w.height)
			ch := w.genChunk(cx, cz)
			reg.Put(ch)
			w.insertLocked(rc, reg)
			w.evictLocked(rc)
			w.mu.Unlock()
			return ch, nil
		}

		if fc, ok := w.fetches[rc]; ok {
			w.mu.Unlock()
			select {
			case <-fc.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if fc.err != nil {
				return nil, fc.err
			}
			continue // region resident now; retake the fast path
		}

		fc := &fetchCall{done: make(chan struct{})}
		w.fetches[rc] = fc
		startEpoch := w.epoch.Load()
		w.mu.Unlock()

		// The fetch itself is detached from the initiating caller's
		// context: abandoning waiters must not fail the flight for
		// everyone else.
		go w.runFetch(context.WithoutCancel(ctx), rc, startEpoch, fc)

		select {
		case <-fc.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if fc.err != nil {
			return nil, fc.err
		}
	}
}

func (w *Instance) runFetch(ctx context.Context, rc region.Coord, startEpoch uint64, fc *fetchCall) {
	var reg *region.Region
	blob, err := w.backend.GetRegion(ctx, w.cfg.Bucket(), w.id, rc)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		reg = region.New(rc, w.height)
		reg.ClearDirty()
	case err != nil:
		w.log.Warn("region fetch failed",
			zap.Int("rx", rc.RX), zap.Int("rz", rc.RZ), zap.Error(err))
		w.finishFetch(rc, fc, err)
		return
	default:
		reg, err = region.Decode(blob)
		if err != nil {
			w.log.Error("region decode failed",
				zap.Int("rx", rc.RX), zap.Int("rz", rc.RZ), zap.Error(err))
			w.finishFetch(rc, fc, err)
			return
		}
	}

	w.mu.Lock()
	if w.epoch.Load() != startEpoch {
		// Release began while the fetch was in flight; drop the result.
		w.mu.Unlock()
		w.finishFetch(rc, fc, ErrUnloading)
		return
	}
	w.insertLocked(rc, reg)
	w.evictLocked(rc)
	w.mu.Unlock()
	w.finishFetch(rc, fc, nil)
}

func (w *Instance) finishFetch(rc region.Coord, fc *fetchCall, err error) {
	fc.err = err
	w.mu.Lock()
	delete(w.fetches, rc)
	w.mu.Unlock()
	close(fc.done)
}

// MutateChunk applies fn to the chunk at (cx, cz) and marks the owning
// region dirty. Dirty regions are pinned: never evicted before a flush.
func (w *Instance) MutateChunk(ctx context.Context, cx, cz int, fn func(*region.Chunk)) error {
	rc := region.Of(cx, cz)
	for {
		if _, err := w.Chunk(ctx, cx, cz); err != nil {
			return err
		}
		w.mu.Lock()
		if w.State() != StateLoaded {
			w.mu.Unlock()
			return ErrUnloading
		}
		// Resolve the chunk from the current entry, not from the Chunk
		// call above: the region may have been evicted (and possibly
		// re-fetched) in between, and mutating a dropped copy would lose
		// the write.
		e, ok := w.regions[rc]
		if !ok {
			w.mu.Unlock()
			continue
		}
		ch := e.reg.Chunk(cx, cz)
		if ch == nil {
			w.mu.Unlock()
			continue
		}
		fn(ch)
		e.reg.MarkDirty()
		w.pinDirtyLocked(e)
		w.mu.Unlock()
		return nil
	}
}

// insertLocked assumes rc is absent.
func (w *Instance) insertLocked(rc region.Coord, reg *region.Region) {
	e := &cacheEntry{reg: reg}
	if !reg.Dirty() {
		e.elem = w.lru.PushFront(rc)
	}
	w.regions[rc] = e
}

func (w *Instance) touchLocked(e *cacheEntry) {
	if e.elem != nil {
		w.lru.MoveToFront(e.elem)
	}
}

func (w *Instance) pinDirtyLocked(e *cacheEntry) {
	if e.elem != nil {
		w.lru.Remove(e.elem)
		e.elem = nil
	}
}

// evictLocked drops least-recently-used clean regions while over the
// ceiling. The just-inserted region (keep) is never evicted: its waiters
// have not read it yet, and evicting it would make them re-fetch in a
// loop. The ceiling is therefore soft while dirty regions pin the rest.
// InMemoryOnly worlds never reach here with an elem to drop; the policy
// check keeps the contract explicit anyway.
func (w *Instance) evictLocked(keep region.Coord) {
	ceiling := w.cfg.MemoryCeilingRegions
	if ceiling <= 0 || w.cfg.Memory != DiskBacked {
		return
	}
	for len(w.regions) > ceiling && w.lru.Len() > 0 {
		back := w.lru.Back()
		rc := back.Value.(region.Coord)
		if rc == keep {
			return
		}
		e := w.regions[rc]
		w.lru.Remove(back)
		delete(w.regions, rc)
		w.log.Debug("evicted region",
			zap.Int("rx", rc.RX), zap.Int("rz", rc.RZ),
			zap.String("size", humanize.Bytes(uint64(e.reg.ApproxBytes()))))
	}
}

// BeginRelease moves Loaded to Releasing and bumps the epoch so stale
// fetch completions are discarded. Calling it again while Releasing is
// a no-op, which lets a failed flush be retried.
func (w *Instance) BeginRelease() error {
	if w.state.CompareAndSwap(int32(StateLoaded), int32(StateReleasing)) {
		w.epoch.Add(1)
		return nil
	}
	if w.State() == StateReleasing {
		return nil
	}
	return fmt.Errorf("cannot release world in state %s", w.State())
}

// DirtySnapshot returns the dirty regions in deterministic order for
// flushing. Only valid while Releasing (mutation is rejected then).
func (w *Instance) DirtySnapshot() []*region.Region {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*region.Region
	for _, e := range w.regions {
		if e.reg.Dirty() {
			out = append(out, e.reg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Coord, out[j].Coord
		if a.RX != b.RX {
			return a.RX < b.RX
		}
		return a.RZ < b.RZ
	})
	return out
}

// MarkFlushed clears the dirty flag after a successful write, so a
// retried release only re-writes what still needs it.
func (w *Instance) MarkFlushed(rc region.Coord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.regions[rc]; ok {
		e.reg.ClearDirty()
	}
}

// FinishRelease makes the instance terminal and frees its cache.
func (w *Instance) FinishRelease() {
	w.state.Store(int32(StateUnloaded))
	w.mu.Lock()
	w.regions = map[region.Coord]*cacheEntry{}
	w.lru = list.New()
	w.mu.Unlock()
}

func (w *Instance) ResidentRegions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.regions)
}

func (w *Instance) DirtyRegions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, e := range w.regions {
		if e.reg.Dirty() {
			n++
		}
	}
	return n
}

func (w *Instance) ResidentBytes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := 0
	for _, e := range w.regions {
		total += e.reg.ApproxBytes()
	}
	return total
}
