// Package engine owns the world lifecycle: creation, single-flight
// load-or-create from a storage bucket, release (save-before-free) and
// delete. The registry table is the sole synchronization point between
// concurrent callers.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"worldvault.gg/internal/datapoint"
	"worldvault.gg/internal/gen"
	"worldvault.gg/internal/region"
	"worldvault.gg/internal/storage"
	"worldvault.gg/internal/template"
	"worldvault.gg/internal/world"
)

type Options struct {
	// Backend may be nil when only ephemeral worlds are used.
	Backend   storage.Backend
	Templates *template.Registry
	Logger    *zap.Logger

	// GenParams supplies defaults for fields a WorldConfig leaves zero.
	GenParams gen.Params

	// DefaultMemoryCeiling applies to disk-backed worlds whose config
	// does not set its own ceiling. 0 = unlimited.
	DefaultMemoryCeiling int

	// StorageTimeout bounds each backend operation issued by the
	// registry itself (loads run detached from caller contexts).
	StorageTimeout time.Duration
}

type Registry struct {
	backend        storage.Backend
	templates      *template.Registry
	log            *zap.Logger
	genParams      gen.Params
	defaultCeiling int
	storageTimeout time.Duration

	mu       sync.Mutex
	worlds   map[string]*world.Instance
	inFlight map[string]int

	flights singleflight.Group
	events  chan Event
}

func New(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.StorageTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Registry{
		backend:        opts.Backend,
		templates:      opts.Templates,
		log:            log,
		genParams:      opts.GenParams,
		defaultCeiling: opts.DefaultMemoryCeiling,
		storageTimeout: timeout,
		worlds:         map[string]*world.Instance{},
		inFlight:       map[string]int{},
		events:         make(chan Event, 128),
	}
}

func persistedKey(bucket, id string) string {
	return bucket + "/" + id
}

func keyOf(inst *world.Instance) string {
	if inst.Persistent() {
		return persistedKey(inst.Bucket(), inst.ID())
	}
	return inst.ID()
}

// Create validates cfg, runs the generation strategy synchronously and
// registers the new instance. Creating a persisted world whose
// (bucket, id) is already loaded fails with ErrWorldStillLoaded.
func (r *Registry) Create(cfg world.Config) (*world.Instance, error) {
	if cfg.Mode == nil {
		return nil, fmt.Errorf("%w: generation mode required", ErrInvalidConfig)
	}
	if cfg.ResolvedFormat() != world.FormatAnvil {
		return nil, fmt.Errorf("%w: unknown region format %q", ErrInvalidConfig, cfg.Format)
	}
	if cfg.Persistent() {
		if cfg.Persistence.Bucket == "" {
			return nil, fmt.Errorf("%w: persistence requested with empty bucket", ErrInvalidConfig)
		}
		if r.backend == nil {
			return nil, fmt.Errorf("%w: persistence requested but no storage backend configured", ErrInvalidConfig)
		}
	}
	if cfg.MemoryCeilingRegions == 0 {
		cfg.MemoryCeilingRegions = r.defaultCeiling
	}

	var (
		regions []*region.Region
		points  []datapoint.Point
	)
	switch mode := cfg.Mode.(type) {
	case gen.Void:
		// Void ignores every other generation field by construction.
	case gen.Template:
		if r.templates == nil {
			return nil, fmt.Errorf("%w: no template registry configured (%q)", template.ErrNotFound, mode.Name)
		}
		h, err := r.templates.Resolve(mode.Name)
		if err != nil {
			return nil, err
		}
		regs, pts, err := h.Materialize()
		if err != nil {
			return nil, err
		}
		regions, points = regs, pts
		cfg.Height = h.Height()
	case gen.Procedural:
		regions, points = gen.Initial(mode, r.params(cfg))
	default:
		return nil, fmt.Errorf("%w: unsupported generation mode %T", ErrInvalidConfig, cfg.Mode)
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	cfg.ID = id

	inst := world.New(world.Options{
		ID:        id,
		Config:    cfg,
		Backend:   r.backend,
		GenChunk:  r.chunkGen(cfg),
		Points:    datapoint.Build(points),
		Initial:   regions,
		MarkDirty: true,
		Logger:    r.log,
	})
	if err := r.register(inst); err != nil {
		return nil, err
	}

	r.log.Info("world created",
		zap.String("world", id),
		zap.String("bucket", cfg.Bucket()),
		zap.String("mode", cfg.Mode.Tag()),
		zap.Int("regions", inst.ResidentRegions()))
	r.publish(Event{Type: EventCreated, World: id, Bucket: cfg.Bucket()})
	return inst, nil
}

// Load resolves (bucket, id) from storage. An absent world returns
// (nil, nil). Concurrent loads of the same key coalesce onto one flight;
// every caller observes the same instance or the same failure.
func (r *Registry) Load(ctx context.Context, bucket, id string) (*world.Instance, error) {
	return r.load(ctx, bucket, id, nil)
}

// LoadOrCreate behaves like Load but falls through to Create with
// fallback when the world is absent. The fallback's persistence is
// forced to the requested (bucket, id).
func (r *Registry) LoadOrCreate(ctx context.Context, bucket, id string, fallback world.Config) (*world.Instance, error) {
	return r.load(ctx, bucket, id, &fallback)
}

func (r *Registry) load(ctx context.Context, bucket, id string, fallback *world.Config) (*world.Instance, error) {
	if bucket == "" || id == "" {
		return nil, fmt.Errorf("%w: bucket and id required", ErrInvalidConfig)
	}
	if r.backend == nil {
		return nil, fmt.Errorf("%w: no storage backend configured", ErrInvalidConfig)
	}
	key := persistedKey(bucket, id)
	if inst := r.lookup(key); inst != nil {
		return inst, nil
	}

	// DoChan is the shared future: duplicate callers wait on the same
	// flight, and an abandoning caller leaves it running to completion
	// for everyone else. The key is marked before DoChan so Delete never
	// finds a gap between the table miss and the flight's first
	// statement; the mark inside the flight covers it after the last
	// caller abandons.
	r.markFlight(key)
	defer r.unmarkFlight(key)
	ch := r.flights.DoChan(key, func() (any, error) {
		r.markFlight(key)
		defer r.unmarkFlight(key)
		return r.doLoad(bucket, id, fallback)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		inst, _ := res.Val.(*world.Instance)
		return inst, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Registry) doLoad(bucket, id string, fallback *world.Config) (*world.Instance, error) {
	key := persistedKey(bucket, id)
	// A Create or earlier flight may have registered the key while this
	// flight was queued.
	if inst := r.lookup(key); inst != nil {
		return inst, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.storageTimeout)
	defer cancel()

	exists, err := r.backend.Exists(ctx, bucket, id)
	if err != nil {
		r.log.Warn("world existence check failed",
			zap.String("bucket", bucket), zap.String("world", id), zap.Error(err))
		return nil, err
	}
	if !exists {
		if fallback == nil {
			return (*world.Instance)(nil), nil
		}
		cfg := *fallback
		cfg.ID = id
		cfg.Persistence = &world.Persistence{Bucket: bucket}
		return r.Create(cfg)
	}

	metaBytes, err := r.backend.GetMeta(ctx, bucket, id)
	if err != nil {
		r.log.Warn("world meta fetch failed",
			zap.String("bucket", bucket), zap.String("world", id), zap.Error(err))
		return nil, err
	}
	cfg, points, err := parseMeta(metaBytes)
	if err != nil {
		r.log.Error("world meta corrupt",
			zap.String("bucket", bucket), zap.String("world", id), zap.Error(err))
		return nil, err
	}
	cfg.ID = id
	cfg.Persistence = &world.Persistence{Bucket: bucket}
	if cfg.MemoryCeilingRegions == 0 {
		cfg.MemoryCeilingRegions = r.defaultCeiling
	}

	// Regions stay lazy for disk-backed worlds. InMemoryOnly worlds
	// never re-fetch after load, so they are hydrated eagerly here.
	var initial []*region.Region
	if cfg.Memory == world.InMemoryOnly {
		coords, err := r.backend.ListRegions(ctx, bucket, id)
		if err != nil {
			r.log.Warn("region list failed",
				zap.String("bucket", bucket), zap.String("world", id), zap.Error(err))
			return nil, err
		}
		for _, c := range coords {
			blob, err := r.backend.GetRegion(ctx, bucket, id, c)
			if err != nil {
				r.log.Warn("region fetch failed",
					zap.String("bucket", bucket), zap.String("world", id),
					zap.Int("rx", c.RX), zap.Int("rz", c.RZ), zap.Error(err))
				return nil, err
			}
			reg, err := region.Decode(blob)
			if err != nil {
				r.log.Error("region corrupt",
					zap.String("bucket", bucket), zap.String("world", id),
					zap.Int("rx", c.RX), zap.Int("rz", c.RZ), zap.Error(err))
				return nil, err
			}
			initial = append(initial, reg)
		}
	}

	inst := world.New(world.Options{
		ID:       id,
		Config:   cfg,
		Backend:  r.backend,
		GenChunk: r.chunkGen(cfg),
		Points:   points,
		Initial:  initial,
		Logger:   r.log,
	})
	if err := r.register(inst); err != nil {
		// A Create for the same key slipped in between the table check
		// and the storage reads; the live instance wins.
		if inst := r.lookup(key); inst != nil {
			return inst, nil
		}
		return nil, err
	}

	r.log.Info("world loaded",
		zap.String("world", id),
		zap.String("bucket", bucket),
		zap.Int("regions", inst.ResidentRegions()))
	r.publish(Event{Type: EventLoaded, World: id, Bucket: bucket})
	return inst, nil
}

// Release flushes all dirty regions and the meta document, then removes
// the instance from the table. A flush failure leaves the world
// registered in Releasing; Release may be called again to retry.
func (r *Registry) Release(ctx context.Context, inst *world.Instance) error {
	if inst == nil {
		return fmt.Errorf("release nil instance")
	}
	if err := inst.BeginRelease(); err != nil {
		return err
	}

	if inst.Persistent() {
		dirty := inst.DirtySnapshot()
		for _, reg := range dirty {
			blob, err := region.Encode(reg)
			if err != nil {
				return fmt.Errorf("encode region (%d,%d): %w", reg.Coord.RX, reg.Coord.RZ, err)
			}
			if err := r.backend.PutRegion(ctx, inst.Bucket(), inst.ID(), reg.Coord, blob); err != nil {
				r.log.Warn("region flush failed",
					zap.String("world", inst.ID()),
					zap.Int("rx", reg.Coord.RX), zap.Int("rz", reg.Coord.RZ), zap.Error(err))
				return err
			}
			inst.MarkFlushed(reg.Coord)
		}
		metaBytes, err := buildMeta(inst.Config(), inst.DataPointIndex())
		if err != nil {
			return err
		}
		if err := r.backend.PutMeta(ctx, inst.Bucket(), inst.ID(), metaBytes); err != nil {
			r.log.Warn("meta flush failed", zap.String("world", inst.ID()), zap.Error(err))
			return err
		}
		r.log.Info("world flushed",
			zap.String("world", inst.ID()),
			zap.String("bucket", inst.Bucket()),
			zap.Int("dirty_regions", len(dirty)))
	}

	freed := inst.ResidentBytes()
	inst.FinishRelease()
	r.mu.Lock()
	delete(r.worlds, keyOf(inst))
	r.mu.Unlock()

	r.log.Info("world released",
		zap.String("world", inst.ID()),
		zap.String("freed", humanize.Bytes(uint64(freed))))
	r.publish(Event{Type: EventReleased, World: inst.ID(), Bucket: inst.Bucket()})
	return nil
}

// Delete removes all stored data for an unloaded world. Deleting an
// absent world succeeds silently; deleting a loaded (or loading) one is
// rejected.
func (r *Registry) Delete(ctx context.Context, bucket, id string) error {
	if bucket == "" || id == "" {
		return fmt.Errorf("%w: bucket and id required", ErrInvalidConfig)
	}
	if r.backend == nil {
		return fmt.Errorf("%w: no storage backend configured", ErrInvalidConfig)
	}
	key := persistedKey(bucket, id)
	r.mu.Lock()
	_, loaded := r.worlds[key]
	if !loaded {
		_, loaded = r.inFlight[key]
	}
	r.mu.Unlock()
	if loaded {
		return fmt.Errorf("%w: %s/%s", ErrWorldStillLoaded, bucket, id)
	}

	if err := r.backend.DeleteAll(ctx, bucket, id); err != nil {
		r.log.Warn("world delete failed",
			zap.String("bucket", bucket), zap.String("world", id), zap.Error(err))
		return err
	}
	r.log.Info("world deleted", zap.String("bucket", bucket), zap.String("world", id))
	r.publish(Event{Type: EventDeleted, World: id, Bucket: bucket})
	return nil
}

// Get returns the loaded instance with the given id, or nil.
func (r *Registry) Get(id string) *world.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.worlds {
		if inst.ID() == id && inst.State() == world.StateLoaded {
			return inst
		}
	}
	return nil
}

// Loaded lists registered instances sorted by id.
func (r *Registry) Loaded() []*world.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*world.Instance, 0, len(r.worlds))
	for _, inst := range r.worlds {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Shutdown releases every registered world. The first failure is
// returned but the remaining worlds are still attempted.
func (r *Registry) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, inst := range r.Loaded() {
		if err := r.Release(ctx, inst); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) lookup(key string) *world.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst := r.worlds[key]
	if inst == nil || inst.State() == world.StateUnloaded {
		return nil
	}
	return inst
}

// register adds inst to the table. A persisted key must be absent: two
// live instances for one bucket/id would flush over each other, so the
// caller gets an error instead.
func (r *Registry) register(inst *world.Instance) error {
	key := keyOf(inst)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.worlds[key]; dup && inst.Persistent() {
		return fmt.Errorf("%w: %s", ErrWorldStillLoaded, key)
	}
	r.worlds[key] = inst
	return nil
}

// Flight marks are counted: the caller holds one from before DoChan
// until its wait ends, the flight itself holds another for as long as
// it runs. Delete sees the key for the whole window either way.
func (r *Registry) markFlight(key string) {
	r.mu.Lock()
	r.inFlight[key]++
	r.mu.Unlock()
}

func (r *Registry) unmarkFlight(key string) {
	r.mu.Lock()
	if r.inFlight[key]--; r.inFlight[key] <= 0 {
		delete(r.inFlight, key)
	}
	r.mu.Unlock()
}

func (r *Registry) params(cfg world.Config) gen.Params {
	p := r.genParams
	p.Height = cfg.ResolvedHeight()
	if cfg.InitialRadiusChunks > 0 {
		p.InitialRadiusChunks = cfg.InitialRadiusChunks
	}
	return p
}

func (r *Registry) chunkGen(cfg world.Config) world.ChunkGen {
	if m, ok := cfg.Mode.(gen.Procedural); ok {
		p := r.params(cfg)
		return func(cx, cz int) *region.Chunk {
			return gen.Chunk(m, p, cx, cz)
		}
	}
	// Void and template worlds materialize unexplored regions as air.
	height := cfg.ResolvedHeight()
	return func(cx, cz int) *region.Chunk {
		return region.NewChunk(cx, cz, height)
	}
}
