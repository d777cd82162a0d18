package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"worldvault.gg/internal/engine"
	"worldvault.gg/internal/gen"
	"worldvault.gg/internal/region"
	"worldvault.gg/internal/storage"
	"worldvault.gg/internal/template"
	"worldvault.gg/internal/world"
)

type apiServer struct {
	reg *engine.Registry
	hub *eventHub
	log *zap.Logger
}

// worldSpec is the wire form of a world config.
type worldSpec struct {
	ID     string `json:"id,omitempty"`
	Bucket string `json:"bucket,omitempty"`

	Mode     string `json:"mode"`
	Seed     int64  `json:"seed,omitempty"`
	Template string `json:"template,omitempty"`

	Height               int    `json:"height,omitempty"`
	MemoryPolicy         string `json:"memory_policy,omitempty"`
	InitialRadiusChunks  int    `json:"initial_radius_chunks,omitempty"`
	MemoryCeilingRegions int    `json:"memory_ceiling_regions,omitempty"`
}

func (s worldSpec) toConfig() (world.Config, error) {
	var mode gen.Mode
	switch s.Mode {
	case gen.TagVoid:
		mode = gen.Void{}
	case gen.TagProcedural:
		mode = gen.Procedural{Seed: s.Seed}
	case gen.TagTemplate:
		mode = gen.Template{Name: s.Template}
	default:
		return world.Config{}, fmt.Errorf("%w: unknown mode %q", engine.ErrInvalidConfig, s.Mode)
	}
	cfg := world.Config{
		ID:                   s.ID,
		Mode:                 mode,
		Height:               s.Height,
		InitialRadiusChunks:  s.InitialRadiusChunks,
		MemoryCeilingRegions: s.MemoryCeilingRegions,
	}
	if s.Bucket != "" {
		cfg.Persistence = &world.Persistence{Bucket: s.Bucket}
	}
	if s.MemoryPolicy != "" {
		mem, err := world.ParseMemoryPolicy(s.MemoryPolicy)
		if err != nil {
			return world.Config{}, fmt.Errorf("%w: %v", engine.ErrInvalidConfig, err)
		}
		cfg.Memory = mem
	}
	return cfg, nil
}

type worldView struct {
	ID             string   `json:"id"`
	Bucket         string   `json:"bucket,omitempty"`
	State          string   `json:"state"`
	Mode           string   `json:"mode"`
	Height         int      `json:"height"`
	MemoryPolicy   string   `json:"memory_policy"`
	Regions        int      `json:"regions"`
	DirtyRegions   int      `json:"dirty_regions"`
	ResidentBytes  int      `json:"resident_bytes"`
	DataPointKeys  []string `json:"data_point_keys,omitempty"`
}

func viewOf(inst *world.Instance) worldView {
	return worldView{
		ID:            inst.ID(),
		Bucket:        inst.Bucket(),
		State:         inst.State().String(),
		Mode:          inst.Config().Mode.Tag(),
		Height:        inst.Height(),
		MemoryPolicy:  inst.Config().Memory.String(),
		Regions:       inst.ResidentRegions(),
		DirtyRegions:  inst.DirtyRegions(),
		ResidentBytes: inst.ResidentBytes(),
		DataPointKeys: inst.DataPointIndex().Keys(),
	}
}

func (s *apiServer) handleList(rw http.ResponseWriter, r *http.Request) {
	insts := s.reg.Loaded()
	out := make([]worldView, 0, len(insts))
	for _, inst := range insts {
		out = append(out, viewOf(inst))
	}
	writeJSON(rw, http.StatusOK, map[string]any{"worlds": out})
}

func (s *apiServer) handleCreate(rw http.ResponseWriter, r *http.Request) {
	var spec worldSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(rw, fmt.Errorf("%w: %v", engine.ErrInvalidConfig, err))
		return
	}
	cfg, err := spec.toConfig()
	if err != nil {
		writeError(rw, err)
		return
	}
	inst, err := s.reg.Create(cfg)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, viewOf(inst))
}

func (s *apiServer) handleLoad(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		Bucket         string     `json:"bucket"`
		ID             string     `json:"id"`
		CreateIfAbsent bool       `json:"create_if_absent"`
		Fallback       *worldSpec `json:"fallback,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, fmt.Errorf("%w: %v", engine.ErrInvalidConfig, err))
		return
	}

	var (
		inst *world.Instance
		err  error
	)
	if req.CreateIfAbsent {
		if req.Fallback == nil {
			writeError(rw, fmt.Errorf("%w: create_if_absent requires fallback", engine.ErrInvalidConfig))
			return
		}
		fallback, cerr := req.Fallback.toConfig()
		if cerr != nil {
			writeError(rw, cerr)
			return
		}
		inst, err = s.reg.LoadOrCreate(r.Context(), req.Bucket, req.ID, fallback)
	} else {
		inst, err = s.reg.Load(r.Context(), req.Bucket, req.ID)
	}
	if err != nil {
		writeError(rw, err)
		return
	}
	if inst == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"error": "world not found"})
		return
	}
	writeJSON(rw, http.StatusOK, viewOf(inst))
}

func (s *apiServer) handleStats(rw http.ResponseWriter, r *http.Request) {
	inst := s.reg.Get(r.PathValue("id"))
	if inst == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"error": "world not loaded"})
		return
	}
	view := viewOf(inst)
	points := map[string][]pointView{}
	for _, key := range view.DataPointKeys {
		for _, p := range inst.DataPoints(key) {
			points[key] = append(points[key], pointView{X: p.Pos.X, Y: p.Pos.Y, Z: p.Pos.Z, Yaw: p.Yaw})
		}
	}
	writeJSON(rw, http.StatusOK, map[string]any{"world": view, "data_points": points})
}

type pointView struct {
	X   int `json:"x"`
	Y   int `json:"y"`
	Z   int `json:"z"`
	Yaw int `json:"yaw,omitempty"`
}

func (s *apiServer) handleChunk(rw http.ResponseWriter, r *http.Request) {
	inst := s.reg.Get(r.PathValue("id"))
	if inst == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"error": "world not loaded"})
		return
	}
	cx, errX := strconv.Atoi(r.URL.Query().Get("cx"))
	cz, errZ := strconv.Atoi(r.URL.Query().Get("cz"))
	if errX != nil || errZ != nil {
		writeError(rw, fmt.Errorf("%w: cx and cz query params required", engine.ErrInvalidConfig))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	ch, err := inst.Chunk(ctx, cx, cz)
	if err != nil {
		writeError(rw, err)
		return
	}

	nonAir := 0
	for _, b := range ch.Blocks {
		if b != gen.BlockAir {
			nonAir++
		}
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"cx": cx, "cz": cz,
		"region":  map[string]int{"rx": region.Of(cx, cz).RX, "rz": region.Of(cx, cz).RZ},
		"height":  ch.Height(),
		"non_air": nonAir,
	})
}

func (s *apiServer) handleRelease(rw http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Scan rather than Get: a world stuck in Releasing after a failed
	// flush must stay reachable for retries.
	var inst *world.Instance
	for _, cand := range s.reg.Loaded() {
		if cand.ID() == id {
			inst = cand
			break
		}
	}
	if inst == nil {
		writeJSON(rw, http.StatusNotFound, map[string]any{"error": "world not loaded"})
		return
	}
	if err := s.reg.Release(r.Context(), inst); err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"released": id})
}

func (s *apiServer) handleDelete(rw http.ResponseWriter, r *http.Request) {
	bucket, id := r.PathValue("bucket"), r.PathValue("id")
	if err := s.reg.Delete(r.Context(), bucket, id); err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"deleted": bucket + "/" + id})
}

func (s *apiServer) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	insts := s.reg.Loaded()

	fmt.Fprintf(rw, "# HELP worldvault_loaded_worlds Number of registered worlds.\n")
	fmt.Fprintf(rw, "# TYPE worldvault_loaded_worlds gauge\n")
	fmt.Fprintf(rw, "worldvault_loaded_worlds %d\n", len(insts))

	fmt.Fprintf(rw, "# HELP worldvault_resident_regions Resident regions per world.\n")
	fmt.Fprintf(rw, "# TYPE worldvault_resident_regions gauge\n")
	for _, inst := range insts {
		fmt.Fprintf(rw, "worldvault_resident_regions{world=%q} %d\n", inst.ID(), inst.ResidentRegions())
	}

	fmt.Fprintf(rw, "# HELP worldvault_dirty_regions Dirty (flush-pending) regions per world.\n")
	fmt.Fprintf(rw, "# TYPE worldvault_dirty_regions gauge\n")
	for _, inst := range insts {
		fmt.Fprintf(rw, "worldvault_dirty_regions{world=%q} %d\n", inst.ID(), inst.DirtyRegions())
	}

	fmt.Fprintf(rw, "# HELP worldvault_resident_bytes Approximate resident bytes per world.\n")
	fmt.Fprintf(rw, "# TYPE worldvault_resident_bytes gauge\n")
	for _, inst := range insts {
		fmt.Fprintf(rw, "worldvault_resident_bytes{world=%q} %d\n", inst.ID(), inst.ResidentBytes())
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, template.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrWorldStillLoaded):
		status = http.StatusConflict
	case errors.Is(err, world.ErrUnloading):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, region.ErrCorrupt):
		status = http.StatusBadGateway
	}
	writeJSON(rw, status, map[string]any{"error": err.Error()})
}
