package engine

import (
	"encoding/json"
	"fmt"

	"worldvault.gg/internal/datapoint"
	"worldvault.gg/internal/gen"
	"worldvault.gg/internal/world"
)

// worldMeta is the per-world meta document stored next to the region
// blobs. A world exists in a bucket iff this document exists. It carries
// everything a later load needs that is not region data: format tag,
// generation provenance and the data point index.
type worldMeta struct {
	Version  int    `json:"version"`
	Format   string `json:"format"`
	Height   int    `json:"height"`
	Mode     string `json:"mode"`
	Seed     int64  `json:"seed,omitempty"`
	Template string `json:"template,omitempty"`
	Memory   string `json:"memory_policy"`

	DataPoints []metaPoint `json:"data_points,omitempty"`
}

type metaPoint struct {
	Key string `json:"key"`
	X   int    `json:"x"`
	Y   int    `json:"y"`
	Z   int    `json:"z"`
	Yaw int    `json:"yaw,omitempty"`
}

const metaVersion = 1

func buildMeta(cfg world.Config, points *datapoint.Index) ([]byte, error) {
	m := worldMeta{
		Version: metaVersion,
		Format:  cfg.ResolvedFormat(),
		Height:  cfg.ResolvedHeight(),
		Mode:    cfg.Mode.Tag(),
		Memory:  cfg.Memory.String(),
	}
	switch mode := cfg.Mode.(type) {
	case gen.Procedural:
		m.Seed = mode.Seed
	case gen.Template:
		m.Template = mode.Name
	}
	for _, p := range points.All() {
		m.DataPoints = append(m.DataPoints, metaPoint{
			Key: p.Key, X: p.Pos.X, Y: p.Pos.Y, Z: p.Pos.Z, Yaw: p.Yaw,
		})
	}
	return json.Marshal(m)
}

// parseMeta reconstructs a load-time config from the meta document.
// Procedural worlds come back with the default strategy only: custom
// hooks are capabilities, not data, and are never persisted.
func parseMeta(b []byte) (world.Config, *datapoint.Index, error) {
	var m worldMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return world.Config{}, nil, fmt.Errorf("world meta: %w", err)
	}
	if m.Version != metaVersion {
		return world.Config{}, nil, fmt.Errorf("world meta: unsupported version %d", m.Version)
	}

	var mode gen.Mode
	switch m.Mode {
	case gen.TagVoid:
		mode = gen.Void{}
	case gen.TagProcedural:
		mode = gen.Procedural{Seed: m.Seed}
	case gen.TagTemplate:
		mode = gen.Template{Name: m.Template}
	default:
		return world.Config{}, nil, fmt.Errorf("world meta: unknown mode %q", m.Mode)
	}

	memory, err := world.ParseMemoryPolicy(m.Memory)
	if err != nil {
		return world.Config{}, nil, fmt.Errorf("world meta: %w", err)
	}

	cfg := world.Config{
		Mode:   mode,
		Format: m.Format,
		Memory: memory,
		Height: m.Height,
	}

	points := make([]datapoint.Point, 0, len(m.DataPoints))
	for _, p := range m.DataPoints {
		points = append(points, datapoint.Point{
			Key: p.Key,
			Pos: datapoint.Vec3{X: p.X, Y: p.Y, Z: p.Z},
			Yaw: p.Yaw,
		})
	}
	return cfg, datapoint.Build(points), nil
}
