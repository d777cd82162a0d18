// Package template resolves named world templates from a directory of
// bundles. A bundle is <dir>/<name>/template.json plus the region blobs
// it references, all encoded with the region codec.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"worldvault.gg/internal/datapoint"
	"worldvault.gg/internal/region"
)

var ErrNotFound = errors.New("template not found")

const manifestName = "template.json"

type Manifest struct {
	FormatVersion int            `json:"format_version"`
	Name          string         `json:"name"`
	Height        int            `json:"height"`
	Regions       []string       `json:"regions"`
	DataPoints    []ManifestPoint `json:"data_points,omitempty"`
}

type ManifestPoint struct {
	Key string `json:"key"`
	X   int    `json:"x"`
	Y   int    `json:"y"`
	Z   int    `json:"z"`
	Yaw int    `json:"yaw,omitempty"`
}

type Registry struct {
	dir     string
	handles map[string]*Handle
}

type Handle struct {
	dir string
	man Manifest
}

// Open scans dir for bundles and validates every manifest against the
// embedded schema. A directory without template.json is skipped; an
// invalid manifest fails the whole registry (bad templates should not
// surface as TemplateNotFound later).
func Open(dir string) (*Registry, error) {
	schema, err := jsonschema.CompileString("template.schema.json", manifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	r := &Registry{dir: dir, handles: map[string]*Handle{}}
	if dir == "" {
		return r, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		bundleDir := filepath.Join(dir, e.Name())
		manPath := filepath.Join(bundleDir, manifestName)
		b, err := os.ReadFile(manPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("template %s: %w", e.Name(), err)
		}
		if err := schema.Validate(doc); err != nil {
			return nil, fmt.Errorf("template %s: manifest invalid: %w", e.Name(), err)
		}

		var man Manifest
		if err := json.Unmarshal(b, &man); err != nil {
			return nil, fmt.Errorf("template %s: %w", e.Name(), err)
		}
		if man.Name != e.Name() {
			return nil, fmt.Errorf("template %s: manifest name %q does not match directory", e.Name(), man.Name)
		}
		r.handles[man.Name] = &Handle{dir: bundleDir, man: man}
	}
	return r, nil
}

func (r *Registry) Resolve(name string) (*Handle, error) {
	h, ok := r.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return h, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handles))
	for name := range r.handles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (h *Handle) Name() string   { return h.man.Name }
func (h *Handle) Height() int    { return h.man.Height }

// Materialize decodes the bundle's regions fresh on every call, so two
// worlds created from one template never share chunk slices.
func (h *Handle) Materialize() ([]*region.Region, []datapoint.Point, error) {
	regions := make([]*region.Region, 0, len(h.man.Regions))
	for _, name := range h.man.Regions {
		blob, err := os.ReadFile(filepath.Join(h.dir, name))
		if err != nil {
			return nil, nil, fmt.Errorf("template %s: %w", h.man.Name, err)
		}
		reg, err := region.Decode(blob)
		if err != nil {
			return nil, nil, fmt.Errorf("template %s: %s: %w", h.man.Name, name, err)
		}
		if reg.Height != h.man.Height {
			return nil, nil, fmt.Errorf("template %s: %s: height %d, manifest says %d", h.man.Name, name, reg.Height, h.man.Height)
		}
		regions = append(regions, reg)
	}

	points := make([]datapoint.Point, 0, len(h.man.DataPoints))
	for _, p := range h.man.DataPoints {
		points = append(points, datapoint.Point{
			Key: p.Key,
			Pos: datapoint.Vec3{X: p.X, Y: p.Y, Z: p.Z},
			Yaw: p.Yaw,
		})
	}
	return regions, points, nil
}

// WriteBundle lays out a template bundle on disk. Used by tooling and
// tests that author templates programmatically.
func WriteBundle(dir string, man Manifest, regions []*region.Region) error {
	if man.FormatVersion == 0 {
		man.FormatVersion = 1
	}
	if len(regions) != len(man.Regions) {
		return fmt.Errorf("manifest lists %d regions, got %d", len(man.Regions), len(regions))
	}
	bundleDir := filepath.Join(dir, man.Name)
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		return err
	}
	for i, reg := range regions {
		blob, err := region.Encode(reg)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(bundleDir, man.Regions[i]), blob, 0o644); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(bundleDir, manifestName), append(b, '\n'), 0o644)
}
