package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"worldvault.gg/internal/region"
)

func writeTestBundle(t *testing.T, dir, name string) {
	t.Helper()
	reg := region.New(region.Coord{RX: 0, RZ: 0}, 16)
	ch := region.NewChunk(0, 0, 16)
	ch.Set(4, 2, 4, 7)
	reg.Put(ch)

	man := Manifest{
		FormatVersion: 1,
		Name:          name,
		Height:        16,
		Regions:       []string{"r.0.0.region"},
		DataPoints: []ManifestPoint{
			{Key: "SPAWN", X: 4, Y: 3, Z: 4, Yaw: 180},
		},
	}
	if err := WriteBundle(dir, man, []*region.Region{reg}); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
}

func TestOpenResolveMaterialize(t *testing.T) {
	dir := t.TempDir()
	writeTestBundle(t, dir, "arena")

	reg, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "arena" {
		t.Fatalf("names = %+v", names)
	}

	h, err := reg.Resolve("arena")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.Name() != "arena" || h.Height() != 16 {
		t.Fatalf("handle = %q height %d", h.Name(), h.Height())
	}

	regions, points, err := h.Materialize()
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(regions) != 1 || regions[0].Chunk(0, 0) == nil {
		t.Fatalf("materialized regions = %+v", regions)
	}
	if regions[0].Chunk(0, 0).Get(4, 2, 4) != 7 {
		t.Fatalf("block content lost through bundle round-trip")
	}
	if len(points) != 1 || points[0].Key != "SPAWN" || points[0].Yaw != 180 {
		t.Fatalf("points = %+v", points)
	}
}

func TestMaterializeIsolated(t *testing.T) {
	dir := t.TempDir()
	writeTestBundle(t, dir, "arena")
	reg, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h, err := reg.Resolve("arena")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	a, _, err := h.Materialize()
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	a[0].Chunk(0, 0).Set(4, 2, 4, 999)

	b, _, err := h.Materialize()
	if err != nil {
		t.Fatalf("materialize again: %v", err)
	}
	if b[0].Chunk(0, 0).Get(4, 2, 4) != 7 {
		t.Fatalf("two materializations share block storage")
	}
}

func TestResolveUnknown(t *testing.T) {
	reg, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := reg.Resolve("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("resolve err = %v, want ErrNotFound", err)
	}
}

func TestOpenMissingDirEmptyRegistry(t *testing.T) {
	reg, err := Open(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Fatalf("names = %+v", reg.Names())
	}
}

func TestOpenRejectsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// height missing, name uppercase: schema must reject.
	if err := os.WriteFile(filepath.Join(bad, "template.json"),
		[]byte(`{"format_version":1,"name":"BROKEN","regions":[]}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := Open(dir); err == nil {
		t.Fatalf("expected open to fail on invalid manifest")
	}
}

func TestOpenRejectsNameMismatch(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "lobby")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "template.json"),
		[]byte(`{"format_version":1,"name":"other","height":16,"regions":[]}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := Open(dir); err == nil {
		t.Fatalf("expected open to fail on name mismatch")
	}
}
