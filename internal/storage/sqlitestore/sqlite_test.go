package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"worldvault.gg/internal/region"
	"worldvault.gg/internal/storage"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "worlds.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)

	ok, err := st.Exists(ctx, "b", "w")
	if err != nil || ok {
		t.Fatalf("exists on empty db = (%v, %v)", ok, err)
	}
	if _, err := st.GetMeta(ctx, "b", "w"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get meta err = %v, want ErrNotFound", err)
	}

	if err := st.PutMeta(ctx, "b", "w", []byte("v1")); err != nil {
		t.Fatalf("put meta: %v", err)
	}
	// Upsert replaces.
	if err := st.PutMeta(ctx, "b", "w", []byte("v2")); err != nil {
		t.Fatalf("put meta again: %v", err)
	}
	got, err := st.GetMeta(ctx, "b", "w")
	if err != nil || string(got) != "v2" {
		t.Fatalf("meta = (%q, %v)", got, err)
	}
	if ok, _ := st.Exists(ctx, "b", "w"); !ok {
		t.Fatalf("exists should be true after put")
	}
}

func TestSQLiteRegionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	rc := region.Coord{RX: -4, RZ: 9}

	if _, err := st.GetRegion(ctx, "b", "w", rc); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get err = %v, want ErrNotFound", err)
	}
	if err := st.PutRegion(ctx, "b", "w", rc, []byte("blob-a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.PutRegion(ctx, "b", "w", rc, []byte("blob-b")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := st.GetRegion(ctx, "b", "w", rc)
	if err != nil || string(got) != "blob-b" {
		t.Fatalf("region = (%q, %v)", got, err)
	}
}

func TestSQLiteListRegionsOrdered(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	for _, rc := range []region.Coord{{RX: 2, RZ: 2}, {RX: -1, RZ: 0}, {RX: 2, RZ: -5}} {
		if err := st.PutRegion(ctx, "b", "w", rc, []byte("x")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	// Another world's regions must not leak in.
	if err := st.PutRegion(ctx, "b", "other", region.Coord{RX: 7, RZ: 7}, []byte("x")); err != nil {
		t.Fatalf("put other: %v", err)
	}

	got, err := st.ListRegions(ctx, "b", "w")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []region.Coord{{RX: -1, RZ: 0}, {RX: 2, RZ: -5}, {RX: 2, RZ: 2}}
	if len(got) != len(want) {
		t.Fatalf("list = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSQLiteDeleteAll(t *testing.T) {
	ctx := context.Background()
	st := openTest(t)
	if err := st.PutMeta(ctx, "b", "w", []byte("m")); err != nil {
		t.Fatalf("put meta: %v", err)
	}
	if err := st.PutRegion(ctx, "b", "w", region.Coord{RX: 1}, []byte("r")); err != nil {
		t.Fatalf("put region: %v", err)
	}

	if err := st.DeleteAll(ctx, "b", "w"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := st.Exists(ctx, "b", "w"); ok {
		t.Fatalf("world should be gone")
	}
	if regs, _ := st.ListRegions(ctx, "b", "w"); len(regs) != 0 {
		t.Fatalf("regions should be gone, got %+v", regs)
	}
	// Idempotent on absent worlds.
	if err := st.DeleteAll(ctx, "b", "w"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestSQLiteOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
