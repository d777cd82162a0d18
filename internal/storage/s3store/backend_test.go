package s3store

import (
	"testing"

	"worldvault.gg/internal/region"
)

func TestKeyLayout(t *testing.T) {
	s := &Store{prefix: "worlds"}
	if got := s.metaKey("prod", "w1"); got != "worlds/prod/w1/meta.json" {
		t.Fatalf("meta key = %q", got)
	}
	if got := s.regionKey("prod", "w1", region.Coord{RX: -2, RZ: 13}); got != "worlds/prod/w1/r.-2.13.region" {
		t.Fatalf("region key = %q", got)
	}

	bare := &Store{}
	if got := bare.metaKey("prod", "w1"); got != "prod/w1/meta.json" {
		t.Fatalf("meta key without prefix = %q", got)
	}
}

func TestNewStoreTrimsPrefix(t *testing.T) {
	s := NewStore(nil, "/worlds/stage/")
	if s.prefix != "worlds/stage" {
		t.Fatalf("prefix = %q", s.prefix)
	}
}

func TestParseRegionKey(t *testing.T) {
	cases := []struct {
		key string
		rc  region.Coord
		ok  bool
	}{
		{"worlds/prod/w1/r.3.-7.region", region.Coord{RX: 3, RZ: -7}, true},
		{"r.0.0.region", region.Coord{}, true},
		{"worlds/prod/w1/meta.json", region.Coord{}, false},
		{"worlds/prod/w1/r.region", region.Coord{}, false},
		{"worlds/prod/w1/r.a.b.region", region.Coord{}, false},
		{"worlds/prod/w1/r.1.2.3.region", region.Coord{}, false},
	}
	for _, c := range cases {
		rc, ok := parseRegionKey(c.key)
		if ok != c.ok || rc != c.rc {
			t.Fatalf("parseRegionKey(%q) = (%+v, %v), want (%+v, %v)", c.key, rc, ok, c.rc, c.ok)
		}
	}
}
