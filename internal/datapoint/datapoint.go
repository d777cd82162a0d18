// Package datapoint holds the per-world index of named semantic
// coordinates ("SPAWN", "ARENA_GATE", ...). One key may map to many
// positions. The index is built once at world creation or load and is
// read-only afterwards.
package datapoint

import "sort"

type Vec3 struct {
	X, Y, Z int
}

type Point struct {
	Key string
	Pos Vec3
	Yaw int // degrees, optional orientation; 0 when absent
}

type Index struct {
	byKey map[string][]Point
	total int
}

// Build sorts points per key into a deterministic order and returns the
// immutable index.
func Build(points []Point) *Index {
	ix := &Index{byKey: map[string][]Point{}}
	for _, p := range points {
		if p.Key == "" {
			continue
		}
		ix.byKey[p.Key] = append(ix.byKey[p.Key], p)
		ix.total++
	}
	for k := range ix.byKey {
		ps := ix.byKey[k]
		sort.Slice(ps, func(i, j int) bool {
			if ps[i].Pos.X != ps[j].Pos.X {
				return ps[i].Pos.X < ps[j].Pos.X
			}
			if ps[i].Pos.Y != ps[j].Pos.Y {
				return ps[i].Pos.Y < ps[j].Pos.Y
			}
			if ps[i].Pos.Z != ps[j].Pos.Z {
				return ps[i].Pos.Z < ps[j].Pos.Z
			}
			return ps[i].Yaw < ps[j].Yaw
		})
	}
	return ix
}

// Get returns the points for key. Unknown keys yield an empty slice,
// never an error. The result is a copy; callers may not reach the index.
func (ix *Index) Get(key string) []Point {
	if ix == nil {
		return nil
	}
	ps := ix.byKey[key]
	if len(ps) == 0 {
		return nil
	}
	out := make([]Point, len(ps))
	copy(out, ps)
	return out
}

func (ix *Index) Keys() []string {
	if ix == nil {
		return nil
	}
	out := make([]string, 0, len(ix.byKey))
	for k := range ix.byKey {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.total
}

// All returns every point in key-then-position order, for persistence.
func (ix *Index) All() []Point {
	if ix == nil {
		return nil
	}
	out := make([]Point, 0, ix.total)
	for _, k := range ix.Keys() {
		out = append(out, ix.byKey[k]...)
	}
	return out
}
