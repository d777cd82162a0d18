package datapoint

import "testing"

func TestBuildSortsWithinKey(t *testing.T) {
	idx := Build([]Point{
		{Key: "PORTAL", Pos: Vec3{X: 5, Y: 1, Z: 0}},
		{Key: "PORTAL", Pos: Vec3{X: -3, Y: 1, Z: 9}},
		{Key: "SPAWN", Pos: Vec3{X: 0, Y: 20, Z: 0}, Yaw: 90},
	})

	portals := idx.Get("PORTAL")
	if len(portals) != 2 {
		t.Fatalf("portal count = %d, want 2", len(portals))
	}
	if portals[0].Pos.X != -3 || portals[1].Pos.X != 5 {
		t.Fatalf("portals not sorted by position: %+v", portals)
	}

	spawn := idx.Get("SPAWN")
	if len(spawn) != 1 || spawn[0].Yaw != 90 {
		t.Fatalf("spawn = %+v", spawn)
	}
}

func TestGetUnknownKeyEmpty(t *testing.T) {
	idx := Build([]Point{{Key: "SPAWN"}})
	if got := idx.Get("NOPE"); len(got) != 0 {
		t.Fatalf("unknown key should be empty, got %+v", got)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	idx := Build([]Point{{Key: "SPAWN", Pos: Vec3{X: 1}}})
	got := idx.Get("SPAWN")
	got[0].Pos.X = 999
	if idx.Get("SPAWN")[0].Pos.X != 1 {
		t.Fatalf("Get must not expose internal storage")
	}
}

func TestNilIndexSafe(t *testing.T) {
	var idx *Index
	if got := idx.Get("SPAWN"); got != nil {
		t.Fatalf("nil index Get = %+v, want nil", got)
	}
	if idx.Len() != 0 {
		t.Fatalf("nil index Len = %d, want 0", idx.Len())
	}
	if keys := idx.Keys(); len(keys) != 0 {
		t.Fatalf("nil index Keys = %+v, want empty", keys)
	}
}

func TestKeysSorted(t *testing.T) {
	idx := Build([]Point{{Key: "Z"}, {Key: "A"}, {Key: "M"}})
	keys := idx.Keys()
	if len(keys) != 3 || keys[0] != "A" || keys[1] != "M" || keys[2] != "Z" {
		t.Fatalf("keys = %+v", keys)
	}
}

func TestAllDeterministicOrder(t *testing.T) {
	pts := []Point{
		{Key: "B", Pos: Vec3{X: 2}},
		{Key: "A", Pos: Vec3{X: 9}},
		{Key: "B", Pos: Vec3{X: 1}},
	}
	all := Build(pts).All()
	if len(all) != 3 {
		t.Fatalf("all = %d points, want 3", len(all))
	}
	if all[0].Key != "A" || all[1].Pos.X != 1 || all[2].Pos.X != 2 {
		t.Fatalf("unexpected order: %+v", all)
	}
}
