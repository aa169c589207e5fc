package loop

import (
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/ppe-sim/pkg/topology"
)

func extract(t *testing.T, rows [][]string) *topology.Topology {
	t.Helper()
	topo, err := topology.Extract(topology.NewGrid(rows))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	return topo
}

func boostTopology(t *testing.T) *topology.Topology {
	return extract(t, [][]string{
		{"wire", "Inductor_L1", "Ammeter_A1", "wire", "Diode_D1", "wire", "wire", "wire", "wire", "wire"},
		{"VoltageSource_V1", "", "", "Switch_S1", "", "Capacitor_C1", "", "Resistor_RL", "", "Voltmeter_VO"},
		{"wire", "wire", "wire", "wire", "wire", "wire", "wire", "wire", "wire", "wire"},
	})
}

func rank(m Map) int {
	if len(m) == 0 {
		return 0
	}
	d := mat.NewDense(len(m), len(m[0]), nil)
	for i := range m {
		for j, tag := range m[i] {
			d.Set(i, j, tag.Sign())
		}
	}
	var svd mat.SVD
	if !svd.Factorize(d, mat.SVDNone) {
		return -1
	}
	return svd.Rank(1e-9)
}

func TestBaseMapIsMinimalAndIndependent(t *testing.T) {
	topo := boostTopology(t)
	if got := len(topo.Branches); got != 6 {
		t.Fatalf("branches = %d, expected 6", got)
	}
	if got := len(topo.Nodes); got != 3 {
		t.Fatalf("nodes = %d, expected 3", got)
	}

	cases := []struct {
		name  string
		topo  *topology.Topology
		loops int
	}{
		{"boost", topo, 4},
		{"two mesh", extract(t, [][]string{
			{"wire", "Resistor_R1", "wire", "wire", "wire"},
			{"VoltageSource_V1", "", "Resistor_R2", "", "Resistor_R3"},
			{"wire", "wire", "wire", "wire", "wire"},
		}), 2},
		// the bottom rail joins two junctions by a bare wire
		{"ladder", extract(t, [][]string{
			{"wire", "Resistor_R1", "wire", "Resistor_R3", "wire", "Resistor_R5", "wire"},
			{"VoltageSource_V1", "", "Resistor_R2", "", "Resistor_R4", "", "Resistor_R6"},
			{"wire", "wire", "wire", "wire", "wire", "wire", "wire"},
		}), 3},
	}
	for _, c := range cases {
		base, err := BaseMap(c.topo)
		if err != nil {
			t.Fatalf("%s: BaseMap failed: %v", c.name, err)
		}

		want := len(c.topo.Branches) - len(c.topo.Nodes) + 1
		if want != c.loops {
			t.Errorf("%s: %d branches and %d nodes give %d meshes, expected %d",
				c.name, len(c.topo.Branches), len(c.topo.Nodes), want, c.loops)
		}
		if len(base) != want {
			t.Fatalf("%s: loops = %d, expected %d", c.name, len(base), want)
		}
		if r := rank(base); r != len(base) {
			t.Errorf("%s: rank = %d, loops = %d: loops are dependent", c.name, r, len(base))
		}
		for i := range base {
			if !validLoop(base[i], c.topo) {
				t.Errorf("%s: loop %d is not closed: %v", c.name, i, base[i])
			}
		}
	}
}

func TestValidityFilterDropsOpenRows(t *testing.T) {
	topo := boostTopology(t)

	open := make([]Tag, len(topo.Branches))
	open[0] = Forward // switch alone is not a loop
	empty := make([]Tag, len(topo.Branches))
	closed := make([]Tag, len(topo.Branches))
	closed[0] = Forward
	closed[1] = Reverse // switch and source branch both run A -> G

	got := ValidityFilter(Map{open, empty, closed}, topo)
	if len(got) != 1 {
		t.Fatalf("kept %d rows, expected 1", len(got))
	}
	if !reflect.DeepEqual(got[0], closed) {
		t.Errorf("kept %v, expected %v", got[0], closed)
	}
}

func TestClusterGroupsByFirstBranch(t *testing.T) {
	m := Map{
		{No, No, Forward, Reverse},
		{Forward, Reverse, No, No},
		{No, Forward, Forward, No},
		{Reverse, No, No, Forward},
	}

	got := Cluster(m)
	firsts := make([]int, len(got))
	for i := range got {
		firsts[i] = firstColumn(got[i])
	}
	for i := 1; i < len(firsts); i++ {
		if firsts[i] < firsts[i-1] {
			t.Fatalf("clusters out of order: %v", firsts)
		}
	}
	if firsts[0] != 0 || firsts[1] != 0 {
		t.Errorf("first cluster should hold both rows starting at branch 0: %v", firsts)
	}
	if len(m[0]) != 4 || m[0][2] != Forward {
		t.Errorf("input map was modified")
	}
}

func TestReduceDropsCombinations(t *testing.T) {
	a := []Tag{Forward, Reverse, No}
	b := []Tag{No, Forward, Reverse}
	sum := []Tag{Forward, No, Reverse} // a + b

	got := Reduce(Map{a, b, sum})
	if len(got) != 2 {
		t.Fatalf("kept %d loops, expected 2", len(got))
	}
	if r := rank(got); r != 2 {
		t.Errorf("rank = %d, expected 2", r)
	}
}

func TestRemoveStiffness(t *testing.T) {
	topo := boostTopology(t)
	base, err := BaseMap(topo)
	if err != nil {
		t.Fatalf("BaseMap failed: %v", err)
	}

	// only the source/inductor branch integrates
	stiff := []bool{true, false, true, true, true, true}
	snap, err := RemoveStiffness(base, topo, stiff)
	if err != nil {
		t.Fatalf("RemoveStiffness failed: %v", err)
	}

	if snap.Key != "ynyyyy" {
		t.Errorf("key = %q", snap.Key)
	}
	if snap.NonStiff != 1 || snap.StiffRows() != 3 {
		t.Fatalf("non-stiff %d / stiff %d, expected 1 / 3", snap.NonStiff, snap.StiffRows())
	}
	if !reflect.DeepEqual(snap.Defining, []int{1, 3, 4, 5}) {
		t.Errorf("defining branches = %v", snap.Defining)
	}

	wantFirst := []Tag{Reverse, Forward, No, No, No, No}
	if !reflect.DeepEqual(snap.Map[0], wantFirst) {
		t.Errorf("non-stiff loop = %v, expected %v", snap.Map[0], wantFirst)
	}
	wantCap := []Tag{StiffReverse, No, StiffForward, StiffForward, No, No}
	if !reflect.DeepEqual(snap.Map[1], wantCap) {
		t.Errorf("capacitor loop = %v, expected %v", snap.Map[1], wantCap)
	}

	for i := snap.NonStiff; i < snap.Rows(); i++ {
		for _, b := range snap.Map.Branches(i) {
			if !stiff[b] {
				t.Errorf("stiff loop %d runs through non-stiff branch %d", i, b)
			}
		}
	}
	if r := rank(snap.Map); r != snap.Rows() {
		t.Errorf("decomposition lost rank: %d of %d", r, snap.Rows())
	}
}

func TestCacheReturnsIdenticalSnapshot(t *testing.T) {
	topo := boostTopology(t)
	base, err := BaseMap(topo)
	if err != nil {
		t.Fatalf("BaseMap failed: %v", err)
	}
	stiff := []bool{true, false, true, true, true, true}
	generate := func() (*Snapshot, error) { return RemoveStiffness(base, topo, stiff) }

	cache := NewCache()
	first, err := cache.Get(StiffnessKey(stiff), generate)
	if err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	second, err := cache.Get(StiffnessKey(stiff), func() (*Snapshot, error) {
		t.Fatal("generate called for a cached key")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}

	if first != second {
		t.Errorf("cache returned a different snapshot")
	}
	fresh, _ := generate()
	if !reflect.DeepEqual(first, fresh) {
		t.Errorf("regenerated snapshot differs from cached one")
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 1 {
		t.Errorf("hits/misses = %d/%d, expected 1/1", hits, misses)
	}
}
