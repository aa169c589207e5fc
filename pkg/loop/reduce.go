package loop

import (
	"fmt"
	"math"

	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/topology"
)

// ValidityFilter drops rows that are not closed loops: every node must be touched by
// zero or two branches of the row with balanced signed incidence.
func ValidityFilter(m Map, topo *topology.Topology) Map {
	out := make(Map, 0, len(m))
	for i := range m {
		if validLoop(m[i], topo) {
			out = append(out, m[i])
		}
	}
	return out
}

func validLoop(row []Tag, topo *topology.Topology) bool {
	touches := make([]int, len(topo.Nodes))
	balance := make([]float64, len(topo.Nodes))
	present := 0

	for b, tag := range row {
		if tag == No {
			continue
		}
		present++
		br := &topo.Branches[b]
		if br.SelfLoop() {
			touches[br.From] += 2
			continue
		}
		touches[br.From]++
		touches[br.To]++
		balance[br.From] += tag.Sign()
		balance[br.To] -= tag.Sign()
	}
	if present == 0 {
		return false
	}

	for n := range touches {
		if touches[n] != 0 && touches[n] != 2 {
			return false
		}
		if balance[n] != 0 {
			return false
		}
	}
	return true
}

// firstColumn is the first branch present in a row, or -1.
func firstColumn(row []Tag) int {
	for j, tag := range row {
		if tag != No {
			return j
		}
	}
	return -1
}

// Cluster groups rows by the first branch they contain. The scan walks columns left to
// right and swaps every later row holding the column up to the next free slot, so the
// next search always restarts from the post-swap index.
func Cluster(m Map) Map {
	out := m.Clone()
	if len(out) == 0 {
		return out
	}

	next := 0
	for col := 0; col < len(out[0]) && next < len(out); col++ {
		for r := next; r < len(out); r++ {
			if out[r][col] != No {
				out[r], out[next] = out[next], out[r]
				next++
			}
		}
	}
	return out
}

// eliminator keeps the reduced form of every accepted loop, one pivot branch each.
type eliminator struct {
	pivots []int
	rows   [][]float64
}

// combine applies the loop manipulation: addition when the entries at the shared branch
// carry opposite signs, difference when they match.
func combine(dst, src []float64, col int) {
	scale := math.Abs(dst[col] / src[col])
	if (dst[col] > 0) == (src[col] > 0) {
		for j := range dst {
			dst[j] -= scale * src[j]
		}
	} else {
		for j := range dst {
			dst[j] += scale * src[j]
		}
	}
	dst[col] = 0
}

// accept reduces the candidate against every accepted loop and reports whether anything
// independent survives.
func (e *eliminator) accept(signs []float64) bool {
	v := append([]float64(nil), signs...)
	for k, p := range e.pivots {
		if math.Abs(v[p]) > consts.PivotTolerance {
			combine(v, e.rows[k], p)
		}
	}

	pivot := -1
	for j, x := range v {
		if math.Abs(x) > consts.PivotTolerance {
			pivot = j
			break
		}
	}
	if pivot < 0 {
		return false
	}

	e.pivots = append(e.pivots, pivot)
	e.rows = append(e.rows, v)
	return true
}

// Reduce walks the clusters in order and keeps only loops that are independent of the
// ones already kept. Kept rows are returned unmodified.
func Reduce(m Map) Map {
	clustered := Cluster(m)
	e := &eliminator{}
	out := make(Map, 0)

	start := 0
	for start < len(clustered) {
		end := start + 1
		col := firstColumn(clustered[start])
		for end < len(clustered) && firstColumn(clustered[end]) == col {
			end++
		}

		for r := start; r < end; r++ {
			if e.accept(clustered.Signs(r)) {
				out = append(out, clustered[r])
			}
		}
		start = end
	}
	return out
}

// BaseMap builds the minimal independent loop set of a topology.
func BaseMap(topo *topology.Topology) (Map, error) {
	raw := FromTraversals(topo.Loops, len(topo.Branches))
	valid := ValidityFilter(raw, topo)
	base := Reduce(valid)

	if want := topo.IndependentLoops(); len(base) != want {
		return nil, fmt.Errorf("%w: found %d independent loops, expected %d", simerr.ErrTopology, len(base), want)
	}
	return base, nil
}
