package loop

import (
	"fmt"
	"math"

	"github.com/edp1096/ppe-sim/internal/consts"
	"github.com/edp1096/ppe-sim/pkg/simerr"
	"github.com/edp1096/ppe-sim/pkg/topology"
)

// Snapshot is the loop decomposition for one stiffness pattern.
type Snapshot struct {
	Key      string
	Map      Map   // non-stiff rows first, then stiff rows
	NonStiff int   // number of leading non-stiff rows
	Defining []int // branch that only this row contains
}

func (s *Snapshot) Rows() int {
	return len(s.Map)
}

func (s *Snapshot) StiffRows() int {
	return len(s.Map) - s.NonStiff
}

// RemoveStiffness rewrites the base loops so that stiff branches are confined to loops
// holding no non-stiff branch. A spanning forest takes stiff branches first; the loops are
// then eliminated on the remaining (cotree) branches, giving one loop per cotree branch.
// A loop closed by a stiff cotree branch only runs through stiff branches.
func RemoveStiffness(base Map, topo *topology.Topology, stiff []bool) (*Snapshot, error) {
	nb := len(topo.Branches)
	if len(stiff) != nb {
		return nil, fmt.Errorf("stiffness pattern has %d entries for %d branches", len(stiff), nb)
	}

	inTree := make([]bool, nb)
	forest := make([]int, len(topo.Nodes))
	for i := range forest {
		forest[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if forest[i] != i {
			forest[i] = find(forest[i])
		}
		return forest[i]
	}
	for _, wantStiff := range []bool{true, false} {
		for b, br := range topo.Branches {
			if stiff[b] != wantStiff || br.SelfLoop() {
				continue
			}
			if ra, rb := find(br.From), find(br.To); ra != rb {
				forest[ra] = rb
				inTree[b] = true
			}
		}
	}

	cotree := make([]int, 0, len(base))
	for _, wantStiff := range []bool{false, true} {
		for b := 0; b < nb; b++ {
			if !inTree[b] && stiff[b] == wantStiff {
				cotree = append(cotree, b)
			}
		}
	}
	if len(cotree) != len(base) {
		return nil, fmt.Errorf("%w: %d cotree branches for %d loops", simerr.ErrTopology, len(cotree), len(base))
	}

	m := make([][]float64, len(base))
	for i := range base {
		m[i] = base.Signs(i)
	}

	for k, col := range cotree {
		best, bestAbs := -1, consts.PivotTolerance
		for r := k; r < len(m); r++ {
			if a := math.Abs(m[r][col]); a > bestAbs {
				best, bestAbs = r, a
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("%w: loops do not span branch %d", simerr.ErrTopology, col)
		}
		m[k], m[best] = m[best], m[k]

		pivot := m[k][col]
		for j := range m[k] {
			m[k][j] /= pivot
		}
		for r := range m {
			if r == k || m[r][col] == 0 {
				continue
			}
			f := m[r][col]
			for j := range m[r] {
				m[r][j] -= f * m[k][j]
			}
		}
	}

	snap := &Snapshot{
		Key:      StiffnessKey(stiff),
		Map:      make(Map, len(m)),
		Defining: cotree,
	}
	for k, row := range m {
		rowStiff := stiff[cotree[k]]
		if !rowStiff {
			snap.NonStiff++
		}

		tags := make([]Tag, nb)
		for j, x := range row {
			r := math.Round(x)
			if math.Abs(x-r) > 1e-6 || math.Abs(r) > 1 {
				return nil, fmt.Errorf("%w: loop %d has weight %g on branch %d", simerr.ErrTopology, k, x, j)
			}
			tags[j] = tagFor(r, rowStiff)
		}
		snap.Map[k] = tags
	}
	return snap, nil
}
