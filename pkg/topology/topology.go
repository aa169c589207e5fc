package topology

import (
	"fmt"
	"strings"

	"github.com/edp1096/ppe-sim/pkg/simerr"
)

type Node struct {
	ID    int
	Cells []Position // junction cells merged into this node
}

// Branch is a serial run of cells between two nodes. Path starts and ends on junction cells.
type Branch struct {
	ID   int
	Path []Position
	From int
	To   int
}

// IndexOf returns the index of p along the path, or -1.
func (b *Branch) IndexOf(p Position) int {
	for i, cell := range b.Path {
		if cell == p {
			return i
		}
	}
	return -1
}

func (b *Branch) SelfLoop() bool {
	return b.From == b.To
}

// Traversal is one branch of a loop, walked along (Reverse=false) or against its path.
type Traversal struct {
	Branch  int
	Reverse bool
}

type Loop []Traversal

type Topology struct {
	Grid     *Grid
	Nodes    []Node
	Branches []Branch
	Loops    []Loop // candidate loops, may be dependent
	Parts    int    // connected parts of the branch graph

	branchAt map[Position]int
}

// Extract walks the grid and derives nodes, branches and candidate loops.
func Extract(g *Grid) (*Topology, error) {
	var errs simerr.List

	junction := make(map[Position]bool)
	g.Each(func(p Position, token string) {
		n := len(g.Neighbours(p))
		switch {
		case n < 2:
			errs.Addf(simerr.ErrTopology, "dangling connection at %s (%s)", p, token)
		case n > 2:
			if token != Wire {
				errs.Addf(simerr.ErrTopology, "%s at %s sits on a junction", token, p)
			}
			junction[p] = true
		}
	})
	if err := errs.Err(); err != nil {
		return nil, err
	}

	t := &Topology{Grid: g, branchAt: make(map[Position]int)}
	tr := newTracer(g, junction)

	g.Each(func(p Position, _ string) {
		if junction[p] {
			tr.addJunction(p)
		}
	})
	for _, p := range tr.junctions {
		tr.trace(p)
	}
	// Cycles without any junction get a pseudo junction on their first cell.
	g.Each(func(p Position, _ string) {
		if !junction[p] && !tr.covered[p] {
			junction[p] = true
			tr.addJunction(p)
			tr.trace(p)
		}
	})

	t.buildNodes(tr)
	t.Loops = t.candidateLoops(maxCandidateLoops)

	return t, nil
}

type rawBranch struct {
	path     []Position
	from, to int
	short    bool
}

type tracer struct {
	grid      *Grid
	junction  map[Position]bool
	junctions []Position
	index     map[Position]int
	used      map[[2]Position]bool
	covered   map[Position]bool
	raws      []rawBranch
}

func newTracer(g *Grid, junction map[Position]bool) *tracer {
	return &tracer{
		grid:     g,
		junction: junction,
		index:    make(map[Position]int),
		used:     make(map[[2]Position]bool),
		covered:  make(map[Position]bool),
	}
}

func (tr *tracer) addJunction(p Position) {
	tr.index[p] = len(tr.junctions)
	tr.junctions = append(tr.junctions, p)
}

func (tr *tracer) trace(start Position) {
	for _, first := range tr.grid.Neighbours(start) {
		if tr.used[[2]Position{start, first}] {
			continue
		}

		path := []Position{start}
		prev, cur := start, first
		for !tr.junction[cur] {
			path = append(path, cur)
			tr.covered[cur] = true

			next := cur
			for _, nb := range tr.grid.Neighbours(cur) {
				if nb != prev {
					next = nb
					break
				}
			}
			prev, cur = cur, next
		}
		path = append(path, cur)

		tr.used[[2]Position{start, first}] = true
		tr.used[[2]Position{cur, prev}] = true

		short := true
		for _, cell := range path[1 : len(path)-1] {
			if tr.grid.At(cell) != Wire {
				short = false
				break
			}
		}

		tr.raws = append(tr.raws, rawBranch{
			path:  path,
			from:  tr.index[start],
			to:    tr.index[cur],
			short: short,
		})
	}
}

// buildNodes merges junctions joined by wire-only runs and numbers nodes and branches.
func (t *Topology) buildNodes(tr *tracer) {
	uf := newUnionFind(len(tr.junctions))
	for _, raw := range tr.raws {
		if raw.short {
			uf.union(raw.from, raw.to)
		}
	}

	referenced := make(map[int]bool)
	for _, raw := range tr.raws {
		if !raw.short {
			referenced[uf.find(raw.from)] = true
			referenced[uf.find(raw.to)] = true
		}
	}

	nodeOf := make(map[int]int)
	for j, cell := range tr.junctions {
		root := uf.find(j)
		if !referenced[root] {
			continue
		}
		id, ok := nodeOf[root]
		if !ok {
			id = len(t.Nodes)
			nodeOf[root] = id
			t.Nodes = append(t.Nodes, Node{ID: id})
		}
		t.Nodes[id].Cells = append(t.Nodes[id].Cells, cell)
	}

	for _, raw := range tr.raws {
		if raw.short {
			continue
		}
		b := Branch{
			ID:   len(t.Branches),
			Path: raw.path,
			From: nodeOf[uf.find(raw.from)],
			To:   nodeOf[uf.find(raw.to)],
		}
		for _, cell := range raw.path[1 : len(raw.path)-1] {
			t.branchAt[cell] = b.ID
		}
		t.Branches = append(t.Branches, b)
	}

	parts := newUnionFind(len(t.Nodes))
	for _, b := range t.Branches {
		parts.union(b.From, b.To)
	}
	for i := range t.Nodes {
		if parts.find(i) == i {
			t.Parts++
		}
	}
}

// BranchAt returns the branch owning a non-junction cell.
func (t *Topology) BranchAt(p Position) (int, bool) {
	id, ok := t.branchAt[p]
	return id, ok
}

// IndependentLoops is the cycle rank B - N + C.
func (t *Topology) IndependentLoops() int {
	return len(t.Branches) - len(t.Nodes) + t.Parts
}

// Incidence returns +1 when the branch leaves node n, -1 when it enters, 0 otherwise.
func (t *Topology) Incidence(n, b int) int {
	br := &t.Branches[b]
	switch {
	case br.SelfLoop():
		return 0
	case br.From == n:
		return 1
	case br.To == n:
		return -1
	}
	return 0
}

func (t *Topology) Describe() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "nodes=%d branches=%d loops=%d\n", len(t.Nodes), len(t.Branches), t.IndependentLoops())
	for _, n := range t.Nodes {
		fmt.Fprintf(&sb, "  node %d: %v\n", n.ID, n.Cells)
	}
	for _, b := range t.Branches {
		comps := make([]string, 0)
		for _, cell := range b.Path[1 : len(b.Path)-1] {
			if tok := t.Grid.At(cell); tok != Wire {
				comps = append(comps, tok)
			}
		}
		fmt.Fprintf(&sb, "  branch %d: %d -> %d %v\n", b.ID, b.From, b.To, comps)
	}
	return sb.String()
}

type unionFind []int

func newUnionFind(n int) unionFind {
	uf := make(unionFind, n)
	for i := range uf {
		uf[i] = i
	}
	return uf
}

func (uf unionFind) find(i int) int {
	for uf[i] != i {
		uf[i] = uf[uf[i]]
		i = uf[i]
	}
	return i
}

func (uf unionFind) union(a, b int) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	if ra < rb {
		uf[rb] = ra
	} else {
		uf[ra] = rb
	}
	return true
}
