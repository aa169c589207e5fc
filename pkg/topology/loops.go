package topology

import (
	"sort"
	"strconv"
	"strings"
)

const maxCandidateLoops = 4096

type edge struct {
	branch int
	next   int
	rev    bool
}

func (t *Topology) adjacency() [][]edge {
	adj := make([][]edge, len(t.Nodes))
	for _, b := range t.Branches {
		if b.SelfLoop() {
			continue
		}
		adj[b.From] = append(adj[b.From], edge{branch: b.ID, next: b.To})
		adj[b.To] = append(adj[b.To], edge{branch: b.ID, next: b.From, rev: true})
	}
	return adj
}

func loopKey(l Loop) string {
	ids := make([]int, len(l))
	for i, tr := range l {
		ids[i] = tr.Branch
	}
	sort.Ints(ids)

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// candidateLoops searches every node for simple cycles back to itself and then adds
// the fundamental cycles of a spanning forest so the set always spans the cycle space.
func (t *Topology) candidateLoops(limit int) []Loop {
	seen := make(map[string]bool)
	loops := make([]Loop, 0)
	add := func(l Loop) {
		key := loopKey(l)
		if seen[key] {
			return
		}
		seen[key] = true
		loops = append(loops, l)
	}

	for _, b := range t.Branches {
		if b.SelfLoop() {
			add(Loop{{Branch: b.ID}})
		}
	}

	adj := t.adjacency()
	onPath := make([]bool, len(t.Nodes))
	usedBranch := make(map[int]bool)
	path := make(Loop, 0)

	var dfs func(start, cur int)
	dfs = func(start, cur int) {
		for _, e := range adj[cur] {
			if len(loops) >= limit {
				return
			}
			if usedBranch[e.branch] || e.next < start {
				continue
			}
			step := Traversal{Branch: e.branch, Reverse: e.rev}
			if e.next == start {
				cycle := make(Loop, len(path), len(path)+1)
				copy(cycle, path)
				add(append(cycle, step))
				continue
			}
			if onPath[e.next] {
				continue
			}

			onPath[e.next] = true
			usedBranch[e.branch] = true
			path = append(path, step)
			dfs(start, e.next)
			path = path[:len(path)-1]
			usedBranch[e.branch] = false
			onPath[e.next] = false
		}
	}

	for start := range t.Nodes {
		onPath[start] = true
		dfs(start, start)
		onPath[start] = false
	}

	for _, l := range t.fundamentalLoops(adj) {
		add(l)
	}
	return loops
}

func (t *Topology) fundamentalLoops(adj [][]edge) []Loop {
	n := len(t.Nodes)
	parent := make([]edge, n) // edge back towards the root
	depth := make([]int, n)
	visited := make([]bool, n)
	inTree := make(map[int]bool)

	for root := 0; root < n; root++ {
		if visited[root] {
			continue
		}
		visited[root] = true
		parent[root] = edge{branch: -1}
		queue := []int{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range adj[cur] {
				if visited[e.next] {
					continue
				}
				visited[e.next] = true
				inTree[e.branch] = true
				depth[e.next] = depth[cur] + 1
				parent[e.next] = edge{branch: e.branch, next: cur, rev: !e.rev}
				queue = append(queue, e.next)
			}
		}
	}

	loops := make([]Loop, 0)
	for _, b := range t.Branches {
		if b.SelfLoop() || inTree[b.ID] {
			continue
		}

		// b runs From -> To; close the loop by walking To -> ... -> From through the tree.
		up, down := b.To, b.From
		head := Loop{{Branch: b.ID}}
		tail := make(Loop, 0)
		for up != down {
			if depth[up] >= depth[down] {
				p := parent[up]
				head = append(head, Traversal{Branch: p.branch, Reverse: p.rev})
				up = p.next
			} else {
				p := parent[down]
				tail = append(tail, Traversal{Branch: p.branch, Reverse: !p.rev})
				down = p.next
			}
		}
		for i := len(tail) - 1; i >= 0; i-- {
			head = append(head, tail[i])
		}
		loops = append(loops, head)
	}
	return loops
}
