package loop

import (
	"strings"

	"github.com/edp1096/ppe-sim/pkg/topology"
)

// Tag is the role of a branch inside one loop.
type Tag int8

const (
	No Tag = iota
	Forward
	Reverse
	StiffForward
	StiffReverse
)

var tagNames = [...]string{"no", "forward", "reverse", "stiff_forward", "stiff_reverse"}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "invalid"
}

// Sign is +1 for forward tags, -1 for reverse tags and 0 for No.
func (t Tag) Sign() float64 {
	switch t {
	case Forward, StiffForward:
		return 1
	case Reverse, StiffReverse:
		return -1
	}
	return 0
}

func (t Tag) Stiff() bool {
	return t == StiffForward || t == StiffReverse
}

func tagFor(sign float64, stiff bool) Tag {
	switch {
	case sign > 0 && stiff:
		return StiffForward
	case sign > 0:
		return Forward
	case sign < 0 && stiff:
		return StiffReverse
	case sign < 0:
		return Reverse
	}
	return No
}

// Map holds one row per loop and one column per branch.
type Map [][]Tag

func FromTraversals(loops []topology.Loop, branches int) Map {
	m := make(Map, len(loops))
	for i, l := range loops {
		row := make([]Tag, branches)
		for _, tr := range l {
			if tr.Reverse {
				row[tr.Branch] = Reverse
			} else {
				row[tr.Branch] = Forward
			}
		}
		m[i] = row
	}
	return m
}

func (m Map) Clone() Map {
	out := make(Map, len(m))
	for i, row := range m {
		out[i] = append([]Tag(nil), row...)
	}
	return out
}

func (m Map) Signs(row int) []float64 {
	signs := make([]float64, len(m[row]))
	for j, tag := range m[row] {
		signs[j] = tag.Sign()
	}
	return signs
}

// Branches lists the branches present in a loop.
func (m Map) Branches(row int) []int {
	ids := make([]int, 0)
	for j, tag := range m[row] {
		if tag != No {
			ids = append(ids, j)
		}
	}
	return ids
}

func (m Map) String() string {
	var sb strings.Builder
	for _, row := range m {
		for j, tag := range row {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(tag.String())
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// StiffnessKey encodes the per-branch stiff pattern as a y/n string.
func StiffnessKey(stiff []bool) string {
	key := make([]byte, len(stiff))
	for i, s := range stiff {
		if s {
			key[i] = 'y'
		} else {
			key[i] = 'n'
		}
	}
	return string(key)
}
