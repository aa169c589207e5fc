package topology

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire is the token of a plain conductor cell.
const Wire = "wire"

// Position is a zero-based grid cell. It prints in spreadsheet notation, row 0 col 2 is "C1".
type Position struct {
	Row int
	Col int
}

func (p Position) String() string {
	return columnName(p.Col) + strconv.Itoa(p.Row+1)
}

func columnName(col int) string {
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return name
}

func ParsePosition(s string) (Position, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	i, col := 0, 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) {
		return Position{}, fmt.Errorf("invalid cell position %q", s)
	}

	row, err := strconv.Atoi(s[i:])
	if err != nil || row < 1 {
		return Position{}, fmt.Errorf("invalid cell position %q", s)
	}

	return Position{Row: row - 1, Col: col - 1}, nil
}

// SplitToken splits a component cell token "Kind_Tag".
func SplitToken(token string) (kind, tag string, ok bool) {
	idx := strings.Index(token, "_")
	if idx <= 0 || idx == len(token)-1 {
		return "", "", false
	}
	return token[:idx], token[idx+1:], true
}

type Grid struct {
	cells [][]string
}

func NewGrid(rows [][]string) *Grid {
	g := &Grid{cells: make([][]string, len(rows))}
	for i, row := range rows {
		g.cells[i] = make([]string, len(row))
		for j, cell := range row {
			cell = strings.TrimSpace(cell)
			if strings.EqualFold(cell, Wire) {
				cell = Wire
			}
			g.cells[i][j] = cell
		}
	}
	return g
}

func (g *Grid) Rows() int {
	return len(g.cells)
}

func (g *Grid) At(p Position) string {
	if p.Row < 0 || p.Row >= len(g.cells) {
		return ""
	}
	row := g.cells[p.Row]
	if p.Col < 0 || p.Col >= len(row) {
		return ""
	}
	return row[p.Col]
}

func (g *Grid) Occupied(p Position) bool {
	return g.At(p) != ""
}

// Each visits occupied cells in row-major order.
func (g *Grid) Each(fn func(p Position, token string)) {
	for r, row := range g.cells {
		for c, cell := range row {
			if cell != "" {
				fn(Position{Row: r, Col: c}, cell)
			}
		}
	}
}

// Neighbours returns the occupied cells sharing an edge with p: up, down, left, right.
func (g *Grid) Neighbours(p Position) []Position {
	candidates := [4]Position{
		{Row: p.Row - 1, Col: p.Col},
		{Row: p.Row + 1, Col: p.Col},
		{Row: p.Row, Col: p.Col - 1},
		{Row: p.Row, Col: p.Col + 1},
	}

	result := make([]Position, 0, 4)
	for _, c := range candidates {
		if g.Occupied(c) {
			result = append(result, c)
		}
	}
	return result
}
