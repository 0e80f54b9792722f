// Package planner provides a stateless A* path planner over a uniform grid.
// Positions are discretized at a configurable resolution; the search runs on
// 4-connected cells with Euclidean costs, so returned paths are cost-optimal.
package planner

import (
	"container/heap"
	"math"

	"github.com/teslashibe/go-tumbller/pkg/twin"
)

// Cell is a discrete grid coordinate.
type Cell struct {
	X, Y int
}

// CellFor maps a continuous position to the cell containing it.
func CellFor(pos twin.Position, resolution float64) Cell {
	return Cell{
		X: int(math.Round(pos.X / resolution)),
		Y: int(math.Round(pos.Y / resolution)),
	}
}

// Center returns the continuous position of the cell center.
func (c Cell) Center(resolution float64) twin.Position {
	return twin.Position{
		X: float64(c.X) * resolution,
		Y: float64(c.Y) * resolution,
	}
}

// NeighborFunc yields the traversable neighbors of a cell. The default grid
// is unobstructed; tests and obstacle-aware callers inject their own.
type NeighborFunc func(Cell) []Cell

// FourConnected returns the four axis-aligned neighbors of a cell.
func FourConnected(c Cell) []Cell {
	return []Cell{
		{c.X + 1, c.Y},
		{c.X - 1, c.Y},
		{c.X, c.Y + 1},
		{c.X, c.Y - 1},
	}
}

// node is an open-set entry. seq breaks f-ties deterministically by
// insertion order.
type node struct {
	cell Cell
	pred *node
	g    float64
	f    float64
	seq  int
}

type openSet []*node

func (o openSet) Len() int { return len(o) }

func (o openSet) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	return o[i].seq < o[j].seq
}

func (o openSet) Swap(i, j int) { o[i], o[j] = o[j], o[i] }

func (o *openSet) Push(x any) { *o = append(*o, x.(*node)) }

func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*o = old[:n-1]
	return item
}

// FindPath searches for a cost-optimal path from start to goal over a
// 4-connected grid with the given cell resolution. It returns the path
// start to goal inclusive, or nil when the goal is unreachable.
func FindPath(start, goal Cell, neighbors NeighborFunc, resolution float64) []Cell {
	if neighbors == nil {
		neighbors = FourConnected
	}

	h := func(c Cell) float64 {
		dx := float64(c.X-goal.X) * resolution
		dy := float64(c.Y-goal.Y) * resolution
		return math.Hypot(dx, dy)
	}

	seq := 0
	open := &openSet{}
	heap.Init(open)
	heap.Push(open, &node{cell: start, f: h(start), seq: seq})

	bestG := map[Cell]float64{start: 0}
	closed := make(map[Cell]bool)

	for open.Len() > 0 {
		current := heap.Pop(open).(*node)
		if closed[current.cell] {
			continue
		}
		closed[current.cell] = true

		if current.cell == goal {
			return reconstruct(current)
		}

		for _, nbr := range neighbors(current.cell) {
			if closed[nbr] {
				continue
			}
			g := current.g + resolution
			if known, ok := bestG[nbr]; ok && g >= known {
				continue
			}
			bestG[nbr] = g
			seq++
			heap.Push(open, &node{
				cell: nbr,
				pred: current,
				g:    g,
				f:    g + h(nbr),
				seq:  seq,
			})
		}
	}
	return nil
}

// reconstruct walks predecessor links back to the start.
func reconstruct(n *node) []Cell {
	var path []Cell
	for ; n != nil; n = n.pred {
		path = append(path, n.cell)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
