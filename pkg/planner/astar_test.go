package planner

import (
	"math"
	"testing"

	"github.com/teslashibe/go-tumbller/pkg/twin"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestCellFor_RoundTrip(t *testing.T) {
	res := 0.5

	// Positions already on the grid must round-trip exactly.
	cases := []Cell{{0, 0}, {1, 0}, {-3, 2}, {10, -7}}
	for _, c := range cases {
		got := CellFor(c.Center(res), res)
		if got != c {
			t.Errorf("Round trip of %v: got %v", c, got)
		}
	}

	// Off-grid positions snap to the nearest cell.
	if got := CellFor(twin.Position{X: 0.74, Y: 0.26}, res); got != (Cell{1, 1}) {
		t.Errorf("Snap: got %v, want {1 1}", got)
	}
}

func TestFindPath_StraightLine(t *testing.T) {
	path := FindPath(Cell{0, 0}, Cell{3, 0}, nil, 0.5)
	if len(path) != 4 {
		t.Fatalf("Path length: got %d, want 4", len(path))
	}
	if path[0] != (Cell{0, 0}) || path[3] != (Cell{3, 0}) {
		t.Errorf("Path endpoints: got %v", path)
	}
}

func TestFindPath_StartEqualsGoal(t *testing.T) {
	path := FindPath(Cell{2, 2}, Cell{2, 2}, nil, 0.5)
	if len(path) != 1 || path[0] != (Cell{2, 2}) {
		t.Errorf("Trivial path: got %v, want [{2 2}]", path)
	}
}

func TestFindPath_Optimal(t *testing.T) {
	// On an unobstructed 4-connected grid the optimal path length equals the
	// Manhattan distance in steps.
	cases := []struct {
		start, goal Cell
	}{
		{Cell{0, 0}, Cell{2, 3}},
		{Cell{-1, -1}, Cell{3, 1}},
		{Cell{5, 5}, Cell{0, 0}},
	}
	for _, tc := range cases {
		path := FindPath(tc.start, tc.goal, nil, 1.0)
		manhattan := abs(tc.goal.X-tc.start.X) + abs(tc.goal.Y-tc.start.Y)
		if len(path) != manhattan+1 {
			t.Errorf("%v -> %v: path length %d, want %d", tc.start, tc.goal, len(path), manhattan+1)
		}
	}
}

func TestFindPath_OptimalAroundObstacles(t *testing.T) {
	// 5x5 grid with a wall at x=2 except a gap at y=4. Cross-check the A*
	// cost against brute-force BFS (uniform edge cost: hop count is cost).
	blocked := map[Cell]bool{
		{2, 0}: true, {2, 1}: true, {2, 2}: true, {2, 3}: true,
	}
	inGrid := func(c Cell) bool {
		return c.X >= 0 && c.X < 5 && c.Y >= 0 && c.Y < 5 && !blocked[c]
	}
	neighbors := func(c Cell) []Cell {
		var out []Cell
		for _, n := range FourConnected(c) {
			if inGrid(n) {
				out = append(out, n)
			}
		}
		return out
	}

	start, goal := Cell{0, 0}, Cell{4, 0}
	path := FindPath(start, goal, neighbors, 1.0)
	if path == nil {
		t.Fatal("Expected a path through the gap")
	}
	if want := bfsHops(start, goal, neighbors); len(path)-1 != want {
		t.Errorf("Path cost: got %d hops, want %d", len(path)-1, want)
	}
	// Every step must be a legal 4-connected move.
	for i := 1; i < len(path); i++ {
		dx := abs(path[i].X - path[i-1].X)
		dy := abs(path[i].Y - path[i-1].Y)
		if dx+dy != 1 {
			t.Errorf("Illegal step %v -> %v", path[i-1], path[i])
		}
		if blocked[path[i]] {
			t.Errorf("Path passes through blocked cell %v", path[i])
		}
	}
}

func TestFindPath_Unreachable(t *testing.T) {
	// Goal isolated: no cell has any neighbors.
	noNeighbors := func(Cell) []Cell { return nil }

	path := FindPath(Cell{0, 0}, Cell{3, 3}, noNeighbors, 1.0)
	if path != nil {
		t.Errorf("Unreachable goal: got %v, want nil", path)
	}
}

func TestFindPath_Deterministic(t *testing.T) {
	first := FindPath(Cell{0, 0}, Cell{3, 3}, nil, 1.0)
	for i := 0; i < 10; i++ {
		again := FindPath(Cell{0, 0}, Cell{3, 3}, nil, 1.0)
		if len(again) != len(first) {
			t.Fatalf("Run %d: length %d, want %d", i, len(again), len(first))
		}
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("Run %d: path diverged at %d: %v vs %v", i, j, again[j], first[j])
			}
		}
	}
}

func TestCenter(t *testing.T) {
	p := Cell{3, -2}.Center(0.5)
	if !floatEquals(p.X, 1.5) || !floatEquals(p.Y, -1.0) {
		t.Errorf("Center: got %+v, want (1.5, -1.0)", p)
	}
}

// bfsHops is a brute-force shortest path in hops for cross-checking A*.
func bfsHops(start, goal Cell, neighbors NeighborFunc) int {
	type item struct {
		c Cell
		d int
	}
	seen := map[Cell]bool{start: true}
	queue := []item{{start, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.c == goal {
			return cur.d
		}
		for _, n := range neighbors(cur.c) {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, item{n, cur.d + 1})
			}
		}
	}
	return -1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
