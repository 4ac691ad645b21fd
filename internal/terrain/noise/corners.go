package noise

import "polyterrain.ai/internal/logic/mathx"

// Chunk identifies a tile of the toroidal world.
type Chunk struct {
	X, Y int
}

// Wrap maps c into [0,world[0]) × [0,world[1]).
func (c Chunk) Wrap(world [2]int) Chunk {
	return Chunk{X: mathx.Mod(c.X, world[0]), Y: mathx.Mod(c.Y, world[1])}
}

// CornerGrid holds the (N+1)×(N+1) node samples of one octave of one chunk.
// Index i runs along x, j along y.
type CornerGrid struct {
	N int

	H []float64
	// F and G are the x and y partials (dual cubic) or gradient components
	// (gradient noise). Nil for the zero-gradient variant.
	F, G []float64
}

func (g *CornerGrid) index(i, j int) int {
	return i + j*(g.N+1)
}

func (g *CornerGrid) HeightAt(i, j int) float64 { return g.H[g.index(i, j)] }

// Grid streams.
const (
	gridHeight = iota
	gridGradX
	gridGradY
)

// Seeding lanes. Edge and corner lanes are keyed by the chunk that owns the
// node as its left/top edge or top-left corner, so both neighbours draw the
// same values.
const (
	laneBulk = iota
	laneVertical
	laneHorizontal
	laneCorner
)

type seeder struct {
	seed         int64
	n            int
	x, y         int
	right, below int
}

func (s seeder) stream(cx, cy, grid, lane int) *mathx.SplitMix {
	return mathx.NewSplitMix(mathx.Key(s.seed, int64(cx), int64(cy), int64(s.n), int64(grid), int64(lane)))
}

func (s seeder) fill(grid int, amp float64) []float64 {
	n := s.n
	side := n + 1
	a := make([]float64, side*side)

	r := s.stream(s.x, s.y, grid, laneBulk)
	for i := range a {
		a[i] = r.Symmetric(amp)
	}

	left := s.stream(s.x, s.y, grid, laneVertical)
	right := s.stream(s.right, s.y, grid, laneVertical)
	for j := 0; j <= n; j++ {
		a[j*side] = left.Symmetric(amp)
		a[n+j*side] = right.Symmetric(amp)
	}
	top := s.stream(s.x, s.y, grid, laneHorizontal)
	bottom := s.stream(s.x, s.below, grid, laneHorizontal)
	for i := 0; i <= n; i++ {
		a[i] = top.Symmetric(amp)
		a[i+n*side] = bottom.Symmetric(amp)
	}

	a[0] = s.stream(s.x, s.y, grid, laneCorner).Symmetric(amp)
	a[n] = s.stream(s.right, s.y, grid, laneCorner).Symmetric(amp)
	a[n*side] = s.stream(s.x, s.below, grid, laneCorner).Symmetric(amp)
	a[n+n*side] = s.stream(s.right, s.below, grid, laneCorner).Symmetric(amp)
	return a
}

// SampleCorners derives the corner grid of octave lvl for chunk. The result
// depends only on the seed, the wrapped chunk coordinate and the octave's cell
// count, never on neighbouring output.
func SampleCorners(p *Params, lvl Level, chunk Chunk) *CornerGrid {
	cfg := p.Config
	c := chunk.Wrap(cfg.WorldSize)
	s := seeder{
		seed:  cfg.Seed,
		n:     lvl.Cells,
		x:     c.X,
		y:     c.Y,
		right: mathx.Mod(c.X+1, cfg.WorldSize[0]),
		below: mathx.Mod(c.Y+1, cfg.WorldSize[1]),
	}

	g := &CornerGrid{N: lvl.Cells}
	g.H = s.fill(gridHeight, lvl.Amplitude)
	switch cfg.Variant {
	case DualCubic:
		g.F, g.G = finiteDifferences(g.H, lvl.Cells)
	case GradientNoise:
		g.F = s.fill(gridGradX, 1)
		g.G = s.fill(gridGradY, 1)
	}
	return g
}

// finiteDifferences estimates the partials of h in cell units: central
// differences inside the grid, one-sided on its border.
func finiteDifferences(h []float64, n int) (fx, fy []float64) {
	side := n + 1
	fx = make([]float64, len(h))
	fy = make([]float64, len(h))
	diff := func(lo, hi int, interior bool) float64 {
		if interior {
			return (h[hi] - h[lo]) / 2
		}
		return h[hi] - h[lo]
	}
	for j := 0; j <= n; j++ {
		for i := 0; i <= n; i++ {
			p := i + j*side
			fx[p] = diff(max(i-1, 0)+j*side, min(i+1, n)+j*side, i > 0 && i < n)
			fy[p] = diff(i+max(j-1, 0)*side, i+min(j+1, n)*side, j > 0 && j < n)
		}
	}
	return fx, fy
}

// block is the 2×2 neighbourhood of cell (i, j), indexed [di][dj]. Nodes past
// the grid edge are clamped onto it; they only occur in closed mode, where the
// evaluator reads them at local coordinate 0 and their weight is zero.
type block struct {
	h, f, g [2][2]float64
}

func (g *CornerGrid) block(i, j int) block {
	var b block
	for di := 0; di < 2; di++ {
		for dj := 0; dj < 2; dj++ {
			p := g.index(min(i+di, g.N), min(j+dj, g.N))
			b.h[di][dj] = g.H[p]
			if g.F != nil {
				b.f[di][dj] = g.F[p]
				b.g[di][dj] = g.G[p]
			}
		}
	}
	return b
}
