package noise

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// MaxRegionSamples bounds the sample count of one GenerateRegion result.
const MaxRegionSamples = 1 << 28

var ErrRegionSize = errors.New("region too large")

// Generator owns validated parameters and the basis cache for one
// configuration. It is immutable and safe for concurrent use; a different
// configuration needs a new Generator.
type Generator struct {
	params *Params
	cache  *Cache
	eval   evaluator
}

func NewGenerator(cfg Config) (*Generator, error) {
	p, err := DeriveParams(cfg)
	if err != nil {
		return nil, err
	}
	return &Generator{
		params: p,
		cache:  BuildCache(p),
		eval:   newEvaluator(cfg.Variant),
	}, nil
}

func (g *Generator) Params() *Params { return g.params }
func (g *Generator) Config() Config  { return g.params.Config }

// Corners returns the corner grid octave k uses for chunk.
func (g *Generator) Corners(chunk Chunk, k int) *CornerGrid {
	return SampleCorners(g.params, g.params.Levels[k], chunk)
}

// Generate returns the raw heightfield of chunk. The same chunk (modulo the
// world size) always yields bit-identical output.
func (g *Generator) Generate(chunk Chunk) *Heightfield {
	size := g.params.Config.OutputSize()
	out := NewHeightfield(size, size)
	g.accumulate(out, chunk)
	return out
}

func (g *Generator) accumulate(out *Heightfield, chunk Chunk) {
	cfg := g.params.Config
	s := cfg.ChunkSize
	for k, lvl := range g.params.Levels {
		grid := SampleCorners(g.params, lvl, chunk)
		basis := g.cache.Level(k)
		n, res := lvl.Cells, lvl.Res
		for cy := 0; cy < n; cy++ {
			for cx := 0; cx < n; cx++ {
				blk := grid.block(cx, cy)
				g.eval.addPatch(out, basis, &blk, lvl.Amplitude, cx*res, cy*res, res, res)
			}
		}
		if !cfg.Closed {
			continue
		}
		// The trailing column/row sits at local coordinate 0 of the cells just
		// past the chunk edge, which is exactly what the neighbour computes
		// for its first column/row.
		for c := 0; c < n; c++ {
			right := grid.block(n, c)
			g.eval.addPatch(out, basis, &right, lvl.Amplitude, s, c*res, 1, res)
			below := grid.block(c, n)
			g.eval.addPatch(out, basis, &below, lvl.Amplitude, c*res, s, res, 1)
		}
		corner := grid.block(n, n)
		g.eval.addPatch(out, basis, &corner, lvl.Amplitude, s, s, 1, 1)
	}
}

// GenerateRegion tiles w×h chunks starting at origin into one heightfield.
// Chunks are generated concurrently; the result equals generating each tile
// on its own. An empty w or h yields an empty field.
func (g *Generator) GenerateRegion(origin Chunk, w, h int) (*Heightfield, error) {
	cfg := g.params.Config
	s := cfg.ChunkSize
	extra := cfg.OutputSize() - s
	if w <= 0 || h <= 0 {
		return NewHeightfield(0, 0), nil
	}
	rw, rh, ok := regionSize(s, extra, w, h)
	if !ok {
		return nil, fmt.Errorf("%w: %dx%d chunks of %d", ErrRegionSize, w, h, s)
	}
	out := NewHeightfield(rw, rh)

	type tile struct{ i, j int }
	jobs := make(chan tile)
	workers := max(1, min(runtime.GOMAXPROCS(0), w*h))

	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				f := g.Generate(Chunk{X: origin.X + t.i, Y: origin.Y + t.j})
				// Only the last column/row of tiles writes the shared trailing
				// edge, so tiles never overlap.
				tw, th := s, s
				if t.i == w-1 {
					tw += extra
				}
				if t.j == h-1 {
					th += extra
				}
				out.blit(f, t.i*s, t.j*s, tw, th)
			}
		}()
	}
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			jobs <- tile{i: i, j: j}
		}
	}
	close(jobs)
	wg.Wait()
	return out, nil
}

// regionSize returns the output dimensions of a w×h region, or false when
// they would exceed MaxRegionSamples. No product is formed before its
// factors are known to fit.
func regionSize(s, extra, w, h int) (int, int, bool) {
	limit := (MaxRegionSamples - extra) / s
	if w > limit || h > limit {
		return 0, 0, false
	}
	rw, rh := s*w+extra, s*h+extra
	if rw > MaxRegionSamples/rh {
		return 0, 0, false
	}
	return rw, rh, true
}
