package noise

import "github.com/go-gl/mathgl/mgl64"

// NormalizeEmpirical rescales f so that its own minimum maps to 0 and its
// maximum to 1. Two chunks normalized this way are no longer comparable and
// will not stitch; prefer NormalizeTheoretical for tiled output. A constant
// field maps to 0.5.
func NormalizeEmpirical(f *Heightfield) *Heightfield {
	out := NewHeightfield(f.W, f.H)
	lo, hi := f.MinMax()
	span := hi - lo
	for i, v := range f.Data {
		if span == 0 {
			out.Data[i] = 0.5
			continue
		}
		out.Data[i] = (v - lo) / span
	}
	return out
}

// NormalizeTheoretical applies the fixed map [-MaxH, MaxH] -> [0, 1], the same
// for every chunk, so independently normalized neighbours still agree on their
// shared samples. Values beyond the bound (dual cubic overshoot) are clamped.
func NormalizeTheoretical(f *Heightfield, p *Params) *Heightfield {
	out := NewHeightfield(f.W, f.H)
	span := 2 * p.MaxH
	for i, v := range f.Data {
		out.Data[i] = mgl64.Clamp((v+p.MaxH)/span, 0, 1)
	}
	return out
}
