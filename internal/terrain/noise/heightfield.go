package noise

import "math"

// Heightfield is a dense row-major matrix of heights. X runs along a row.
type Heightfield struct {
	W, H int
	Data []float64 // len = W*H
}

func NewHeightfield(w, h int) *Heightfield {
	return &Heightfield{W: w, H: h, Data: make([]float64, w*h)}
}

func (f *Heightfield) index(x, y int) int {
	return x + y*f.W
}

func (f *Heightfield) At(x, y int) float64 {
	return f.Data[f.index(x, y)]
}

func (f *Heightfield) Set(x, y int, v float64) {
	f.Data[f.index(x, y)] = v
}

// Row returns a view of row y.
func (f *Heightfield) Row(y int) []float64 {
	return f.Data[y*f.W : (y+1)*f.W]
}

// Column returns a copy of column x.
func (f *Heightfield) Column(x int) []float64 {
	out := make([]float64, f.H)
	for y := 0; y < f.H; y++ {
		out[y] = f.Data[f.index(x, y)]
	}
	return out
}

func (f *Heightfield) MinMax() (lo, hi float64) {
	if len(f.Data) == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range f.Data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func (f *Heightfield) Clone() *Heightfield {
	out := &Heightfield{W: f.W, H: f.H, Data: make([]float64, len(f.Data))}
	copy(out.Data, f.Data)
	return out
}

// Equal reports bit-for-bit equality.
func (f *Heightfield) Equal(o *Heightfield) bool {
	if f.W != o.W || f.H != o.H || len(f.Data) != len(o.Data) {
		return false
	}
	for i := range f.Data {
		if math.Float64bits(f.Data[i]) != math.Float64bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// blit copies the top-left w×h rectangle of src into f at (x0, y0).
func (f *Heightfield) blit(src *Heightfield, x0, y0, w, h int) {
	for y := 0; y < h; y++ {
		copy(f.Data[f.index(x0, y0+y):f.index(x0, y0+y)+w], src.Row(y)[:w])
	}
}
