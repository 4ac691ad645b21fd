package noise

// Basis holds the precomputed Res×Res tensors of one octave, row-major with
// x along a row. Only the tensors used by the configured variant are filled.
type Basis struct {
	Res int

	X, Y     []float64
	XM1, YM1 []float64

	SX, SY []float64
	// SXY is SX*SY, the cross term of the zero-gradient blend.
	SXY []float64

	// Mono[i][j] holds x^i * y^j.
	Mono [4][4][]float64
}

// Cache is the per-level basis cache. It is read-only after BuildCache returns
// and may be shared by any number of concurrent generations.
type Cache struct {
	levels []*Basis
}

func (c *Cache) Level(k int) *Basis {
	return c.levels[k]
}

func (c *Cache) Len() int {
	return len(c.levels)
}

func BuildCache(p *Params) *Cache {
	smooth, _ := Smoothstep(p.Config.SmoothstepDegree()) // validated by DeriveParams
	c := &Cache{levels: make([]*Basis, len(p.Levels))}
	for k, lvl := range p.Levels {
		c.levels[k] = buildBasis(lvl.Res, p.Config.Variant, smooth)
	}
	return c
}

func buildBasis(res int, v Variant, smooth SmoothstepFunc) *Basis {
	n := res * res
	b := &Basis{Res: res}

	// 1-D tables; every tensor below is an outer combination of these.
	coord := make([]float64, res)
	sm := make([]float64, res)
	for i := 0; i < res; i++ {
		coord[i] = float64(i) / float64(res)
		sm[i] = smooth(coord[i])
	}

	switch v {
	case ZeroGradient:
		b.SX = make([]float64, n)
		b.SY = make([]float64, n)
		b.SXY = make([]float64, n)
		for dy := 0; dy < res; dy++ {
			for dx := 0; dx < res; dx++ {
				p := dx + dy*res
				b.SX[p] = sm[dx]
				b.SY[p] = sm[dy]
				b.SXY[p] = sm[dx] * sm[dy]
			}
		}

	case GradientNoise:
		b.X = make([]float64, n)
		b.Y = make([]float64, n)
		b.XM1 = make([]float64, n)
		b.YM1 = make([]float64, n)
		b.SX = make([]float64, n)
		b.SY = make([]float64, n)
		for dy := 0; dy < res; dy++ {
			for dx := 0; dx < res; dx++ {
				p := dx + dy*res
				b.X[p] = coord[dx]
				b.Y[p] = coord[dy]
				b.XM1[p] = coord[dx] - 1
				b.YM1[p] = coord[dy] - 1
				b.SX[p] = sm[dx]
				b.SY[p] = sm[dy]
			}
		}

	case DualCubic:
		var pow [4][]float64
		for i := 0; i < 4; i++ {
			pow[i] = make([]float64, res)
		}
		for d := 0; d < res; d++ {
			pow[0][d] = 1
			for i := 1; i < 4; i++ {
				pow[i][d] = pow[i-1][d] * coord[d]
			}
		}
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				m := make([]float64, n)
				for dy := 0; dy < res; dy++ {
					for dx := 0; dx < res; dx++ {
						m[dx+dy*res] = pow[i][dx] * pow[j][dy]
					}
				}
				b.Mono[i][j] = m
			}
		}
	}
	return b
}
