package noise

import "github.com/go-gl/mathgl/mgl64"

// evaluator adds the field interpolated from blk into the w×h rectangle of
// dst at (x0, y0), reading the basis from its origin.
type evaluator interface {
	addPatch(dst *Heightfield, b *Basis, blk *block, amp float64, x0, y0, w, h int)
}

func newEvaluator(v Variant) evaluator {
	switch v {
	case DualCubic:
		return dualCubic{}
	case GradientNoise:
		return gradientNoise{}
	default:
		return zeroGradient{}
	}
}

// zeroGradient blends the corner heights with the smoothstep along each axis.
// The weights are a convex combination, so the patch never leaves the range
// of its corners. Corner heights already carry the octave amplitude.
type zeroGradient struct{}

func (zeroGradient) addPatch(dst *Heightfield, b *Basis, blk *block, _ float64, x0, y0, w, h int) {
	h0 := blk.h[0][0]
	dhx := blk.h[1][0] - h0
	dhy := blk.h[0][1] - h0
	a := h0 - blk.h[1][0] - blk.h[0][1] + blk.h[1][1]
	for dy := 0; dy < h; dy++ {
		row := dst.Data[(y0+dy)*dst.W+x0:]
		base := dy * b.Res
		for dx := 0; dx < w; dx++ {
			p := base + dx
			row[dx] += h0 + dhx*b.SX[p] + dhy*b.SY[p] + a*b.SXY[p]
		}
	}
}

// hermite maps (p0, p1, d0, d1) onto cubic monomial coefficients.
var hermite = [4][4]float64{
	{1, 0, 0, 0},
	{0, 0, 1, 0},
	{-3, 3, -2, -1},
	{2, -2, 1, 1},
}

// dualCubic fits the bicubic matching corner heights and first partials, with
// zero cross derivatives. It can overshoot the corner range slightly.
type dualCubic struct{}

func (dualCubic) coefficients(blk *block) [4][4]float64 {
	m := [4][4]float64{
		{blk.h[0][0], blk.h[0][1], blk.g[0][0], blk.g[0][1]},
		{blk.h[1][0], blk.h[1][1], blk.g[1][0], blk.g[1][1]},
		{blk.f[0][0], blk.f[0][1], 0, 0},
		{blk.f[1][0], blk.f[1][1], 0, 0},
	}
	// a = hermite * m * hermite^T
	var tmp, a [4][4]float64
	for l := 0; l < 4; l++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += m[l][k] * hermite[j][k]
			}
			tmp[l][j] = s
		}
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for l := 0; l < 4; l++ {
				s += hermite[i][l] * tmp[l][j]
			}
			a[i][j] = s
		}
	}
	return a
}

func (d dualCubic) addPatch(dst *Heightfield, b *Basis, blk *block, _ float64, x0, y0, w, h int) {
	a := d.coefficients(blk)
	for dy := 0; dy < h; dy++ {
		row := dst.Data[(y0+dy)*dst.W+x0:]
		base := dy * b.Res
		for dx := 0; dx < w; dx++ {
			p := base + dx
			var v float64
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					v += a[i][j] * b.Mono[i][j][p]
				}
			}
			row[dx] += v
		}
	}
}

// gradientNoise is classic Perlin noise: each corner contributes the dot of its
// gradient with the offset to the point, blended by the smoothstep.
type gradientNoise struct{}

func (gradientNoise) addPatch(dst *Heightfield, b *Basis, blk *block, amp float64, x0, y0, w, h int) {
	g00 := mgl64.Vec2{blk.f[0][0], blk.g[0][0]}
	g10 := mgl64.Vec2{blk.f[1][0], blk.g[1][0]}
	g01 := mgl64.Vec2{blk.f[0][1], blk.g[0][1]}
	g11 := mgl64.Vec2{blk.f[1][1], blk.g[1][1]}
	for dy := 0; dy < h; dy++ {
		row := dst.Data[(y0+dy)*dst.W+x0:]
		base := dy * b.Res
		for dx := 0; dx < w; dx++ {
			p := base + dx
			tl := g00.Dot(mgl64.Vec2{b.X[p], b.Y[p]})
			tr := g10.Dot(mgl64.Vec2{b.XM1[p], b.Y[p]})
			bl := g01.Dot(mgl64.Vec2{b.X[p], b.YM1[p]})
			br := g11.Dot(mgl64.Vec2{b.XM1[p], b.YM1[p]})
			top := tl + b.SX[p]*(tr-tl)
			bottom := bl + b.SX[p]*(br-bl)
			row[dx] += amp * (top + b.SY[p]*(bottom-top))
		}
	}
}
