// Package colorscale maps normalized heights onto colors through an ordered
// list of linear bands.
package colorscale

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl64"

	"polyterrain.ai/internal/terrain/noise"
)

// Band interpolates From..To over the interval that ends at Upper. The
// interval starts at the previous band's Upper, or at the scale minimum for
// the first band.
type Band struct {
	Name  string
	From  color.RGBA
	To    color.RGBA
	Upper float64
}

type band struct {
	Band
	lower float64
	width float64
}

type Scale struct {
	min   float64
	bands []band
	named map[string]int
}

func New(min float64, bands ...Band) (*Scale, error) {
	if len(bands) == 0 {
		return nil, errors.New("colorscale: no bands")
	}
	s := &Scale{min: min, bands: make([]band, len(bands)), named: map[string]int{}}
	lower := min
	for i, b := range bands {
		if b.Upper < lower {
			return nil, fmt.Errorf("colorscale: band %d upper %v below %v", i, b.Upper, lower)
		}
		s.bands[i] = band{Band: b, lower: lower, width: b.Upper - lower}
		if b.Name != "" {
			if _, dup := s.named[b.Name]; dup {
				return nil, fmt.Errorf("colorscale: duplicate material %q", b.Name)
			}
			s.named[b.Name] = i
		}
		lower = b.Upper
	}
	return s, nil
}

func mustNew(min float64, bands ...Band) *Scale {
	s, err := New(min, bands...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Scale) Min() float64 { return s.min }

func (s *Scale) Bands() []Band {
	out := make([]Band, len(s.bands))
	for i, b := range s.bands {
		out[i] = b.Band
	}
	return out
}

// Index returns the band containing v, or -1 when v is outside the scale.
func (s *Scale) Index(v float64) int {
	for i, b := range s.bands {
		if b.lower <= v && v < b.Upper {
			return i
		}
	}
	return -1
}

// Color returns the interpolated color for v. Values below the scale get the
// first band's start color, values at or above the last bound its end color.
func (s *Scale) Color(v float64) color.RGBA {
	if v < s.min {
		return s.bands[0].From
	}
	i := s.Index(v)
	if i < 0 {
		return s.bands[len(s.bands)-1].To
	}
	b := s.bands[i]
	if b.width == 0 {
		return b.From
	}
	t := (v - b.lower) / b.width
	return color.RGBA{
		R: lerp(b.From.R, b.To.R, t),
		G: lerp(b.From.G, b.To.G, t),
		B: lerp(b.From.B, b.To.B, t),
		A: 0xff,
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(mgl64.Clamp(float64(a)+t*(float64(b)-float64(a)), 0, 255))
}

// Material returns the name of the band containing v, or "" if that band is
// unnamed or v is outside the scale.
func (s *Scale) Material(v float64) string {
	if i := s.Index(v); i >= 0 {
		return s.bands[i].Name
	}
	return ""
}

// MaterialRange returns the [lower, upper) interval of a named band.
func (s *Scale) MaterialRange(name string) (lower, upper float64, ok bool) {
	i, ok := s.named[name]
	if !ok {
		return 0, 0, false
	}
	return s.bands[i].lower, s.bands[i].Upper, true
}

// Image colors a normalized heightfield. Pixel (x, y) is sample (x, y).
func (s *Scale) Image(h *noise.Heightfield) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, h.W, h.H))
	for y := 0; y < h.H; y++ {
		for x := 0; x < h.W; x++ {
			img.SetRGBA(x, y, s.Color(h.At(x, y)))
		}
	}
	return img
}

// Contour splits [0, 1] into n-1 equal bands, each running c1..c2.
func Contour(c1, c2 color.RGBA, n int) (*Scale, error) {
	if n < 2 {
		return nil, fmt.Errorf("colorscale: contour needs at least 2 stops, got %d", n)
	}
	const top = 1.000001
	bands := make([]Band, 0, n-1)
	for i := 1; i < n; i++ {
		bands = append(bands, Band{From: c1, To: c2, Upper: top * float64(i) / float64(n-1)})
	}
	return New(0, bands...)
}
