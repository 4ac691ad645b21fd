package colorscale

import (
	"image/color"
	"testing"

	"polyterrain.ai/internal/terrain/noise"
)

func twoBands(t *testing.T) *Scale {
	t.Helper()
	s, err := New(0,
		Band{Name: "water", From: rgb(0, 0, 0), To: rgb(0, 0, 200), Upper: 0.5},
		Band{Name: "land", From: rgb(100, 100, 100), To: rgb(200, 200, 200), Upper: 1},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestColorInterpolates(t *testing.T) {
	s := twoBands(t)
	cases := []struct {
		v    float64
		want color.RGBA
	}{
		{0, rgb(0, 0, 0)},
		{0.25, rgb(0, 0, 100)},
		{0.5, rgb(100, 100, 100)},
		{0.75, rgb(150, 150, 150)},
		{1, rgb(200, 200, 200)},
		{7, rgb(200, 200, 200)},
		{-1, rgb(0, 0, 0)},
	}
	for _, tc := range cases {
		if got := s.Color(tc.v); got != tc.want {
			t.Fatalf("Color(%v) = %v want %v", tc.v, got, tc.want)
		}
	}
}

func TestZeroWidthBandUsesStartColor(t *testing.T) {
	s, err := New(0,
		Band{From: rgb(1, 2, 3), To: rgb(9, 9, 9), Upper: 0.5},
		Band{From: rgb(10, 20, 30), To: rgb(90, 90, 90), Upper: 0.5},
		Band{From: rgb(50, 50, 50), To: rgb(60, 60, 60), Upper: 1},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Index(0.5) != 2 {
		t.Fatalf("zero-width band should never match, got index %d", s.Index(0.5))
	}
	if got := s.Color(0.5); got != rgb(50, 50, 50) {
		t.Fatalf("Color(0.5) = %v", got)
	}

	one, err := New(0.5, Band{From: rgb(7, 7, 7), To: rgb(200, 0, 0), Upper: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := one.Color(0.5); got != rgb(200, 0, 0) {
		t.Fatalf("Color at degenerate last bound = %v", got)
	}
}

func TestNewRejectsDecreasingBounds(t *testing.T) {
	if _, err := New(0, Band{Upper: 0.6}, Band{Upper: 0.4}); err == nil {
		t.Fatalf("expected error for decreasing bounds")
	}
	if _, err := New(1, Band{Upper: 0.5}); err == nil {
		t.Fatalf("expected error for upper below min")
	}
	if _, err := New(0); err == nil {
		t.Fatalf("expected error for no bands")
	}
	if _, err := New(0, Band{Name: "a", Upper: 0.5}, Band{Name: "a", Upper: 1}); err == nil {
		t.Fatalf("expected error for duplicate material")
	}
}

func TestMaterials(t *testing.T) {
	s := twoBands(t)
	if m := s.Material(0.7); m != "land" {
		t.Fatalf("Material(0.7) = %q", m)
	}
	if m := s.Material(3); m != "" {
		t.Fatalf("Material(3) = %q", m)
	}
	lo, hi, ok := s.MaterialRange("water")
	if !ok || lo != 0 || hi != 0.5 {
		t.Fatalf("MaterialRange(water) = %v %v %v", lo, hi, ok)
	}
	if _, _, ok := s.MaterialRange("lava"); ok {
		t.Fatalf("unexpected material lava")
	}

	summer, ok := Preset("summer")
	if !ok {
		t.Fatalf("missing summer preset")
	}
	if m := summer.Material(0.7); m != "grass" {
		t.Fatalf("summer Material(0.7) = %q", m)
	}
}

func TestPresetsCoverUnitInterval(t *testing.T) {
	for _, name := range PresetNames() {
		s, _ := Preset(name)
		for i := 0; i <= 10; i++ {
			v := float64(i) / 10
			if s.Index(v) < 0 && v < 1 {
				t.Fatalf("%s: %v not covered", name, v)
			}
		}
	}
}

func TestContour(t *testing.T) {
	s, err := Contour(rgb(0, 0, 0), rgb(255, 255, 255), 5)
	if err != nil {
		t.Fatalf("Contour: %v", err)
	}
	if len(s.Bands()) != 4 {
		t.Fatalf("bands: %d", len(s.Bands()))
	}
	if s.Color(0.01) == s.Color(0.24) {
		t.Fatalf("expected a gradient inside one contour band")
	}
	if _, err := Contour(rgb(0, 0, 0), rgb(1, 1, 1), 1); err == nil {
		t.Fatalf("expected error for n=1")
	}
}

func TestImage(t *testing.T) {
	s := twoBands(t)
	h := noise.NewHeightfield(3, 2)
	h.Set(2, 1, 0.75)
	img := s.Image(h)
	if b := img.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Fatalf("bounds %v", b)
	}
	if got := img.RGBAAt(2, 1); got != rgb(150, 150, 150) {
		t.Fatalf("pixel (2,1) = %v", got)
	}
	if got := img.RGBAAt(0, 0); got != rgb(0, 0, 0) {
		t.Fatalf("pixel (0,0) = %v", got)
	}
}
