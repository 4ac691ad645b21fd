package main

import (
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polyterrain.ai/internal/encoding"
	"polyterrain.ai/internal/terrain/colorscale"
	"polyterrain.ai/internal/terrain/noise"
	"polyterrain.ai/internal/tiles"
	"polyterrain.ai/internal/transport/ws"
	"polyterrain.ai/internal/tuning"
)

func startServer(t *testing.T, closed bool) (*tiles.Service, string) {
	t.Helper()
	cfg := tuning.Config{
		DefaultGenerator: "hills",
		Generators: []tuning.GeneratorSpec{
			{ID: "hills", Depth: 3, ChunkSize: 8, WorldSize: []int{3, 2}, Seed: 21, Closed: closed},
			{ID: "marble", Variant: "gradient_noise", Depth: 2, ChunkSize: 8, WorldSize: []int{3, 2}, Seed: 4, Closed: closed, Normalize: tuning.NormalizeEmpirical},
		},
	}
	cfg.Normalize()
	svc, err := tiles.New(cfg, nil, tiles.Options{})
	if err != nil {
		t.Fatalf("tiles.New: %v", err)
	}
	ts := httptest.NewServer(ws.NewServer(svc, nil).Handler())
	t.Cleanup(ts.Close)
	return svc, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestFetchAndAssembleMatchesRegion(t *testing.T) {
	for _, closed := range []bool{false, true} {
		svc, url := startServer(t, closed)
		for _, id := range []string{"hills", "marble"} {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			origin := noise.Chunk{X: -1, Y: 1}

			welcome, chunks, err := fetch(ctx, url, request{Generator: id, Origin: origin, W: 3, H: 2}, nil)
			cancel()
			if err != nil {
				t.Fatalf("%s closed=%v fetch: %v", id, closed, err)
			}
			if welcome.Generator.ID != id || len(chunks) != 6 {
				t.Fatalf("%s closed=%v: welcome %+v, %d chunks", id, closed, welcome.Generator, len(chunks))
			}
			got, err := assemble(welcome.Generator, chunks, origin, 3, 2)
			if err != nil {
				t.Fatalf("assemble: %v", err)
			}

			// Whatever the configured mode, streamed chunks are theoretically
			// normalized and stitch into the region.
			g, raw, err := svc.Region(context.Background(), id, origin, 3, 2)
			if err != nil {
				t.Fatalf("Region: %v", err)
			}
			want := noise.NormalizeTheoretical(raw, g.Params())
			if got.W != want.W || got.H != want.H {
				t.Fatalf("%s closed=%v: size %dx%d, want %dx%d", id, closed, got.W, got.H, want.W, want.H)
			}
			for i := range want.Data {
				if math.Abs(got.Data[i]-want.Data[i]) > 1.0/0xFFFF {
					t.Fatalf("%s closed=%v sample %d: %v vs %v", id, closed, i, got.Data[i], want.Data[i])
				}
			}
		}
	}
}

func TestFetchBandsAndCoverage(t *testing.T) {
	svc, url := startServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	origin := noise.Chunk{X: 1, Y: 0}
	req := request{Generator: "marble", Origin: origin, W: 2, H: 2, Bands: true, Palette: "sharp"}
	welcome, chunks, err := fetch(ctx, url, req, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	pal, err := svc.Palette("sharp")
	if err != nil {
		t.Fatalf("Palette: %v", err)
	}
	got, err := assembleBands(welcome.Generator, chunks, origin, 2, 2, len(pal.Bands()))
	if err != nil {
		t.Fatalf("assembleBands: %v", err)
	}

	g, raw, err := svc.Region(context.Background(), "marble", origin, 2, 2)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}
	want := tiles.Bands(noise.NormalizeTheoretical(raw, g.Params()), pal)
	if len(got) != len(want) {
		t.Fatalf("bands: %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: band %d, want %d", i, got[i], want[i])
		}
	}

	total := 0
	var frac float64
	for _, c := range coverage(got, pal) {
		total += c.Samples
		frac += c.Fraction
	}
	if total != len(got) || math.Abs(frac-1) > 1e-9 {
		t.Fatalf("coverage sums to %d samples (%v), want %d", total, frac, len(got))
	}

	// Gradient noise sits at 0.5 on every node, the lower bound of the second
	// band, so a one-band palette cannot hold these indices.
	if _, err := assembleBands(welcome.Generator, chunks, origin, 2, 2, 1); err == nil {
		t.Fatalf("expected band index error")
	}
}

func TestCoverageReportsOutside(t *testing.T) {
	pal, err := colorscale.New(0, colorscale.Band{Name: "low", Upper: 0.5}, colorscale.Band{Name: "high", Upper: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := coverage([]uint16{0, 0, 1, encoding.NoBand}, pal)
	if len(got) != 3 || got[0].Samples != 2 || got[1].Name != "high" || got[2].Name != "outside" || got[2].Fraction != 0.25 {
		t.Fatalf("coverage %+v", got)
	}
}

func TestFetchReportsServerError(t *testing.T) {
	_, url := startServer(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, err := fetch(ctx, url, request{Generator: "nope", W: 1, H: 1}, nil); err == nil || !strings.Contains(err.Error(), "E_NOT_FOUND") {
		t.Fatalf("expected E_NOT_FOUND, got %v", err)
	}
}

func TestAssembleMissingChunk(t *testing.T) {
	_, url := startServer(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	welcome, chunks, err := fetch(ctx, url, request{W: 1, H: 1}, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := assemble(welcome.Generator, chunks, noise.Chunk{}, 2, 1); err == nil {
		t.Fatalf("expected missing chunk error")
	}
}
