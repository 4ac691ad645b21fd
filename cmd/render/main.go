package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"polyterrain.ai/internal/catalogs"
	"polyterrain.ai/internal/persistence/snapshot"
	"polyterrain.ai/internal/terrain/noise"
	"polyterrain.ai/internal/tiles"
	"polyterrain.ai/internal/tuning"
)

type renderOpts struct {
	Generator string
	Origin    noise.Chunk
	W, H      int
	Palette   string
	Normalize string
	Scale     float64
	PNGPath   string
	HFPath    string
	// RawHF writes raw heights to HFPath instead of normalized ones.
	RawHF bool
}

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to terrain.yaml (default: <configs>/terrain.yaml)")
		genID      = flag.String("generator", "", "generator id (default: the configured default)")
		cx         = flag.Int("cx", 0, "first chunk x")
		cy         = flag.Int("cy", 0, "first chunk y")
		w          = flag.Int("w", 1, "chunks across")
		h          = flag.Int("h", 1, "chunks down")
		palette    = flag.String("palette", "", "palette id (default: the generator's palette)")
		normalize  = flag.String("normalize", "", "theoretical|empirical (default: the generator's normalization)")
		scale      = flag.Float64("scale", 1, "png scale factor")
		out        = flag.String("out", "", "png output path (empty to skip)")
		hfOut      = flag.String("hf", "", ".hf.zst output path (empty to skip)")
		raw        = flag.Bool("raw", false, "store raw heights in the .hf.zst output")
	)
	flag.Parse()

	if *out == "" && *hfOut == "" {
		fmt.Fprintln(os.Stderr, "missing -out or -hf")
		os.Exit(2)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "terrain.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	opts := renderOpts{
		Generator: *genID,
		Origin:    noise.Chunk{X: *cx, Y: *cy},
		W:         *w,
		H:         *h,
		Palette:   *palette,
		Normalize: *normalize,
		Scale:     *scale,
		PNGPath:   *out,
		HFPath:    *hfOut,
		RawHF:     *raw,
	}
	hdr, err := render(context.Background(), tune, &cats.Palettes, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "render:", err)
		os.Exit(1)
	}
	fmt.Printf("rendered %s chunks=%dx%d at %d,%d size=%dx%d digest=%s\n",
		hdr.Generator, hdr.ChunksW, hdr.ChunksH, hdr.CX, hdr.CY, hdr.Width, hdr.Height, hdr.Digest)
}

func render(ctx context.Context, tune tuning.Config, pals *catalogs.PaletteCatalog, o renderOpts) (snapshot.Header, error) {
	if o.W < 1 || o.H < 1 {
		return snapshot.Header{}, fmt.Errorf("w and h must be >= 1, got %dx%d", o.W, o.H)
	}
	svc, err := tiles.New(tune, pals, tiles.Options{MaxRegionChunks: o.W * o.H})
	if err != nil {
		return snapshot.Header{}, err
	}
	g, f, err := svc.Region(ctx, o.Generator, o.Origin, o.W, o.H)
	if err != nil {
		return snapshot.Header{}, err
	}
	mode := o.Normalize
	if mode == "" {
		mode = g.Spec.Normalize
	}
	norm, err := g.NormalizeAs(mode, f)
	if err != nil {
		return snapshot.Header{}, err
	}

	if o.PNGPath != "" {
		pal := g.Palette
		if o.Palette != "" {
			if pal, err = svc.Palette(o.Palette); err != nil {
				return snapshot.Header{}, err
			}
		}
		if err := writePNG(o.PNGPath, tiles.Colorize(norm, pal, o.Scale)); err != nil {
			return snapshot.Header{}, err
		}
	}

	stored, storedMode := norm, mode
	if o.RawHF {
		stored, storedMode = f, ""
	}
	snap := g.Snapshot(o.Origin, o.W, o.H, stored, storedMode)
	if o.HFPath != "" {
		if err := snapshot.WriteFile(o.HFPath, snap); err != nil {
			return snapshot.Header{}, err
		}
	}
	return snap.Header, nil
}
