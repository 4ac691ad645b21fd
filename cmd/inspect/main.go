package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"polyterrain.ai/internal/catalogs"
	persistlog "polyterrain.ai/internal/persistence/log"
	"polyterrain.ai/internal/persistence/snapshot"
	"polyterrain.ai/internal/terrain/noise"
	"polyterrain.ai/internal/tiles"
	"polyterrain.ai/internal/tuning"
)

func main() {
	var (
		hfPath      = flag.String("hf", "", "path to .hf.zst")
		configDir   = flag.String("configs", "./configs", "config directory")
		tuningPath  = flag.String("tuning", "", "path to terrain.yaml (default: <configs>/terrain.yaml)")
		doVerify    = flag.Bool("verify", false, "regenerate the snapshot and compare bit-for-bit")
		headerOnly  = flag.Bool("header", false, "print only the header line")
		generations = flag.String("generations", "", "generations dir containing generations-*.jsonl.zst (optional)")
	)
	flag.Parse()

	if *hfPath == "" && *generations == "" {
		fmt.Fprintln(os.Stderr, "missing -hf or -generations")
		os.Exit(2)
	}

	if *hfPath != "" {
		if *headerOnly {
			h, err := snapshot.ReadHeader(*hfPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "read header:", err)
				os.Exit(1)
			}
			b, _ := json.Marshal(h)
			fmt.Println(string(b))
			return
		}

		snap, err := snapshot.ReadFile(*hfPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		h := snap.Header
		st := fieldStats(snap.Heightfield())
		fmt.Printf("heightfield v%d generator=%s variant=%s seed=%d chunk=%d,%d chunks=%dx%d size=%dx%d normalize=%q\n",
			h.Version, h.Generator, h.Variant, h.Seed, h.CX, h.CY, h.ChunksW, h.ChunksH, h.Width, h.Height, h.Normalize)
		fmt.Printf("digest=%s min=%.6f max=%.6f mean=%.6f stddev=%.6f\n", h.Digest, st.Min, st.Max, st.Mean, st.StdDev)

		if *doVerify {
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
			if err := verify(context.Background(), snap, tune, &cats.Palettes); err != nil {
				fmt.Fprintln(os.Stderr, "verify:", err)
				os.Exit(1)
			}
			fmt.Printf("verify ok: %d samples match\n", len(snap.Data))
		}
	}

	if *generations != "" {
		sum, err := summarizeGenerations(*generations)
		if err != nil {
			fmt.Fprintln(os.Stderr, "generations:", err)
			os.Exit(1)
		}
		keys := make([]string, 0, len(sum))
		for k := range sum {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			s := sum[k]
			fmt.Printf("generator=%s requests=%d generated=%d cache=%d chunks=%d mean_us=%d\n",
				k, s.Requests, s.Generated, s.Cache, s.Chunks, s.meanMicros())
		}
	}
}

type stats struct {
	Min, Max, Mean, StdDev float64
}

func fieldStats(f *noise.Heightfield) stats {
	var st stats
	if len(f.Data) == 0 {
		return st
	}
	st.Min, st.Max = f.MinMax()
	var sum float64
	for _, v := range f.Data {
		sum += v
	}
	st.Mean = sum / float64(len(f.Data))
	var sq float64
	for _, v := range f.Data {
		d := v - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(len(f.Data)))
	return st
}

// verify regenerates the chunks covered by snap with the generator it names
// and compares every sample bit-for-bit.
func verify(ctx context.Context, snap snapshot.HeightfieldV1, tune tuning.Config, pals *catalogs.PaletteCatalog) error {
	h := snap.Header
	svc, err := tiles.New(tune, pals, tiles.Options{MaxRegionChunks: h.ChunksW * h.ChunksH})
	if err != nil {
		return err
	}
	g, err := svc.Generator(h.Generator)
	if err != nil {
		return err
	}
	if g.Digest != h.Digest {
		return fmt.Errorf("generator %s changed: digest %s, snapshot has %s", h.Generator, g.Digest, h.Digest)
	}
	_, raw, err := svc.Region(ctx, h.Generator, noise.Chunk{X: h.CX, Y: h.CY}, h.ChunksW, h.ChunksH)
	if err != nil {
		return err
	}
	want, err := g.NormalizeAs(h.Normalize, raw)
	if err != nil {
		return err
	}
	got := snap.Heightfield()
	if got.W != want.W || got.H != want.H {
		return fmt.Errorf("size %dx%d, regenerated %dx%d", got.W, got.H, want.W, want.H)
	}
	for y := 0; y < got.H; y++ {
		for x := 0; x < got.W; x++ {
			a, b := got.At(x, y), want.At(x, y)
			if math.Float64bits(a) != math.Float64bits(b) {
				return fmt.Errorf("sample %d,%d: stored %v, regenerated %v", x, y, a, b)
			}
		}
	}
	return nil
}

type genSummary struct {
	Requests   int
	Generated  int
	Cache      int
	Chunks     int
	DurationUS int64
}

func (s genSummary) meanMicros() int64 {
	if s.Requests == 0 {
		return 0
	}
	return s.DurationUS / int64(s.Requests)
}

func summarizeGenerations(dir string) (map[string]genSummary, error) {
	files, err := listGenerationFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no generations files found in %s", dir)
	}
	out := map[string]genSummary{}
	for _, path := range files {
		if err := readGenerationFile(path, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func listGenerationFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "generations-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func readGenerationFile(path string, out map[string]genSummary) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e persistlog.GenerationEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		s := out[e.Generator]
		s.Requests++
		switch e.Source {
		case "cache":
			s.Cache++
		default:
			s.Generated++
		}
		s.Chunks += max(1, e.ChunksW) * max(1, e.ChunksH)
		s.DurationUS += e.DurationUS
		out[e.Generator] = s
	}
	return sc.Err()
}
