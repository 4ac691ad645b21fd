package tiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"polyterrain.ai/internal/catalogs"
	glog "polyterrain.ai/internal/persistence/log"
	"polyterrain.ai/internal/persistence/tiledb"
	"polyterrain.ai/internal/terrain/colorscale"
	"polyterrain.ai/internal/terrain/noise"
	"polyterrain.ai/internal/tuning"
)

var (
	ErrUnknownGenerator = errors.New("unknown generator")
	ErrUnknownPalette   = errors.New("unknown palette")
	ErrRegionTooLarge   = errors.New("region too large")
)

// Store is the tile cache. *tiledb.TileDB implements it.
type Store interface {
	Get(ctx context.Context, k tiledb.Key) (*noise.Heightfield, bool, error)
	Put(t tiledb.Tile)
}

// GenerationLog receives one entry per served chunk or region.
type GenerationLog interface {
	WriteGeneration(e glog.GenerationEntry) error
}

// Generator is one configured terrain generator.
type Generator struct {
	Spec    tuning.GeneratorSpec
	Digest  string
	Palette *colorscale.Scale

	gen *noise.Generator
}

func (g *Generator) Params() *noise.Params { return g.gen.Params() }

// Normalize applies the generator's configured normalization.
func (g *Generator) Normalize(f *noise.Heightfield) *noise.Heightfield {
	if g.Spec.Normalize == tuning.NormalizeEmpirical {
		return noise.NormalizeEmpirical(f)
	}
	return noise.NormalizeTheoretical(f, g.gen.Params())
}

// NormalizeAs applies the named normalization; an empty mode returns f.
func (g *Generator) NormalizeAs(mode string, f *noise.Heightfield) (*noise.Heightfield, error) {
	switch mode {
	case "":
		return f, nil
	case tuning.NormalizeTheoretical:
		return noise.NormalizeTheoretical(f, g.gen.Params()), nil
	case tuning.NormalizeEmpirical:
		return noise.NormalizeEmpirical(f), nil
	default:
		return nil, fmt.Errorf("unknown normalization %q", mode)
	}
}

// ConfigJSON is the canonical noise config, as stored next to cached tiles.
func (g *Generator) ConfigJSON() []byte {
	b, _ := json.Marshal(g.gen.Config())
	return b
}

type Options struct {
	Store  Store
	Log    GenerationLog
	Logger *log.Logger
	// MaxRegionChunks caps Region requests; 0 means 64.
	MaxRegionChunks int
}

type Service struct {
	gens     map[string]*Generator
	ids      []string
	def      string
	palettes *catalogs.PaletteCatalog

	store     Store
	genLog    GenerationLog
	logger    *log.Logger
	maxRegion int

	mu       sync.Mutex
	inflight map[tiledb.Key]*call

	generated   atomic.Uint64
	cacheHits   atomic.Uint64
	deduped     atomic.Uint64
	storeErrors atomic.Uint64
	genMicros   atomic.Uint64
}

type call struct {
	done  chan struct{}
	field *noise.Heightfield
}

type Stats struct {
	Generators        int
	ChunksGenerated   uint64
	CacheHits         uint64
	InflightDeduped   uint64
	StoreErrors       uint64
	GenerationMicros  uint64
	InflightGenerates int
}

func New(cfg tuning.Config, palettes *catalogs.PaletteCatalog, opts Options) (*Service, error) {
	if palettes == nil {
		palettes = &catalogs.PaletteCatalog{}
	}
	s := &Service{
		gens:      map[string]*Generator{},
		def:       cfg.DefaultGenerator,
		palettes:  palettes,
		store:     opts.Store,
		genLog:    opts.Log,
		logger:    opts.Logger,
		maxRegion: opts.MaxRegionChunks,
		inflight:  map[tiledb.Key]*call{},
	}
	if s.maxRegion <= 0 {
		s.maxRegion = 64
	}
	for _, spec := range cfg.Generators {
		nc, err := spec.NoiseConfig()
		if err != nil {
			return nil, fmt.Errorf("generator %s: %w", spec.ID, err)
		}
		gen, err := noise.NewGenerator(nc)
		if err != nil {
			return nil, fmt.Errorf("generator %s: %w", spec.ID, err)
		}
		digest, err := spec.Digest()
		if err != nil {
			return nil, fmt.Errorf("generator %s: %w", spec.ID, err)
		}
		pal, ok := palettes.Palette(spec.Palette)
		if !ok {
			return nil, fmt.Errorf("generator %s: %w %q", spec.ID, ErrUnknownPalette, spec.Palette)
		}
		s.gens[spec.ID] = &Generator{Spec: spec, Digest: digest, Palette: pal, gen: gen}
		s.ids = append(s.ids, spec.ID)
	}
	sort.Strings(s.ids)
	if _, ok := s.gens[s.def]; !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownGenerator, s.def)
	}
	return s, nil
}

// Generator resolves id, or the default generator when id is empty.
func (s *Service) Generator(id string) (*Generator, error) {
	if id == "" {
		id = s.def
	}
	g, ok := s.gens[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownGenerator, id)
	}
	return g, nil
}

// Generators returns every generator sorted by id.
func (s *Service) Generators() []*Generator {
	out := make([]*Generator, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.gens[id])
	}
	return out
}

func (s *Service) Palette(id string) (*colorscale.Scale, error) {
	p, ok := s.palettes.Palette(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPalette, id)
	}
	return p, nil
}

func (s *Service) PaletteIDs() []string { return s.palettes.IDs() }

type Result struct {
	Generator *Generator
	Chunk     noise.Chunk
	// Field holds raw heights. It is shared with the cache and other callers
	// and must not be modified.
	Field  *noise.Heightfield
	Cached bool
}

// Chunk returns the raw heightfield of chunk c. Chunks are keyed by their
// wrapped coordinate, so c and c+world share one cache entry, and concurrent
// requests for the same chunk generate it once.
func (s *Service) Chunk(ctx context.Context, id string, c noise.Chunk) (*Result, error) {
	g, err := s.Generator(id)
	if err != nil {
		return nil, err
	}
	w := c.Wrap(g.gen.Config().WorldSize)
	key := tiledb.Key{Digest: g.Digest, CX: w.X, CY: w.Y}
	start := time.Now()

	if s.store != nil {
		f, ok, err := s.store.Get(ctx, key)
		if err != nil {
			s.storeErrors.Add(1)
			s.logf("tile cache read %s/%d/%d: %v", g.Spec.ID, w.X, w.Y, err)
		}
		if ok {
			s.cacheHits.Add(1)
			s.record(g, c, 1, 1, "cache", start)
			return &Result{Generator: g, Chunk: c, Field: f, Cached: true}, nil
		}
	}

	s.mu.Lock()
	if cl, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		s.deduped.Add(1)
		select {
		case <-cl.done:
			return &Result{Generator: g, Chunk: c, Field: cl.field}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	s.inflight[key] = cl
	s.mu.Unlock()

	cl.field = g.gen.Generate(w)
	close(cl.done)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()

	s.generated.Add(1)
	s.genMicros.Add(uint64(time.Since(start).Microseconds()))
	if s.store != nil {
		s.store.Put(tiledb.Tile{Key: key, Field: cl.field})
	}
	s.record(g, c, 1, 1, "generated", start)
	return &Result{Generator: g, Chunk: c, Field: cl.field}, nil
}

// Region generates w×h chunks starting at origin as one raw heightfield.
func (s *Service) Region(ctx context.Context, id string, origin noise.Chunk, w, h int) (*Generator, *noise.Heightfield, error) {
	g, err := s.Generator(id)
	if err != nil {
		return nil, nil, err
	}
	if w <= 0 || h <= 0 {
		return nil, nil, fmt.Errorf("%w: %dx%d chunks", ErrRegionTooLarge, w, h)
	}
	if w > s.maxRegion || h > s.maxRegion/w {
		return nil, nil, fmt.Errorf("%w: %dx%d chunks exceeds %d", ErrRegionTooLarge, w, h, s.maxRegion)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	start := time.Now()
	f, err := g.gen.GenerateRegion(origin, w, h)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrRegionTooLarge, err)
	}
	s.generated.Add(uint64(w * h))
	s.genMicros.Add(uint64(time.Since(start).Microseconds()))
	s.record(g, origin, w, h, "generated", start)
	return g, f, nil
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	inflight := len(s.inflight)
	s.mu.Unlock()
	return Stats{
		Generators:        len(s.gens),
		ChunksGenerated:   s.generated.Load(),
		CacheHits:         s.cacheHits.Load(),
		InflightDeduped:   s.deduped.Load(),
		StoreErrors:       s.storeErrors.Load(),
		GenerationMicros:  s.genMicros.Load(),
		InflightGenerates: inflight,
	}
}

func (s *Service) record(g *Generator, c noise.Chunk, w, h int, source string, start time.Time) {
	if s.genLog == nil {
		return
	}
	err := s.genLog.WriteGeneration(glog.GenerationEntry{
		Generator:  g.Spec.ID,
		Digest:     g.Digest,
		CX:         c.X,
		CY:         c.Y,
		ChunksW:    w,
		ChunksH:    h,
		Source:     source,
		DurationUS: time.Since(start).Microseconds(),
	})
	if err != nil {
		s.logf("generation log: %v", err)
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func errShape(n, w, h int) error {
	return fmt.Errorf("chunk carries %d samples, want %dx%d", n, w, h)
}
