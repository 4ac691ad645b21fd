package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"polyterrain.ai/internal/persistence/snapshot"
	"polyterrain.ai/internal/persistence/tiledb"
	"polyterrain.ai/internal/protocol"
	"polyterrain.ai/internal/terrain/colorscale"
	"polyterrain.ai/internal/terrain/noise"
	"polyterrain.ai/internal/tiles"
)

// Output formats of /v1/chunk and /v1/region.
const (
	FormatPNG  = "png"
	FormatJSON = "json"
	FormatHF   = "hf"
)

// MaxScale bounds the PNG scale factor.
const MaxScale = 8

type StoreStats interface {
	Stats() tiledb.Stats
}

type Options struct {
	// Store is reported on /metrics when set.
	Store StoreStats
	// WSClients reports the number of connected stream clients.
	WSClients func() int
	// RequestTimeout bounds a single generation request; 0 means 30s.
	RequestTimeout time.Duration
}

type Server struct {
	svc  *tiles.Service
	log  *log.Logger
	opts Options
}

func NewServer(svc *tiles.Service, logger *log.Logger, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{svc: svc, log: logger, opts: opts}
}

// Register mounts every endpoint on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.HealthHandler())
	mux.HandleFunc("/metrics", s.MetricsHandler())
	mux.HandleFunc("/v1/generators", s.GeneratorsHandler())
	mux.HandleFunc("/v1/chunk", s.ChunkHandler())
	mux.HandleFunc("/v1/region", s.RegionHandler())
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	}
}

type GeneratorsResponse struct {
	ProtocolVersion string                  `json:"protocol_version"`
	Default         string                  `json:"default"`
	Generators      []protocol.GeneratorRef `json:"generators"`
	Palettes        []string                `json:"palettes"`
}

func (s *Server) GeneratorsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		resp := GeneratorsResponse{
			ProtocolVersion: protocol.Version,
			Palettes:        s.svc.PaletteIDs(),
		}
		if def, err := s.svc.Generator(""); err == nil {
			resp.Default = def.Spec.ID
		}
		for _, g := range s.svc.Generators() {
			resp.Generators = append(resp.Generators, g.Ref())
		}
		writeJSON(rw, http.StatusOK, resp)
	}
}

// ChunkHandler serves GET /v1/chunk?generator=&cx=&cy=&format=&palette=&scale=&raw=.
func (s *Server) ChunkHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q, err := parseQuery(r, false)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()

		res, err := s.svc.Chunk(ctx, q.generator, q.origin)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		switch q.format {
		case FormatJSON:
			var pal *colorscale.Scale
			if q.palette != "" {
				if pal, err = s.svc.Palette(q.palette); err != nil {
					s.writeError(rw, err)
					return
				}
			}
			writeJSON(rw, http.StatusOK, tiles.ChunkMessage(res, !q.raw, pal))
		case FormatHF:
			s.writeSnapshot(rw, res.Generator, q, res.Field)
		default:
			s.writePNG(rw, res.Generator, q, res.Field)
		}
	}
}

// RegionHandler serves GET /v1/region?generator=&cx=&cy=&w=&h=&format=&palette=&scale=&raw=.
func (s *Server) RegionHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		q, err := parseQuery(r, true)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		if q.format == FormatJSON {
			s.writeError(rw, badRequest("format json is only served for single chunks"))
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()

		g, f, err := s.svc.Region(ctx, q.generator, q.origin, q.w, q.h)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		if q.format == FormatHF {
			s.writeSnapshot(rw, g, q, f)
			return
		}
		s.writePNG(rw, g, q, f)
	}
}

func (s *Server) writePNG(rw http.ResponseWriter, g *tiles.Generator, q query, raw *noise.Heightfield) {
	pal := g.Palette
	if q.palette != "" {
		p, err := s.svc.Palette(q.palette)
		if err != nil {
			s.writeError(rw, err)
			return
		}
		pal = p
	}
	img := tiles.Colorize(g.Normalize(raw), pal, q.scale)
	rw.Header().Set("Content-Type", "image/png")
	if err := tiles.WritePNG(rw, img); err != nil {
		s.logf("png: %v", err)
	}
}

func (s *Server) writeSnapshot(rw http.ResponseWriter, g *tiles.Generator, q query, raw *noise.Heightfield) {
	f, normalize := raw, ""
	if !q.raw {
		f, normalize = g.Normalize(raw), g.Spec.Normalize
	}
	snap := g.Snapshot(q.origin, q.w, q.h, f, normalize)
	rw.Header().Set("Content-Type", "application/zstd")
	rw.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snapshotName(g.Spec.ID, q)))
	if err := snapshot.Encode(rw, snap); err != nil {
		s.logf("snapshot: %v", err)
	}
}

func snapshotName(id string, q query) string {
	if q.w == 1 && q.h == 1 {
		return fmt.Sprintf("%s_%d_%d.hf.zst", id, q.origin.X, q.origin.Y)
	}
	return fmt.Sprintf("%s_%d_%d_%dx%d.hf.zst", id, q.origin.X, q.origin.Y, q.w, q.h)
}

func (s *Server) MetricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		st := s.svc.Stats()
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP polyterrain_generators Number of configured generators.\n")
		fmt.Fprintf(rw, "# TYPE polyterrain_generators gauge\n")
		fmt.Fprintf(rw, "polyterrain_generators %d\n", st.Generators)

		fmt.Fprintf(rw, "# HELP polyterrain_chunks_generated_total Chunks generated since start.\n")
		fmt.Fprintf(rw, "# TYPE polyterrain_chunks_generated_total counter\n")
		fmt.Fprintf(rw, "polyterrain_chunks_generated_total %d\n", st.ChunksGenerated)

		fmt.Fprintf(rw, "# HELP polyterrain_cache_hits_total Chunks served from the tile cache.\n")
		fmt.Fprintf(rw, "# TYPE polyterrain_cache_hits_total counter\n")
		fmt.Fprintf(rw, "polyterrain_cache_hits_total %d\n", st.CacheHits)

		fmt.Fprintf(rw, "# HELP polyterrain_inflight_deduped_total Requests that waited on an in-flight generation.\n")
		fmt.Fprintf(rw, "# TYPE polyterrain_inflight_deduped_total counter\n")
		fmt.Fprintf(rw, "polyterrain_inflight_deduped_total %d\n", st.InflightDeduped)

		fmt.Fprintf(rw, "# HELP polyterrain_inflight_generates In-flight chunk generations.\n")
		fmt.Fprintf(rw, "# TYPE polyterrain_inflight_generates gauge\n")
		fmt.Fprintf(rw, "polyterrain_inflight_generates %d\n", st.InflightGenerates)

		fmt.Fprintf(rw, "# HELP polyterrain_store_errors_total Tile cache read errors.\n")
		fmt.Fprintf(rw, "# TYPE polyterrain_store_errors_total counter\n")
		fmt.Fprintf(rw, "polyterrain_store_errors_total %d\n", st.StoreErrors)

		fmt.Fprintf(rw, "# HELP polyterrain_generation_seconds_total Time spent generating.\n")
		fmt.Fprintf(rw, "# TYPE polyterrain_generation_seconds_total counter\n")
		fmt.Fprintf(rw, "polyterrain_generation_seconds_total %.6f\n", float64(st.GenerationMicros)/1e6)

		if s.opts.WSClients != nil {
			fmt.Fprintf(rw, "# HELP polyterrain_ws_clients Connected stream clients.\n")
			fmt.Fprintf(rw, "# TYPE polyterrain_ws_clients gauge\n")
			fmt.Fprintf(rw, "polyterrain_ws_clients %d\n", s.opts.WSClients())
		}

		if s.opts.Store != nil {
			ds := s.opts.Store.Stats()
			fmt.Fprintf(rw, "# HELP polyterrain_tiledb_queue_depth Pending tile cache writes.\n")
			fmt.Fprintf(rw, "# TYPE polyterrain_tiledb_queue_depth gauge\n")
			fmt.Fprintf(rw, "polyterrain_tiledb_queue_depth %d\n", ds.QueueDepth)
			fmt.Fprintf(rw, "# HELP polyterrain_tiledb_queue_capacity Tile cache write queue capacity.\n")
			fmt.Fprintf(rw, "# TYPE polyterrain_tiledb_queue_capacity gauge\n")
			fmt.Fprintf(rw, "polyterrain_tiledb_queue_capacity %d\n", ds.QueueCapacity)
			fmt.Fprintf(rw, "# HELP polyterrain_tiledb_dropped_total Tile writes dropped on a full queue.\n")
			fmt.Fprintf(rw, "# TYPE polyterrain_tiledb_dropped_total counter\n")
			fmt.Fprintf(rw, "polyterrain_tiledb_dropped_total %d\n", ds.DropTotal)
			fmt.Fprintf(rw, "# HELP polyterrain_tiledb_written_total Tiles written to the cache.\n")
			fmt.Fprintf(rw, "# TYPE polyterrain_tiledb_written_total counter\n")
			fmt.Fprintf(rw, "polyterrain_tiledb_written_total %d\n", ds.WrittenTotal)
			fmt.Fprintf(rw, "# HELP polyterrain_tiledb_failed_total Failed tile cache writes.\n")
			fmt.Fprintf(rw, "# TYPE polyterrain_tiledb_failed_total counter\n")
			fmt.Fprintf(rw, "polyterrain_tiledb_failed_total %d\n", ds.FailedTotal)
		}
	}
}

type query struct {
	generator string
	origin    noise.Chunk
	w, h      int
	format    string
	palette   string
	scale     float64
	raw       bool
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func parseQuery(r *http.Request, region bool) (query, error) {
	v := r.URL.Query()
	q := query{
		generator: strings.TrimSpace(v.Get("generator")),
		palette:   strings.TrimSpace(v.Get("palette")),
		format:    strings.ToLower(strings.TrimSpace(v.Get("format"))),
		w:         1,
		h:         1,
		scale:     1,
	}
	var err error
	if q.origin.X, err = intParam(v.Get("cx"), "cx", 0); err != nil {
		return q, err
	}
	if q.origin.Y, err = intParam(v.Get("cy"), "cy", 0); err != nil {
		return q, err
	}
	if region {
		if q.w, err = intParam(v.Get("w"), "w", 1); err != nil {
			return q, err
		}
		if q.h, err = intParam(v.Get("h"), "h", 1); err != nil {
			return q, err
		}
		if q.w < 1 || q.h < 1 {
			return q, badRequest("w and h must be >= 1")
		}
	}
	switch q.format {
	case "":
		q.format = FormatPNG
	case FormatPNG, FormatJSON, FormatHF:
	default:
		return q, badRequest("unknown format %q", q.format)
	}
	if s := v.Get("scale"); s != "" {
		q.scale, err = strconv.ParseFloat(s, 64)
		if err != nil || !(q.scale > 0) || q.scale > MaxScale {
			return q, badRequest("scale must be in (0, %d]", MaxScale)
		}
	}
	if s := v.Get("raw"); s != "" {
		q.raw, err = strconv.ParseBool(s)
		if err != nil {
			return q, badRequest("bad raw %q", s)
		}
	}
	return q, nil
}

func intParam(s, name string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("bad %s %q", name, s)
	}
	return n, nil
}

// StatusOf maps a request error to its HTTP status and wire error code.
func StatusOf(err error) (int, string) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return http.StatusBadRequest, protocol.ErrBadRequest
	case errors.Is(err, tiles.ErrUnknownGenerator), errors.Is(err, tiles.ErrUnknownPalette):
		return http.StatusNotFound, protocol.ErrNotFound
	case errors.Is(err, tiles.ErrRegionTooLarge):
		return http.StatusRequestEntityTooLarge, protocol.ErrRateLimit
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, protocol.ErrRateLimit
	default:
		return http.StatusInternalServerError, protocol.ErrInternal
	}
}

func (s *Server) writeError(rw http.ResponseWriter, err error) {
	status, code := StatusOf(err)
	if status == http.StatusInternalServerError {
		s.logf("request failed: %v", err)
	}
	writeJSON(rw, status, protocol.NewError(code, err.Error()))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
