package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"polyterrain.ai/internal/catalogs"
	persistlog "polyterrain.ai/internal/persistence/log"
	"polyterrain.ai/internal/tiles"
	"polyterrain.ai/internal/transport/httpapi"
	"polyterrain.ai/internal/transport/ws"
	"polyterrain.ai/internal/tuning"
)

type serverConfig struct {
	ConfigDir  string
	DataDir    string
	TuningPath string
	DisableDB  bool
	MaxRegion  int
}

type runtime struct {
	svc    *tiles.Service
	store  *tileStore
	genLog *persistlog.GenerationLogger
	ws     *ws.Server
	api    *httpapi.Server
	logger *log.Logger
}

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to terrain.yaml (default: <configs>/terrain.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tile cache")
		maxRegion  = flag.Int("max_region_chunks", 64, "largest region (in chunks) served by /v1/region")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	rt, err := newRuntime(serverConfig{
		ConfigDir:  *configDir,
		DataDir:    *dataDir,
		TuningPath: *tuningPath,
		DisableDB:  *disableDB,
		MaxRegion:  *maxRegion,
	}, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	mux := rt.mux()
	if envBool("POLYTERRAIN_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (POLYTERRAIN_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func newRuntime(cfg serverConfig, logger *log.Logger) (*runtime, error) {
	tp := strings.TrimSpace(cfg.TuningPath)
	if tp == "" {
		tp = filepath.Join(cfg.ConfigDir, "terrain.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		return nil, err
	}
	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return nil, err
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	store, err := openTileStore(cfg.DataDir, cfg.DisableDB, logger)
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		store:  store,
		genLog: persistlog.NewGenerationLogger(cfg.DataDir),
		logger: logger,
	}
	opts := tiles.Options{
		Log:             rt.genLog,
		Logger:          logger,
		MaxRegionChunks: cfg.MaxRegion,
	}
	if store != nil {
		opts.Store = store.db
	}
	rt.svc, err = tiles.New(tune, &cats.Palettes, opts)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if store != nil {
		for _, g := range rt.svc.Generators() {
			if err := store.db.UpsertGenerator(g.Spec.ID, g.Digest, g.ConfigJSON()); err != nil {
				logger.Printf("tile cache: register %s: %v", g.Spec.ID, err)
			}
		}
	}
	for _, g := range rt.svc.Generators() {
		p := g.Params()
		logger.Printf("generator %s: %s %d octaves, chunk %d, world %v, digest %s",
			g.Spec.ID, p.Config.Variant, len(p.Levels), p.Config.ChunkSize, p.Config.WorldSize, g.Digest[:12])
	}
	if n := len(cats.Palettes.ByID); n > 0 {
		logger.Printf("loaded %d palettes (digest %s)", n, cats.Palettes.Digest[:12])
	}

	rt.ws = ws.NewServer(rt.svc, logger)
	apiOpts := httpapi.Options{WSClients: rt.ws.Clients}
	if store != nil {
		apiOpts.Store = store.db
	}
	rt.api = httpapi.NewServer(rt.svc, logger, apiOpts)
	return rt, nil
}

func (rt *runtime) mux() *http.ServeMux {
	mux := http.NewServeMux()
	rt.api.Register(mux)
	mux.HandleFunc("/v1/ws", rt.ws.Handler())
	if envBool("POLYTERRAIN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", rt.stateHandler())
		mux.HandleFunc("/admin/v1/flush", rt.flushHandler())
	} else {
		rt.logger.Printf("admin endpoints disabled (POLYTERRAIN_ENABLE_ADMIN_HTTP=false)")
	}
	return mux
}

func (rt *runtime) Close() {
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.genLog != nil {
		_ = rt.genLog.Close()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
