package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"polyterrain.ai/internal/persistence/snapshot"
	"polyterrain.ai/internal/persistence/tiledb"
	"polyterrain.ai/internal/terrain/noise"
)

const usage = "usage: admin db|export|state|flush [flags]"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "flush":
			flushCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, usage)
	os.Exit(2)
}

func tileDBPath(dataDir, dbPath string) string {
	if p := strings.TrimSpace(dbPath); p != "" {
		return p
	}
	return filepath.Join(dataDir, "tiles", "tiles.sqlite")
}

// exportCmd writes one cached tile as a raw .hf.zst snapshot.
func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	digest := fs.String("digest", "", "generator digest (required)")
	cx := fs.Int("cx", 0, "wrapped chunk x")
	cy := fs.Int("cy", 0, "wrapped chunk y")
	outPath := fs.String("out", "", "output .hf.zst path (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*digest) == "" || strings.TrimSpace(*outPath) == "" {
		fmt.Fprintln(os.Stderr, "missing -digest or -out")
		os.Exit(2)
	}

	db, err := tiledb.Open(tileDBPath(*dataDir, *dbPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h, err := exportTile(ctx, db, tiledb.Key{Digest: *digest, CX: *cx, CY: *cy}, *outPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	printJSON(h)
}

func exportTile(ctx context.Context, db *tiledb.TileDB, k tiledb.Key, outPath string) (snapshot.Header, error) {
	f, ok, err := db.Get(ctx, k)
	if err != nil {
		return snapshot.Header{}, err
	}
	if !ok {
		return snapshot.Header{}, fmt.Errorf("tile %s/%d/%d not cached", k.Digest, k.CX, k.CY)
	}
	g, err := db.Generator(ctx, k.Digest)
	if err != nil {
		return snapshot.Header{}, err
	}
	var cfg noise.Config
	if err := json.Unmarshal([]byte(g.ConfigJSON), &cfg); err != nil {
		return snapshot.Header{}, fmt.Errorf("generator %s config: %w", g.ID, err)
	}
	snap := snapshot.New(snapshot.Header{
		Generator: g.ID,
		Digest:    k.Digest,
		CX:        k.CX,
		CY:        k.CY,
		Seed:      cfg.Seed,
		Variant:   cfg.Variant.String(),
	}, f)
	if err := snapshot.WriteFile(outPath, snap); err != nil {
		return snapshot.Header{}, err
	}
	return snap.Header, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
