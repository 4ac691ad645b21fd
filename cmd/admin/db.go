package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"polyterrain.ai/internal/tuning"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	configDir := fs.String("configs", "./configs", "config directory (prune)")
	digest := fs.String("digest", "", "digest filter (tiles)")
	limit := fs.Int("limit", 20, "result limit")
	dryRun := fs.Bool("dry_run", false, "report what prune would delete")
	_ = fs.Parse(args)

	q := "generators"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	db, err := sql.Open("sqlite", tileDBPath(*dataDir, *dbPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "generators":
		rows, err := queryGenerators(db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "tiles":
		rows, err := queryTiles(db, strings.TrimSpace(*digest), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "prune":
		tune, err := tuning.Load(filepath.Join(*configDir, "terrain.yaml"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		keep := map[string]bool{}
		for _, g := range tune.Generators {
			d, err := g.Digest()
			if err != nil {
				fmt.Fprintln(os.Stderr, "digest:", err)
				os.Exit(1)
			}
			keep[d] = true
		}
		res, err := pruneStale(db, keep, *dryRun)
		if err != nil {
			fmt.Fprintln(os.Stderr, "prune:", err)
			os.Exit(1)
		}
		printJSON(res)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] generators|tiles|prune")
		os.Exit(2)
	}
}

type generatorRow struct {
	Digest     string `json:"digest"`
	ID         string `json:"id"`
	ConfigJSON string `json:"config_json"`
	UpdatedAt  string `json:"updated_at"`
	Tiles      int    `json:"tiles"`
	Bytes      int64  `json:"bytes"`
}

func queryGenerators(db *sql.DB) ([]generatorRow, error) {
	rows, err := db.Query(`SELECT g.digest, g.id, g.config_json, g.updated_at, COUNT(t.digest), COALESCE(SUM(LENGTH(t.blob)),0)
		FROM generators g LEFT JOIN tiles t ON t.digest = g.digest
		GROUP BY g.digest ORDER BY g.id, g.digest`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []generatorRow
	for rows.Next() {
		var r generatorRow
		if err := rows.Scan(&r.Digest, &r.ID, &r.ConfigJSON, &r.UpdatedAt, &r.Tiles, &r.Bytes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type tileRow struct {
	Digest    string `json:"digest"`
	CX        int    `json:"cx"`
	CY        int    `json:"cy"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
	CreatedAt string `json:"created_at"`
}

func queryTiles(db *sql.DB, digest string, limit int) ([]tileRow, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT digest,cx,cy,width,height,LENGTH(blob),created_at FROM tiles ORDER BY created_at DESC, digest, cy, cx LIMIT ?`
	args := []any{limit}
	if digest != "" {
		q = `SELECT digest,cx,cy,width,height,LENGTH(blob),created_at FROM tiles WHERE digest=? ORDER BY cy, cx LIMIT ?`
		args = []any{digest, limit}
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []tileRow
	for rows.Next() {
		var r tileRow
		if err := rows.Scan(&r.Digest, &r.CX, &r.CY, &r.Width, &r.Height, &r.Bytes, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type pruneResult struct {
	DryRun  bool     `json:"dry_run"`
	Digests []string `json:"digests"`
	Tiles   int64    `json:"tiles"`
}

// pruneStale removes generators and tiles whose digest is not in keep.
func pruneStale(db *sql.DB, keep map[string]bool, dryRun bool) (pruneResult, error) {
	res := pruneResult{DryRun: dryRun}
	rows, err := db.Query(`SELECT digest FROM generators UNION SELECT DISTINCT digest FROM tiles ORDER BY 1`)
	if err != nil {
		return res, err
	}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return res, err
		}
		if !keep[d] {
			res.Digests = append(res.Digests, d)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}

	tx, err := db.Begin()
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	for _, d := range res.Digests {
		var n int64
		if dryRun {
			if err := tx.QueryRow(`SELECT COUNT(*) FROM tiles WHERE digest=?`, d).Scan(&n); err != nil {
				return res, err
			}
		} else {
			r, err := tx.Exec(`DELETE FROM tiles WHERE digest=?`, d)
			if err != nil {
				return res, err
			}
			n, _ = r.RowsAffected()
			if _, err := tx.Exec(`DELETE FROM generators WHERE digest=?`, d); err != nil {
				return res, err
			}
		}
		res.Tiles += n
	}
	if dryRun {
		return res, nil
	}
	return res, tx.Commit()
}
