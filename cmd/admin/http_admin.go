package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// serverState is the subset of /admin/v1/state the CLI reports.
type serverState struct {
	Generators []string `json:"generators"`
	Palettes   []string `json:"palettes"`
	Tiles      struct {
		ChunksGenerated   uint64
		CacheHits         uint64
		InflightGenerates int
	} `json:"tiles"`
	TileDB *struct {
		QueueDepth   int
		WrittenTotal uint64
		DropTotal    uint64
	} `json:"tiledb,omitempty"`
	WSClients int `json:"ws_clients"`
}

type flushResult struct {
	OK      bool   `json:"ok"`
	TileDB  bool   `json:"tiledb"`
	Written uint64 `json:"written"`
	Error   string `json:"error"`
}

// adminCall sends one request to a loopback admin endpoint and decodes the
// JSON reply into v. Non-2xx replies are errors unless they decode.
func adminCall(ctx context.Context, method, baseURL, path string, v any) error {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

func fetchState(ctx context.Context, baseURL string) (serverState, error) {
	var st serverState
	err := adminCall(ctx, http.MethodGet, baseURL, "/admin/v1/state", &st)
	return st, err
}

func requestFlush(ctx context.Context, baseURL string) (flushResult, error) {
	var res flushResult
	if err := adminCall(ctx, http.MethodPost, baseURL, "/admin/v1/flush", &res); err != nil {
		return res, err
	}
	if !res.OK {
		return res, fmt.Errorf("flush failed: %s", res.Error)
	}
	return res, nil
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := fetchState(ctx, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	printJSON(st)
}

func flushCmd(args []string) {
	fs := flag.NewFlagSet("flush", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := requestFlush(ctx, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flush:", err)
		os.Exit(1)
	}
	if !res.TileDB {
		fmt.Println("flushed generation log (tile cache disabled)")
		return
	}
	fmt.Printf("flushed; %d tiles written in total\n", res.Written)
}
