package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"polyterrain.ai/internal/persistence/tiledb"
	"polyterrain.ai/internal/tiles"
)

type stateResponse struct {
	Generators []string      `json:"generators"`
	Palettes   []string      `json:"palettes"`
	Tiles      tiles.Stats   `json:"tiles"`
	TileDB     *tiledb.Stats `json:"tiledb,omitempty"`
	WSClients  int           `json:"ws_clients"`
}

// Local-only admin endpoints.
func (rt *runtime) stateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := stateResponse{
			Palettes:  rt.svc.PaletteIDs(),
			Tiles:     rt.svc.Stats(),
			WSClients: rt.ws.Clients(),
		}
		for _, g := range rt.svc.Generators() {
			resp.Generators = append(resp.Generators, g.Spec.ID)
		}
		if rt.store != nil {
			st := rt.store.db.Stats()
			resp.TileDB = &st
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// flushHandler pushes the generation log to disk and waits until every
// queued tile write is committed.
func (rt *runtime) flushHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if rt.genLog != nil {
			if err := rt.genLog.Flush(); err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
		}
		if rt.store == nil {
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tiledb": false})
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		if err := rt.store.db.Flush(ctx2); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tiledb": true, "written": rt.store.db.Stats().WrittenTotal})
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
