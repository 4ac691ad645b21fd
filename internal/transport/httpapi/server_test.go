package httpapi

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"polyterrain.ai/internal/persistence/snapshot"
	"polyterrain.ai/internal/persistence/tiledb"
	"polyterrain.ai/internal/protocol"
	"polyterrain.ai/internal/tiles"
	"polyterrain.ai/internal/tuning"
)

type fakeStore struct{ st tiledb.Stats }

func (f fakeStore) Stats() tiledb.Stats { return f.st }

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	cfg := tuning.Config{
		DefaultGenerator: "hills",
		Generators: []tuning.GeneratorSpec{
			{ID: "hills", Depth: 3, ChunkSize: 16, WorldSize: []int{2, 2}, Seed: 11},
			{ID: "dunes", Variant: "gradient_noise", Depth: 2, ChunkSize: 8, Closed: true, Palette: "beach"},
		},
	}
	cfg.Normalize()
	svc, err := tiles.New(cfg, nil, tiles.Options{MaxRegionChunks: 4})
	if err != nil {
		t.Fatalf("tiles.New: %v", err)
	}
	mux := http.NewServeMux()
	NewServer(svc, nil, opts).Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func TestGenerators(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := get(t, ts.URL+"/v1/generators")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var got GeneratorsResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Default != "hills" || len(got.Generators) != 2 {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.Generators[0].ID != "dunes" || got.Generators[0].OutputSize != 9 || got.Generators[0].Variant != "gradient_noise" {
		t.Fatalf("unexpected generator %+v", got.Generators[0])
	}
	if len(got.Palettes) == 0 {
		t.Fatalf("expected palette ids")
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/generators", nil)
	r2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	r2.Body.Close()
	if r2.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status %d", r2.StatusCode)
	}
}

func TestChunkPNG(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := get(t, ts.URL+"/v1/chunk?cx=1&cy=-1&scale=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	img, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Fatalf("image bounds %v", b)
	}
}

func TestChunkJSONMatchesWrappedChunk(t *testing.T) {
	ts := newTestServer(t, Options{})
	decode := func(url string) protocol.ChunkMsg {
		resp, body := get(t, url)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, body)
		}
		var msg protocol.ChunkMsg
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return msg
	}
	a := decode(ts.URL + "/v1/chunk?generator=dunes&cx=0&cy=0&format=json&palette=winter")
	if a.Type != protocol.TypeChunk || a.Width != 9 || a.Height != 9 || a.Lo != 0 || a.Hi != 1 || a.Bands == "" {
		t.Fatalf("unexpected chunk %+v", a)
	}
	b := decode(ts.URL + "/v1/chunk?generator=dunes&cx=1&cy=1&format=json&palette=winter")
	if a.Data != b.Data {
		t.Fatalf("world 1x1 chunks should be identical")
	}
	raw := decode(ts.URL + "/v1/chunk?generator=dunes&format=json&raw=true")
	if raw.Bands != "" || raw.Lo == 0 && raw.Hi == 1 {
		t.Fatalf("raw chunk should carry its own range, got [%v, %v]", raw.Lo, raw.Hi)
	}
	if _, err := tiles.DecodeChunk(raw); err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
}

func TestRegionSnapshot(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp, body := get(t, ts.URL+"/v1/region?cx=-1&cy=0&w=2&h=2&format=hf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "hills_-1_0_2x2.hf.zst") {
		t.Fatalf("content disposition %q", cd)
	}
	snap, err := snapshot.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	h := snap.Header
	if h.Generator != "hills" || h.CX != -1 || h.ChunksW != 2 || h.ChunksH != 2 || h.Width != 32 || h.Height != 32 {
		t.Fatalf("unexpected header %+v", h)
	}
	if h.Normalize != tuning.NormalizeTheoretical {
		t.Fatalf("normalize %q", h.Normalize)
	}
	for i, v := range snap.Data {
		if v < 0 || v > 1 {
			t.Fatalf("sample %d out of range: %v", i, v)
		}
	}
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/v1/chunk?generator=nope", http.StatusNotFound, protocol.ErrNotFound},
		{"/v1/chunk?palette=nope", http.StatusNotFound, protocol.ErrNotFound},
		{"/v1/chunk?cx=abc", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/chunk?format=tiff", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/chunk?scale=0", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/chunk?scale=100", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/region?w=0", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/region?format=json", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/region?w=3&h=2", http.StatusRequestEntityTooLarge, protocol.ErrRateLimit},
		{"/v1/region?w=4611686018427387904&h=4", http.StatusRequestEntityTooLarge, protocol.ErrRateLimit},
	}
	for _, tc := range cases {
		resp, body := get(t, ts.URL+tc.path)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: status %d, want %d (%s)", tc.path, resp.StatusCode, tc.status, body)
		}
		var e protocol.ErrorMsg
		if err := json.Unmarshal(body, &e); err != nil {
			t.Fatalf("%s: decode: %v", tc.path, err)
		}
		if e.Type != protocol.TypeError || e.Code != tc.code {
			t.Fatalf("%s: unexpected error %+v", tc.path, e)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Options{
		Store:     fakeStore{st: tiledb.Stats{QueueCapacity: 128, WrittenTotal: 7}},
		WSClients: func() int { return 3 },
	})
	resp, body := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}
	get(t, ts.URL+"/v1/chunk?cx=0&cy=0")

	_, body = get(t, ts.URL+"/metrics")
	text := string(body)
	for _, want := range []string{
		"polyterrain_generators 2\n",
		"polyterrain_chunks_generated_total 1\n",
		"polyterrain_ws_clients 3\n",
		"polyterrain_tiledb_queue_capacity 128\n",
		"polyterrain_tiledb_written_total 7\n",
		"# TYPE polyterrain_cache_hits_total counter\n",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics missing %q:\n%s", want, text)
		}
	}
}
