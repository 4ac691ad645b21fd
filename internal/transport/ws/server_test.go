package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"polyterrain.ai/internal/protocol"
	"polyterrain.ai/internal/tiles"
	"polyterrain.ai/internal/tuning"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := tuning.Config{
		Generators: []tuning.GeneratorSpec{
			{ID: "hills", Depth: 3, ChunkSize: 16, WorldSize: []int{2, 2}, Seed: 3, Closed: true},
		},
	}
	cfg.Normalize()
	svc, err := tiles.New(cfg, nil, tiles.Options{})
	if err != nil {
		t.Fatalf("tiles.New: %v", err)
	}
	s := NewServer(svc, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) (string, []byte) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return base.Type, msg
}

func subscribe(chunks ...[2]int) protocol.SubscribeMsg {
	return protocol.SubscribeMsg{
		Type:            protocol.TypeSubscribe,
		ProtocolVersion: protocol.Version,
		Chunks:          chunks,
	}
}

func readChunk(t *testing.T, conn *websocket.Conn) protocol.ChunkMsg {
	t.Helper()
	typ, msg := read(t, conn)
	if typ != protocol.TypeChunk {
		t.Fatalf("expected CHUNK, got %s: %s", typ, msg)
	}
	var c protocol.ChunkMsg
	if err := json.Unmarshal(msg, &c); err != nil {
		t.Fatalf("unmarshal chunk: %v", err)
	}
	return c
}

func TestStreamWelcomeThenChunks(t *testing.T) {
	s, url := newTestServer(t)
	conn := dial(t, url)

	sub := subscribe([2]int{0, 0}, [2]int{1, 0})
	sub.IncludeBands = true
	send(t, conn, sub)

	typ, msg := read(t, conn)
	if typ != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %s", typ)
	}
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &w); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}
	if w.Generator.ID != "hills" || w.Generator.OutputSize != 17 || len(w.Generator.Digest) != 64 {
		t.Fatalf("unexpected welcome %+v", w)
	}

	left := readChunk(t, conn)
	right := readChunk(t, conn)
	if left.CX != 0 || right.CX != 1 || left.Width != 17 || left.Lo != 0 || left.Hi != 1 {
		t.Fatalf("unexpected chunks %+v / %+v", left, right)
	}
	pal, err := s.svc.Palette("summer")
	if err != nil {
		t.Fatalf("Palette: %v", err)
	}
	bands, err := tiles.ChunkBands(left, len(pal.Bands()))
	if err != nil || len(bands) != 17*17 {
		t.Fatalf("bands: %d %v", len(bands), err)
	}

	// Closed chunks share their border column.
	a, err := tiles.DecodeChunk(left)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	b, err := tiles.DecodeChunk(right)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	for y := 0; y < 17; y++ {
		if a.At(16, y) != b.At(0, y) {
			t.Fatalf("row %d: border %v vs %v", y, a.At(16, y), b.At(0, y))
		}
	}

	// A later SUBSCRIBE appends.
	send(t, conn, subscribe([2]int{2, 0}))
	again := readChunk(t, conn)
	if again.CX != 2 || again.Data != left.Data {
		t.Fatalf("chunk 2,0 should repeat chunk 0,0")
	}
}

func TestStreamRejectsNonSubscribeFirst(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)
	send(t, conn, protocol.BaseMessage{Type: "HELLO", ProtocolVersion: protocol.Version})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestStreamUnknownGenerator(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)
	sub := subscribe([2]int{0, 0})
	sub.Generator = "nope"
	send(t, conn, sub)

	typ, msg := read(t, conn)
	if typ != protocol.TypeError {
		t.Fatalf("expected ERROR, got %s", typ)
	}
	var e protocol.ErrorMsg
	_ = json.Unmarshal(msg, &e)
	if e.Code != protocol.ErrNotFound {
		t.Fatalf("unexpected code %q", e.Code)
	}
}

func TestStreamLimitsAndErrors(t *testing.T) {
	s, url := newTestServer(t)
	conn := dial(t, url)
	send(t, conn, subscribe([2]int{0, 0}))
	if typ, _ := read(t, conn); typ != protocol.TypeWelcome {
		t.Fatalf("expected WELCOME, got %s", typ)
	}
	readChunk(t, conn)
	if s.Clients() != 1 {
		t.Fatalf("clients = %d", s.Clients())
	}

	expectError := func(code string) {
		t.Helper()
		typ, msg := read(t, conn)
		if typ != protocol.TypeError {
			t.Fatalf("expected ERROR, got %s", typ)
		}
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		if e.Code != code {
			t.Fatalf("code %q, want %q (%s)", e.Code, code, e.Message)
		}
	}

	many := make([][2]int, MaxChunksPerSubscribe+1)
	send(t, conn, subscribe(many...))
	expectError(protocol.ErrRateLimit)

	send(t, conn, subscribe())
	expectError(protocol.ErrBadRequest)

	other := subscribe([2]int{0, 0})
	other.Generator = "other"
	send(t, conn, other)
	expectError(protocol.ErrBadRequest)

	send(t, conn, protocol.BaseMessage{Type: "PING", ProtocolVersion: protocol.Version})
	expectError(protocol.ErrProtoBadRequest)
}
