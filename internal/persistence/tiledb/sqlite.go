package tiledb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"polyterrain.ai/internal/terrain/noise"
)

// TileDB caches raw generated heightfields keyed by generator digest and
// chunk coordinate. Writes are queued to a single batching writer; reads go
// straight to the database.
type TileDB struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal    atomic.Uint64
	writtenTotal atomic.Uint64
	failedTotal  atomic.Uint64
}

type Key struct {
	Digest string
	CX, CY int
}

type Tile struct {
	Key
	Field *noise.Heightfield
}

type reqKind int

const (
	reqTile reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind
	tile Tile
	done chan struct{}
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropTotal     uint64
	WrittenTotal  uint64
	FailedTotal   uint64
}

var (
	blobEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	blobDec, _ = zstd.NewReader(nil)
)

func Open(path string) (*TileDB, error) {
	return open(path, 65536)
}

func open(path string, queue int) (*TileDB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &TileDB{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS generators (
			digest TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			config_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tiles (
			digest TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cy INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			blob BLOB NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (digest, cx, cy)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *TileDB) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Put queues a tile for writing. Tiles are dropped when the writer falls
// behind; they can always be regenerated.
func (s *TileDB) Put(t Tile) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTile, tile: t}:
	default:
		s.dropTotal.Add(1)
	}
}

// Flush blocks until every tile queued before the call is committed.
func (s *TileDB) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *TileDB) Get(ctx context.Context, k Key) (*noise.Heightfield, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	var (
		w, h int
		blob []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT width, height, blob FROM tiles WHERE digest=? AND cx=? AND cy=?`,
		k.Digest, k.CX, k.CY,
	).Scan(&w, &h, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	f, err := decodeBlob(blob, w, h)
	if err != nil {
		return nil, false, fmt.Errorf("tile %s/%d/%d: %w", k.Digest, k.CX, k.CY, err)
	}
	return f, true, nil
}

func (s *TileDB) Count(ctx context.Context, digest string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tiles WHERE digest=?`, digest).Scan(&n)
	return n, err
}

// UpsertGenerator records the config a digest was derived from.
func (s *TileDB) UpsertGenerator(id, digest string, configJSON []byte) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO generators(digest,id,config_json,updated_at) VALUES(?,?,?,?)`,
		digest, id, string(configJSON), now,
	)
	return err
}

// GeneratorRecord is a row of the generators table.
type GeneratorRecord struct {
	Digest     string
	ID         string
	ConfigJSON string
	UpdatedAt  string
}

// Generator looks up the config recorded for digest.
func (s *TileDB) Generator(ctx context.Context, digest string) (GeneratorRecord, error) {
	r := GeneratorRecord{Digest: digest}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, config_json, updated_at FROM generators WHERE digest=?`, digest,
	).Scan(&r.ID, &r.ConfigJSON, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("generator %s not recorded", digest)
	}
	return r, err
}

func (s *TileDB) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropTotal.Load(),
		WrittenTotal:  s.writtenTotal.Load(),
		FailedTotal:   s.failedTotal.Load(),
	}
}

func encodeBlob(f *noise.Heightfield) []byte {
	raw := make([]byte, 8*len(f.Data))
	for i, v := range f.Data {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return blobEnc.EncodeAll(raw, nil)
}

func decodeBlob(blob []byte, w, h int) (*noise.Heightfield, error) {
	raw, err := blobDec.DecodeAll(blob, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) != 8*w*h {
		return nil, fmt.Errorf("blob holds %d bytes, want %d", len(raw), 8*w*h)
	}
	f := noise.NewHeightfield(w, h)
	for i := range f.Data {
		f.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return f, nil
}

func (s *TileDB) loop() {
	ctx := context.Background()

	insertTile, _ := s.db.Prepare(`INSERT OR REPLACE INTO tiles(digest,cx,cy,width,height,blob,created_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertTile != nil {
			_ = insertTile.Close()
		}
	}()

	var (
		tx            *sql.Tx
		pending       int
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.failedTotal.Add(uint64(pending))
		} else {
			s.writtenTotal.Add(uint64(pending))
		}
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.failedTotal.Add(uint64(pending) + 1)
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			s.failedTotal.Add(1)
			continue
		}
		t := r.tile
		if insertTile != nil {
			if _, err := tx.Stmt(insertTile).Exec(
				t.Digest, t.CX, t.CY,
				t.Field.W, t.Field.H,
				encodeBlob(t.Field),
				time.Now().UTC().Format(time.RFC3339Nano),
			); err != nil {
				rollback()
				continue
			}
			opCount++
			pending++
		}
		// Commit when the queue drains so readers never wait on an idle tx.
		if opCount >= commitEvery || len(s.ch) == 0 || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
