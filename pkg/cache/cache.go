package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"pageviewinfo/pkg/db"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// SQLiteCache implements Cacher using pkg/db.
// Values are stored gzip-compressed with an absolute expiry.
type SQLiteCache struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLiteCache creates a new cache.
func NewSQLiteCache(d *db.DB) *SQLiteCache {
	return &SQLiteCache{db: d, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (c *SQLiteCache) WithClock(now func() time.Time) *SQLiteCache {
	c.now = now
	return c
}

func (c *SQLiteCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM cache WHERE key = ? AND expires_at > ?", key, c.now().UTC().Unix()).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Cache read failed", "key", key, "error", err)
		return nil, false
	}

	// Transparent Decompression
	if len(val) > 2 && val[0] == 0x1f && val[1] == 0x8b {
		decompressed, err := decompress(val)
		if err == nil {
			return decompressed, true
		}
		slog.Warn("Cache entry not decompressible, using raw value", "key", key, "error", err)
	}

	return val, true
}

// SetCache stores val until ttl has elapsed. A non-positive ttl is a no-op.
func (c *SQLiteCache) SetCache(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	// Transparent Compression
	compressed, err := compress(val)
	if err == nil {
		val = compressed
	}

	now := c.now()
	query := `INSERT OR REPLACE INTO cache (key, value, expires_at, created_at) VALUES (?, ?, ?, ?)`
	_, err = c.db.ExecContext(ctx, query, key, val, now.Add(ttl).UTC().Unix(), now.UTC())
	return err
}

// --- Compression Pooling ---

var (
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
