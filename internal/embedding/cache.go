package embedding

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	_ "modernc.org/sqlite"
)

// Cache stores embeddings keyed by canonical-text content hash so repeated
// analyses of the same corpus skip the provider entirely. One row per
// (hash, model) pair; hash fallback vectors are never cached.
type Cache struct {
	db *sql.DB

	// mu serializes writers per process. SQLite already locks the file,
	// but collapsing concurrent writes of the same key here avoids
	// needless SQLITE_BUSY churn.
	mu sync.Mutex
}

// OpenCache opens (or creates) the cache database at dbPath.
// ":memory:" yields an ephemeral cache for tests.
func OpenCache(dbPath string) (*Cache, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		content_hash TEXT NOT NULL,
		model TEXT NOT NULL,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (content_hash, model)
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Get returns the cached vector for (hash, model), or ok=false on a miss.
func (c *Cache) Get(hash, model string) ([]float32, bool) {
	var blob []byte
	var dim int
	err := c.db.QueryRow(
		"SELECT dim, vector FROM embeddings WHERE content_hash = ? AND model = ?",
		hash, model,
	).Scan(&dim, &blob)
	if err != nil {
		return nil, false
	}

	v := bytesToFloat32Slice(blob)
	if len(v) != dim {
		// Row is damaged; treat as a miss and let the writer replace it.
		return nil, false
	}
	return v, true
}

// Put stores a vector for (hash, model). Last writer wins.
func (c *Cache) Put(hash, model string, vector []float32) error {
	if len(vector) == 0 {
		return errors.New("refusing to cache empty vector")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT OR REPLACE INTO embeddings (content_hash, model, dim, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, hash, model, len(vector), float32SliceToBytes(vector), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cache embedding: %w", err)
	}
	return nil
}

// Count reports the number of cached vectors.
func (c *Cache) Count() (int, error) {
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache rows: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// === Embedding Helpers ===

func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := *(*uint32)(unsafe.Pointer(&f))
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func bytesToFloat32Slice(buf []byte) []float32 {
	floats := make([]float32, len(buf)/4)
	for i := range floats {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		floats[i] = *(*float32)(unsafe.Pointer(&bits))
	}
	return floats
}
