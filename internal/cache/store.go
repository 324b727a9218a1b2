package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/sqlite" // registers the pure Go "sqlite" driver

	"urlsentry/internal/config"
)

// Store errors.
var (
	ErrNotFound   = errors.New("cache record not found")
	ErrInvalidKey = errors.New("invalid cache key")
)

// Store is a key-value store of serialized cache records.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// NewStore opens the backend selected by cfg.
func NewStore(cfg *config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Dir), nil
	case config.BackendSQLite:
		return OpenSQLiteStore(cfg.SQLitePath)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendNone:
		return NopStore{}, nil
	}

	return nil, fmt.Errorf("%w: %q", config.ErrInvalidCacheBackend, cfg.Backend)
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\.`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}

// FileStore keeps one <key>.json file per record in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the record for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	return data, nil
}

// Put writes the record through a temporary file and a rename, so readers never observe
// a partially written record.
func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

const sqliteSchema = `CREATE TABLE IF NOT EXISTS url_cache (
	key        TEXT PRIMARY KEY,
	record     BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

const sqliteUpsert = `INSERT INTO url_cache (key, record, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`

// SQLiteStore keeps records as rows of an embedded database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// one writer at a time avoids SQLITE_BUSY under the worker pool
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get reads the record for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var record []byte

	err := s.db.QueryRowContext(ctx, "SELECT record FROM url_cache WHERE key = ?", key).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	return record, nil
}

// Put inserts or replaces the record for key.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to upsert cache record: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is a process-local store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Get returns a copy of the record for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), v...), nil
}

// Put stores a copy of value.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.records[key] = append([]byte(nil), value...)
	s.mu.Unlock()

	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// NopStore never holds anything. It turns the content cache into a pass-through fetcher.
type NopStore struct{}

// Get always misses.
func (NopStore) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

// Put discards value.
func (NopStore) Put(context.Context, string, []byte) error { return nil }

// Close is a no-op.
func (NopStore) Close() error { return nil }
