package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"urlsentry/internal/config"
)

func TestStores(t *testing.T) {
	ctx := context.Background()

	sqliteStore, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore failed: %v", err)
	}

	tests := []struct {
		name  string
		store Store
	}{
		{"file", NewFileStore(filepath.Join(t.TempDir(), "url_cache"))},
		{"sqlite", sqliteStore},
		{"memory", NewMemoryStore()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer tt.store.Close()

			key := Digest("http://example.com")

			if _, err := tt.store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
			}

			if err := tt.store.Put(ctx, key, []byte(`{"status_code":200}`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			if err := tt.store.Put(ctx, key, []byte(`{"status_code":404}`)); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}

			got, err := tt.store.Get(ctx, key)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}

			if string(got) != `{"status_code":404}` {
				t.Errorf("Get = %s", got)
			}
		})
	}
}

func TestNopStore(t *testing.T) {
	s := NopStore{}

	if err := s.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	s := NewFileStore(t.TempDir())

	for _, key := range []string{"", "../escape", "a/b", "x.json"} {
		if err := s.Put(context.Background(), key, []byte("v")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): err = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestFileStore_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	for i := 0; i < 5; i++ {
		if err := s.Put(context.Background(), "abc123", []byte("record")); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 || entries[0].Name() != "abc123.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}

		t.Errorf("directory contents = %v", names)
	}
}

func TestNewStore(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{config.BackendFile, false},
		{config.BackendSQLite, false},
		{config.BackendMemory, false},
		{config.BackendNone, false},
		{"redis", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			store, err := NewStore(&config.CacheConfig{
				Backend:    tt.backend,
				Dir:        filepath.Join(dir, "files"),
				SQLitePath: filepath.Join(dir, "cache.db"),
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStore() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				if !errors.Is(err, config.ErrInvalidCacheBackend) {
					t.Errorf("expected ErrInvalidCacheBackend, got %v", err)
				}

				return
			}

			_ = store.Close()
		})
	}
}
