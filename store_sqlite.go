package ecoregions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore keeps the two cache blobs in a single SQLite table keyed by
// blob name. The payloads are the same gob encodings FileStore writes.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = filepath.Join("data_cache", "ref_cache.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ref_cache (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ref_cache table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load decodes both blobs. It returns ErrCacheMiss unless both rows exist.
func (s *SQLiteStore) Load(ctx context.Context) (*ReferenceCache, error) {
	admin, err := s.blob(ctx, adminBlobName)
	if err != nil {
		return nil, err
	}
	eco, err := s.blob(ctx, ecoBlobName)
	if err != nil {
		return nil, err
	}

	rc := &ReferenceCache{}
	if err := decodeBlob(adminBlobName, admin, &rc.Admin); err != nil {
		return nil, err
	}
	if err := decodeBlob(ecoBlobName, eco, &rc.Ecoregions); err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *SQLiteStore) blob(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM ref_cache WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", name, err)
	}
	return payload, nil
}

// Save upserts both blobs. Each row is written in its own statement, so a
// failure can leave the blobs from different builds.
func (s *SQLiteStore) Save(ctx context.Context, rc *ReferenceCache) error {
	admin, err := encodeBlob(rc.Admin)
	if err != nil {
		return err
	}
	eco, err := encodeBlob(rc.Ecoregions)
	if err != nil {
		return err
	}
	for _, row := range []struct {
		name    string
		payload []byte
	}{
		{adminBlobName, admin},
		{ecoBlobName, eco},
	} {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO ref_cache(name, payload) VALUES(?, ?)
			 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload`,
			row.name, row.payload); err != nil {
			return fmt.Errorf("upsert %s: %w", row.name, err)
		}
	}
	return nil
}
