package ecoregions

import (
	"bytes"
	"compress/bzip2"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Cache blob names. FileStore appends ".dmp"; SQLiteStore uses them as keys.
const (
	adminBlobName = "ref_cache_admin"
	ecoBlobName   = "ref_cache_eco"
)

// cacheFileExt is the extension of gob cache files.
const cacheFileExt = ".dmp"

// ErrCacheMiss is returned by Store.Load when no complete cache is stored.
var ErrCacheMiss = errors.New("reference cache not found")

// Store persists a ReferenceCache as two independent blobs.
// Save overwrites both blobs; there is no atomic replace.
type Store interface {
	Load(ctx context.Context) (*ReferenceCache, error)
	Save(ctx context.Context, rc *ReferenceCache) error
}

// FileStore keeps the cache as two gob files in a directory:
// ref_cache_admin.dmp and ref_cache_eco.dmp. A bzip2 compressed copy
// (".dmp.bz2") is read when the plain file is absent.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

// AdminPath returns the path of the admin cache file.
func (s *FileStore) AdminPath() string {
	return filepath.Join(s.dir, adminBlobName+cacheFileExt)
}

// EcoPath returns the path of the ecoregion cache file.
func (s *FileStore) EcoPath() string {
	return filepath.Join(s.dir, ecoBlobName+cacheFileExt)
}

// Load decodes both cache files. It returns ErrCacheMiss unless both exist.
func (s *FileStore) Load(ctx context.Context) (*ReferenceCache, error) {
	if !cacheFileExists(s.AdminPath()) || !cacheFileExists(s.EcoPath()) {
		return nil, ErrCacheMiss
	}

	rc := &ReferenceCache{}
	if err := decodeFile(s.AdminPath(), &rc.Admin); err != nil {
		return nil, err
	}
	if err := decodeFile(s.EcoPath(), &rc.Ecoregions); err != nil {
		return nil, err
	}
	return rc, nil
}

// Save writes both cache files, creating the directory if needed.
func (s *FileStore) Save(ctx context.Context, rc *ReferenceCache) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	b, err := encodeBlob(rc.Admin)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.AdminPath(), b, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.AdminPath(), err)
	}

	b, err = encodeBlob(rc.Ecoregions)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.EcoPath(), b, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.EcoPath(), err)
	}
	return nil
}

func cacheFileExists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	_, err := os.Stat(path + ".bz2")
	return err == nil
}

// openOptionallyBzippedFile opens file, falling back to file+".bz2".
func openOptionallyBzippedFile(file string) (io.Reader, func() error, error) {
	fh, err := os.Open(file)
	if err == nil {
		return fh, fh.Close, nil
	}
	bz, bzErr := os.Open(file + ".bz2")
	if bzErr != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", file, err)
	}
	return bzip2.NewReader(bz), bz.Close, nil
}

func decodeFile(path string, v any) error {
	r, cleanup, err := openOptionallyBzippedFile(path)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func encodeBlob(v any) ([]byte, error) {
	b := new(bytes.Buffer)
	if err := gob.NewEncoder(b).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding reference cache: %w", err)
	}
	return b.Bytes(), nil
}

func decodeBlob(name string, data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}
