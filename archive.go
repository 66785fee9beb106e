package ecoregions

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultShapefilePattern matches shapefile geometry files in any case.
const DefaultShapefilePattern = "*.[sS][hH][pP]"

// ErrNoFiles is returned when an archive holds no file matching the pattern.
var ErrNoFiles = errors.New("no matching files")

// archiveHTTPClient downloads source archives.
var archiveHTTPClient = &http.Client{
	Timeout: 10 * time.Minute,
}

// FetchOptions configures FetchArchive.
type FetchOptions struct {
	Pattern      string       // Base-name glob (default: DefaultShapefilePattern)
	DataPath     string       // Download and extraction directory (default: "data_cache")
	ForceRefresh bool         // Download and extract even if extracted files exist
	HTTPClient   *http.Client // Client for the download
	Logger       *slog.Logger
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Pattern == "" {
		o.Pattern = DefaultShapefilePattern
	}
	if o.DataPath == "" {
		o.DataPath = "data_cache"
	}
	if o.HTTPClient == nil {
		o.HTTPClient = archiveHTTPClient
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// archivePaths returns the local archive path and its extraction directory
// for a source URL: "<data>/<name>.zip" and "<data>/<name>".
func archivePaths(sourceURL, dataPath string) (string, string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing source URL %q: %w", sourceURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", "", fmt.Errorf("source URL %q has no file name", sourceURL)
	}
	stem := name
	if i := strings.Index(stem, "."); i > 0 {
		stem = stem[:i]
	}
	return filepath.Join(dataPath, name), filepath.Join(dataPath, stem), nil
}

// FetchArchive downloads a zip archive, extracts it under opts.DataPath and
// returns the sorted paths of the extracted files matching opts.Pattern.
//
// Unless opts.ForceRefresh is set, files already extracted by an earlier call
// are returned without touching the network.
func FetchArchive(ctx context.Context, sourceURL string, opts FetchOptions) ([]string, error) {
	opts = opts.withDefaults()
	archivePath, extractDir, err := archivePaths(sourceURL, opts.DataPath)
	if err != nil {
		return nil, err
	}

	if !opts.ForceRefresh {
		files, err := FindFiles(extractDir, opts.Pattern)
		if err == nil && len(files) > 0 {
			opts.Logger.Debug("archive_cache_hit", "dir", extractDir, "files", len(files))
			return files, nil
		}
	}

	if err := os.MkdirAll(opts.DataPath, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	opts.Logger.Info("archive_download_begin", "url", sourceURL, "path", archivePath)
	if err := downloadFile(ctx, opts.HTTPClient, sourceURL, archivePath); err != nil {
		return nil, err
	}
	if err := extractZip(archivePath, extractDir); err != nil {
		return nil, err
	}

	files, err := FindFiles(extractDir, opts.Pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s in %s: %w", opts.Pattern, sourceURL, ErrNoFiles)
	}
	opts.Logger.Info("archive_extracted", "dir", extractDir, "files", len(files))
	return files, nil
}

// CleanupArchive removes the downloaded archive and its extraction directory.
// Paths that do not exist are ignored.
func CleanupArchive(sourceURL, dataPath string) error {
	if dataPath == "" {
		dataPath = "data_cache"
	}
	archivePath, extractDir, err := archivePaths(sourceURL, dataPath)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(extractDir); err != nil {
		return fmt.Errorf("removing %s: %w", extractDir, err)
	}
	if err := os.Remove(archivePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", archivePath, err)
	}
	return nil
}

// FindFiles walks dir and returns the sorted paths of regular files whose
// base name matches pattern. A missing dir yields no files and no error.
func FindFiles(dir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// downloadFile streams sourceURL into a temporary file next to dst and
// renames it into place, so dst is either absent or complete.
func downloadFile(ctx context.Context, hc *http.Client, sourceURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", sourceURL, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP GET %s: status %d", sourceURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", dst, err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("downloading %s after %d bytes: %w", sourceURL, n, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("moving download to %s: %w", dst, err)
	}
	return nil
}

// extractZip unpacks every entry of the archive into dir. Entries whose names
// resolve outside dir are rejected.
func extractZip(archivePath, dir string) error {
	rz, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip file: %w", err)
	}
	defer rz.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, zf := range rz.File {
		if err := extractZipEntry(zf, dir); err != nil {
			return err
		}
	}
	return nil
}

// extractZipEntry writes one archive entry below dir.
func extractZipEntry(zf *zip.File, dir string) error {
	target := filepath.Join(dir, zf.Name)
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("zip entry %q escapes %s", zf.Name, dir)
	}

	if zf.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}

	src, err := zf.Open()
	if err != nil {
		return fmt.Errorf("opening file in zip: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("writing file %s: %w", target, err)
	}
	return dst.Close()
}
