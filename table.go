package ecoregions

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/jonas-p/go-shp"
	"github.com/mmcloughlin/geohash"
)

// Column is a constant-valued column added to every feature of a table.
type Column struct {
	Name  string
	Value string
}

// TableOptions shapes the attribute columns of a loaded table. They are
// applied in field order: projection, added columns, renames.
type TableOptions struct {
	Columns    []string          // Keep only these attributes, in this order
	AddColumns []Column          // Each is inserted as the first column
	Rename     map[string]string // Old name -> new name
}

// Feature is one shapefile record: its attributes and its geometry.
type Feature struct {
	Attributes map[string]string
	Shape      shp.Shape
	Bound      s2.Rect // Lat/lng bounding box; empty for null or projected shapes
}

// Centroid returns the center of the feature's bounding box. It is
// meaningless when Bound is empty.
func (f Feature) Centroid() s2.LatLng {
	return f.Bound.Center()
}

// Geohash encodes the bounding box center with the given number of
// characters (1-12). It returns "" when Bound is empty.
func (f Feature) Geohash(precision uint) string {
	if f.Bound.IsEmpty() {
		return ""
	}
	c := f.Centroid()
	return geohash.EncodeWithPrecision(c.Lat.Degrees(), c.Lng.Degrees(), precision)
}

// Table is a geometry table loaded from a shapefile. Columns lists the
// attribute names in order; the geometry is always kept on each feature.
type Table struct {
	Columns  []string
	Features []Feature
	// Projected is set when the .prj declares projected coordinates; bounds
	// are then left empty.
	Projected bool
}

// Len returns the number of features.
func (t *Table) Len() int {
	return len(t.Features)
}

// Column returns the values of one attribute column in feature order.
func (t *Table) Column(name string) ([]string, error) {
	if !slices.Contains(t.Columns, name) {
		return nil, fmt.Errorf("column %q not in table", name)
	}
	vals := make([]string, len(t.Features))
	for i, f := range t.Features {
		vals[i] = f.Attributes[name]
	}
	return vals, nil
}

// Annotate appends a column filled by fn. Features for which fn reports false
// get an empty value. It returns the number of features annotated.
//
//	n, err := t.Annotate("wd_id", func(f Feature) (string, bool) {
//	    return r.LookupEcoregion(f.Attributes["NA_L3CODE"])
//	})
func (t *Table) Annotate(column string, fn func(Feature) (string, bool)) (int, error) {
	if slices.Contains(t.Columns, column) {
		return 0, fmt.Errorf("column %q already in table", column)
	}
	n := 0
	for i := range t.Features {
		v, ok := fn(t.Features[i])
		if ok {
			n++
		}
		t.Features[i].Attributes[column] = v
	}
	t.Columns = append(t.Columns, column)
	return n, nil
}

// LoadTable reads the first of paths as a shapefile and applies opts.
func LoadTable(paths []string, opts TableOptions) (*Table, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("loading table: %w", ErrNoFiles)
	}
	t, err := readShapefile(paths[0])
	if err != nil {
		return nil, err
	}
	if err := t.apply(opts); err != nil {
		return nil, fmt.Errorf("loading %s: %w", paths[0], err)
	}
	return t, nil
}

// LoadSourceTable fetches sourceURL (see FetchArchive) and loads the first
// matching file. With an empty sourceURL it searches fetch.DataPath instead.
func LoadSourceTable(ctx context.Context, sourceURL string, fetch FetchOptions, opts TableOptions) (*Table, error) {
	var (
		paths []string
		err   error
	)
	if sourceURL == "" {
		fetch = fetch.withDefaults()
		paths, err = FindFiles(fetch.DataPath, fetch.Pattern)
	} else {
		paths, err = FetchArchive(ctx, sourceURL, fetch)
	}
	if err != nil {
		return nil, err
	}
	return LoadTable(paths, opts)
}

func readShapefile(path string) (*Table, error) {
	shpFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", path, err)
	}
	if err := checkShapefileLength(shpFile); err != nil {
		shpFile.Close()
		return nil, fmt.Errorf("reading shapefile %s: %w", path, err)
	}
	dbfPath, err := siblingFile(path, "dbf")
	if err != nil {
		shpFile.Close()
		return nil, err
	}
	dbfFile, err := os.Open(dbfPath)
	if err != nil {
		shpFile.Close()
		return nil, fmt.Errorf("opening attribute table %s: %w", dbfPath, err)
	}
	projected, err := isProjected(path)
	if err != nil {
		shpFile.Close()
		dbfFile.Close()
		return nil, err
	}

	// The sequential reader owns and closes both files.
	r := shp.SequentialReaderFromExt(shpFile, dbfFile)
	defer r.Close()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading shapefile %s: %w", path, err)
	}

	fields := r.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("reading shapefile %s: %s has no attribute fields", path, dbfPath)
	}
	t := &Table{Columns: make([]string, len(fields)), Projected: projected}
	for i, f := range fields {
		t.Columns[i] = f.String()
	}

	for r.Next() {
		_, shape := r.Shape()
		attrs := make(map[string]string, len(fields))
		for k := range fields {
			attrs[t.Columns[k]] = strings.Trim(r.Attribute(k), " \x00")
		}
		bound := s2.EmptyRect()
		if !projected {
			bound = shapeBound(shape)
		}
		t.Features = append(t.Features, Feature{
			Attributes: attrs,
			Shape:      shape,
			Bound:      bound,
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading shapefile %s: %w", path, err)
	}
	return t, nil
}

// shpHeaderLen is the size of the fixed .shp header.
const shpHeaderLen = 100

// checkShapefileLength compares the file length declared in the .shp header
// (big-endian 16-bit words at byte 24) with the size on disk. Records lost to
// truncation at a record boundary are otherwise indistinguishable from EOF.
func checkShapefileLength(f *os.File) error {
	hdr := make([]byte, shpHeaderLen)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	declared := int64(binary.BigEndian.Uint32(hdr[24:28])) * 2
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() < declared {
		return fmt.Errorf("truncated: %d of %d bytes", st.Size(), declared)
	}
	return nil
}

// siblingFile returns the path of the file next to path with extension ext,
// matching the extension in any case ("X.SHP" pairs with "X.DBF").
func siblingFile(path, ext string) (string, error) {
	dir := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	want := stem + "." + ext
	if _, err := os.Stat(filepath.Join(dir, want)); err == nil {
		return filepath.Join(dir, want), nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), want) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%s: no .%s file next to it: %w", path, ext, fs.ErrNotExist)
}

// isProjected reports whether the .prj next to path declares a projected
// coordinate system. Without a .prj, coordinates are taken as lng/lat degrees.
func isProjected(path string) (bool, error) {
	prj, err := siblingFile(path, "prj")
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	b, err := os.ReadFile(prj)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", prj, err)
	}
	wkt := strings.ToUpper(strings.TrimSpace(string(b)))
	return strings.HasPrefix(wkt, "PROJCS") || strings.HasPrefix(wkt, "PROJCRS"), nil
}

// shapeBound converts a shape's planar bounding box (x = longitude,
// y = latitude) to an s2.Rect. Coordinates outside the lat/lng range give
// an empty rect.
func shapeBound(shape shp.Shape) s2.Rect {
	if shape == nil {
		return s2.EmptyRect()
	}
	if _, ok := shape.(*shp.Null); ok {
		return s2.EmptyRect()
	}
	box := shape.BBox()
	lo := s2.LatLngFromDegrees(box.MinY, box.MinX)
	hi := s2.LatLngFromDegrees(box.MaxY, box.MaxX)
	if !lo.IsValid() || !hi.IsValid() {
		return s2.EmptyRect()
	}
	return s2.RectFromLatLng(lo).AddPoint(hi)
}

// apply runs projection, added columns and renames in that order.
func (t *Table) apply(opts TableOptions) error {
	if opts.Columns != nil {
		for _, c := range opts.Columns {
			if !slices.Contains(t.Columns, c) {
				return fmt.Errorf("column %q not in table", c)
			}
		}
		for i := range t.Features {
			kept := make(map[string]string, len(opts.Columns))
			for _, c := range opts.Columns {
				kept[c] = t.Features[i].Attributes[c]
			}
			t.Features[i].Attributes = kept
		}
		t.Columns = slices.Clone(opts.Columns)
	}

	for _, add := range opts.AddColumns {
		if slices.Contains(t.Columns, add.Name) {
			return fmt.Errorf("column %q already in table", add.Name)
		}
		t.Columns = slices.Insert(t.Columns, 0, add.Name)
		for i := range t.Features {
			t.Features[i].Attributes[add.Name] = add.Value
		}
	}

	if len(opts.Rename) > 0 {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			if to, ok := opts.Rename[c]; ok {
				c = to
			}
			if slices.Contains(cols[:i], c) {
				return fmt.Errorf("renaming to %q: column already in table", c)
			}
			cols[i] = c
		}
		t.Columns = cols
		for i := range t.Features {
			renamed := make(map[string]string, len(t.Features[i].Attributes))
			for k, v := range t.Features[i].Attributes {
				if to, ok := opts.Rename[k]; ok {
					k = to
				}
				renamed[k] = v
			}
			t.Features[i].Attributes = renamed
		}
	}
	return nil
}
