package ecoregions

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	. "gopkg.in/check.v1"
)

type TableSuite struct {
	path string
}

var _ = Suite(&TableSuite{})

type shapeRow struct {
	code, name, l1 string
	ring           []shp.Point
}

var ecoRows = []shapeRow{
	{"10.2.2", "Sonoran Desert", "NORTH AMERICAN DESERTS",
		[]shp.Point{{X: -115, Y: 30}, {X: -111, Y: 30}, {X: -111, Y: 34}, {X: -115, Y: 34}, {X: -115, Y: 30}}},
	{"10.2.4", "Chihuahuan Desert", "NORTH AMERICAN DESERTS",
		[]shp.Point{{X: -108, Y: 26}, {X: -102, Y: 26}, {X: -102, Y: 32}, {X: -108, Y: 32}, {X: -108, Y: 26}}},
	{"99.9.9", "Nowhere", "WATER",
		[]shp.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}},
}

// writeShapefile writes a polygon shapefile with the three ecoregion
// attribute fields. go-shp names the attribute table "<stem>dbf", so it is
// moved to "<stem>.dbf" once written.
func writeShapefile(c *C, path string, rows []shapeRow) {
	w, err := shp.Create(path, shp.POLYGON)
	c.Assert(err, IsNil)
	c.Assert(w.SetFields([]shp.Field{
		shp.StringField("NA_L3CODE", 16),
		shp.StringField("NA_L3NAME", 64),
		shp.StringField("NA_L1NAME", 64),
	}), IsNil)

	for _, r := range rows {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{r.ring}))
		n := int(w.Write(&poly))
		c.Assert(w.WriteAttribute(n, 0, r.code), IsNil)
		c.Assert(w.WriteAttribute(n, 1, r.name), IsNil)
		c.Assert(w.WriteAttribute(n, 2, r.l1), IsNil)
	}
	w.Close()

	stem := strings.TrimSuffix(path, filepath.Ext(path))
	c.Assert(os.Rename(stem+"dbf", stem+".dbf"), IsNil)
}

// SetUpTest writes a three-feature polygon shapefile of level III ecoregions.
func (s *TableSuite) SetUpTest(c *C) {
	s.path = filepath.Join(c.MkDir(), "eco_l3.shp")
	writeShapefile(c, s.path, ecoRows)
}

func (s *TableSuite) TestLoadTable(c *C) {
	t, err := LoadTable([]string{s.path, "ignored.shp"}, TableOptions{})
	c.Assert(err, IsNil)
	c.Assert(t.Columns, DeepEquals, []string{"NA_L3CODE", "NA_L3NAME", "NA_L1NAME"})
	c.Assert(t.Len(), Equals, 3)

	names, err := t.Column("NA_L3NAME")
	c.Assert(err, IsNil)
	c.Assert(names, DeepEquals, []string{"Sonoran Desert", "Chihuahuan Desert", "Nowhere"})

	f := t.Features[0]
	c.Assert(f.Shape, FitsTypeOf, &shp.Polygon{})
	center := f.Centroid()
	c.Assert(math.Abs(center.Lat.Degrees()-32) < 1e-9, Equals, true)
	c.Assert(math.Abs(center.Lng.Degrees()+113) < 1e-9, Equals, true)
	c.Assert(f.Bound.Lo().Lat.Degrees() < 30.0001, Equals, true)
	c.Assert(f.Bound.Hi().Lng.Degrees() > -111.0001, Equals, true)
	c.Assert(f.Geohash(5), Equals, "9mxwh")
}

func (s *TableSuite) TestLoadTableOptions(c *C) {
	t, err := LoadTable([]string{s.path}, TableOptions{
		Columns: []string{"NA_L3NAME", "NA_L3CODE"},
		AddColumns: []Column{
			{Name: "source", Value: "cec"},
			{Name: "level", Value: "III"},
		},
		Rename: map[string]string{"NA_L3CODE": "code", "NA_L3NAME": "name"},
	})
	c.Assert(err, IsNil)
	// Each added column goes to the front.
	c.Assert(t.Columns, DeepEquals, []string{"level", "source", "name", "code"})
	c.Assert(t.Features[1].Attributes, DeepEquals, map[string]string{
		"level":  "III",
		"source": "cec",
		"name":   "Chihuahuan Desert",
		"code":   "10.2.4",
	})
}

func (s *TableSuite) TestLoadTableUnknownColumn(c *C) {
	_, err := LoadTable([]string{s.path}, TableOptions{Columns: []string{"US_L3CODE"}})
	c.Assert(err, ErrorMatches, `loading .*eco_l3.shp: column "US_L3CODE" not in table`)
}

func (s *TableSuite) TestLoadTableNoPaths(c *C) {
	_, err := LoadTable(nil, TableOptions{})
	c.Assert(err, ErrorMatches, "loading table: no matching files")
}

func (s *TableSuite) TestLoadTableMissingFile(c *C) {
	_, err := LoadTable([]string{filepath.Join(c.MkDir(), "missing.shp")}, TableOptions{})
	c.Assert(err, NotNil)
}

func (s *TableSuite) TestAnnotateWithResolver(c *C) {
	t, err := LoadTable([]string{s.path}, TableOptions{})
	c.Assert(err, IsNil)

	r := NewResolverFromCache(testCache())
	n, err := t.Annotate("wd_id", func(f Feature) (string, bool) {
		return r.LookupEcoregion(f.Attributes["NA_L3CODE"])
	})
	c.Assert(err, IsNil)
	c.Assert(n, Equals, 1)

	ids, err := t.Column("wd_id")
	c.Assert(err, IsNil)
	c.Assert(ids, DeepEquals, []string{"", "Q1000", ""})

	_, err = t.Annotate("wd_id", func(Feature) (string, bool) { return "", false })
	c.Assert(err, ErrorMatches, `column "wd_id" already in table`)
}

func (s *TableSuite) TestLoadSourceTableFromDataPath(c *C) {
	t, err := LoadSourceTable(context.Background(), "", FetchOptions{DataPath: filepath.Dir(s.path)}, TableOptions{
		Columns: []string{"NA_L3CODE"},
	})
	c.Assert(err, IsNil)
	c.Assert(t.Columns, DeepEquals, []string{"NA_L3CODE"})
	c.Assert(t.Len(), Equals, 3)
}

func (s *TableSuite) TestApplyAddExistingColumn(c *C) {
	t := &Table{
		Columns:  []string{"a"},
		Features: []Feature{{Attributes: map[string]string{"a": "1"}}},
	}
	err := t.apply(TableOptions{AddColumns: []Column{{Name: "a", Value: "x"}}})
	c.Assert(err, ErrorMatches, `column "a" already in table`)
}

func (s *TableSuite) TestNullShapeBound(c *C) {
	c.Assert(shapeBound(&shp.Null{}).IsEmpty(), Equals, true)
	c.Assert(shapeBound(nil).IsEmpty(), Equals, true)

	b := shapeBound(&shp.Point{X: -113, Y: 32})
	c.Assert(b.IsPoint(), Equals, true)
}

func (s *TableSuite) TestLoadTableTruncated(c *C) {
	st, err := os.Stat(s.path)
	c.Assert(err, IsNil)
	c.Assert(os.Truncate(s.path, st.Size()-20), IsNil)

	_, err = LoadTable([]string{s.path}, TableOptions{})
	c.Assert(err, ErrorMatches, `reading shapefile .*eco_l3.shp: truncated: .*`)
}

func (s *TableSuite) TestLoadTableTruncatedAtRecordBoundary(c *C) {
	// The last record of ecoRows is a 4-point ring: 8 header + 4 type +
	// 32 box + 8 counts + 4 parts + 64 points bytes.
	st, err := os.Stat(s.path)
	c.Assert(err, IsNil)
	c.Assert(os.Truncate(s.path, st.Size()-120), IsNil)

	_, err = LoadTable([]string{s.path}, TableOptions{})
	c.Assert(err, ErrorMatches, `reading shapefile .*: truncated: .*`)
}

func (s *TableSuite) TestLoadTableMissingAttributeTable(c *C) {
	c.Assert(os.Remove(strings.TrimSuffix(s.path, ".shp")+".dbf"), IsNil)

	_, err := LoadTable([]string{s.path}, TableOptions{})
	c.Assert(err, ErrorMatches, `.*eco_l3.shp: no .dbf file next to it: .*`)
}

func (s *TableSuite) TestLoadTableUppercaseExtensions(c *C) {
	dir := filepath.Dir(s.path)
	for _, ext := range []string{"shp", "shx", "dbf"} {
		c.Assert(os.Rename(filepath.Join(dir, "eco_l3."+ext), filepath.Join(dir, "ECO_L3."+strings.ToUpper(ext))), IsNil)
	}

	files, err := FindFiles(dir, DefaultShapefilePattern)
	c.Assert(err, IsNil)
	c.Assert(files, DeepEquals, []string{filepath.Join(dir, "ECO_L3.SHP")})

	t, err := LoadTable(files, TableOptions{Columns: []string{"NA_L3CODE"}})
	c.Assert(err, IsNil)
	codes, err := t.Column("NA_L3CODE")
	c.Assert(err, IsNil)
	c.Assert(codes, DeepEquals, []string{"10.2.2", "10.2.4", "99.9.9"})
}

func (s *TableSuite) TestLoadTableProjected(c *C) {
	prj := `PROJCS["Sphere_ARC_INFO_Lambert_Azimuthal_Equal_Area",GEOGCS["GCS_Sphere_ARC_INFO",DATUM["D_Sphere_ARC_INFO",SPHEROID["Sphere_ARC_INFO",6370997.0,0.0]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Lambert_Azimuthal_Equal_Area"],UNIT["Meter",1.0]]`
	c.Assert(os.WriteFile(strings.TrimSuffix(s.path, ".shp")+".prj", []byte(prj), 0644), IsNil)

	t, err := LoadTable([]string{s.path}, TableOptions{})
	c.Assert(err, IsNil)
	c.Assert(t.Projected, Equals, true)
	c.Assert(t.Len(), Equals, 3)
	for _, f := range t.Features {
		c.Assert(f.Bound.IsEmpty(), Equals, true)
		c.Assert(f.Geohash(5), Equals, "")
	}
}

func (s *TableSuite) TestLoadTableGeographic(c *C) {
	prj := `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`
	c.Assert(os.WriteFile(strings.TrimSuffix(s.path, ".shp")+".prj", []byte(prj), 0644), IsNil)

	t, err := LoadTable([]string{s.path}, TableOptions{})
	c.Assert(err, IsNil)
	c.Assert(t.Projected, Equals, false)
	c.Assert(t.Features[0].Geohash(5), Equals, "9mxwh")
}

func (s *TableSuite) TestShapeBoundOutOfRange(c *C) {
	b := shapeBound(&shp.Point{X: -1500000, Y: 800000})
	c.Assert(b.IsEmpty(), Equals, true)
	c.Assert(Feature{Bound: b}.Geohash(5), Equals, "")
}

func (s *TableSuite) TestApplyRenameCollision(c *C) {
	t := &Table{
		Columns:  []string{"a", "b"},
		Features: []Feature{{Attributes: map[string]string{"a": "1", "b": "2"}}},
	}
	err := t.apply(TableOptions{Rename: map[string]string{"b": "a"}})
	c.Assert(err, ErrorMatches, `renaming to "a": column already in table`)

	err = t.apply(TableOptions{Rename: map[string]string{"a": "b", "b": "a"}})
	c.Assert(err, IsNil)
	c.Assert(t.Columns, DeepEquals, []string{"b", "a"})
	c.Assert(t.Features[0].Attributes, DeepEquals, map[string]string{"b": "1", "a": "2"})
}
