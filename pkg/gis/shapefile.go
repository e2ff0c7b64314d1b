package gis

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// Feature is a single shapefile record: its geometry plus the raw dbf
// attribute values keyed by field name.
type Feature struct {
	Geometry   orb.Geometry
	Attributes map[string]string
}

// Float parses a numeric attribute. The second return is false when the field
// is absent or not a number.
func (f Feature) Float(name string) (float64, bool) {
	raw, ok := f.Attributes[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Layer is a fully loaded shapefile: geometries, attributes and the CRS
// definition from the .prj side file when one exists.
type Layer struct {
	Path     string
	CRS      string
	Bounds   Bounds
	Fields   []string
	Features []Feature
}

func (l *Layer) HasField(name string) bool {
	for _, f := range l.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// MultiPolygon merges every polygonal feature of the layer into a single
// multipolygon. The second return is false when the layer holds no polygons.
func (l *Layer) MultiPolygon() (orb.MultiPolygon, bool) {
	var mp orb.MultiPolygon
	for _, f := range l.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		}
	}
	return mp, len(mp) > 0
}

// ReadLayer loads a shapefile and its attributes into memory. Geometries are
// converted to orb types; polygon parts are grouped into shells and holes by
// ring winding (shapefiles wind outer rings clockwise).
func ReadLayer(path string) (*Layer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shapefile %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}

	layer := &Layer{
		Path:   path,
		CRS:    ReadPrj(path),
		Fields: names,
	}

	box := r.BBox()
	layer.Bounds = Bounds{MinX: box.MinX, MinY: box.MinY, MaxX: box.MaxX, MaxY: box.MaxY}

	for r.Next() {
		row, shape := r.Shape()

		attrs := make(map[string]string, len(fields))
		for col, name := range names {
			attrs[name] = strings.TrimSpace(r.ReadAttribute(row, col))
		}

		layer.Features = append(layer.Features, Feature{
			Geometry:   shapeToOrb(shape),
			Attributes: attrs,
		})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading shapefile %s: %w", path, err)
	}

	return layer, nil
}

// ReadPrj returns the CRS definition stored next to a shapefile, or an empty
// string when the .prj side file is missing.
func ReadPrj(shpPath string) string {
	prj := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	contents, err := os.ReadFile(prj)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(contents))
}

func shapeToOrb(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PolyLine:
		var ls orb.MultiLineString
		for _, part := range splitParts(s.Parts, s.Points) {
			ls = append(ls, orb.LineString(part))
		}
		if len(ls) == 1 {
			return ls[0]
		}
		return ls
	case *shp.Polygon:
		return assemblePolygons(splitParts(s.Parts, s.Points))
	default:
		return nil
	}
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		ring := make([]orb.Point, 0, end-int(start))
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		out = append(out, ring)
	}
	return out
}

// assemblePolygons groups shapefile rings into polygons. Clockwise rings open
// a new shell; counter-clockwise rings are holes attached to the preceding
// shell. Ring winding is flipped to orb's convention (shells CCW, holes CW).
func assemblePolygons(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, part := range parts {
		ring := orb.Ring(part)
		isShell := ring.Orientation() == orb.CW
		ring.Reverse()
		if isShell || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
		} else {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
		}
	}
	if len(mp) == 1 {
		return mp[0]
	}
	return mp
}

// WritePolygonShapefile writes a polygonal geometry to a new shapefile, with
// the CRS definition mirrored into the .prj side file. Used for derived
// cutlines; attribute content is a single placeholder field.
func WritePolygonShapefile(path string, geom orb.Geometry, crsWKT string) error {
	var mp orb.MultiPolygon
	switch g := geom.(type) {
	case orb.Polygon:
		mp = orb.MultiPolygon{g}
	case orb.MultiPolygon:
		mp = g
	default:
		return fmt.Errorf("unsupported geometry type %s for shapefile output", geom.GeoJSONType())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("creating shapefile %s: %w", path, err)
	}
	defer w.Close()

	w.SetFields([]shp.Field{shp.StringField("ID", 16)})

	for i, poly := range mp {
		w.Write(polygonToShp(poly))
		if err := w.WriteAttribute(i, 0, strconv.Itoa(i+1)); err != nil {
			return fmt.Errorf("writing shapefile attribute: %w", err)
		}
	}

	if crsWKT != "" {
		prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
		if err := os.WriteFile(prj, []byte(crsWKT), 0644); err != nil {
			return fmt.Errorf("writing prj: %w", err)
		}
	}

	return nil
}

func polygonToShp(poly orb.Polygon) *shp.Polygon {
	var (
		parts  []int32
		points []shp.Point
	)
	for i, ring := range poly {
		r := make(orb.Ring, len(ring))
		copy(r, ring)
		// shapefile winding: shells clockwise, holes counter-clockwise
		if (i == 0) == (r.Orientation() == orb.CCW) {
			r.Reverse()
		}
		parts = append(parts, int32(len(points)))
		for _, p := range r {
			points = append(points, shp.Point{X: p[0], Y: p[1]})
		}
	}

	b := poly.Bound()
	return &shp.Polygon{
		Box:       shp.Box{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]},
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
}
