package gis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
)

// NewSpatialRef builds a spatial reference from either a WKT definition or an
// authority code such as "EPSG:4326". Callers own the returned reference.
func NewSpatialRef(def string) (*godal.SpatialRef, error) {
	RegisterDrivers()

	if code, ok := epsgCode(def); ok {
		return godal.NewSpatialRefFromEPSG(code)
	}
	return godal.NewSpatialRefFromWKT(def)
}

// TransformBounds projects a bounding box between two CRS definitions by
// transforming a densified boundary (corners plus edge midpoints) and taking
// the envelope of the results.
func TransformBounds(b Bounds, srcCRS, dstCRS string) (Bounds, error) {
	src, err := NewSpatialRef(srcCRS)
	if err != nil {
		return Bounds{}, fmt.Errorf("source crs: %w", err)
	}
	defer src.Close()

	dst, err := NewSpatialRef(dstCRS)
	if err != nil {
		return Bounds{}, fmt.Errorf("target crs: %w", err)
	}
	defer dst.Close()

	trn, err := godal.NewTransform(src, dst)
	if err != nil {
		return Bounds{}, fmt.Errorf("creating transform: %w", err)
	}
	defer trn.Close()

	midX := (b.MinX + b.MaxX) / 2
	midY := (b.MinY + b.MaxY) / 2
	xs := []float64{b.MinX, midX, b.MaxX, b.MinX, b.MaxX, b.MinX, midX, b.MaxX}
	ys := []float64{b.MinY, b.MinY, b.MinY, midY, midY, b.MaxY, b.MaxY, b.MaxY}
	if err := trn.TransformEx(xs, ys, nil, nil); err != nil {
		return Bounds{}, fmt.Errorf("transforming bounds: %w", err)
	}

	out := Bounds{MinX: xs[0], MaxX: xs[0], MinY: ys[0], MaxY: ys[0]}
	for i := 1; i < len(xs); i++ {
		out.MinX = min(out.MinX, xs[i])
		out.MaxX = max(out.MaxX, xs[i])
		out.MinY = min(out.MinY, ys[i])
		out.MaxY = max(out.MaxY, ys[i])
	}
	return out, nil
}

func epsgCode(def string) (int, bool) {
	code := AuthorityCode(def)
	if !strings.HasPrefix(code, "EPSG:") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(code, "EPSG:"))
	if err != nil {
		return 0, false
	}
	return n, true
}
