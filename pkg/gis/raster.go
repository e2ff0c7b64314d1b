package gis

import (
	"fmt"
	"math"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerOnce sync.Once

// RegisterDrivers makes the GDAL driver registry available. Safe to call from
// multiple call sites; registration happens once per process.
func RegisterDrivers() {
	registerOnce.Do(godal.RegisterAll)
}

// RasterInfo describes the structure of a raster dataset without holding it
// open.
type RasterInfo struct {
	Width        int
	Height       int
	Bands        int
	CRS          string
	GeoTransform [6]float64
	Resolution   [2]float64
	NoData       *float64
	Bounds       Bounds
}

// Describe opens a raster read-only and reports its structure. The nodata
// value is taken from the first band.
func Describe(path string) (*RasterInfo, error) {
	RegisterDrivers()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raster %s: %w", path, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	info := &RasterInfo{
		Width:  structure.SizeX,
		Height: structure.SizeY,
		Bands:  structure.NBands,
	}

	if sr := ds.SpatialRef(); sr != nil {
		if wkt, err := sr.WKT(); err == nil {
			info.CRS = wkt
		}
	}

	gt, err := ds.GeoTransform()
	if err == nil {
		info.GeoTransform = gt
		info.Resolution = [2]float64{math.Abs(gt[1]), math.Abs(gt[5])}
		info.Bounds = boundsFromTransform(gt, structure.SizeX, structure.SizeY)
	}

	if bands := ds.Bands(); len(bands) > 0 {
		if nd, ok := bands[0].NoData(); ok {
			info.NoData = &nd
		}
	}

	return info, nil
}

// BandStats summarizes the first band of a raster. Min and Max are raw
// extremes over every pixel, nodata included, mirroring how the plausibility
// checks downstream expect them. HasValid reports whether the band holds at
// least one pixel distinct from its nodata value (or nonzero when no nodata
// is defined).
type BandStats struct {
	Min      float64
	Max      float64
	HasValid bool
}

// ScanBand reads the first band of a raster in full and summarizes it.
func ScanBand(path string) (*BandStats, error) {
	RegisterDrivers()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening raster %s: %w", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster %s has no bands", path)
	}
	band := bands[0]

	structure := ds.Structure()
	buf := make([]float64, structure.SizeX*structure.SizeY)
	if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return nil, fmt.Errorf("reading band: %w", err)
	}

	nodata, hasNodata := band.NoData()

	stats := &BandStats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range buf {
		if math.IsNaN(v) {
			continue
		}
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		if hasNodata {
			if v != nodata {
				stats.HasValid = true
			}
		} else if v != 0 {
			stats.HasValid = true
		}
	}
	if stats.Min > stats.Max {
		stats.Min, stats.Max = 0, 0
	}

	return stats, nil
}

// boundsFromTransform projects all four grid corners through the affine
// transform so rotated datasets still produce a correct envelope.
func boundsFromTransform(gt [6]float64, width, height int) Bounds {
	corner := func(px, py float64) (float64, float64) {
		return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
	}

	xs := make([]float64, 0, 4)
	ys := make([]float64, 0, 4)
	for _, c := range [][2]float64{{0, 0}, {float64(width), 0}, {0, float64(height)}, {float64(width), float64(height)}} {
		x, y := corner(c[0], c[1])
		xs = append(xs, x)
		ys = append(ys, y)
	}

	b := Bounds{MinX: xs[0], MaxX: xs[0], MinY: ys[0], MaxY: ys[0]}
	for i := 1; i < 4; i++ {
		b.MinX = min(b.MinX, xs[i])
		b.MaxX = max(b.MaxX, xs[i])
		b.MinY = min(b.MinY, ys[i])
		b.MaxY = max(b.MaxY, ys[i])
	}
	return b
}
