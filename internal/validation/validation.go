// Package validation runs structural checks over fire inputs before the
// expensive stages touch them. Bad inputs become issue lists, never errors:
// a file that cannot even be opened is itself an issue.
package validation

import (
	"fmt"
	"math"
	"os"

	"github.com/firesci/debrisflow/pkg/gis"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
)

// dNBR values outside this window usually mean wrong units or a corrupted
// export.
const (
	dnbrMin = -3000.0
	dnbrMax = 3000.0
)

// Result is the outcome of validating a single file.
type Result struct {
	Valid    bool
	Issues   []string
	Metadata Metadata
}

// Metadata carries the structural properties collected while validating.
// Only the fields relevant to the file type are populated.
type Metadata struct {
	Width      int
	Height     int
	Bands      int
	CRS        string
	Resolution [2]float64
	NoData     *float64
	Features   int
	Bounds     gis.Bounds
	DataMin    float64
	DataMax    float64
}

// ValidateDEM checks an elevation raster: exactly one band, a CRS, a defined
// nodata value, and at least one valid pixel.
func ValidateDEM(path string) Result {
	var result Result

	if _, err := os.Stat(path); err != nil {
		result.Issues = append(result.Issues, "File does not exist")
		return result
	}

	info, err := gis.Describe(path)
	if err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("Error reading DEM: %v", err))
		return result
	}
	result.Metadata = Metadata{
		Width:      info.Width,
		Height:     info.Height,
		Bands:      info.Bands,
		CRS:        info.CRS,
		Resolution: info.Resolution,
		NoData:     info.NoData,
		Bounds:     info.Bounds,
	}

	if info.Bands != 1 {
		result.Issues = append(result.Issues, fmt.Sprintf("Expected 1 band, found %d", info.Bands))
	}
	if info.CRS == "" {
		result.Issues = append(result.Issues, "No CRS defined")
	}
	if info.NoData == nil {
		result.Issues = append(result.Issues, "No nodata value defined")
	}

	stats, err := gis.ScanBand(path)
	if err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("Error reading DEM: %v", err))
		return result
	}
	if !stats.HasValid {
		result.Issues = append(result.Issues, "No valid elevation data")
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// ValidatePerimeter checks a fire perimeter shapefile: at least one feature,
// a CRS side file, structurally valid polygon geometries and nothing else.
func ValidatePerimeter(path string) Result {
	var result Result

	if _, err := os.Stat(path); err != nil {
		result.Issues = append(result.Issues, "File does not exist")
		return result
	}

	layer, err := gis.ReadLayer(path)
	if err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("Error reading perimeter: %v", err))
		return result
	}
	result.Metadata = Metadata{
		Features: len(layer.Features),
		CRS:      layer.CRS,
		Bounds:   layer.Bounds,
	}

	if len(layer.Features) == 0 {
		result.Issues = append(result.Issues, "No features in shapefile")
	}
	if layer.CRS == "" {
		result.Issues = append(result.Issues, "No CRS defined")
	}

	invalid := 0
	nonPolygon := false
	for _, feature := range layer.Features {
		switch geom := feature.Geometry.(type) {
		case orb.Polygon:
			if !validPolygon(geom) {
				invalid++
			}
		case orb.MultiPolygon:
			for _, poly := range geom {
				if !validPolygon(poly) {
					invalid++
					break
				}
			}
		default:
			nonPolygon = true
		}
	}
	if invalid > 0 {
		result.Issues = append(result.Issues, fmt.Sprintf("%d invalid geometries", invalid))
	}
	if nonPolygon {
		result.Issues = append(result.Issues, "Non-polygon geometries found")
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// ValidateDNBR checks a burn severity raster: exactly one band, a CRS, and a
// plausible value range. A defined nodata value is not required here.
func ValidateDNBR(path string) Result {
	var result Result

	if _, err := os.Stat(path); err != nil {
		result.Issues = append(result.Issues, "File does not exist")
		return result
	}

	info, err := gis.Describe(path)
	if err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("Error reading dNBR: %v", err))
		return result
	}
	result.Metadata = Metadata{
		Width:      info.Width,
		Height:     info.Height,
		Bands:      info.Bands,
		CRS:        info.CRS,
		Resolution: info.Resolution,
		NoData:     info.NoData,
		Bounds:     info.Bounds,
	}

	if info.Bands != 1 {
		result.Issues = append(result.Issues, fmt.Sprintf("Expected 1 band, found %d", info.Bands))
	}
	if info.CRS == "" {
		result.Issues = append(result.Issues, "No CRS defined")
	}

	stats, err := gis.ScanBand(path)
	if err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("Error reading dNBR: %v", err))
		return result
	}
	result.Metadata.DataMin = stats.Min
	result.Metadata.DataMax = stats.Max

	if stats.Min < dnbrMin || stats.Max > dnbrMax {
		result.Issues = append(result.Issues, fmt.Sprintf("Unusual dNBR range: %g to %g", stats.Min, stats.Max))
	}

	result.Valid = len(result.Issues) == 0
	return result
}

// validPolygon applies structural checks: every ring closed with at least
// four points, and a non-degenerate area.
func validPolygon(poly orb.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	for _, ring := range poly {
		if len(ring) < 4 || !ring.Closed() {
			return false
		}
	}
	return math.Abs(planar.Area(poly)) > 0
}

// SpatialOverlap reports whether a perimeter intersects a raster's extent,
// reprojecting the perimeter bounds into the raster's CRS when they differ.
// Best effort: any error reports no overlap.
func SpatialOverlap(perimeterPath, rasterPath string) bool {
	layer, err := gis.ReadLayer(perimeterPath)
	if err != nil {
		zap.S().Named("validation").Errorw("failed to read perimeter", "file", perimeterPath, "error", err)
		return false
	}

	info, err := gis.Describe(rasterPath)
	if err != nil {
		zap.S().Named("validation").Errorw("failed to read raster", "file", rasterPath, "error", err)
		return false
	}

	bounds := layer.Bounds
	if layer.CRS != "" && info.CRS != "" && !gis.SameCRS(layer.CRS, info.CRS) {
		bounds, err = gis.TransformBounds(bounds, layer.CRS, info.CRS)
		if err != nil {
			zap.S().Named("validation").Errorw("failed to reproject perimeter bounds",
				"file", perimeterPath, "error", err)
			return false
		}
	}

	return bounds.Intersects(info.Bounds)
}
