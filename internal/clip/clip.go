// Package clip cuts shared regional datasets down to per-fire extents. The
// perimeter is always reprojected toward the target dataset, never the
// reverse, so large shared rasters are never resampled.
package clip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/firesci/debrisflow/pkg/gis"
	"go.uber.org/zap"
)

// Dataset role keys used in clip results.
const (
	DatasetSoil     = "soil"
	DatasetEVT      = "evt"
	DatasetSeverity = "severity"
)

// SharedData names the shared regional datasets. Empty paths are skipped.
type SharedData struct {
	Soil     string
	EVT      string
	Severity string
}

// Result aggregates the per-dataset outcomes for one fire.
type Result struct {
	Success      bool
	ClippedPaths map[string]string
	Errors       []string
}

type Clipper struct {
	sharedBufferMeters float64
}

// NewClipper returns a clipper that buffers the perimeter by
// sharedBufferMeters when clipping the shared soil and vegetation datasets.
// Severity is always clipped without a buffer.
func NewClipper(sharedBufferMeters float64) *Clipper {
	return &Clipper{sharedBufferMeters: sharedBufferMeters}
}

// ClipRaster masks and crops a raster to the optionally buffered perimeter.
// The cutline is reprojected to the raster's CRS by the warp itself. The
// source nodata value is preserved; output is deflate-compressed GeoTIFF.
func (c *Clipper) ClipRaster(rasterPath, perimeterPath, outputPath string, bufferDistance float64) error {
	gis.RegisterDrivers()

	cutline := perimeterPath
	if bufferDistance > 0 {
		tmp, err := os.MkdirTemp("", "debrisflow-cutline")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)

		cutline, err = bufferedCutline(perimeterPath, bufferDistance, tmp)
		if err != nil {
			return fmt.Errorf("buffering perimeter: %w", err)
		}
	}

	src, err := godal.Open(rasterPath)
	if err != nil {
		return fmt.Errorf("opening raster %s: %w", rasterPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}

	switches := []string{
		"-cutline", cutline,
		"-crop_to_cutline",
		"-of", "GTiff",
		"-co", "COMPRESS=DEFLATE",
	}
	if bands := src.Bands(); len(bands) > 0 {
		if nodata, ok := bands[0].NoData(); ok {
			switches = append(switches, "-dstnodata", strconv.FormatFloat(nodata, 'f', -1, 64))
		}
	}

	dst, err := src.Warp(outputPath, switches)
	if err != nil {
		return fmt.Errorf("clipping raster: %w", err)
	}
	if err := dst.Close(); err != nil {
		return err
	}

	zap.S().Named("clip").Infow("clipped raster", "output", filepath.Base(outputPath))
	return nil
}

// ClipVector clips a vector dataset against the optionally buffered
// perimeter, in the perimeter's CRS. When the source CRS differs it is
// reprojected first, then clipped, so the clip always runs in one CRS.
func (c *Clipper) ClipVector(vectorPath, perimeterPath, outputPath string, bufferDistance float64) error {
	gis.RegisterDrivers()

	tmp, err := os.MkdirTemp("", "debrisflow-clip")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	cutline := perimeterPath
	if bufferDistance > 0 {
		cutline, err = bufferedCutline(perimeterPath, bufferDistance, tmp)
		if err != nil {
			return fmt.Errorf("buffering perimeter: %w", err)
		}
	}

	source := vectorPath
	perimeterCRS := gis.ReadPrj(perimeterPath)
	vectorCRS := gis.ReadPrj(vectorPath)
	if vectorCRS != "" && perimeterCRS != "" && !gis.SameCRS(vectorCRS, perimeterCRS) {
		reprojected := filepath.Join(tmp, "reprojected.shp")
		if err := vectorTranslate(source, reprojected, []string{"-t_srs", crsArgument(perimeterCRS)}); err != nil {
			return fmt.Errorf("reprojecting vector: %w", err)
		}
		source = reprojected
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	if err := vectorTranslate(source, outputPath, []string{"-clipsrc", cutline}); err != nil {
		return fmt.Errorf("clipping vector: %w", err)
	}

	zap.S().Named("clip").Infow("clipped vector", "output", filepath.Base(outputPath))
	return nil
}

// ClipFireDatasets clips every configured shared dataset for one fire into
// {outputRoot}/{fire}/clipped. Failures are collected per dataset; success
// means no errors at all.
func (c *Clipper) ClipFireDatasets(ctx context.Context, fireID, perimeterPath string, shared SharedData, outputRoot string) Result {
	result := Result{Success: true, ClippedPaths: map[string]string{}}

	if perimeterPath == "" {
		result.Success = false
		result.Errors = append(result.Errors, "No perimeter path provided")
		return result
	}

	fireOutput := filepath.Join(outputRoot, fireID, "clipped")
	if err := os.MkdirAll(fireOutput, 0755); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	type job struct {
		role   string
		source string
		output string
		buffer float64
		vector bool
	}
	jobs := []job{
		{role: DatasetSoil, source: shared.Soil, output: filepath.Join(fireOutput, "soil_clipped.shp"), buffer: c.sharedBufferMeters, vector: true},
		{role: DatasetEVT, source: shared.EVT, output: filepath.Join(fireOutput, "evt_clipped.tif"), buffer: c.sharedBufferMeters},
		{role: DatasetSeverity, source: shared.Severity, output: filepath.Join(fireOutput, "severity_clipped.tif")},
	}

	for _, j := range jobs {
		if j.source == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			return result
		}

		var err error
		if j.vector {
			err = c.ClipVector(j.source, perimeterPath, j.output, j.buffer)
		} else {
			err = c.ClipRaster(j.source, perimeterPath, j.output, j.buffer)
		}
		if err != nil {
			zap.S().Named("clip").Errorw("failed to clip dataset",
				"fire", fireID, "dataset", j.role, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to clip %s data", j.role))
			continue
		}
		result.ClippedPaths[j.role] = j.output
	}

	if len(result.Errors) > 0 {
		result.Success = false
	}
	return result
}

func vectorTranslate(src, dst string, extra []string) error {
	ds, err := godal.Open(src)
	if err != nil {
		return fmt.Errorf("opening vector %s: %w", src, err)
	}
	defer ds.Close()

	switches := append([]string{"-f", "ESRI Shapefile"}, extra...)
	out, err := ds.VectorTranslate(dst, switches)
	if err != nil {
		return err
	}
	return out.Close()
}

// crsArgument prefers the compact authority code when one resolves.
func crsArgument(crs string) string {
	if code := gis.AuthorityCode(crs); code != "" {
		return code
	}
	return crs
}

// bufferedCutline writes a buffered copy of the perimeter into dir, which the
// caller owns and removes.
func bufferedCutline(perimeterPath string, distance float64, dir string) (string, error) {
	layer, err := gis.ReadLayer(perimeterPath)
	if err != nil {
		return "", err
	}
	mp, ok := layer.MultiPolygon()
	if !ok {
		return "", fmt.Errorf("perimeter %s holds no polygons", perimeterPath)
	}

	buffered, err := gis.BufferGeometry(mp, layer.CRS, distance)
	if err != nil {
		return "", err
	}

	out := filepath.Join(dir, "cutline_buffered.shp")
	if err := gis.WritePolygonShapefile(out, buffered, layer.CRS); err != nil {
		return "", err
	}
	return out, nil
}
