// Package raster turns the debris-flow model's per-basin probability exports
// into georeferenced GeoTIFF products: one Float32 probability surface per
// rainfall scenario, plus a paletted hazard classification derived from it.
package raster

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/pkg/gis"
)

// DefaultProbabilityColumns are the rainfall scenarios the model exports with
// every basin layer.
var DefaultProbabilityColumns = []string{"P_16mmh", "P_20mmh", "P_24mmh", "P_40mmh"}

// DefaultResolution is the cell size of generated rasters in map units.
const DefaultResolution = 30.0

const (
	classNone     = 0
	classLow      = 1
	classModerate = 2
	classHigh     = 3
	classVeryHigh = 4
)

// HazardColors is the RGBA palette for hazard classes 0..4. Class 0 doubles
// as nodata and stays fully transparent.
var HazardColors = [5][4]uint8{
	{255, 255, 255, 0},
	{46, 204, 113, 255},
	{243, 156, 18, 255},
	{231, 76, 60, 255},
	{139, 0, 0, 255},
}

// Classify buckets a debris-flow probability into a hazard class: 1 below
// 0.25, 2 below 0.5, 3 below 0.75 and 4 up to and including 1. NaN and values
// outside [0, 1] map to class 0.
func Classify(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v < 0 || v > 1:
		return classNone
	case v < 0.25:
		return classLow
	case v < 0.5:
		return classModerate
	case v < 0.75:
		return classHigh
	default:
		return classVeryHigh
	}
}

// Generator rasterizes basin probability attributes onto regular grids.
type Generator struct {
	outputRoot string
	columns    []string
	resolution float64
}

// NewGenerator returns a generator writing under outputRoot. Zero values for
// columns and resolution select the model defaults.
func NewGenerator(outputRoot string, columns []string, resolution float64) *Generator {
	if len(columns) == 0 {
		columns = DefaultProbabilityColumns
	}
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Generator{outputRoot: outputRoot, columns: columns, resolution: resolution}
}

// GenerateProbabilityRasters rasterizes each probability column of a fire's
// basin export onto its own single-band GeoTIFF under
// {outputRoot}/{fire}/{fire}_{column}.tif. Columns absent from the layer are
// skipped with a warning. Returns the paths written.
func (g *Generator) GenerateProbabilityRasters(fireID, projectDir string) ([]string, error) {
	logger := zap.S().Named("raster")

	basins := filepath.Join(projectDir, project.ExportsDir, "basins.shp")
	if _, err := os.Stat(basins); err != nil {
		return nil, fmt.Errorf("basins shapefile not found for %s: %w", fireID, err)
	}

	layer, err := gis.ReadLayer(basins)
	if err != nil {
		return nil, err
	}
	if len(layer.Features) == 0 {
		return nil, fmt.Errorf("basins shapefile for %s has no features", fireID)
	}

	fireDir := filepath.Join(g.outputRoot, fireID)
	if err := os.MkdirAll(fireDir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for _, column := range g.columns {
		if !layer.HasField(column) {
			logger.Warnw("probability column missing, skipping", "fire_id", fireID, "column", column)
			continue
		}

		path := ProbabilityPath(g.outputRoot, fireID, column)
		if err := g.rasterizeColumn(layer, fireID, column, path); err != nil {
			return written, fmt.Errorf("rasterizing %s %s: %w", fireID, column, err)
		}
		logger.Infow("wrote probability raster", "fire_id", fireID, "column", column, "path", path)
		written = append(written, path)
	}
	return written, nil
}

// rasterizeColumn burns one attribute column into a Float32 grid covering the
// layer extent. Cells no basin touches keep the NaN nodata fill; basins whose
// attribute is missing or not numeric are left out.
func (g *Generator) rasterizeColumn(layer *gis.Layer, fireID, column, path string) error {
	gis.RegisterDrivers()

	width, height := layer.Bounds.GridSize(g.resolution)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("layer extent %s is smaller than one %g-unit cell", layer.Bounds, g.resolution)
	}

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, width, height,
		godal.CreationOption("COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("creating raster: %w", err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(layer.Bounds.GeoTransform(g.resolution)); err != nil {
		return err
	}

	var sr *godal.SpatialRef
	if layer.CRS != "" {
		sr, err = gis.NewSpatialRef(layer.CRS)
		if err != nil {
			return fmt.Errorf("parsing layer crs: %w", err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return err
		}
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(math.NaN()); err != nil {
		return err
	}
	if err := band.Fill(math.NaN(), 0); err != nil {
		return err
	}

	for _, feature := range layer.Features {
		value, ok := feature.Float(column)
		if !ok || math.IsNaN(value) {
			continue
		}
		geom, err := godal.NewGeometryFromWKT(wkt.MarshalString(feature.Geometry), sr)
		if err != nil {
			return fmt.Errorf("parsing basin geometry: %w", err)
		}
		err = ds.RasterizeGeometry(geom, godal.Values(value))
		geom.Close()
		if err != nil {
			return fmt.Errorf("burning basin value: %w", err)
		}
	}

	tags := [...][2]string{
		{"fire_name", fireID},
		{"probability_scenario", column},
		{"units", "probability (0-1)"},
		{"source", "WILDCAT debris flow model"},
	}
	for _, tag := range tags {
		if err := ds.SetMetadata(tag[0], tag[1]); err != nil {
			return fmt.Errorf("tagging raster: %w", err)
		}
	}

	return nil
}

// ProbabilityPath is where a fire's probability raster for one scenario
// column lands under outputRoot.
func ProbabilityPath(outputRoot, fireID, column string) string {
	return filepath.Join(outputRoot, fireID, fmt.Sprintf("%s_%s.tif", fireID, column))
}

// ClassifiedPath names the hazard classification companion of a probability
// raster.
func ClassifiedPath(probabilityPath string) string {
	return strings.TrimSuffix(probabilityPath, filepath.Ext(probabilityPath)) + "_class.tif"
}

// ClassifyHazards buckets a probability raster into hazard classes and writes
// them as a paletted uint8 GeoTIFF alongside the grid and CRS of the source.
func ClassifyHazards(probabilityPath, outputPath string) error {
	gis.RegisterDrivers()

	src, err := godal.Open(probabilityPath)
	if err != nil {
		return fmt.Errorf("opening probability raster: %w", err)
	}
	defer src.Close()

	bands := src.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("probability raster %s has no bands", probabilityPath)
	}

	structure := src.Structure()
	values := make([]float64, structure.SizeX*structure.SizeY)
	if err := bands[0].Read(0, 0, values, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("reading probabilities: %w", err)
	}

	classes := make([]byte, len(values))
	for i, v := range values {
		classes[i] = Classify(v)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}

	dst, err := godal.Create(godal.GTiff, outputPath, 1, godal.Byte, structure.SizeX, structure.SizeY,
		godal.CreationOption("COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("creating classification raster: %w", err)
	}
	defer dst.Close()

	if gt, err := src.GeoTransform(); err == nil {
		if err := dst.SetGeoTransform(gt); err != nil {
			return err
		}
	}
	if sr := src.SpatialRef(); sr != nil {
		if err := dst.SetSpatialRef(sr); err != nil {
			return err
		}
	}

	band := dst.Bands()[0]
	if err := band.SetNoData(0); err != nil {
		return err
	}
	if err := band.SetColorTable(hazardColorTable()); err != nil {
		return err
	}
	if err := band.Write(0, 0, classes, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("writing classes: %w", err)
	}

	return nil
}

func hazardColorTable() godal.ColorTable {
	entries := make([][4]int16, len(HazardColors))
	for i, c := range HazardColors {
		entries[i] = [4]int16{int16(c[0]), int16(c[1]), int16(c[2]), int16(c[3])}
	}
	return godal.ColorTable{PaletteInterp: godal.RGBPalette, Entries: entries}
}

// BatchResult summarizes a raster generation pass over many fires.
type BatchResult struct {
	Generated int
	Failed    int
	Rasters   map[string][]string
}

// GenerateAll runs the generator over every project. Failures are isolated
// per fire; cancellation stops the batch at the next fire boundary.
func (g *Generator) GenerateAll(ctx context.Context, projects []project.Project) BatchResult {
	logger := zap.S().Named("raster")

	result := BatchResult{Rasters: make(map[string][]string, len(projects))}
	for i, proj := range projects {
		if ctx.Err() != nil {
			logger.Warnw("raster generation canceled", "remaining", len(projects)-i)
			break
		}

		paths, err := g.GenerateProbabilityRasters(proj.FireID, proj.Dir)
		if err != nil {
			logger.Errorw("raster generation failed", "fire_id", proj.FireID, "error", err)
			result.Failed++
			continue
		}
		result.Generated += len(paths)
		result.Rasters[proj.FireID] = paths
	}

	logger.Infow("raster generation finished", "generated", result.Generated, "failed", result.Failed)
	return result
}
