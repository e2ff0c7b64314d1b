package report_test

import (
	"context"
	"encoding/csv"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firesci/debrisflow/internal/assess"
	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/raster"
	"github.com/firesci/debrisflow/internal/report"
	"github.com/firesci/debrisflow/pkg/gis"
	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type basin struct {
	ring   orb.Ring
	values map[string]float64
}

func squareRing(minX, minY, size float64) orb.Ring {
	return orb.Ring{
		{minX, minY},
		{minX + size, minY},
		{minX + size, minY + size},
		{minX, minY + size},
		{minX, minY},
	}
}

func polygonShape(ring orb.Ring) *shp.Polygon {
	r := make(orb.Ring, len(ring))
	copy(r, ring)
	if r.Orientation() == orb.CCW {
		r.Reverse() // shapefile shells wind clockwise
	}
	points := make([]shp.Point, len(r))
	for i, p := range r {
		points[i] = shp.Point{X: p[0], Y: p[1]}
	}
	b := r.Bound()
	return &shp.Polygon{
		Box:       shp.Box{MinX: b.Min[0], MinY: b.Min[1], MaxX: b.Max[0], MaxY: b.Max[1]},
		NumParts:  1,
		NumPoints: int32(len(points)),
		Parts:     []int32{0},
		Points:    points,
	}
}

// writeBasins creates exports/basins.shp under projectDir with one float
// attribute per column. Basins missing a value keep an empty dbf cell for it.
func writeBasins(t *testing.T, projectDir string, columns []string, basins []basin) {
	t.Helper()

	exports := filepath.Join(projectDir, "exports")
	require.NoError(t, os.MkdirAll(exports, 0755))
	path := filepath.Join(exports, "basins.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	fields := make([]shp.Field, len(columns))
	for i, c := range columns {
		fields[i] = shp.FloatField(c, 16, 6)
	}
	w.SetFields(fields)

	for i, b := range basins {
		w.Write(polygonShape(b.ring))
		for col, name := range columns {
			v, ok := b.values[name]
			if !ok {
				continue
			}
			require.NoError(t, w.WriteAttribute(i, col, v))
		}
	}
	w.Close()

	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	require.NoError(t, os.WriteFile(prj, []byte("EPSG:5070"), 0644))
}

func readBasins(t *testing.T, projectDir string) *gis.Layer {
	t.Helper()
	layer, err := gis.ReadLayer(filepath.Join(projectDir, "exports", "basins.shp"))
	require.NoError(t, err)
	return layer
}

func TestFireStatistics(t *testing.T) {
	dir := t.TempDir()
	writeBasins(t, dir, []string{"Area_km2", "P_24mmh", "P_40mmh"}, []basin{
		{ring: squareRing(500000, 3999940, 60), values: map[string]float64{"Area_km2": 1.5, "P_24mmh": 0.75, "P_40mmh": 0.875}},
		{ring: squareRing(500120, 3999940, 60), values: map[string]float64{"Area_km2": 2.5, "P_24mmh": 0.25, "P_40mmh": 0.375}},
		{ring: squareRing(500240, 3999940, 60), values: map[string]float64{"Area_km2": 4.0}},
	})

	stats := report.FireStatistics("2021_creek_fire", readBasins(t, dir))

	assert.Equal(t, "2021_creek_fire", stats.FireID)
	assert.Equal(t, "2021", stats.Year)
	assert.Equal(t, 3, stats.Basins)
	assert.InDelta(t, 8.0, stats.TotalAreaKm2, 1e-9)
	assert.InDelta(t, 8.0/3, stats.MeanAreaKm2, 1e-9)

	require.Len(t, stats.Scenarios, 2)

	p24, ok := stats.Scenario("P_24mmh")
	require.True(t, ok)
	assert.Equal(t, 1, p24.HighRisk)
	assert.InDelta(t, 100.0/3, p24.HighRiskPct, 1e-9)
	assert.InDelta(t, 0.5, p24.Mean, 1e-9)
	assert.InDelta(t, 0.75, p24.Max, 1e-9)

	p40, ok := stats.Scenario("P_40mmh")
	require.True(t, ok)
	assert.Equal(t, 1, p40.HighRisk)
	assert.InDelta(t, 0.625, p40.Mean, 1e-9)
	assert.InDelta(t, 0.875, p40.Max, 1e-9)

	_, ok = stats.Scenario("P_16mmh")
	assert.False(t, ok)
}

func TestFireStatisticsGeometryAreaFallback(t *testing.T) {
	dir := t.TempDir()
	writeBasins(t, dir, []string{"P_24mmh"}, []basin{
		{ring: squareRing(500000, 3999940, 60), values: map[string]float64{"P_24mmh": 0.2}},
		{ring: squareRing(500120, 3999940, 60), values: map[string]float64{"P_24mmh": 0.3}},
	})

	stats := report.FireStatistics("2021_creek", readBasins(t, dir))

	assert.InDelta(t, 0.0072, stats.TotalAreaKm2, 1e-12)
	assert.InDelta(t, 0.0036, stats.MeanAreaKm2, 1e-12)
}

func TestFireStatsText(t *testing.T) {
	stats := report.FireStats{
		FireID:       "2021_creek",
		Year:         "2021",
		Basins:       3,
		TotalAreaKm2: 12.25,
		MeanAreaKm2:  4.75,
		Scenarios: []report.ScenarioStats{
			{Column: "P_24mmh", HighRisk: 2, HighRiskPct: 66.666, Mean: 0.456, Max: 0.875},
		},
	}

	want := "Number of basins: 3\n" +
		"Total area: 12.25 km²\n" +
		"Average basin area: 4.75 km²\n" +
		"\n24 mm/hr scenario:\n" +
		"  High risk basins: 2 (66.7%)\n" +
		"  Mean probability: 0.456\n" +
		"  Max probability: 0.875\n"
	assert.Equal(t, want, stats.Text())
}

func TestCreateSummaryReport(t *testing.T) {
	ctx := context.Background()

	alpha := t.TempDir()
	writeBasins(t, alpha, []string{"Area_km2", "P_24mmh", "P_40mmh"}, []basin{
		{ring: squareRing(500000, 3999940, 60), values: map[string]float64{"Area_km2": 3.0, "P_24mmh": 0.9, "P_40mmh": 0.95}},
	})
	creek := t.TempDir()
	writeBasins(t, creek, []string{"Area_km2", "P_24mmh", "P_40mmh"}, []basin{
		{ring: squareRing(500000, 3999940, 60), values: map[string]float64{"Area_km2": 1.5, "P_24mmh": 0.75, "P_40mmh": 0.875}},
		{ring: squareRing(500120, 3999940, 60), values: map[string]float64{"Area_km2": 2.5, "P_24mmh": 0.25, "P_40mmh": 0.375}},
	})

	projects := []project.Project{
		{FireID: "2021_creek", Dir: creek},
		{FireID: "2020_alpha", Dir: alpha},
		{FireID: "2021_failed", Dir: t.TempDir()},
		{FireID: "2021_orphan", Dir: t.TempDir()},
		{FireID: "2021_noexport", Dir: t.TempDir()},
	}
	results := map[string]assess.Result{
		"2021_creek":    {FireID: "2021_creek", State: assess.StateDone, TotalSecs: 12.3, MemoryUsedGB: 1.23},
		"2020_alpha":    {FireID: "2020_alpha", State: assess.StateDone, TotalSecs: 5.0, MemoryUsedGB: 0.5},
		"2021_failed":   {FireID: "2021_failed", State: assess.StateFailed},
		"2021_noexport": {FireID: "2021_noexport", State: assess.StateDone},
	}

	outDir := filepath.Join(t.TempDir(), "reports")
	rep := report.NewReporter(outDir)
	csvPath, err := rep.CreateSummaryReport(ctx, projects, results)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, report.SummaryCSV), csvPath)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	header := []string{
		"Fire Name", "Year", "Basins", "Area (km²)", "Processing Time (s)", "Memory Used (GB)",
		"P_24mmh High Risk", "P_24mmh Mean", "P_40mmh High Risk", "P_40mmh Mean",
	}
	assert.Equal(t, [][]string{
		header,
		{"2020_alpha", "2020", "1", "3.00", "5.0", "0.50", "1", "0.900", "1", "0.950"},
		{"2021_creek", "2021", "2", "4.00", "12.3", "1.23", "1", "0.500", "1", "0.625"},
	}, records)

	wb, err := excelize.OpenFile(filepath.Join(outDir, report.SummaryWorkbook))
	require.NoError(t, err)
	defer wb.Close()

	assert.ElementsMatch(t, []string{"Summary", "Scenarios"}, wb.GetSheetList())

	summaryRows, err := wb.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		header,
		{"2020_alpha", "2020", "1", "3", "5", "0.5", "1", "0.9", "1", "0.95"},
		{"2021_creek", "2021", "2", "4", "12.3", "1.23", "1", "0.5", "1", "0.625"},
	}, summaryRows)

	scenarioRows, err := wb.GetRows("Scenarios")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Fire Name", "Scenario", "High Risk Basins", "High Risk %", "Mean Probability", "Max Probability"},
		{"2020_alpha", "24 mm/hr", "1", "100", "0.9", "0.9"},
		{"2020_alpha", "40 mm/hr", "1", "100", "0.95", "0.95"},
		{"2021_creek", "24 mm/hr", "1", "50", "0.5", "0.75"},
		{"2021_creek", "40 mm/hr", "1", "50", "0.625", "0.875"},
	}, scenarioRows)
}

func TestCreateSummaryReportNoCompletedFires(t *testing.T) {
	rep := report.NewReporter(t.TempDir())
	_, err := rep.CreateSummaryReport(context.Background(), []project.Project{{FireID: "2021_creek", Dir: t.TempDir()}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completed assessments")
}

func TestRenderHazardMap(t *testing.T) {
	projectDir := t.TempDir()
	writeBasins(t, projectDir, []string{"P_24mmh"}, []basin{
		{ring: squareRing(500000, 3999940, 60), values: map[string]float64{"P_24mmh": 0.1}},
		{ring: squareRing(500120, 3999940, 60), values: map[string]float64{"P_24mmh": 0.6}},
		{ring: squareRing(500240, 3999940, 60), values: map[string]float64{"P_24mmh": 0.9}},
		{ring: squareRing(500360, 3999940, 60), values: map[string]float64{"P_24mmh": 1.0}},
	})

	gen := raster.NewGenerator(t.TempDir(), []string{"P_24mmh"}, 0)
	paths, err := gen.GenerateProbabilityRasters("2021_creek", projectDir)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	classified := raster.ClassifiedPath(paths[0])
	assert.Equal(t, strings.TrimSuffix(paths[0], ".tif")+"_class.tif", classified)
	require.NoError(t, raster.ClassifyHazards(paths[0], classified))

	rep := report.NewReporter(filepath.Join(t.TempDir(), "maps"))
	mapPath := rep.HazardMapPath("2021_creek", "P_24mmh")
	assert.Equal(t, "2021_creek_P_24mmh_map.png", filepath.Base(mapPath))
	require.NoError(t, report.RenderHazardMap(classified, mapPath))

	f, err := os.Open(mapPath)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 14, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())

	at := func(x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	}
	assert.Equal(t, color.NRGBA{R: 46, G: 204, B: 113, A: 255}, at(0, 0))
	assert.Equal(t, color.NRGBA{R: 231, G: 76, B: 60, A: 255}, at(4, 0))
	assert.Equal(t, color.NRGBA{R: 139, G: 0, B: 0, A: 255}, at(8, 1))
	assert.Equal(t, color.NRGBA{R: 139, G: 0, B: 0, A: 255}, at(13, 1))
	assert.Zero(t, at(2, 0).A)
}

func TestRenderHazardMapMissingRaster(t *testing.T) {
	err := report.RenderHazardMap(filepath.Join(t.TempDir(), "missing.tif"), filepath.Join(t.TempDir(), "map.png"))
	require.Error(t, err)
}
