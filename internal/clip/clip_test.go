package clip_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firesci/debrisflow/internal/clip"
	"github.com/firesci/debrisflow/pkg/gis"
)

func wktForEPSG(t *testing.T, code int) string {
	t.Helper()
	sr, err := godal.NewSpatialRefFromEPSG(code)
	require.NoError(t, err)
	defer sr.Close()
	wkt, err := sr.WKT()
	require.NoError(t, err)
	return wkt
}

// writeRaster creates a square single-band GeoTIFF at 30 m resolution in
// EPSG:5070, anchored at (500000, 4000000).
func writeRaster(t *testing.T, path string, size int, fill float64) {
	t.Helper()
	gis.RegisterDrivers()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, size, size)
	require.NoError(t, err)

	require.NoError(t, ds.SetGeoTransform([6]float64{500000, 30, 0, 4000000, 0, -30}))

	sr, err := godal.NewSpatialRefFromEPSG(5070)
	require.NoError(t, err)
	defer sr.Close()
	require.NoError(t, ds.SetSpatialRef(sr))

	band := ds.Bands()[0]
	require.NoError(t, band.SetNoData(-9999))
	require.NoError(t, band.Fill(fill, 0))
	require.NoError(t, ds.Close())
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

func TestClipFireDatasetsRequiresPerimeter(t *testing.T) {
	c := clip.NewClipper(1000)
	result := c.ClipFireDatasets(context.Background(), "2021_fire", "", clip.SharedData{Soil: "soil.shp"}, t.TempDir())

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "No perimeter path provided")
	assert.Empty(t, result.ClippedPaths)
}

func TestClipVectorKeepsFeaturesInsidePerimeter(t *testing.T) {
	dir := t.TempDir()
	crs := wktForEPSG(t, 5070)

	perimeter := filepath.Join(dir, "perimeter.shp")
	require.NoError(t, gis.WritePolygonShapefile(perimeter, orb.Polygon{squareRing(500150, 3999550, 300)}, crs))

	inside := orb.Polygon{squareRing(500200, 3999600, 100)}
	outside := orb.Polygon{squareRing(510000, 3999600, 100)}
	soil := filepath.Join(dir, "soil.shp")
	require.NoError(t, gis.WritePolygonShapefile(soil, orb.MultiPolygon{inside, outside}, crs))

	output := filepath.Join(dir, "out", "soil_clipped.shp")
	c := clip.NewClipper(0)
	require.NoError(t, c.ClipVector(soil, perimeter, output, 0))

	layer, err := gis.ReadLayer(output)
	require.NoError(t, err)
	require.Len(t, layer.Features, 1)

	b := layer.Features[0].Geometry.Bound()
	assert.InDelta(t, 500200, b.Min[0], 0.01)
	assert.InDelta(t, 3999600, b.Min[1], 0.01)
	assert.InDelta(t, 500300, b.Max[0], 0.01)
	assert.InDelta(t, 3999700, b.Max[1], 0.01)
}

func TestClipRasterCropsToPerimeter(t *testing.T) {
	dir := t.TempDir()
	crs := wktForEPSG(t, 5070)

	raster := filepath.Join(dir, "evt.tif")
	writeRaster(t, raster, 20, 42)

	perimeter := filepath.Join(dir, "perimeter.shp")
	require.NoError(t, gis.WritePolygonShapefile(perimeter, orb.Polygon{squareRing(500150, 3999550, 300)}, crs))

	c := clip.NewClipper(0)

	cropped := filepath.Join(dir, "cropped.tif")
	require.NoError(t, c.ClipRaster(raster, perimeter, cropped, 0))

	info, err := gis.Describe(cropped)
	require.NoError(t, err)
	assert.Equal(t, 10, info.Width)
	assert.Equal(t, 10, info.Height)
	require.NotNil(t, info.NoData)
	assert.Equal(t, -9999.0, *info.NoData)

	buffered := filepath.Join(dir, "buffered.tif")
	require.NoError(t, c.ClipRaster(raster, perimeter, buffered, 60))

	wide, err := gis.Describe(buffered)
	require.NoError(t, err)
	assert.Greater(t, wide.Width, info.Width)
}

func TestClipVectorReprojectsToPerimeterCRS(t *testing.T) {
	dir := t.TempDir()

	perimeter := filepath.Join(dir, "perimeter.shp")
	require.NoError(t, gis.WritePolygonShapefile(perimeter, orb.Polygon{squareRing(-2600000, 1800000, 1000000)}, wktForEPSG(t, 5070)))

	// a small square in northern California, in degrees
	soil := filepath.Join(dir, "soil.shp")
	degrees := orb.Polygon{squareRing(-120.05, 40.0, 0.1)}
	require.NoError(t, gis.WritePolygonShapefile(soil, degrees, wktForEPSG(t, 4326)))

	output := filepath.Join(dir, "out", "soil_clipped.shp")
	c := clip.NewClipper(0)
	require.NoError(t, c.ClipVector(soil, perimeter, output, 0))

	layer, err := gis.ReadLayer(output)
	require.NoError(t, err)
	require.Len(t, layer.Features, 1)
	assert.Less(t, layer.Bounds.MaxX, -1000000.0, "coordinates should be meters after reprojection")
}

func TestClipFireDatasets(t *testing.T) {
	dir := t.TempDir()
	crs := wktForEPSG(t, 5070)

	perimeter := filepath.Join(dir, "perimeter.shp")
	require.NoError(t, gis.WritePolygonShapefile(perimeter, orb.Polygon{squareRing(500150, 3999550, 300)}, crs))

	soil := filepath.Join(dir, "soil.shp")
	require.NoError(t, gis.WritePolygonShapefile(soil, orb.Polygon{squareRing(500000, 3999400, 600)}, crs))

	evt := filepath.Join(dir, "evt.tif")
	writeRaster(t, evt, 20, 7)
	severity := filepath.Join(dir, "severity.tif")
	writeRaster(t, severity, 20, 3)

	output := filepath.Join(dir, "clipped")
	c := clip.NewClipper(100)
	result := c.ClipFireDatasets(context.Background(), "2021_river_complex", perimeter,
		clip.SharedData{Soil: soil, EVT: evt, Severity: severity}, output)

	require.Empty(t, result.Errors)
	assert.True(t, result.Success)

	expected := map[string]string{
		clip.DatasetSoil:     "soil_clipped.shp",
		clip.DatasetEVT:      "evt_clipped.tif",
		clip.DatasetSeverity: "severity_clipped.tif",
	}
	for role, name := range expected {
		path, ok := result.ClippedPaths[role]
		require.True(t, ok, "missing clipped path for %s", role)
		assert.Equal(t, filepath.Join(output, "2021_river_complex", "clipped", name), path)
		assert.FileExists(t, path)
	}
}

func TestClipFireDatasetsCollectsFailures(t *testing.T) {
	dir := t.TempDir()
	crs := wktForEPSG(t, 5070)

	perimeter := filepath.Join(dir, "perimeter.shp")
	require.NoError(t, gis.WritePolygonShapefile(perimeter, orb.Polygon{squareRing(500150, 3999550, 300)}, crs))

	severity := filepath.Join(dir, "severity.tif")
	writeRaster(t, severity, 20, 3)

	output := filepath.Join(dir, "clipped")
	c := clip.NewClipper(100)
	shared := clip.SharedData{Soil: filepath.Join(dir, "missing.shp"), Severity: severity}
	result := c.ClipFireDatasets(context.Background(), "2021_river_complex", perimeter, shared, output)

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "Failed to clip soil data")
	assert.Contains(t, result.ClippedPaths, clip.DatasetSeverity)
	assert.NotContains(t, result.ClippedPaths, clip.DatasetSoil)
}

func TestClipFireDatasetsStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := clip.NewClipper(0)
	result := c.ClipFireDatasets(ctx, "2021_fire", "perimeter.shp", clip.SharedData{Severity: "severity.tif"}, t.TempDir())

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, context.Canceled.Error(), result.Errors[0])
}
