package inventory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/firesci/debrisflow/internal/config"
	"github.com/firesci/debrisflow/internal/inventory"
	"github.com/firesci/debrisflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestScanClassifiesRoles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2021/dixie/ca_123_burn_bndy.shp": "shp",
		"2021/dixie/ca_123_burn_bndy.prj": "prj",
		"2021/dixie/ca_123_dnbr.tif":      "dnbr",
		"2021/dixie/raster/ca_123_dem.tif": "dem",
		"2021/dixie/ca_123_metadata.xml":  "xml",
	})

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, inv, 1)

	fire := inv["2021_dixie"]
	require.NotNil(t, fire)
	assert.Equal(t, "2021", fire.Year)
	assert.Equal(t, "dixie", fire.Name)
	assert.Equal(t, filepath.Join(root, "2021", "dixie"), fire.Folder)
	assert.Equal(t, filepath.Join(fire.Folder, "ca_123_burn_bndy.shp"), fire.PerimeterPath)
	assert.Equal(t, filepath.Join(fire.Folder, "ca_123_dnbr.tif"), fire.DNBRPath)
	assert.Equal(t, filepath.Join(fire.Folder, "raster", "ca_123_dem.tif"), fire.DEMPath)
	assert.Equal(t, filepath.Join(fire.Folder, "ca_123_metadata.xml"), fire.MetadataPath)
	assert.True(t, fire.Complete())
	assert.Empty(t, fire.Conflicts)
}

func TestScanSkipsHiddenFoldersAndFilesWithWrongExtension(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2021/.cache/ca_999_dem.tif":       "hidden",
		"2021/creek/ca_55_burn_bndy.shp.xml": "sidecar",
		"2021/creek/notes.txt":             "notes",
	})

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, inv, 1)

	fire := inv["2021_creek"]
	require.NotNil(t, fire)
	assert.False(t, fire.HasPerimeter())
	assert.False(t, fire.HasMetadata())
	assert.False(t, fire.Complete())
}

func TestScanRecordsConflictsInsteadOfLastWins(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2020/august/a_dnbr.tif":          "one",
		"2020/august/b_dnbr.tif":          "two",
		"2020/august/a_burn_bndy.shp":     "shp",
		"2020/august/sub/a_dem.tif":       "dem",
	})

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), nil)
	require.NoError(t, err)

	fire := inv["2020_august"]
	require.NotNil(t, fire)
	assert.False(t, fire.HasDNBR())
	assert.False(t, fire.Complete())
	require.Len(t, fire.Conflicts, 1)
	assert.Equal(t, inventory.RoleDNBR, fire.Conflicts[0].Role)
	assert.Len(t, fire.Conflicts[0].Candidates, 2)
}

func TestClassificationPrecedence(t *testing.T) {
	// A name matching both dnbr and dem rules binds the earlier role only.
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2020/august/ca_dem_dnbr.tif": "x",
	})

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), nil)
	require.NoError(t, err)

	fire := inv["2020_august"]
	require.NotNil(t, fire)
	assert.True(t, fire.HasDNBR())
	assert.False(t, fire.HasDEM())
}

func TestScanIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2021/dixie/ca_123_burn_bndy.shp": "shp",
		"2021/dixie/ca_123_dnbr.tif":      "dnbr",
		"2021/dixie/ca_123_dem.tif":       "dem",
		"2020/creek/ca_55_dnbr.tif":       "dnbr",
	})

	organizer := inventory.NewOrganizer(root)
	first, err := organizer.Scan(context.Background(), nil)
	require.NoError(t, err)
	second, err := organizer.Scan(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScanComputesFolderSize(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2021", "dixie"), 0755))
	payload := make([]byte, 1024*1024)
	require.NoError(t, os.WriteFile(filepath.Join(root, "2021", "dixie", "ca_123_dem.tif"), payload, 0644))

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, inv["2021_dixie"].SizeMB, 0.01)
}

func TestScanFiltersYears(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2020/creek/a_dem.tif": "x",
		"2021/dixie/a_dem.tif": "x",
	})

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), []string{"2021", "1999"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2021_dixie"}, inv.SortedIDs())
}

func TestCheckCompleteness(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2021/dixie/a_burn_bndy.shp": "shp",
		"2021/dixie/a_dnbr.tif":      "dnbr",
		"2021/dixie/a_dem.tif":       "dem",
		"2021/creek/a_dnbr.tif":      "dnbr",
	})

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), nil)
	require.NoError(t, err)

	report := inventory.CheckCompleteness(inv)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, []string{"2021_dixie"}, report.Complete)
	assert.Equal(t, []string{"2021_creek"}, report.MissingPerimeter)
	assert.Equal(t, []string{"2021_creek"}, report.MissingDEM)
	assert.Empty(t, report.MissingDNBR)
}

func TestSyncStore(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"2021/dixie/a_burn_bndy.shp": "shp",
		"2021/dixie/a_dnbr.tif":      "dnbr",
		"2021/dixie/a_dem.tif":       "dem",
	})

	inv, err := inventory.NewOrganizer(root).Scan(context.Background(), nil)
	require.NoError(t, err)

	db, err := store.InitDB(config.NewDefault())
	require.NoError(t, err)
	s := store.NewStore(db)
	defer s.Close()
	require.NoError(t, s.InitialMigration())

	require.NoError(t, inventory.SyncStore(context.Background(), s, inv))

	stored, err := s.Fire().Get(context.Background(), "2021_dixie")
	require.NoError(t, err)
	assert.True(t, stored.Complete)
	assert.Equal(t, inv["2021_dixie"].PerimeterPath, stored.PerimeterPath)

	// second sync updates rather than duplicating
	require.NoError(t, inventory.SyncStore(context.Background(), s, inv))
	fires, err := s.Fire().List(context.Background(), store.NewFireQueryFilter())
	require.NoError(t, err)
	assert.Len(t, fires, 1)
}
