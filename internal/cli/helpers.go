package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	apiserver "github.com/firesci/debrisflow/internal/api_server"
	"github.com/firesci/debrisflow/internal/assess"
	"github.com/firesci/debrisflow/internal/assets"
	"github.com/firesci/debrisflow/internal/config"
	"github.com/firesci/debrisflow/internal/inventory"
	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/raster"
	"github.com/firesci/debrisflow/internal/report"
	"github.com/firesci/debrisflow/internal/store"
)

// openStore connects the status database from the environment config and
// applies any pending migrations.
func openStore() (store.Store, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	s := store.NewStore(db)
	if err := s.InitialMigration(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// newBlobStore dials the object store from the environment config.
func newBlobStore() (assets.BlobStore, *config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	bs, err := assets.NewMinioStore(
		assets.WithEndpoint(cfg.Store.Endpoint),
		assets.WithBucket(cfg.Store.Bucket),
		assets.WithAccessKey(cfg.Store.AccessKey),
		assets.WithSecretKey(cfg.Store.SecretKey),
		assets.WithSSL(cfg.Store.UseSSL),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting object store: %w", err)
	}
	return bs, cfg, nil
}

// scanInventory walks the fire archive named by the pipeline config.
func scanInventory(ctx context.Context, cfg *config.Pipeline) (inventory.Inventory, error) {
	return inventory.NewOrganizer(cfg.InputRoot).Scan(ctx, cfg.Years)
}

// completeFires lists the fires ready for assessment in stable ID order,
// honoring the configured fire cap.
func completeFires(inv inventory.Inventory, maxFires int) []*inventory.Fire {
	var fires []*inventory.Fire
	for _, id := range inv.SortedIDs() {
		if fire := inv[id]; fire.Complete() {
			fires = append(fires, fire)
		}
	}
	if maxFires > 0 && len(fires) > maxFires {
		fires = fires[:maxFires]
	}
	return fires
}

// adoptDownloadedDEMs points fires lacking a local DEM at their downloaded
// elevation mosaic when one exists under the output root.
func adoptDownloadedDEMs(inv inventory.Inventory, outputRoot string) {
	for _, fire := range inv {
		if fire.HasDEM() {
			continue
		}
		dem := assets.DemPath(outputRoot, fire.ID)
		if _, err := os.Stat(dem); err == nil {
			fire.DEMPath = dem
		}
	}
}

// severityMosaic resolves the per-year burn severity mosaic, or "" when the
// year has none.
func severityMosaic(severityDir, year string) string {
	if severityDir == "" {
		return ""
	}
	path := filepath.Join(severityDir, fmt.Sprintf("mtbs_CA_%s.tif", year))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// classifyAll buckets every generated probability raster into hazard
// classes, returning the number of classification rasters written.
func classifyAll(rasters map[string][]string) int {
	classified := 0
	for _, paths := range rasters {
		for _, p := range paths {
			if err := raster.ClassifyHazards(p, raster.ClassifiedPath(p)); err != nil {
				zap.S().Named("cli").Warnw("hazard classification failed", "raster", p, "error", err)
				continue
			}
			classified++
		}
	}
	return classified
}

// renderHazardMaps draws a PNG for every classified raster of a completed
// fire. Fires without a done result and scenarios without a classification
// raster are skipped quietly.
func renderHazardMaps(cfg *config.Pipeline, reporter *report.Reporter, projects []project.Project, results map[string]assess.Result) int {
	rendered := 0
	for _, proj := range projects {
		result, ok := results[proj.FireID]
		if !ok || result.State != assess.StateDone {
			continue
		}
		for _, column := range cfg.Scenarios {
			classPath := raster.ClassifiedPath(raster.ProbabilityPath(cfg.RastersRoot, proj.FireID, column))
			if _, err := os.Stat(classPath); err != nil {
				continue
			}
			if err := report.RenderHazardMap(classPath, reporter.HazardMapPath(proj.FireID, column)); err != nil {
				zap.S().Named("cli").Warnw("map rendering failed",
					"fire_id", proj.FireID, "column", column, "error", err)
				continue
			}
			rendered++
		}
	}
	return rendered
}

// maybeServeMetrics exposes /metrics for the duration of the run when the
// environment configures a listen address.
func maybeServeMetrics(ctx context.Context, st store.Store) {
	cfg, err := config.New()
	if err != nil {
		zap.S().Named("cli").Warnw("skipping metrics listener", "error", err)
		return
	}
	if cfg.Service.MetricsAddress == "" {
		return
	}
	listener, err := newListener(cfg.Service.MetricsAddress)
	if err != nil {
		zap.S().Named("cli").Warnw("skipping metrics listener",
			"address", cfg.Service.MetricsAddress, "error", err)
		return
	}
	server := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener, st)
	go func() {
		if err := server.Run(ctx); err != nil {
			zap.S().Named("cli").Errorw("metrics server failed", "error", err)
		}
	}()
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
