package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/firesci/debrisflow/pkg/gis"
	"github.com/firesci/debrisflow/pkg/metrics"
)

const (
	DefaultWorkers = 5

	geoJSONContentType = "application/geo+json"
)

// UploadResult is the terminal outcome of one fire's perimeter upload.
type UploadResult struct {
	FireID   string
	AssetKey string
	TaskID   string
	Status   string
	Error    string
}

type UploadSummary struct {
	Successful int
	Failed     int
	Results    []UploadResult
}

// Uploader pushes perimeter shapefiles to the object store as GeoJSON.
type Uploader struct {
	store    BlobStore
	basePath string
	workers  int
	tracker  *Tracker
}

// NewUploader returns an uploader writing under basePath. A nil tracker is
// fine when no download stage runs in the same process.
func NewUploader(store BlobStore, basePath string, workers int, tracker *Tracker) *Uploader {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Uploader{store: store, basePath: basePath, workers: workers, tracker: tracker}
}

// UploadPerimeter converts one fire's perimeter shapefile to GeoJSON and
// stores it under the fire's asset key. An object already present under the
// key reports already_exists without re-uploading.
func (u *Uploader) UploadPerimeter(ctx context.Context, fireID, perimeterPath string) UploadResult {
	log := zap.S().Named("assets")
	key := AssetKey(u.basePath, fireID)

	exists, err := u.store.Exists(ctx, key)
	if err != nil {
		log.Errorw("failed to check asset", "fire", fireID, "key", key, "error", err)
		return UploadResult{FireID: fireID, AssetKey: key, Status: StatusFailed, Error: err.Error()}
	}
	if exists {
		log.Infow("asset already exists", "fire", fireID, "key", key)
		return UploadResult{FireID: fireID, AssetKey: key, Status: StatusAlreadyExists}
	}

	payload, err := perimeterGeoJSON(perimeterPath)
	if err != nil {
		log.Errorw("failed to encode perimeter", "fire", fireID, "error", err)
		return UploadResult{FireID: fireID, AssetKey: key, Status: StatusFailed, Error: err.Error()}
	}

	if err := u.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), geoJSONContentType); err != nil {
		log.Errorw("failed to upload perimeter", "fire", fireID, "key", key, "error", err)
		return UploadResult{FireID: fireID, AssetKey: key, Status: StatusFailed, Error: err.Error()}
	}

	log.Infow("uploaded perimeter", "fire", fireID, "key", key, "bytes", len(payload))
	return UploadResult{FireID: fireID, AssetKey: key, TaskID: uuid.NewString(), Status: StatusUploaded}
}

// UploadAll pushes every perimeter with a bounded worker pool. Failures are
// isolated per fire; every outcome is resolved into the tracker when one is
// attached.
func (u *Uploader) UploadAll(ctx context.Context, perimeters []Perimeter) UploadSummary {
	if u.tracker != nil {
		for _, p := range perimeters {
			u.tracker.Expect(p.FireID)
		}
	}

	var (
		mu      sync.Mutex
		summary UploadSummary
	)

	g := errgroup.Group{}
	g.SetLimit(u.workers)

	for _, p := range perimeters {
		g.Go(func() error {
			result := u.UploadPerimeter(ctx, p.FireID, p.Path)
			if u.tracker != nil {
				u.tracker.Resolve(result)
			}

			metrics.IncreaseAssetTransfersTotalMetric("upload", result.Status)

			mu.Lock()
			defer mu.Unlock()
			summary.Results = append(summary.Results, result)
			if result.Status == StatusFailed {
				summary.Failed++
			} else {
				summary.Successful++
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.S().Named("assets").Infow("perimeter upload finished",
		"successful", summary.Successful, "failed", summary.Failed)
	return summary
}

// perimeterGeoJSON loads a perimeter shapefile into a FeatureCollection. The
// layer CRS travels along as a top-level crs member so the download stage
// can interpret the coordinates.
func perimeterGeoJSON(path string) ([]byte, error) {
	layer, err := gis.ReadLayer(path)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range layer.Features {
		if f.Geometry == nil {
			continue
		}
		feature := geojson.NewFeature(f.Geometry)
		for k, v := range f.Attributes {
			feature.Properties[k] = v
		}
		fc.Append(feature)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("no features in %s", path)
	}

	if crs := crsName(layer.CRS); crs != "" {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]interface{}{
				"type":       "name",
				"properties": map[string]interface{}{"name": crs},
			},
		}
	}

	return json.Marshal(fc)
}

// crsName prefers the compact authority code, falling back to the raw
// definition text.
func crsName(def string) string {
	if code := gis.AuthorityCode(def); code != "" {
		return code
	}
	return def
}
