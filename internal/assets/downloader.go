package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/lthibault/jitterbug/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/firesci/debrisflow/internal/fileio"
	"github.com/firesci/debrisflow/pkg/gis"
	"github.com/firesci/debrisflow/pkg/metrics"
)

const (
	DefaultBufferMeters = 5000.0
	DefaultPollInterval = 2 * time.Second
	DefaultAwaitTimeout = 10 * time.Minute

	maxPollInterval = 30 * time.Second
	presignExpiry   = 15 * time.Minute
)

// DownloadResult is the terminal outcome of one fire's DEM download.
type DownloadResult struct {
	FireID     string
	OutputPath string
	SizeMB     float64
	Tiles      int
	Status     string
	Error      string
}

type DownloadSummary struct {
	Successful int
	Failed     int
	Results    []DownloadResult
}

// TileIndex describes the elevation tile set: where each tile lives in the
// store and the ground extent it covers, in the index CRS.
type TileIndex struct {
	CRS   string `json:"crs"`
	Tiles []Tile `json:"tiles"`
}

type Tile struct {
	Key  string  `json:"key"`
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (t Tile) Bounds() gis.Bounds {
	return gis.Bounds{MinX: t.MinX, MinY: t.MinY, MaxX: t.MaxX, MaxY: t.MaxY}
}

// Intersecting returns the tiles whose extent overlaps the query bounds.
func (ti *TileIndex) Intersecting(b gis.Bounds) []Tile {
	var out []Tile
	for _, tile := range ti.Tiles {
		if tile.Bounds().Intersects(b) {
			out = append(out, tile)
		}
	}
	return out
}

// DownloadConfig carries the tunables of the DEM download stage. Zero values
// take defaults.
type DownloadConfig struct {
	BasePath     string
	DemPrefix    string
	BufferMeters float64
	Workers      int
	PollInterval time.Duration
	AwaitTimeout time.Duration
}

// Downloader pulls per-fire elevation mosaics out of the object store: it
// waits for the fire's perimeter asset, buffers its bounds, selects the
// intersecting elevation tiles and crops their mosaic to the buffered extent.
type Downloader struct {
	store        BlobStore
	basePath     string
	demPrefix    string
	bufferMeters float64
	workers      int
	pollInterval time.Duration
	awaitTimeout time.Duration
	tracker      *Tracker
	writer       *fileio.Writer

	mu    sync.Mutex
	index *TileIndex
}

// NewDownloader returns a downloader reading assets written by the uploader.
// A nil tracker makes every await poll the store instead.
func NewDownloader(store BlobStore, cfg DownloadConfig, tracker *Tracker) *Downloader {
	if cfg.BufferMeters <= 0 {
		cfg.BufferMeters = DefaultBufferMeters
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = DefaultAwaitTimeout
	}

	return &Downloader{
		store:        store,
		basePath:     cfg.BasePath,
		demPrefix:    cfg.DemPrefix,
		bufferMeters: cfg.BufferMeters,
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		awaitTimeout: cfg.AwaitTimeout,
		tracker:      tracker,
		writer:       fileio.NewWriter(),
	}
}

// DemPath is the per-fire elevation output location:
// {output}/{year}/{fire}/inputs/{fire}_dem.tif.
func DemPath(outputRoot, fireID string) string {
	year := strings.SplitN(fireID, "_", 2)[0]
	return filepath.Join(outputRoot, year, fireID, "inputs", fireID+"_dem.tif")
}

// DownloadAll pulls a DEM for every fire with a bounded worker pool.
// Failures are isolated per fire.
func (d *Downloader) DownloadAll(ctx context.Context, fireIDs []string, outputRoot string) DownloadSummary {
	var (
		mu      sync.Mutex
		summary DownloadSummary
	)

	g := errgroup.Group{}
	g.SetLimit(d.workers)

	for _, fireID := range fireIDs {
		g.Go(func() error {
			result := d.DownloadDEM(ctx, fireID, outputRoot)
			metrics.IncreaseAssetTransfersTotalMetric("download", result.Status)

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

	zap.S().Named("assets").Infow("dem download finished",
		"successful", summary.Successful, "failed", summary.Failed)
	return summary
}

// DownloadDEM produces the cropped elevation mosaic for one fire.
func (d *Downloader) DownloadDEM(ctx context.Context, fireID, outputRoot string) DownloadResult {
	key := AssetKey(d.basePath, fireID)

	if err := d.awaitAsset(ctx, fireID, key); err != nil {
		return d.fail(fireID, err)
	}

	bounds, crs, err := d.perimeterBounds(ctx, key)
	if err != nil {
		return d.fail(fireID, fmt.Errorf("reading perimeter asset: %w", err))
	}
	buffered := bounds.Buffer(d.bufferMeters)

	index, err := d.tileIndex(ctx)
	if err != nil {
		return d.fail(fireID, err)
	}

	target := buffered
	if crs != "" && index.CRS != "" && !gis.SameCRS(crs, index.CRS) {
		target, err = gis.TransformBounds(buffered, crs, index.CRS)
		if err != nil {
			return d.fail(fireID, fmt.Errorf("transforming query bounds: %w", err))
		}
	}

	tiles := index.Intersecting(target)
	if len(tiles) == 0 {
		return d.fail(fireID, fmt.Errorf("no elevation tiles intersect %s", target))
	}

	scratch, err := os.MkdirTemp("", "debrisflow-dem")
	if err != nil {
		return d.fail(fireID, err)
	}
	defer os.RemoveAll(scratch)

	tileFiles := make([]string, 0, len(tiles))
	for i, tile := range tiles {
		dst := filepath.Join(scratch, fmt.Sprintf("tile_%d.tif", i))
		if err := d.fetchTile(ctx, tile, dst); err != nil {
			return d.fail(fireID, fmt.Errorf("fetching tile %s: %w", tile.Key, err))
		}
		tileFiles = append(tileFiles, dst)
	}

	output := DemPath(outputRoot, fireID)
	if err := mosaicTiles(scratch, tileFiles, target, output); err != nil {
		return d.fail(fireID, err)
	}

	sizeMB := 0.0
	if st, err := os.Stat(output); err == nil {
		sizeMB = float64(st.Size()) / (1024 * 1024)
	}

	zap.S().Named("assets").Infow("downloaded dem",
		"fire", fireID, "tiles", len(tiles), "output", output, "size_mb", sizeMB)
	return DownloadResult{
		FireID:     fireID,
		OutputPath: output,
		SizeMB:     sizeMB,
		Tiles:      len(tiles),
		Status:     StatusDownloaded,
	}
}

func (d *Downloader) fail(fireID string, err error) DownloadResult {
	zap.S().Named("assets").Errorw("failed to download dem", "fire", fireID, "error", err)
	return DownloadResult{FireID: fireID, Status: StatusFailed, Error: err.Error()}
}

// awaitAsset blocks until the fire's perimeter asset is known to exist:
// through the tracker when the upload stage ran in this process, otherwise
// by polling the store with jittered, capped backoff.
func (d *Downloader) awaitAsset(ctx context.Context, fireID, key string) error {
	ctx, cancel := context.WithTimeout(ctx, d.awaitTimeout)
	defer cancel()

	if d.tracker != nil && d.tracker.Known(fireID) {
		result, err := d.tracker.Await(ctx, fireID)
		if err != nil {
			return fmt.Errorf("waiting for upload of %s: %w", fireID, err)
		}
		if result.Status == StatusFailed {
			return fmt.Errorf("upload of %s failed: %s", fireID, result.Error)
		}
		return nil
	}

	ticker := jitterbug.New(d.pollInterval, &backoff{
		norm: jitterbug.Norm{Stdev: 500 * time.Millisecond},
		next: d.pollInterval,
		cap:  maxPollInterval,
	})
	defer ticker.Stop()

	for {
		exists, err := d.store.Exists(ctx, key)
		if err == nil && exists {
			return nil
		}
		if err != nil {
			zap.S().Named("assets").Debugw("asset probe failed", "key", key, "error", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for asset %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// perimeterBounds fetches the perimeter asset and returns the union extent
// of its geometries plus the CRS recorded by the uploader.
func (d *Downloader) perimeterBounds(ctx context.Context, key string) (gis.Bounds, string, error) {
	rc, _, err := d.store.Get(ctx, key)
	if err != nil {
		return gis.Bounds{}, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return gis.Bounds{}, "", err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return gis.Bounds{}, "", fmt.Errorf("decoding perimeter geojson: %w", err)
	}

	var bound orb.Bound
	found := false
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if !found {
			bound = f.Geometry.Bound()
			found = true
			continue
		}
		bound = bound.Union(f.Geometry.Bound())
	}
	if !found {
		return gis.Bounds{}, "", fmt.Errorf("perimeter asset %s holds no geometries", key)
	}

	return gis.BoundsFromOrb(bound), geojsonCRS(fc), nil
}

func geojsonCRS(fc *geojson.FeatureCollection) string {
	crs, ok := fc.ExtraMembers["crs"].(map[string]interface{})
	if !ok {
		return ""
	}
	props, ok := crs["properties"].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := props["name"].(string)
	return name
}

// tileIndex loads {demPrefix}/index.json once and reuses it across the
// batch. A failed load is retried by the next caller.
func (d *Downloader) tileIndex(ctx context.Context) (*TileIndex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.index != nil {
		return d.index, nil
	}

	rc, _, err := d.store.Get(ctx, path.Join(d.demPrefix, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("fetching tile index: %w", err)
	}
	defer rc.Close()

	var index TileIndex
	if err := json.NewDecoder(rc).Decode(&index); err != nil {
		return nil, fmt.Errorf("decoding tile index: %w", err)
	}

	d.index = &index
	return d.index, nil
}

// fetchTile streams one elevation tile to disk through a presigned URL.
func (d *Downloader) fetchTile(ctx context.Context, tile Tile, dst string) error {
	href, err := d.store.PresignURL(ctx, tile.Key, presignExpiry)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	totalSize := int64(0)
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		totalSize = n
	}

	newCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pw := newProgress(newCtx, tile.Key, totalSize)

	if err := d.writer.WriteStreamToFile(dst, io.TeeReader(resp.Body, pw)); err != nil {
		return err
	}

	if received := pw.bytes.Load(); totalSize > 0 && received != totalSize {
		return fmt.Errorf("failed to download the entire tile. expected bytes %d received %d", totalSize, received)
	}
	return nil
}

// mosaicTiles assembles the downloaded tiles into a VRT and crops it to the
// buffered extent as a deflate-compressed GeoTIFF.
func mosaicTiles(scratch string, tileFiles []string, bounds gis.Bounds, outputPath string) error {
	gis.RegisterDrivers()

	vrt, err := godal.BuildVRT(filepath.Join(scratch, "mosaic.vrt"), tileFiles, nil)
	if err != nil {
		return fmt.Errorf("building mosaic: %w", err)
	}
	defer vrt.Close()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}

	switches := []string{
		"-te", formatCoord(bounds.MinX), formatCoord(bounds.MinY), formatCoord(bounds.MaxX), formatCoord(bounds.MaxY),
		"-of", "GTiff",
		"-co", "COMPRESS=DEFLATE",
	}
	out, err := vrt.Warp(outputPath, switches)
	if err != nil {
		return fmt.Errorf("cropping mosaic: %w", err)
	}
	return out.Close()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// progress counts bytes moving through a transfer and periodically logs
// throughput while the transfer runs.
type progress struct {
	key   string
	total int64
	bytes atomic.Int64
}

func newProgress(ctx context.Context, key string, total int64) *progress {
	p := &progress{key: key, total: total}
	go p.start(ctx)
	return p
}

func (p *progress) start(ctx context.Context) {
	oldValue := int64(0)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			downloaded := p.bytes.Load()
			if p.total == 0 {
				zap.S().Named("assets").Debugw("tile downloading", "key", p.key,
					"progress", fmt.Sprintf("%.2f Mb", float32(downloaded)/(1024*1024)))
				continue
			}

			zap.S().Named("assets").Debugw("tile downloading", "key", p.key,
				"progress", fmt.Sprintf("%.2f%%", 100*(float32(downloaded)/float32(p.total))),
				"rate", fmt.Sprintf("%.2f MB/s", (float32(downloaded)-float32(oldValue))/(1024*1024*10)))
			oldValue = downloaded
		}
	}
}

func (p *progress) Write(b []byte) (int, error) {
	p.bytes.Add(int64(len(b)))
	return len(b), nil
}
