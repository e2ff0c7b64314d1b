// Package assets moves fire perimeters to the remote geospatial object store
// and pulls elevation data back for each fire. Uploads and downloads are
// keyed by a deterministic per-fire asset identifier, so both stages derive
// the same key independently.
package assets

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Terminal statuses of a single upload or download.
const (
	StatusUploaded      = "uploaded"
	StatusAlreadyExists = "already_exists"
	StatusDownloaded    = "downloaded"
	StatusFailed        = "failed"
)

// BlobStore is the slice of the object store the pipeline uses. The minio
// client implements it; tests swap in an in-memory store.
type BlobStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Perimeter is one fire's upload work item.
type Perimeter struct {
	FireID string
	Path   string
}

// AssetKey derives the object key for a fire's perimeter asset. The same
// fire always maps to the same key, which is what makes uploads idempotent
// and lets the downloader find assets without coordination.
func AssetKey(basePath, fireID string) string {
	year := strings.SplitN(fireID, "_", 2)[0]
	name := strings.ToLower(fireID)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return fmt.Sprintf("%s/%s/%s", basePath, year, name)
}
