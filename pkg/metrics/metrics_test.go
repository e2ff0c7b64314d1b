package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firesci/debrisflow/internal/store"
	"github.com/firesci/debrisflow/internal/store/model"
	"github.com/firesci/debrisflow/pkg/metrics"
)

type stubStore struct {
	mu    sync.Mutex
	stats model.ArchiveStats
	err   error
}

func (s *stubStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}
func (s *stubStore) Statistics(context.Context) (model.ArchiveStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.err
}
func (s *stubStore) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
func (s *stubStore) Fire() store.Fire         { return nil }
func (s *stubStore) StageRun() store.StageRun { return nil }
func (s *stubStore) InitialMigration() error  { return nil }
func (s *stubStore) Close() error             { return nil }

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// The handler registers the archive collector in the default registry, so it
// is built exactly once for the whole test binary.
func TestPrometheusMetricsHandler(t *testing.T) {
	stub := &stubStore{stats: model.ArchiveStats{
		TotalFires:    3,
		TotalComplete: 2,
		TotalSizeMB:   512.5,
		TotalByYear:   map[string]int{"2020": 1, "2021": 2},
	}}

	handler := metrics.NewPrometheusMetricsHandler(stub)
	srv := httptest.NewServer(handler.Handler())
	defer srv.Close()

	metrics.IncreaseStageRunsTotalMetric("assess", "succeeded")
	metrics.IncreaseStageRunsTotalMetric("assess", "failed")
	metrics.ObserveStageDurationMetric("assess", 2.5)
	metrics.IncreaseAssetTransfersTotalMetric("upload", "uploaded")
	metrics.IncreaseAssetTransfersTotalMetric("download", "failed")
	metrics.UpdateAvailableMemoryMetric(12.5)

	body := scrape(t, srv.URL)

	assert.Contains(t, body, `debris_flow_stage_runs_total{stage="assess",state="succeeded"} 1`)
	assert.Contains(t, body, `debris_flow_stage_runs_total{stage="assess",state="failed"} 1`)
	assert.Contains(t, body, `debris_flow_stage_duration_seconds_count{stage="assess"} 1`)
	assert.Contains(t, body, `debris_flow_asset_transfers_total{direction="upload",state="uploaded"} 1`)
	assert.Contains(t, body, `debris_flow_asset_transfers_total{direction="download",state="failed"} 1`)
	assert.Contains(t, body, "debris_flow_available_memory_gb 12.5")

	assert.Contains(t, body, "debris_flow_archive_fires_total 3")
	assert.Contains(t, body, "debris_flow_archive_fires_complete_total 2")
	assert.Contains(t, body, "debris_flow_archive_size_mb 512.5")
	assert.Contains(t, body, `debris_flow_archive_fires_by_year_total{year="2020"} 1`)
	assert.Contains(t, body, `debris_flow_archive_fires_by_year_total{year="2021"} 2`)

	// a failing store drops the archive section from the scrape
	stub.setError(errors.New("connection refused"))
	body = scrape(t, srv.URL)
	assert.NotContains(t, body, "debris_flow_archive_fires_total")
	assert.Contains(t, body, `debris_flow_stage_runs_total{stage="assess",state="succeeded"} 1`)
}
