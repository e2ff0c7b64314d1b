package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firesci/debrisflow/internal/store"
)

// PrometheusMetricsHandler serves the default registry plus a collector that
// reads archive statistics from the store at scrape time.
type PrometheusMetricsHandler struct {
	handler http.Handler
}

func NewPrometheusMetricsHandler(s store.Store) *PrometheusMetricsHandler {
	prometheus.MustRegister(newArchiveStatsCollector(s))
	return &PrometheusMetricsHandler{handler: promhttp.Handler()}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return h.handler
}
