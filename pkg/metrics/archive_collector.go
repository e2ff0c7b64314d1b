package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/store"
)

type archiveStatsCollector struct {
	store         store.Store
	totalFires    *prometheus.Desc
	totalComplete *prometheus.Desc
	totalSizeMB   *prometheus.Desc
	firesByYear   *prometheus.Desc
}

func newArchiveStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_archive_%s", debrisFlow, name)
	}

	return &archiveStatsCollector{
		store: s,
		totalFires: prometheus.NewDesc(
			fqName("fires_total"),
			"Total number of inventoried fires.",
			nil,
			prometheus.Labels{},
		),
		totalComplete: prometheus.NewDesc(
			fqName("fires_complete_total"),
			"Total number of fires with a complete input set.",
			nil,
			prometheus.Labels{},
		),
		totalSizeMB: prometheus.NewDesc(
			fqName("size_mb"),
			"Combined size of the fire input folders in megabytes.",
			nil,
			prometheus.Labels{},
		),
		firesByYear: prometheus.NewDesc(
			fqName("fires_by_year_total"),
			"Total fires by fire year",
			[]string{"year"},
			prometheus.Labels{},
		),
	}
}

func (c *archiveStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalFires
	ch <- c.totalComplete
	ch <- c.totalSizeMB
	ch <- c.firesByYear
}

// Collect implements Collector.
func (c *archiveStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.store.Statistics(context.Background())
	if err != nil {
		zap.S().Named("archive_collector").Errorf("failed to collect archive statistics: %s", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.totalFires, prometheus.GaugeValue, float64(stats.TotalFires))
	ch <- prometheus.MustNewConstMetric(c.totalComplete, prometheus.GaugeValue, float64(stats.TotalComplete))
	ch <- prometheus.MustNewConstMetric(c.totalSizeMB, prometheus.GaugeValue, stats.TotalSizeMB)

	for year, total := range stats.TotalByYear {
		ch <- prometheus.MustNewConstMetric(c.firesByYear, prometheus.GaugeValue, float64(total), year)
	}
}
