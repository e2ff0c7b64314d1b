package assess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/store"
	"github.com/firesci/debrisflow/internal/store/model"
	"github.com/firesci/debrisflow/pkg/metrics"
)

// Batch order policies.
const (
	OrderSizeAsc  = "size-asc"
	OrderSizeDesc = "size-desc"
	OrderName     = "name"
)

var OrderPolicies = []string{OrderSizeAsc, OrderSizeDesc, OrderName}

const DefaultMemoryThresholdGB = 2.0

// BatchConfig carries the orchestrator tunables.
type BatchConfig struct {
	Order             string
	SkipExisting      bool
	MemoryThresholdGB float64
}

type BatchSummary struct {
	Results      []Result
	Successful   int
	Skipped      int
	MemoryErrors int
	OtherErrors  int
	TotalSecs    float64
}

// Orchestrator runs a batch of fires strictly sequentially. Individual
// failures never abort the batch; memory failures are counted apart so a
// summary can tell exhaustion from bad data.
type Orchestrator struct {
	runner      FireRunner
	store       store.Store
	sampler     MemorySampler
	order       string
	skipExists  bool
	thresholdGB float64
}

func NewOrchestrator(runner FireRunner, st store.Store, sampler MemorySampler, cfg BatchConfig) *Orchestrator {
	if cfg.Order == "" {
		cfg.Order = OrderSizeAsc
	}
	if cfg.MemoryThresholdGB <= 0 {
		cfg.MemoryThresholdGB = DefaultMemoryThresholdGB
	}
	return &Orchestrator{
		runner:      runner,
		store:       st,
		sampler:     sampler,
		order:       cfg.Order,
		skipExists:  cfg.SkipExisting,
		thresholdGB: cfg.MemoryThresholdGB,
	}
}

// SortProjects returns a copy of the batch ordered per policy. Size
// ascending is the default: small fires surface data problems early and
// leave the most memory headroom for the large ones at the end.
func SortProjects(projects []project.Project, order string) []project.Project {
	ordered := make([]project.Project, len(projects))
	copy(ordered, projects)

	switch order {
	case OrderSizeDesc:
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SizeMB > ordered[j].SizeMB })
	case OrderName:
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].FireID < ordered[j].FireID })
	default:
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SizeMB < ordered[j].SizeMB })
	}
	return ordered
}

// RunBatch assesses every project in policy order. A canceled context stops
// the batch at the next fire boundary.
func (o *Orchestrator) RunBatch(ctx context.Context, projects []project.Project) BatchSummary {
	log := zap.S().Named("assess")
	ordered := SortProjects(projects, o.order)

	if o.sampler != nil {
		if avail, err := o.sampler.AvailableBytes(); err == nil {
			log.Infow("starting batch",
				"fires", len(ordered), "order", o.order, "available_gb", float64(avail)/(1<<30))
		}
	}

	var summary BatchSummary
	overall := time.Now()

	for i, proj := range ordered {
		if err := ctx.Err(); err != nil {
			log.Warnw("batch canceled", "remaining", len(ordered)-i, "error", err)
			break
		}

		if o.skipExists && o.shouldSkip(ctx, proj) {
			log.Infow("skipping fire, already processed", "fire", proj.FireID)
			o.recordSkip(ctx, proj.FireID)
			summary.Skipped++
			continue
		}

		o.relieveMemoryPressure()

		result := o.runner.Run(ctx, proj)
		summary.Results = append(summary.Results, result)
		switch {
		case result.State == StateDone:
			summary.Successful++
		case result.MemoryError:
			summary.MemoryErrors++
		default:
			summary.OtherErrors++
		}

		elapsed := time.Since(overall)
		done := i + 1
		eta := time.Duration(len(ordered)-done) * (elapsed / time.Duration(done))
		log.Infow("batch progress",
			"done", done, "total", len(ordered),
			"elapsed_min", elapsed.Minutes(), "eta_min", eta.Minutes())
	}

	summary.TotalSecs = time.Since(overall).Seconds()
	log.Infow("assessment batch finished",
		"processed", len(summary.Results),
		"successful", summary.Successful,
		"skipped", summary.Skipped,
		"memory_errors", summary.MemoryErrors,
		"other_errors", summary.OtherErrors,
		"total_min", time.Since(overall).Minutes(),
	)
	return summary
}

// shouldSkip reports whether the fire already has a successful export. The
// status store is the source of truth; only a fire with no recorded export
// run falls back to the legacy directory probe.
func (o *Orchestrator) shouldSkip(ctx context.Context, proj project.Project) bool {
	if o.store != nil {
		run, err := o.store.StageRun().Latest(ctx, proj.FireID, model.StageExport)
		if err == nil {
			return run.State == model.StateSucceeded
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			zap.S().Named("assess").Warnw("stage lookup failed, probing exports directory",
				"fire", proj.FireID, "error", err)
		}
	}
	return hasShapefileExports(proj.Dir)
}

func hasShapefileExports(projectDir string) bool {
	entries, err := os.ReadDir(filepath.Join(projectDir, project.ExportsDir))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".shp" {
			return true
		}
	}
	return false
}

func (o *Orchestrator) recordSkip(ctx context.Context, fireID string) {
	metrics.IncreaseStageRunsTotalMetric(model.StageAssess, model.StateSkipped)

	if o.store == nil {
		return
	}
	_, err := o.store.StageRun().Create(ctx, model.StageRun{
		FireID: fireID,
		Stage:  model.StageAssess,
		State:  model.StateSkipped,
	})
	if err != nil {
		zap.S().Named("assess").Warnw("failed to record skip", "fire", fireID, "error", err)
	}
}

// relieveMemoryPressure samples available memory and requests a GC pass
// below the threshold. Advisory only; the batch proceeds regardless.
func (o *Orchestrator) relieveMemoryPressure() {
	if o.sampler == nil {
		return
	}
	avail, err := o.sampler.AvailableBytes()
	if err != nil {
		zap.S().Named("assess").Debugw("memory sample failed", "error", err)
		return
	}

	availGB := float64(avail) / (1 << 30)
	metrics.UpdateAvailableMemoryMetric(availGB)
	if availGB >= o.thresholdGB {
		return
	}

	zap.S().Named("assess").Warnw("low memory, requesting gc",
		"available_gb", availGB, "threshold_gb", o.thresholdGB)
	debug.FreeOSMemory()
}
