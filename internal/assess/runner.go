// Package assess runs the debris-flow model over initialized projects: a
// per-fire runner that walks the model's stages and a sequential batch
// orchestrator around it.
package assess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/store"
	"github.com/firesci/debrisflow/internal/store/model"
	"github.com/firesci/debrisflow/internal/wildcat"
	"github.com/firesci/debrisflow/pkg/metrics"
)

// States a fire moves through during one assessment run. Failed is terminal
// from any state.
const (
	StatePending       = "pending"
	StatePreprocessing = "preprocessing"
	StateAssessing     = "assessing"
	StateExporting     = "exporting"
	StateDone          = "done"
	StateFailed        = "failed"
)

var DefaultExportFormats = []string{"Shapefile", "GeoJSON"}

// Result is the terminal outcome of one fire's assessment run.
type Result struct {
	FireID         string
	ProjectDir     string
	SizeMB         float64
	State          string
	PreprocessSecs float64
	AssessSecs     float64
	ExportSecs     float64
	TotalSecs      float64
	MemoryUsedGB   float64
	ExportFiles    []string
	Error          string
	MemoryError    bool
}

// FireRunner runs the model stages for one project.
type FireRunner interface {
	Run(ctx context.Context, proj project.Project) Result
}

// Runner drives preprocess, assess and export for one fire, timing each
// stage and recording a StageRun row at every stage boundary when a store
// is configured.
type Runner struct {
	model   wildcat.Runner
	store   store.Store
	sampler MemorySampler
	formats []string
}

var _ FireRunner = (*Runner)(nil)

// NewRunner wires a per-fire runner. Store and sampler may be nil; the
// runner then keeps no history and reports no memory delta.
func NewRunner(model wildcat.Runner, st store.Store, sampler MemorySampler, formats []string) *Runner {
	if len(formats) == 0 {
		formats = DefaultExportFormats
	}
	return &Runner{model: model, store: st, sampler: sampler, formats: formats}
}

func (r *Runner) Run(ctx context.Context, proj project.Project) Result {
	result := Result{
		FireID:     proj.FireID,
		ProjectDir: proj.Dir,
		SizeMB:     proj.SizeMB,
		State:      StatePending,
	}

	log := zap.S().Named("assess")
	log.Infow("assessing fire", "fire", proj.FireID, "size_mb", proj.SizeMB, "optimization", proj.Optimization)

	memBefore, memOK := r.availableGB()
	start := time.Now()

	result.State = StatePreprocessing
	stageStart := time.Now()
	if err := r.model.Preprocess(ctx, proj.Dir); err != nil {
		return r.fail(ctx, result, model.StagePreprocess, time.Since(stageStart), err)
	}
	result.PreprocessSecs = time.Since(stageStart).Seconds()
	r.record(ctx, proj.FireID, model.StagePreprocess, model.StateSucceeded, "", "", time.Since(stageStart))
	log.Debugw("preprocessed", "fire", proj.FireID,
		"seconds", result.PreprocessSecs, "files", dirListing(proj.Dir, project.PreprocessedDir))

	result.State = StateAssessing
	stageStart = time.Now()
	if err := r.model.Assess(ctx, proj.Dir); err != nil {
		return r.fail(ctx, result, model.StageAssess, time.Since(stageStart), err)
	}
	result.AssessSecs = time.Since(stageStart).Seconds()
	r.record(ctx, proj.FireID, model.StageAssess, model.StateSucceeded, "", "", time.Since(stageStart))

	result.State = StateExporting
	stageStart = time.Now()
	for _, format := range r.formats {
		if err := r.model.Export(ctx, proj.Dir, format); err != nil {
			return r.fail(ctx, result, model.StageExport, time.Since(stageStart), err)
		}
	}
	result.ExportSecs = time.Since(stageStart).Seconds()
	result.ExportFiles = shapefileListing(proj.Dir)
	r.record(ctx, proj.FireID, model.StageExport, model.StateSucceeded, "", "", time.Since(stageStart))

	if memAfter, ok := r.availableGB(); memOK && ok {
		result.MemoryUsedGB = memBefore - memAfter
	}
	result.TotalSecs = time.Since(start).Seconds()
	result.State = StateDone

	log.Infow("assessment complete",
		"fire", proj.FireID,
		"preprocess_s", result.PreprocessSecs,
		"assess_s", result.AssessSecs,
		"export_s", result.ExportSecs,
		"memory_gb", result.MemoryUsedGB,
		"exports", result.ExportFiles,
	)
	return result
}

func (r *Runner) fail(ctx context.Context, result Result, stage string, took time.Duration, err error) Result {
	result.State = StateFailed
	result.Error = err.Error()
	result.MemoryError = errors.Is(err, wildcat.ErrOutOfMemory)
	result.TotalSecs = took.Seconds()

	kind := model.ErrorKindGeneric
	if result.MemoryError {
		kind = model.ErrorKindMemory
	}
	r.record(ctx, result.FireID, stage, model.StateFailed, err.Error(), kind, took)

	zap.S().Named("assess").Errorw("assessment stage failed",
		"fire", result.FireID, "stage", stage, "memory_error", result.MemoryError, "error", err)
	return result
}

func (r *Runner) record(ctx context.Context, fireID, stage, state, errMsg, errKind string, took time.Duration) {
	metrics.IncreaseStageRunsTotalMetric(stage, state)
	metrics.ObserveStageDurationMetric(stage, took.Seconds())

	if r.store == nil {
		return
	}
	_, err := r.store.StageRun().Create(ctx, model.StageRun{
		FireID:     fireID,
		Stage:      stage,
		State:      state,
		Error:      errMsg,
		ErrorKind:  errKind,
		DurationMs: took.Milliseconds(),
	})
	if err != nil {
		zap.S().Named("assess").Warnw("failed to record stage run",
			"fire", fireID, "stage", stage, "error", err)
	}
}

func (r *Runner) availableGB() (float64, bool) {
	if r.sampler == nil {
		return 0, false
	}
	b, err := r.sampler.AvailableBytes()
	if err != nil {
		return 0, false
	}
	return float64(b) / (1 << 30), true
}

// shapefileListing names the shapefiles the model exported for a project.
func shapefileListing(projectDir string) []string {
	var files []string
	for _, name := range dirListing(projectDir, project.ExportsDir) {
		if filepath.Ext(name) == ".shp" {
			files = append(files, name)
		}
	}
	return files
}

func dirListing(projectDir, sub string) []string {
	entries, err := os.ReadDir(filepath.Join(projectDir, sub))
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
