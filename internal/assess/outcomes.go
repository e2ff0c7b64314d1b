package assess

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/store"
	"github.com/firesci/debrisflow/internal/store/model"
)

// LatestOutcomes rebuilds batch results for fires whose stage history is
// already persisted, so reports can cover assessments run by earlier
// invocations. A fire appears in the map only when its latest export stage
// succeeded; stage timings are recovered from the recorded durations.
func LatestOutcomes(ctx context.Context, st store.Store, fireIDs []string) map[string]Result {
	logger := zap.S().Named("assess")

	results := make(map[string]Result, len(fireIDs))
	for _, fireID := range fireIDs {
		export, err := st.StageRun().Latest(ctx, fireID, model.StageExport)
		if err != nil {
			if !errors.Is(err, store.ErrRecordNotFound) {
				logger.Warnw("stage lookup failed", "fire_id", fireID, "error", err)
			}
			continue
		}
		if export.State != model.StateSucceeded {
			continue
		}

		result := Result{FireID: fireID, State: StateDone}
		for _, stage := range []string{model.StagePreprocess, model.StageAssess, model.StageExport} {
			run, err := st.StageRun().Latest(ctx, fireID, stage)
			if err != nil || run.State != model.StateSucceeded {
				continue
			}
			secs := float64(run.DurationMs) / 1000
			switch stage {
			case model.StagePreprocess:
				result.PreprocessSecs = secs
			case model.StageAssess:
				result.AssessSecs = secs
			case model.StageExport:
				result.ExportSecs = secs
			}
			result.TotalSecs += secs
		}
		results[fireID] = result
	}
	return results
}
