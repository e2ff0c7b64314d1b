package assess_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firesci/debrisflow/internal/assess"
	"github.com/firesci/debrisflow/internal/store/model"
)

func TestLatestOutcomes(t *testing.T) {
	ctx := context.Background()
	st := &fakeStore{}

	seed := func(fireID, stage, state string, tookMs int64) {
		_, err := st.StageRun().Create(ctx, model.StageRun{
			FireID: fireID, Stage: stage, State: state, DurationMs: tookMs,
		})
		require.NoError(t, err)
	}

	seed("2021_done", model.StagePreprocess, model.StateSucceeded, 1500)
	seed("2021_done", model.StageAssess, model.StateSucceeded, 2500)
	seed("2021_done", model.StageExport, model.StateSucceeded, 1000)
	seed("2021_failed", model.StageExport, model.StateFailed, 800)
	seed("2021_exportonly", model.StageExport, model.StateSucceeded, 2000)

	results := assess.LatestOutcomes(ctx, st, []string{"2021_done", "2021_failed", "2021_exportonly", "2021_missing"})

	require.Len(t, results, 2)

	done := results["2021_done"]
	assert.Equal(t, "2021_done", done.FireID)
	assert.Equal(t, assess.StateDone, done.State)
	assert.InDelta(t, 1.5, done.PreprocessSecs, 1e-9)
	assert.InDelta(t, 2.5, done.AssessSecs, 1e-9)
	assert.InDelta(t, 1.0, done.ExportSecs, 1e-9)
	assert.InDelta(t, 5.0, done.TotalSecs, 1e-9)

	exportOnly := results["2021_exportonly"]
	assert.Equal(t, assess.StateDone, exportOnly.State)
	assert.InDelta(t, 2.0, exportOnly.TotalSecs, 1e-9)
	assert.Zero(t, exportOnly.PreprocessSecs)
}
