package inventory

import (
	"context"
	"fmt"

	"github.com/firesci/debrisflow/internal/store"
	"github.com/firesci/debrisflow/internal/store/model"
	"go.uber.org/zap"
)

// CompletenessReport aggregates which fires are missing which roles.
type CompletenessReport struct {
	Total            int
	Complete         []string
	MissingPerimeter []string
	MissingDNBR      []string
	MissingDEM       []string
}

// CheckCompleteness classifies every inventoried fire as complete or missing
// one or more required roles. A conflicted role counts as missing.
func CheckCompleteness(inv Inventory) CompletenessReport {
	report := CompletenessReport{Total: len(inv)}

	for _, id := range inv.SortedIDs() {
		fire := inv[id]
		complete := true

		if !fire.HasPerimeter() {
			report.MissingPerimeter = append(report.MissingPerimeter, id)
			complete = false
		}
		if !fire.HasDNBR() {
			report.MissingDNBR = append(report.MissingDNBR, id)
			complete = false
		}
		if !fire.HasDEM() {
			report.MissingDEM = append(report.MissingDEM, id)
			complete = false
		}
		if complete {
			report.Complete = append(report.Complete, id)
		}
	}

	zap.S().Named("inventory").Infow("completeness summary",
		"total", report.Total,
		"complete", len(report.Complete),
		"missing_perimeter", len(report.MissingPerimeter),
		"missing_dnbr", len(report.MissingDNBR),
		"missing_dem", len(report.MissingDEM),
	)
	return report
}

// SyncStore upserts the inventory snapshot into the status store so later
// runs can consult it without rescanning.
func SyncStore(ctx context.Context, s store.Store, inv Inventory) error {
	for _, id := range inv.SortedIDs() {
		fire := inv[id]
		_, err := s.Fire().Upsert(ctx, model.Fire{
			ID:            fire.ID,
			Year:          fire.Year,
			Name:          fire.Name,
			Folder:        fire.Folder,
			SizeMB:        fire.SizeMB,
			PerimeterPath: fire.PerimeterPath,
			DEMPath:       fire.DEMPath,
			DNBRPath:      fire.DNBRPath,
			MetadataPath:  fire.MetadataPath,
			Complete:      fire.Complete(),
		})
		if err != nil {
			return fmt.Errorf("upserting fire %s: %w", fire.ID, err)
		}
	}
	return nil
}
