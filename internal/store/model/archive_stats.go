package model

// ArchiveStats summarizes the inventoried fire archive for metrics scrapes.
type ArchiveStats struct {
	// TotalFires is the number of inventoried fires.
	TotalFires int
	// TotalComplete is the number of fires with a full input set.
	TotalComplete int
	// TotalSizeMB is the combined size of the fire input folders.
	TotalSizeMB float64
	// Total number of fires by fire year.
	TotalByYear map[string]int
}

func NewArchiveStats(fires FireList) ArchiveStats {
	stats := ArchiveStats{TotalByYear: make(map[string]int)}

	for _, f := range fires {
		stats.TotalFires++
		stats.TotalSizeMB += f.SizeMB
		stats.TotalByYear[f.Year]++
		if f.Complete {
			stats.TotalComplete++
		}
	}
	return stats
}
