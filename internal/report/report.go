// Package report assembles summary products for a finished assessment batch:
// per-fire basin statistics, a cross-fire table written as CSV and xlsx, and
// PNG hazard maps rendered from classification rasters.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb/planar"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/assess"
	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/raster"
	"github.com/firesci/debrisflow/pkg/gis"
)

// SummaryCSV and SummaryWorkbook are the batch statistics table file names.
const (
	SummaryCSV      = "fire_summary_statistics.csv"
	SummaryWorkbook = "fire_summary_statistics.xlsx"
)

const highRiskThreshold = 0.5

// summaryScenarios are the rainfall scenarios featured in the batch table.
var summaryScenarios = []string{"P_24mmh", "P_40mmh"}

// ScenarioStats summarizes one probability column of a basin layer. The
// high-risk share is taken over every basin; means and maxima cover only
// basins with a parsable value.
type ScenarioStats struct {
	Column      string
	HighRisk    int
	HighRiskPct float64
	Mean        float64
	Max         float64
}

// FireStats is the statistics block derived from one fire's basin export.
type FireStats struct {
	FireID       string
	Year         string
	Basins       int
	TotalAreaKm2 float64
	MeanAreaKm2  float64
	Scenarios    []ScenarioStats
}

// Scenario looks up the stats for one probability column.
func (s FireStats) Scenario(column string) (ScenarioStats, bool) {
	for _, sc := range s.Scenarios {
		if sc.Column == column {
			return sc, true
		}
	}
	return ScenarioStats{}, false
}

// Text renders the statistics block as human-readable lines.
func (s FireStats) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Number of basins: %d\n", s.Basins)
	fmt.Fprintf(&b, "Total area: %.2f km²\n", s.TotalAreaKm2)
	fmt.Fprintf(&b, "Average basin area: %.2f km²\n", s.MeanAreaKm2)
	for _, sc := range s.Scenarios {
		fmt.Fprintf(&b, "\n%s scenario:\n", scenarioLabel(sc.Column))
		fmt.Fprintf(&b, "  High risk basins: %d (%.1f%%)\n", sc.HighRisk, sc.HighRiskPct)
		fmt.Fprintf(&b, "  Mean probability: %.3f\n", sc.Mean)
		fmt.Fprintf(&b, "  Max probability: %.3f\n", sc.Max)
	}
	return b.String()
}

// scenarioLabel turns a probability column like P_24mmh into "24 mm/hr".
func scenarioLabel(column string) string {
	return strings.Replace(strings.TrimPrefix(column, "P_"), "mmh", " mm/hr", 1)
}

// FireStatistics summarizes a fire's basin export. Basin areas come from the
// Area_km2 attribute when the layer carries it, otherwise from the geometry
// in map units. Probability stats cover every P_ column of the layer.
func FireStatistics(fireID string, layer *gis.Layer) FireStats {
	stats := FireStats{
		FireID: fireID,
		Year:   strings.SplitN(fireID, "_", 2)[0],
		Basins: len(layer.Features),
	}

	hasArea := layer.HasField("Area_km2")
	for _, f := range layer.Features {
		if hasArea {
			if v, ok := f.Float("Area_km2"); ok {
				stats.TotalAreaKm2 += v
			}
			continue
		}
		stats.TotalAreaKm2 += math.Abs(planar.Area(f.Geometry)) / 1e6
	}
	if stats.Basins > 0 {
		stats.MeanAreaKm2 = stats.TotalAreaKm2 / float64(stats.Basins)
	}

	for _, field := range layer.Fields {
		if !strings.HasPrefix(field, "P_") {
			continue
		}

		var (
			sum   float64
			peak  float64
			valid int
			high  int
		)
		for _, f := range layer.Features {
			v, ok := f.Float(field)
			if !ok {
				continue
			}
			if valid == 0 || v > peak {
				peak = v
			}
			sum += v
			valid++
			if v > highRiskThreshold {
				high++
			}
		}

		sc := ScenarioStats{Column: field, HighRisk: high}
		if stats.Basins > 0 {
			sc.HighRiskPct = float64(high) / float64(stats.Basins) * 100
		}
		if valid > 0 {
			sc.Mean = sum / float64(valid)
			sc.Max = peak
		}
		stats.Scenarios = append(stats.Scenarios, sc)
	}

	return stats
}

// SummaryRow ties one fire's statistics to its batch outcome.
type SummaryRow struct {
	Stats          FireStats
	ProcessingSecs float64
	MemoryUsedGB   float64
}

// Reporter writes batch summary products under one output folder.
type Reporter struct {
	outputDir string
}

func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// HazardMapPath is where a fire's rendered map for one scenario lands.
func (r *Reporter) HazardMapPath(fireID, column string) string {
	return filepath.Join(r.outputDir, fmt.Sprintf("%s_%s_map.png", fireID, column))
}

// CreateSummaryReport builds the cross-fire statistics table for every fire
// that completed assessment and writes it as CSV and as an xlsx workbook.
// Fires without a completed result or a readable basin export are skipped.
// Returns the CSV path.
func (r *Reporter) CreateSummaryReport(ctx context.Context, projects []project.Project, results map[string]assess.Result) (string, error) {
	logger := zap.S().Named("report")

	var rows []SummaryRow
	for _, proj := range projects {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		result, ok := results[proj.FireID]
		if !ok || result.State != assess.StateDone {
			continue
		}

		basins := filepath.Join(proj.Dir, project.ExportsDir, "basins.shp")
		layer, err := gis.ReadLayer(basins)
		if err != nil {
			logger.Warnw("skipping fire without readable basin export", "fire_id", proj.FireID, "error", err)
			continue
		}

		rows = append(rows, SummaryRow{
			Stats:          FireStatistics(proj.FireID, layer),
			ProcessingSecs: result.TotalSecs,
			MemoryUsedGB:   result.MemoryUsedGB,
		})
	}

	if len(rows) == 0 {
		return "", fmt.Errorf("no completed assessments to summarize")
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Stats.Year != rows[j].Stats.Year {
			return rows[i].Stats.Year < rows[j].Stats.Year
		}
		return rows[i].Stats.FireID < rows[j].Stats.FireID
	})

	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", err
	}

	csvPath := filepath.Join(r.outputDir, SummaryCSV)
	if err := writeSummaryCSV(csvPath, rows); err != nil {
		return "", fmt.Errorf("writing summary csv: %w", err)
	}

	workbookPath := filepath.Join(r.outputDir, SummaryWorkbook)
	if err := writeSummaryWorkbook(workbookPath, rows); err != nil {
		return "", fmt.Errorf("writing summary workbook: %w", err)
	}

	logger.Infow("wrote batch summary", "fires", len(rows), "csv", csvPath, "workbook", workbookPath)
	return csvPath, nil
}

func summaryHeader() []string {
	header := []string{"Fire Name", "Year", "Basins", "Area (km²)", "Processing Time (s)", "Memory Used (GB)"}
	for _, column := range summaryScenarios {
		header = append(header, column+" High Risk", column+" Mean")
	}
	return header
}

func summaryRecord(row SummaryRow) []string {
	record := []string{
		row.Stats.FireID,
		row.Stats.Year,
		strconv.Itoa(row.Stats.Basins),
		fmt.Sprintf("%.2f", row.Stats.TotalAreaKm2),
		fmt.Sprintf("%.1f", row.ProcessingSecs),
		fmt.Sprintf("%.2f", row.MemoryUsedGB),
	}
	for _, column := range summaryScenarios {
		sc, ok := row.Stats.Scenario(column)
		if !ok {
			record = append(record, "", "")
			continue
		}
		record = append(record, strconv.Itoa(sc.HighRisk), fmt.Sprintf("%.3f", sc.Mean))
	}
	return record
}

func writeSummaryCSV(path string, rows []SummaryRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	records := [][]string{summaryHeader()}
	for _, row := range rows {
		records = append(records, summaryRecord(row))
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSummaryWorkbook(path string, rows []SummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary = "Summary"
	summaryIdx, err := f.NewSheet(summary)
	if err != nil {
		return err
	}

	if err := writeSheetRow(f, summary, 1, asCells(summaryHeader())...); err != nil {
		return err
	}
	for i, row := range rows {
		cells := []any{
			row.Stats.FireID,
			row.Stats.Year,
			row.Stats.Basins,
			row.Stats.TotalAreaKm2,
			row.ProcessingSecs,
			row.MemoryUsedGB,
		}
		for _, column := range summaryScenarios {
			if sc, ok := row.Stats.Scenario(column); ok {
				cells = append(cells, sc.HighRisk, sc.Mean)
			} else {
				cells = append(cells, nil, nil)
			}
		}
		if err := writeSheetRow(f, summary, i+2, cells...); err != nil {
			return err
		}
	}

	const scenarios = "Scenarios"
	if _, err := f.NewSheet(scenarios); err != nil {
		return err
	}
	header := []any{"Fire Name", "Scenario", "High Risk Basins", "High Risk %", "Mean Probability", "Max Probability"}
	if err := writeSheetRow(f, scenarios, 1, header...); err != nil {
		return err
	}
	line := 2
	for _, row := range rows {
		for _, sc := range row.Stats.Scenarios {
			cells := []any{row.Stats.FireID, scenarioLabel(sc.Column), sc.HighRisk, sc.HighRiskPct, sc.Mean, sc.Max}
			if err := writeSheetRow(f, scenarios, line, cells...); err != nil {
				return err
			}
			line++
		}
	}

	f.SetActiveSheet(summaryIdx)
	_ = f.DeleteSheet("Sheet1")

	return f.SaveAs(path)
}

func asCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// writeSheetRow fills one worksheet row left to right. Nil values leave their
// cell empty.
func writeSheetRow(f *excelize.File, sheet string, row int, values ...any) error {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// RenderHazardMap reads a hazard classification raster and writes it as a PNG
// colored with the class palette. Out-of-range classes fall back to the
// transparent nodata entry.
func RenderHazardMap(classPath, pngPath string) error {
	gis.RegisterDrivers()

	ds, err := godal.Open(classPath)
	if err != nil {
		return fmt.Errorf("opening classification raster: %w", err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if len(bands) == 0 {
		return fmt.Errorf("classification raster %s has no bands", classPath)
	}

	structure := ds.Structure()
	classes := make([]byte, structure.SizeX*structure.SizeY)
	if err := bands[0].Read(0, 0, classes, structure.SizeX, structure.SizeY); err != nil {
		return fmt.Errorf("reading classes: %w", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, structure.SizeX, structure.SizeY))
	for i, class := range classes {
		c := raster.HazardColors[0]
		if int(class) < len(raster.HazardColors) {
			c = raster.HazardColors[class]
		}
		copy(img.Pix[i*4:], c[:])
	}

	if err := os.MkdirAll(filepath.Dir(pngPath), 0755); err != nil {
		return err
	}
	out, err := os.Create(pngPath)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("encoding map: %w", err)
	}
	return out.Close()
}
