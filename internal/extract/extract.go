// Package extract unpacks per-fire archive bundles and renames the resulting
// folders after the fire name and date found in the bundled metadata.
package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var invalidNameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeName replaces characters that are invalid in folder names.
func SanitizeName(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}

// FormatFireDate normalizes a metadata date such as "2021-07-30" into the
// folder suffix "30072021": spaces and commas stripped, dash-separated parts
// joined in reverse order.
func FormatFireDate(date string) string {
	date = strings.ReplaceAll(date, " ", "")
	date = strings.ReplaceAll(date, ",", "")
	parts := strings.Split(date, "-")
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
	}
	return b.String()
}

// Result describes the outcome of extracting a single archive.
type Result struct {
	Archive     string
	ExtractedTo string
	FireName    string
	FireDate    string
	Success     bool
	Error       string
}

// Summary aggregates the outcomes of an extraction batch.
type Summary struct {
	Successful int
	Failed     int
	Details    []Result
}

type Extractor struct {
	root string
}

func NewExtractor(root string) *Extractor {
	return &Extractor{root: root}
}

// ExtractAll unpacks every *.zip archive under the year folders. A nil or
// empty years slice selects every first-level directory. Failures are
// recorded per archive and never abort the batch.
func (e *Extractor) ExtractAll(ctx context.Context, years []string) (*Summary, error) {
	archives, err := e.listArchives(years)
	if err != nil {
		return nil, err
	}

	zap.S().Named("extract").Infow("found archives to extract", "count", len(archives))

	summary := &Summary{}
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := e.ExtractBundle(archive)
		summary.Details = append(summary.Details, result)
		if result.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	zap.S().Named("extract").Infow("extraction complete",
		"successful", summary.Successful,
		"failed", summary.Failed,
	)
	return summary, nil
}

// ExtractBundle unpacks one archive into a sibling folder named after the
// archive stem. When the bundled metadata yields both a fire name and a date
// and the renamed folder does not already exist, the folder is renamed to
// "{sanitized name}_{reversed date}".
func (e *Extractor) ExtractBundle(zipPath string) Result {
	yearDir := filepath.Dir(zipPath)
	stem := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	folder := filepath.Join(yearDir, stem)

	if err := unzip(zipPath, folder); err != nil {
		zap.S().Named("extract").Errorw("failed to extract archive", "archive", zipPath, "error", err)
		return Result{Archive: zipPath, Success: false, Error: err.Error()}
	}

	zap.S().Named("extract").Infow("extracted archive", "archive", filepath.Base(zipPath))

	xmlPath := findMetadataXML(folder)
	if xmlPath == "" {
		return Result{Archive: zipPath, ExtractedTo: folder, Success: true}
	}

	name, date, err := ParseFireInfo(xmlPath)
	if err != nil {
		zap.S().Named("extract").Warnw("failed to parse metadata", "file", xmlPath, "error", err)
		return Result{Archive: zipPath, ExtractedTo: folder, Success: true}
	}

	if name == "" || date == "" {
		return Result{Archive: zipPath, ExtractedTo: folder, Success: true}
	}

	formatted := FormatFireDate(date)
	if formatted == "" {
		return Result{Archive: zipPath, ExtractedTo: folder, Success: true}
	}

	renamed := filepath.Join(yearDir, fmt.Sprintf("%s_%s", SanitizeName(name), formatted))
	if _, err := os.Stat(renamed); err == nil {
		return Result{Archive: zipPath, ExtractedTo: folder, Success: true}
	}

	if err := os.Rename(folder, renamed); err != nil {
		zap.S().Named("extract").Warnw("failed to rename folder", "from", folder, "to", renamed, "error", err)
		return Result{Archive: zipPath, ExtractedTo: folder, Success: true}
	}

	zap.S().Named("extract").Infow("renamed folder", "to", filepath.Base(renamed))
	return Result{
		Archive:     zipPath,
		ExtractedTo: renamed,
		FireName:    name,
		FireDate:    date,
		Success:     true,
	}
}

// CountArchives reports how many archives a run over the given years would
// process, for progress reporting.
func (e *Extractor) CountArchives(years []string) (int, error) {
	archives, err := e.listArchives(years)
	if err != nil {
		return 0, err
	}
	return len(archives), nil
}

func (e *Extractor) listArchives(years []string) ([]string, error) {
	var yearDirs []string
	if len(years) > 0 {
		for _, year := range years {
			dir := filepath.Join(e.root, year)
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				yearDirs = append(yearDirs, dir)
			}
		}
	} else {
		entries, err := os.ReadDir(e.root)
		if err != nil {
			return nil, fmt.Errorf("reading root folder: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				yearDirs = append(yearDirs, filepath.Join(e.root, entry.Name()))
			}
		}
	}

	var archives []string
	for _, dir := range yearDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.zip"))
		if err != nil {
			return nil, err
		}
		archives = append(archives, matches...)
	}
	return archives, nil
}

func findMetadataXML(folder string) string {
	matches, err := filepath.Glob(filepath.Join(folder, "*_metadata.xml"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

func unzip(zipPath, dest string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	for _, file := range reader.File {
		target, err := entryPath(dest, file.Name)
		if err != nil {
			return err
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := writeEntry(file, target); err != nil {
			return err
		}
	}
	return nil
}

// entryPath rejects archive entries that would escape the extraction root.
func entryPath(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes extraction folder: %s", name)
	}
	return target, nil
}

func writeEntry(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return nil
}
