// Package project creates per-fire model projects and splices the fire's
// input paths into the generated config.py.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/inventory"
	"github.com/firesci/debrisflow/internal/wildcat"
)

// Working directories the model maintains inside a project.
const (
	PreprocessedDir = "preprocessed"
	OutputsDir      = "outputs"
	ExportsDir      = "exports"
)

// SharedInputs are the regional datasets every project references. The
// severity base holds one MTBS mosaic per year, named mtbs_CA_{year}.tif.
type SharedInputs struct {
	SoilPath     string
	EVTPath      string
	SeverityBase string
}

// Project is one initialized model project, ready for assessment.
type Project struct {
	FireID       string
	Dir          string
	SizeMB       float64
	Optimization string
}

type Summary struct {
	Projects   []Project
	Successful int
	Failed     int
}

type Initializer struct {
	runner wildcat.Runner
	shared SharedInputs
}

func NewInitializer(runner wildcat.Runner, shared SharedInputs) *Initializer {
	return &Initializer{runner: runner, shared: shared}
}

// InitializeProject creates the model project for one fire under projectRoot
// and patches its config with the fire's inputs. The fire must carry a
// perimeter, a dNBR and a DEM.
func (i *Initializer) InitializeProject(ctx context.Context, fire *inventory.Fire, projectRoot string) (*Project, error) {
	if err := missingInputs(fire); err != nil {
		return nil, err
	}

	projectDir := filepath.Join(projectRoot, fire.ID)
	if err := i.runner.Initialize(ctx, projectDir); err != nil {
		return nil, fmt.Errorf("initializing model project: %w", err)
	}

	if err := patchConfig(projectDir, configBlock(fire, i.shared)); err != nil {
		return nil, err
	}

	level := OptimizationLevel(fire.SizeMB)
	zap.S().Named("project").Infow("initialized project",
		"fire", fire.ID, "dir", projectDir, "size_mb", fire.SizeMB, "optimization", level)

	return &Project{FireID: fire.ID, Dir: projectDir, SizeMB: fire.SizeMB, Optimization: level}, nil
}

// InitializeAll initializes projects sequentially, isolating per-fire
// failures. A canceled context stops the loop at the next fire boundary.
func (i *Initializer) InitializeAll(ctx context.Context, fires []*inventory.Fire, projectRoot string) Summary {
	var summary Summary

	if err := os.MkdirAll(projectRoot, 0755); err != nil {
		zap.S().Named("project").Errorw("creating project root", "dir", projectRoot, "error", err)
		summary.Failed = len(fires)
		return summary
	}

	for _, fire := range fires {
		if err := ctx.Err(); err != nil {
			zap.S().Named("project").Warnw("initialization canceled", "error", err)
			break
		}

		p, err := i.InitializeProject(ctx, fire, projectRoot)
		if err != nil {
			zap.S().Named("project").Errorw("failed to initialize project", "fire", fire.ID, "error", err)
			summary.Failed++
			continue
		}
		summary.Projects = append(summary.Projects, *p)
		summary.Successful++
	}

	zap.S().Named("project").Infow("project initialization finished",
		"successful", summary.Successful, "failed", summary.Failed)
	return summary
}

// Discover lists the initialized projects under projectRoot, in fire order.
// A directory counts as a project when it carries a config.py. Sizes are
// measured from the project folder itself.
func Discover(projectRoot string) ([]Project, error) {
	entries, err := os.ReadDir(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("reading project root: %w", err)
	}

	var projects []Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(projectRoot, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "config.py")); err != nil {
			continue
		}
		size := folderSizeMB(dir)
		projects = append(projects, Project{
			FireID:       entry.Name(),
			Dir:          dir,
			SizeMB:       size,
			Optimization: OptimizationLevel(size),
		})
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].FireID < projects[j].FireID })
	return projects, nil
}

// folderSizeMB totals the regular files under dir. Unreadable entries are
// skipped so a partially built project still gets a size.
func folderSizeMB(dir string) float64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return float64(total) / (1024 * 1024)
}

// OptimizationLevel buckets a fire by its on-disk size. The level is
// advisory; the orchestrator logs it and the memory guard keys off live
// measurements instead.
func OptimizationLevel(sizeMB float64) string {
	switch {
	case sizeMB < 10:
		return "standard"
	case sizeMB < 50:
		return "light"
	case sizeMB < 100:
		return "moderate"
	default:
		return "aggressive"
	}
}

// ValidateProject checks a project directory for what a model run needs.
// Missing working directories are created rather than reported.
func ValidateProject(projectDir string) []string {
	if _, err := os.Stat(projectDir); err != nil {
		return []string{"Project directory does not exist"}
	}

	var issues []string
	if _, err := os.Stat(filepath.Join(projectDir, "config.py")); err != nil {
		issues = append(issues, "Missing required file: config.py")
	}

	for _, name := range []string{PreprocessedDir, OutputsDir, ExportsDir} {
		dir := filepath.Join(projectDir, name)
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.Mkdir(dir, 0755); err != nil {
			issues = append(issues, fmt.Sprintf("Cannot create directory: %s", name))
			continue
		}
		zap.S().Named("project").Infow("created missing directory", "dir", name)
	}

	return issues
}

func missingInputs(fire *inventory.Fire) error {
	var missing []string
	if !fire.HasDEM() {
		missing = append(missing, "dem")
	}
	if !fire.HasPerimeter() {
		missing = append(missing, "perimeter")
	}
	if !fire.HasDNBR() {
		missing = append(missing, "dnbr")
	}
	if len(missing) > 0 {
		return fmt.Errorf("fire %s is missing required inputs: %s", fire.ID, strings.Join(missing, ", "))
	}
	return nil
}

// configBlock renders the assignments spliced into config.py. The config is
// a Python file read by the model, hence the raw-string literals.
func configBlock(fire *inventory.Fire, shared SharedInputs) string {
	year := strings.SplitN(fire.ID, "_", 2)[0]

	var b strings.Builder
	b.WriteString("\n# Fire-specific inputs\n")
	fmt.Fprintf(&b, "dem = r\"%s\"\n", fire.DEMPath)
	fmt.Fprintf(&b, "perimeter = r\"%s\"\n", fire.PerimeterPath)
	fmt.Fprintf(&b, "dnbr = r\"%s\"\n", fire.DNBRPath)
	b.WriteString("\n# Shared FULL datasets (will be clipped during preprocessing)\n")
	fmt.Fprintf(&b, "kf = r\"%s\"\n", shared.SoilPath)
	fmt.Fprintf(&b, "evt = r\"%s\"\n", shared.EVTPath)

	severity := filepath.Join(shared.SeverityBase, fmt.Sprintf("mtbs_CA_%s.tif", year))
	if _, err := os.Stat(severity); err == nil {
		fmt.Fprintf(&b, "severity = r\"%s\"  # MTBS severity for %s\n", severity, year)
	} else {
		b.WriteString("# severity = None  # No MTBS data - will estimate from dNBR\n")
		zap.S().Named("project").Warnw("no severity mosaic, model will estimate from dnbr",
			"fire", fire.ID, "year", year)
	}

	b.WriteString("\n# Soil data configuration\nkf_field = \"KFFACT\"\n")
	return b.String()
}

// patchConfig splices the block into config.py right after the "# Inputs"
// marker line, or at the end when the marker is absent.
func patchConfig(projectDir, block string) error {
	configPath := filepath.Join(projectDir, "config.py")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading model config: %w", err)
	}

	lines := strings.SplitAfter(string(data), "\n")
	insert := len(lines)
	for i, line := range lines {
		if strings.Contains(line, "# Inputs") {
			insert = i + 1
			break
		}
	}

	var b strings.Builder
	for i, line := range lines {
		if i == insert {
			b.WriteString(block)
		}
		b.WriteString(line)
	}
	if insert == len(lines) {
		b.WriteString(block)
	}

	return os.WriteFile(configPath, []byte(b.String()), 0644)
}
