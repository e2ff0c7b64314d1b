package config

import (
	"encoding/json"
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/firesci/debrisflow/internal/fileio"
)

const (
	// DefaultWorkers bounds the upload and download pools
	DefaultWorkers = 5
	// DefaultDownloadBufferMeters pads the perimeter before selecting elevation tiles
	DefaultDownloadBufferMeters = 5000.0
	// DefaultSharedBufferMeters pads the perimeter when clipping shared datasets
	DefaultSharedBufferMeters = 1000.0
	// DefaultResolution is the probability raster cell size in map units
	DefaultResolution = 30.0
	// DefaultMemoryThresholdGB is the free-memory floor below which a collection pass runs
	DefaultMemoryThresholdGB = 2.0
	// DefaultAwaitTimeout caps how long the downloader waits for a perimeter asset
	DefaultAwaitTimeout = Duration("10m")
	// DefaultPollInterval paces remote asset polling
	DefaultPollInterval = Duration("15s")
	// DefaultWildcatBin is the external model executable looked up on PATH
	DefaultWildcatBin = "wildcat"

	OrderSizeAsc  = "size-asc"
	OrderSizeDesc = "size-desc"
	OrderName     = "name"
)

// Pipeline is the file-based configuration for a batch run: where fire data
// lives, where products go, and the knobs of each stage. Credentials and
// database settings stay in the environment (see Config).
type Pipeline struct {
	// InputRoot contains fire bundles organized by year
	InputRoot string `json:"input-root"`
	// OutputRoot receives per-fire clipped datasets and downloaded inputs
	OutputRoot string `json:"output-root"`
	// ProjectsRoot receives model project directories
	ProjectsRoot string `json:"projects-root"`
	// RastersRoot receives generated probability rasters
	RastersRoot string `json:"rasters-root"`
	// ReportsRoot receives summary reports and maps
	ReportsRoot string `json:"reports-root"`

	// Soil is the shared soil survey shapefile clipped per fire
	Soil string `json:"soil,omitempty"`
	// EVT is the shared existing-vegetation-type raster clipped per fire
	EVT string `json:"evt,omitempty"`
	// SeverityDir holds yearly burn severity mosaics, one mtbs_CA_{year}.tif per year
	SeverityDir string `json:"severity-dir,omitempty"`

	// Years restricts processing; empty means every year folder found
	Years []string `json:"years,omitempty"`
	// MaxFires caps a batch run; zero means no cap
	MaxFires int `json:"max-fires,omitempty"`

	Workers              int     `json:"workers,omitempty"`
	DownloadBufferMeters float64 `json:"download-buffer-meters,omitempty"`
	SharedBufferMeters   float64 `json:"shared-buffer-meters,omitempty"`

	// Scenarios are the basin probability columns turned into rasters
	Scenarios []string `json:"scenarios,omitempty"`
	// Resolution is the probability raster cell size in map units
	Resolution float64 `json:"resolution,omitempty"`
	// ExportFormats are passed to the model's export stage
	ExportFormats []string `json:"export-formats,omitempty"`

	// Order decides batch sequencing: size-asc, size-desc or name
	Order string `json:"order,omitempty"`
	// SkipExisting skips fires whose export stage already succeeded
	SkipExisting bool `json:"skip-existing,omitempty"`
	// MemoryThresholdGB is the free-memory floor checked before each fire
	MemoryThresholdGB float64 `json:"memory-threshold-gb,omitempty"`

	AwaitTimeout Duration `json:"await-timeout,omitempty"`
	PollInterval Duration `json:"poll-interval,omitempty"`

	// WildcatBin is the external model executable
	WildcatBin string `json:"wildcat-bin,omitempty"`

	reader *fileio.Reader
}

func NewDefaultPipeline() *Pipeline {
	return &Pipeline{
		InputRoot:            "data/fires",
		OutputRoot:           "output",
		ProjectsRoot:         "wildcat_projects",
		RastersRoot:          "rasters",
		ReportsRoot:          "reports",
		Workers:              DefaultWorkers,
		DownloadBufferMeters: DefaultDownloadBufferMeters,
		SharedBufferMeters:   DefaultSharedBufferMeters,
		Scenarios:            []string{"P_16mmh", "P_20mmh", "P_24mmh", "P_40mmh"},
		Resolution:           DefaultResolution,
		ExportFormats:        []string{"Shapefile", "GeoJSON"},
		Order:                OrderSizeAsc,
		SkipExisting:         true,
		MemoryThresholdGB:    DefaultMemoryThresholdGB,
		AwaitTimeout:         DefaultAwaitTimeout,
		PollInterval:         DefaultPollInterval,
		WildcatBin:           DefaultWildcatBin,
		reader:               fileio.NewReader(),
	}
}

// Validate checks that the required fields are set and that the input paths exist.
func (cfg *Pipeline) Validate() error {
	requiredFields := []struct {
		value     string
		name      string
		checkPath bool
	}{
		{cfg.InputRoot, "input-root", true},
		{cfg.OutputRoot, "output-root", false},
		{cfg.ProjectsRoot, "projects-root", false},
	}

	for _, field := range requiredFields {
		if field.value == "" {
			return fmt.Errorf("%s is required", field.name)
		}
		if field.checkPath {
			if err := cfg.reader.CheckPathExists(field.value); err != nil {
				return fmt.Errorf("%s: %w", field.name, err)
			}
		}
	}

	switch cfg.Order {
	case OrderSizeAsc, OrderSizeDesc, OrderName:
	default:
		return fmt.Errorf("order must be one of %s, %s, %s", OrderSizeAsc, OrderSizeDesc, OrderName)
	}

	if _, err := cfg.AwaitTimeout.Parse(); err != nil {
		return fmt.Errorf("await-timeout: %w", err)
	}
	if _, err := cfg.PollInterval.Parse(); err != nil {
		return fmt.Errorf("poll-interval: %w", err)
	}

	return nil
}

// ParseConfigFile reads the config file and unmarshals it into the Pipeline struct
func (cfg *Pipeline) ParseConfigFile(cfgFile string) error {
	contents, err := cfg.reader.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("unmarshalling config file: %w", err)
	}
	return nil
}

func (cfg *Pipeline) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
