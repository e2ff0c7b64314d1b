package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/firesci/debrisflow/internal/assess"
	"github.com/firesci/debrisflow/internal/assets"
	"github.com/firesci/debrisflow/internal/clip"
	"github.com/firesci/debrisflow/internal/config"
	"github.com/firesci/debrisflow/internal/extract"
	"github.com/firesci/debrisflow/internal/inventory"
	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/raster"
	"github.com/firesci/debrisflow/internal/report"
	"github.com/firesci/debrisflow/internal/validation"
	"github.com/firesci/debrisflow/internal/wildcat"
)

type RunOptions struct {
	GlobalOptions

	Years        []string
	Order        string
	SkipExisting bool

	orderChanged bool
	skipChanged  bool
}

func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Order:         config.OrderSizeAsc,
		SkipExisting:  true,
	}
}

func NewCmdRun() *cobra.Command {
	o := DefaultRunOptions()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline, extraction through reports.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *RunOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringSliceVar(&o.Years, "years", o.Years, "Year folders to process. Overrides the config file.")
	fs.StringVar(&o.Order, "order", o.Order, fmt.Sprintf("Batch order. One of: (%s).", strings.Join(assess.OrderPolicies, ", ")))
	fs.BoolVar(&o.SkipExisting, "skip-existing", o.SkipExisting, "Skip fires whose latest export already succeeded.")
}

func (o *RunOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	o.orderChanged = cmd.Flags().Changed("order")
	o.skipChanged = cmd.Flags().Changed("skip-existing")
	return nil
}

func (o *RunOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if !funk.Contains(assess.OrderPolicies, o.Order) {
		return fmt.Errorf("order must be one of %s", strings.Join(assess.OrderPolicies, ", "))
	}

	return nil
}

func (o *RunOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}
	if len(o.Years) > 0 {
		cfg.Years = o.Years
	}
	if o.orderChanged {
		cfg.Order = o.Order
	}
	if o.skipChanged {
		cfg.SkipExisting = o.SkipExisting
	}

	model := wildcat.NewCLI(cfg.WildcatBin)
	if err := model.Available(); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	maybeServeMetrics(ctx, st)

	extracted, err := extract.NewExtractor(cfg.InputRoot).ExtractAll(ctx, cfg.Years)
	if err != nil {
		return err
	}
	fmt.Printf("Extracted %d archives, %d failed\n", extracted.Successful, extracted.Failed)

	inv, err := scanInventory(ctx, cfg)
	if err != nil {
		return err
	}
	if err := inventory.SyncStore(ctx, st, inv); err != nil {
		zap.S().Named("cli").Warnw("inventory sync failed", "error", err)
	}
	completeness := inventory.CheckCompleteness(inv)
	fmt.Printf("Inventoried %d fires, %d complete\n", completeness.Total, len(completeness.Complete))

	o.fetchElevation(ctx, cfg, inv)

	fires := completeFires(inv, cfg.MaxFires)
	var valid []*inventory.Fire
	for _, fire := range fires {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := validation.ValidateFire(validation.FireData{
			DEM:       fire.DEMPath,
			Perimeter: fire.PerimeterPath,
			DNBR:      fire.DNBRPath,
		})
		if !result.FireValid {
			zap.S().Named("cli").Warnw("excluding invalid fire", "fire_id", fire.ID)
			continue
		}
		valid = append(valid, fire)
	}
	fmt.Printf("Validated %d fires, %d excluded\n", len(valid), len(fires)-len(valid))
	if len(valid) == 0 {
		return fmt.Errorf("no valid fires to process")
	}

	if cfg.Soil != "" || cfg.EVT != "" || cfg.SeverityDir != "" {
		clipper := clip.NewClipper(cfg.SharedBufferMeters)
		for _, fire := range valid {
			if err := ctx.Err(); err != nil {
				return err
			}
			shared := clip.SharedData{
				Soil:     cfg.Soil,
				EVT:      cfg.EVT,
				Severity: severityMosaic(cfg.SeverityDir, fire.Year),
			}
			if result := clipper.ClipFireDatasets(ctx, fire.ID, fire.PerimeterPath, shared, cfg.OutputRoot); !result.Success {
				zap.S().Named("cli").Warnw("clipping incomplete", "fire_id", fire.ID, "errors", result.Errors)
			}
		}
	}

	initializer := project.NewInitializer(model, project.SharedInputs{
		SoilPath:     cfg.Soil,
		EVTPath:      cfg.EVT,
		SeverityBase: cfg.SeverityDir,
	})
	initialized := initializer.InitializeAll(ctx, valid, cfg.ProjectsRoot)
	fmt.Printf("Initialized %d projects, %d failed\n", initialized.Successful, initialized.Failed)
	if len(initialized.Projects) == 0 {
		return fmt.Errorf("no projects initialized")
	}

	sampler, err := assess.NewMemorySampler()
	if err != nil {
		zap.S().Named("cli").Warnw("memory sampling unavailable", "error", err)
		sampler = nil
	}
	runner := assess.NewRunner(model, st, sampler, cfg.ExportFormats)
	orchestrator := assess.NewOrchestrator(runner, st, sampler, assess.BatchConfig{
		Order:             cfg.Order,
		SkipExisting:      cfg.SkipExisting,
		MemoryThresholdGB: cfg.MemoryThresholdGB,
	})
	batch := orchestrator.RunBatch(ctx, initialized.Projects)
	fmt.Printf("Assessed %d fires: %d ok, %d skipped, %d memory failures, %d other failures (%.1fs)\n",
		len(initialized.Projects), batch.Successful, batch.Skipped, batch.MemoryErrors, batch.OtherErrors, batch.TotalSecs)

	generated := raster.NewGenerator(cfg.RastersRoot, cfg.Scenarios, cfg.Resolution).GenerateAll(ctx, initialized.Projects)
	classified := classifyAll(generated.Rasters)
	fmt.Printf("Generated rasters for %d fires (%d failed), classified %d\n",
		generated.Generated, generated.Failed, classified)

	fireIDs := make([]string, 0, len(initialized.Projects))
	for _, proj := range initialized.Projects {
		fireIDs = append(fireIDs, proj.FireID)
	}
	results := assess.LatestOutcomes(ctx, st, fireIDs)
	for _, result := range batch.Results {
		if result.State == assess.StateDone {
			results[result.FireID] = result
		}
	}

	reporter := report.NewReporter(cfg.ReportsRoot)
	csvPath, err := reporter.CreateSummaryReport(ctx, initialized.Projects, results)
	if err != nil {
		zap.S().Named("cli").Warnw("summary report not written", "error", err)
		return nil
	}
	fmt.Printf("Summary table: %s\n", csvPath)

	rendered := renderHazardMaps(cfg, reporter, initialized.Projects, results)
	fmt.Printf("Rendered %d hazard maps under %s\n", rendered, cfg.ReportsRoot)
	return nil
}

// fetchElevation uploads the perimeters of fires missing a DEM and pulls
// their elevation mosaics back, running both pools concurrently so downloads
// start as soon as their upload resolves. Remote failures leave the fire
// incomplete rather than failing the run.
func (o *RunOptions) fetchElevation(ctx context.Context, cfg *config.Pipeline, inv inventory.Inventory) {
	var pending []assets.Perimeter
	for _, id := range inv.SortedIDs() {
		fire := inv[id]
		if fire.HasPerimeter() && !fire.HasDEM() {
			pending = append(pending, assets.Perimeter{FireID: id, Path: fire.PerimeterPath})
		}
	}
	if len(pending) == 0 {
		return
	}

	blob, env, err := newBlobStore()
	if err != nil {
		zap.S().Named("cli").Warnw("object store unavailable, skipping elevation fetch", "error", err)
		return
	}

	tracker := assets.NewTracker()
	uploader := assets.NewUploader(blob, env.Store.AssetBasePath, cfg.Workers, tracker)
	downloader := assets.NewDownloader(blob, assets.DownloadConfig{
		BasePath:     env.Store.AssetBasePath,
		DemPrefix:    env.Store.DemPrefix,
		BufferMeters: cfg.DownloadBufferMeters,
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval.MustParse(),
		AwaitTimeout: cfg.AwaitTimeout.MustParse(),
	}, tracker)

	fireIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		fireIDs = append(fireIDs, p.FireID)
	}

	var (
		uploaded   assets.UploadSummary
		downloaded assets.DownloadSummary
	)
	g := errgroup.Group{}
	g.Go(func() error {
		uploaded = uploader.UploadAll(ctx, pending)
		return nil
	})
	g.Go(func() error {
		downloaded = downloader.DownloadAll(ctx, fireIDs, cfg.OutputRoot)
		return nil
	})
	_ = g.Wait()

	fmt.Printf("Fetched elevation for %d of %d fires (%d uploads failed)\n",
		downloaded.Successful, len(pending), uploaded.Failed)
	adoptDownloadedDEMs(inv, cfg.OutputRoot)
}
