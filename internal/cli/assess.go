package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/firesci/debrisflow/internal/assess"
	"github.com/firesci/debrisflow/internal/config"
	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/wildcat"
)

type AssessOptions struct {
	GlobalOptions

	Order        string
	SkipExisting bool

	orderChanged bool
	skipChanged  bool
}

func DefaultAssessOptions() *AssessOptions {
	return &AssessOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Order:         config.OrderSizeAsc,
		SkipExisting:  true,
	}
}

func NewCmdAssess() *cobra.Command {
	o := DefaultAssessOptions()
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run the debris-flow model over every initialized project.",
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

func (o *AssessOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Order, "order", o.Order, fmt.Sprintf("Batch order. One of: (%s).", strings.Join(assess.OrderPolicies, ", ")))
	fs.BoolVar(&o.SkipExisting, "skip-existing", o.SkipExisting, "Skip fires whose latest export already succeeded.")
}

func (o *AssessOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	o.orderChanged = cmd.Flags().Changed("order")
	o.skipChanged = cmd.Flags().Changed("skip-existing")
	return nil
}

func (o *AssessOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if !funk.Contains(assess.OrderPolicies, o.Order) {
		return fmt.Errorf("order must be one of %s", strings.Join(assess.OrderPolicies, ", "))
	}

	return nil
}

func (o *AssessOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
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

	projects, err := project.Discover(cfg.ProjectsRoot)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		return fmt.Errorf("no projects found under %s", cfg.ProjectsRoot)
	}
	projects = assess.SortProjects(projects, cfg.Order)
	if cfg.MaxFires > 0 && len(projects) > cfg.MaxFires {
		projects = projects[:cfg.MaxFires]
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	maybeServeMetrics(ctx, st)

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
	summary := orchestrator.RunBatch(ctx, projects)

	fmt.Printf("Assessed %d fires: %d ok, %d skipped, %d memory failures, %d other failures (%.1fs)\n",
		len(projects), summary.Successful, summary.Skipped, summary.MemoryErrors, summary.OtherErrors, summary.TotalSecs)
	return nil
}
