package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/assess"
	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/report"
)

type ReportOptions struct {
	GlobalOptions

	Maps bool
}

func DefaultReportOptions() *ReportOptions {
	return &ReportOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Maps:          true,
	}
}

func NewCmdReport() *cobra.Command {
	o := DefaultReportOptions()
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize completed assessments as tables and hazard maps.",
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

func (o *ReportOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.Maps, "maps", o.Maps, "Render PNG hazard maps alongside the summary table.")
}

func (o *ReportOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *ReportOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *ReportOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}

	projects, err := project.Discover(cfg.ProjectsRoot)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		return fmt.Errorf("no projects found under %s", cfg.ProjectsRoot)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	fireIDs := make([]string, 0, len(projects))
	for _, proj := range projects {
		fireIDs = append(fireIDs, proj.FireID)
	}
	results := assess.LatestOutcomes(ctx, st, fireIDs)

	reporter := report.NewReporter(cfg.ReportsRoot)
	csvPath, err := reporter.CreateSummaryReport(ctx, projects, results)
	if err != nil {
		return err
	}
	fmt.Printf("Summary table: %s\n", csvPath)

	if !o.Maps {
		return nil
	}

	rendered := renderHazardMaps(cfg, reporter, projects, results)
	fmt.Printf("Rendered %d hazard maps under %s\n", rendered, cfg.ReportsRoot)
	return nil
}
