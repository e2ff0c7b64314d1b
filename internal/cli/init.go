package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/wildcat"
)

type InitOptions struct {
	GlobalOptions
}

func DefaultInitOptions() *InitOptions {
	return &InitOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdInit() *cobra.Command {
	o := DefaultInitOptions()
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create and configure model projects for complete fires.",
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

func (o *InitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *InitOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *InitOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *InitOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}

	runner := wildcat.NewCLI(cfg.WildcatBin)
	if err := runner.Available(); err != nil {
		return err
	}

	inv, err := scanInventory(ctx, cfg)
	if err != nil {
		return err
	}
	adoptDownloadedDEMs(inv, cfg.OutputRoot)

	fires := completeFires(inv, cfg.MaxFires)
	if len(fires) == 0 {
		return fmt.Errorf("no complete fires to initialize")
	}

	initializer := project.NewInitializer(runner, project.SharedInputs{
		SoilPath:     cfg.Soil,
		EVTPath:      cfg.EVT,
		SeverityBase: cfg.SeverityDir,
	})
	summary := initializer.InitializeAll(ctx, fires, cfg.ProjectsRoot)

	fmt.Printf("Initialized %d projects, %d failed\n", summary.Successful, summary.Failed)
	return nil
}
