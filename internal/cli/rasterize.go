package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/project"
	"github.com/firesci/debrisflow/internal/raster"
)

type RasterizeOptions struct {
	GlobalOptions
}

func DefaultRasterizeOptions() *RasterizeOptions {
	return &RasterizeOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdRasterize() *cobra.Command {
	o := DefaultRasterizeOptions()
	cmd := &cobra.Command{
		Use:   "rasterize",
		Short: "Rasterize basin probabilities and classify hazards.",
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

func (o *RasterizeOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *RasterizeOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *RasterizeOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *RasterizeOptions) Run(ctx context.Context, args []string) error {
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

	generator := raster.NewGenerator(cfg.RastersRoot, cfg.Scenarios, cfg.Resolution)
	result := generator.GenerateAll(ctx, projects)
	classified := classifyAll(result.Rasters)

	fmt.Printf("Generated rasters for %d fires (%d failed), classified %d\n",
		result.Generated, result.Failed, classified)
	return nil
}
