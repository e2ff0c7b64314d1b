package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/clip"
)

type ClipOptions struct {
	GlobalOptions
}

func DefaultClipOptions() *ClipOptions {
	return &ClipOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdClip() *cobra.Command {
	o := DefaultClipOptions()
	cmd := &cobra.Command{
		Use:   "clip",
		Short: "Clip shared regional datasets to each fire's buffered perimeter.",
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

func (o *ClipOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *ClipOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *ClipOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *ClipOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}
	if cfg.Soil == "" && cfg.EVT == "" && cfg.SeverityDir == "" {
		return fmt.Errorf("no shared datasets configured (soil, evt, severity-dir)")
	}

	inv, err := scanInventory(ctx, cfg)
	if err != nil {
		return err
	}

	clipper := clip.NewClipper(cfg.SharedBufferMeters)
	clipped, failed := 0, 0
	for _, id := range inv.SortedIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		fire := inv[id]
		if !fire.HasPerimeter() {
			continue
		}

		shared := clip.SharedData{
			Soil:     cfg.Soil,
			EVT:      cfg.EVT,
			Severity: severityMosaic(cfg.SeverityDir, fire.Year),
		}
		result := clipper.ClipFireDatasets(ctx, id, fire.PerimeterPath, shared, cfg.OutputRoot)
		if result.Success {
			clipped++
			continue
		}
		failed++
		for _, msg := range result.Errors {
			fmt.Printf("  %s: %s\n", id, msg)
		}
	}

	fmt.Printf("Clipped datasets for %d fires, %d failed\n", clipped, failed)
	return nil
}
