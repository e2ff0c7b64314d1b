package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/extract"
)

type ExtractOptions struct {
	GlobalOptions

	Years []string
}

func DefaultExtractOptions() *ExtractOptions {
	return &ExtractOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdExtract() *cobra.Command {
	o := DefaultExtractOptions()
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Unpack fire bundle archives under the input root.",
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

func (o *ExtractOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringSliceVar(&o.Years, "years", o.Years, "Year folders to process. Overrides the config file.")
}

func (o *ExtractOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *ExtractOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *ExtractOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}

	years := cfg.Years
	if len(o.Years) > 0 {
		years = o.Years
	}

	summary, err := extract.NewExtractor(cfg.InputRoot).ExtractAll(ctx, years)
	if err != nil {
		return err
	}

	fmt.Printf("Extracted %d archives, %d failed\n", summary.Successful, summary.Failed)
	for _, detail := range summary.Details {
		if !detail.Success {
			fmt.Printf("  %s: %s\n", detail.Archive, detail.Error)
		}
	}
	return nil
}
