package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/validation"
)

type ValidateOptions struct {
	GlobalOptions
}

func DefaultValidateOptions() *ValidateOptions {
	return &ValidateOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdValidate() *cobra.Command {
	o := DefaultValidateOptions()
	cmd := &cobra.Command{
		Use:   "validate [FIRE_ID]",
		Short: "Check fire inputs structurally and for CRS agreement.",
		Args:  cobra.MaximumNArgs(1),
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

func (o *ValidateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *ValidateOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *ValidateOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *ValidateOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}

	inv, err := scanInventory(ctx, cfg)
	if err != nil {
		return err
	}

	ids := inv.SortedIDs()
	if len(args) == 1 {
		if _, ok := inv[args[0]]; !ok {
			return fmt.Errorf("fire %s not found in inventory", args[0])
		}
		ids = []string{args[0]}
	}

	valid := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		fire := inv[id]
		result := validation.ValidateFire(validation.FireData{
			DEM:       fire.DEMPath,
			Perimeter: fire.PerimeterPath,
			DNBR:      fire.DNBRPath,
		})
		if result.FireValid {
			valid++
			fmt.Printf("%s: ok\n", id)
			continue
		}

		fmt.Printf("%s: invalid\n", id)
		parts := []struct {
			role   string
			result *validation.Result
		}{
			{"dem", result.DEM},
			{"perimeter", result.Perimeter},
			{"dnbr", result.DNBR},
		}
		for _, part := range parts {
			if part.result == nil {
				continue
			}
			for _, issue := range part.result.Issues {
				fmt.Printf("  %s: %s\n", part.role, issue)
			}
		}
		if !result.CRSMatch {
			fmt.Printf("  crs: reference systems disagree\n")
		}
	}

	fmt.Printf("%d/%d fires valid\n", valid, len(ids))
	return nil
}
