package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/inventory"
)

type InventoryOptions struct {
	GlobalOptions

	Sync bool
}

func DefaultInventoryOptions() *InventoryOptions {
	return &InventoryOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Sync:          true,
	}
}

func NewCmdInventory() *cobra.Command {
	o := DefaultInventoryOptions()
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Scan the fire archive and report input completeness.",
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

func (o *InventoryOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.Sync, "sync", o.Sync, "Record the scan in the status database.")
}

func (o *InventoryOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *InventoryOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *InventoryOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}

	inv, err := scanInventory(ctx, cfg)
	if err != nil {
		return err
	}

	completeness := inventory.CheckCompleteness(inv)
	fmt.Printf("Inventoried %d fires, %d complete\n", completeness.Total, len(completeness.Complete))
	printMissing("perimeter", completeness.MissingPerimeter)
	printMissing("dnbr", completeness.MissingDNBR)
	printMissing("dem", completeness.MissingDEM)

	if !o.Sync {
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := inventory.SyncStore(ctx, st, inv); err != nil {
		return fmt.Errorf("syncing inventory: %w", err)
	}
	return nil
}

func printMissing(role string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Printf("  missing %s (%d): %s\n", role, len(ids), strings.Join(ids, ", "))
}
