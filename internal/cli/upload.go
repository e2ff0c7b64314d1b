package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/assets"
)

type UploadOptions struct {
	GlobalOptions

	Workers int
}

func DefaultUploadOptions() *UploadOptions {
	return &UploadOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdUpload() *cobra.Command {
	o := DefaultUploadOptions()
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Push fire perimeters to the object store as GeoJSON.",
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

func (o *UploadOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.IntVar(&o.Workers, "workers", o.Workers, "Upload pool size. Overrides the config file when positive.")
}

func (o *UploadOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *UploadOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *UploadOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}

	inv, err := scanInventory(ctx, cfg)
	if err != nil {
		return err
	}

	var perimeters []assets.Perimeter
	for _, id := range inv.SortedIDs() {
		if fire := inv[id]; fire.HasPerimeter() {
			perimeters = append(perimeters, assets.Perimeter{FireID: id, Path: fire.PerimeterPath})
		}
	}
	if len(perimeters) == 0 {
		return fmt.Errorf("no perimeters found under %s", cfg.InputRoot)
	}

	blob, env, err := newBlobStore()
	if err != nil {
		return err
	}

	workers := cfg.Workers
	if o.Workers > 0 {
		workers = o.Workers
	}

	uploader := assets.NewUploader(blob, env.Store.AssetBasePath, workers, nil)
	summary := uploader.UploadAll(ctx, perimeters)

	fmt.Printf("Uploaded %d perimeters, %d failed\n", summary.Successful, summary.Failed)
	for _, result := range summary.Results {
		if result.Status == assets.StatusFailed {
			fmt.Printf("  %s: %s\n", result.FireID, result.Error)
		}
	}
	return nil
}
