package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/assets"
)

type DownloadOptions struct {
	GlobalOptions

	Workers int
}

func DefaultDownloadOptions() *DownloadOptions {
	return &DownloadOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdDownload() *cobra.Command {
	o := DefaultDownloadOptions()
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Pull per-fire elevation mosaics from the object store.",
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

func (o *DownloadOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.IntVar(&o.Workers, "workers", o.Workers, "Download pool size. Overrides the config file when positive.")
}

func (o *DownloadOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *DownloadOptions) Validate(args []string) error {
	return o.GlobalOptions.Validate(args)
}

func (o *DownloadOptions) Run(ctx context.Context, args []string) error {
	cfg, err := o.Pipeline()
	if err != nil {
		return err
	}

	inv, err := scanInventory(ctx, cfg)
	if err != nil {
		return err
	}

	var fireIDs []string
	for _, id := range inv.SortedIDs() {
		if inv[id].HasPerimeter() {
			fireIDs = append(fireIDs, id)
		}
	}
	if len(fireIDs) == 0 {
		return fmt.Errorf("no fires with perimeters found under %s", cfg.InputRoot)
	}

	blob, env, err := newBlobStore()
	if err != nil {
		return err
	}

	workers := cfg.Workers
	if o.Workers > 0 {
		workers = o.Workers
	}

	downloader := assets.NewDownloader(blob, assets.DownloadConfig{
		BasePath:     env.Store.AssetBasePath,
		DemPrefix:    env.Store.DemPrefix,
		BufferMeters: cfg.DownloadBufferMeters,
		Workers:      workers,
		PollInterval: cfg.PollInterval.MustParse(),
		AwaitTimeout: cfg.AwaitTimeout.MustParse(),
	}, nil)
	summary := downloader.DownloadAll(ctx, fireIDs, cfg.OutputRoot)

	fmt.Printf("Downloaded %d elevation mosaics, %d failed\n", summary.Successful, summary.Failed)
	for _, result := range summary.Results {
		if result.Status == assets.StatusFailed {
			fmt.Printf("  %s: %s\n", result.FireID, result.Error)
		}
	}
	return nil
}
