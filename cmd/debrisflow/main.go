package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/firesci/debrisflow/internal/cli"
	"github.com/firesci/debrisflow/internal/config"
	"github.com/firesci/debrisflow/pkg/log"
)

func main() {
	logLevel := "info"
	if cfg, err := config.New(); err == nil {
		logLevel = cfg.Service.LogLevel
	}
	logger := log.Setup(logLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	command := NewDebrisFlowCommand()
	if err := command.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func NewDebrisFlowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debrisflow [flags] [options]",
		Short: "debrisflow runs the post-fire debris-flow assessment pipeline.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdExtract())
	cmd.AddCommand(cli.NewCmdInventory())
	cmd.AddCommand(cli.NewCmdValidate())
	cmd.AddCommand(cli.NewCmdClip())
	cmd.AddCommand(cli.NewCmdUpload())
	cmd.AddCommand(cli.NewCmdDownload())
	cmd.AddCommand(cli.NewCmdInit())
	cmd.AddCommand(cli.NewCmdAssess())
	cmd.AddCommand(cli.NewCmdRasterize())
	cmd.AddCommand(cli.NewCmdReport())
	cmd.AddCommand(cli.NewCmdRun())
	cmd.AddCommand(cli.NewCmdMigrate())

	return cmd
}
