package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/firesci/debrisflow/internal/config"
)

type GlobalOptions struct {
	ConfigFile string
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFile: "",
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.ConfigFile, "config", "c", o.ConfigFile, "Path of the pipeline config file. Built-in defaults apply when omitted.")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

// Pipeline loads the batch configuration, layering the config file over the
// defaults when one was given.
func (o *GlobalOptions) Pipeline() (*config.Pipeline, error) {
	cfg := config.NewDefaultPipeline()
	if o.ConfigFile != "" {
		if err := cfg.ParseConfigFile(o.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
