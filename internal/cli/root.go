// Package cli holds the rwportal commands.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/goliatone/go-rwportal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Build information, set with -ldflags at release time.
var (
	Version = "dev"
	Commit  = "none"
)

type options struct {
	configPath string
	stdin      io.Reader
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{stdin: os.Stdin})
}

func newRootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "rwportal",
		Short: "Web portal for the RW neighbourhood association",
		Long: `rwportal serves the neighbourhood portal: cash book, complaints,
officer roster and user management, all backed by the RW API.`,
		SilenceUsage: true,
	}
	addConfigFlag(root.PersistentFlags(), opts)

	root.AddCommand(
		newServeCommand(opts),
		newLoginCheckCommand(opts),
		newVersionCommand(),
	)
	return root
}

func addConfigFlag(flags *pflag.FlagSet, opts *options) {
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"),
		"path to a JSONC config file (env "+config.EnvPrefix+"CONFIG)")
}

// loadConfig reads the file when one is given, otherwise the defaults,
// and applies the environment on top.
func (o *options) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.Load(o.configPath)
	}

	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.GetLogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}
