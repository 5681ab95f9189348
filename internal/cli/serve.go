package cli

import (
	"github.com/goliatone/go-rwportal/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *options) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			logger := newLogger(cfg, cmd.ErrOrStderr())
			if cfg.CSRF.Secret == "" {
				logger.Warn("no csrf secret configured, forms issued before a restart will be rejected")
			}

			srv, err := server.New(cfg, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address, overrides server.address")
	return cmd
}
