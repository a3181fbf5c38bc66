package commands

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gm-agent-org/neuralmap-bridge/pkg/api"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/bridge"
	"github.com/gm-agent-org/neuralmap-bridge/pkg/controlplane"
)

func newServeCmd(opts *options) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the instance and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if url != "" {
				cfg.Bridge.URL = url
			}

			engineCfg, err := opts.engineConfig()
			if err != nil {
				return err
			}

			client := bridge.New(cfg.Bridge, nil, opts.logger)
			cp, err := controlplane.New(cfg.Sync, client, engineCfg, opts.logger)
			if err != nil {
				return err
			}

			opts.logger.Info("nmbridge starting",
				"bridge_url", cfg.Bridge.URL,
				"files", len(engineCfg.Files),
				"http", cfg.HTTP.Enable,
				"execute_shell", cfg.Security.ExecuteShell,
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return client.Run(ctx) })
			g.Go(func() error { return cp.Run(ctx) })
			if cfg.HTTP.Enable {
				srv := api.NewServer(cfg.HTTP, cp, opts.logger)
				g.Go(func() error { return srv.Run(ctx) })
			}

			err = g.Wait()
			opts.logger.Info("nmbridge stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Override the bridge websocket URL")
	return cmd
}
