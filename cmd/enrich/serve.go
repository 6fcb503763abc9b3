package main

import (
	"log/slog"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/FranksOps/enrich/internal/server"
	"github.com/FranksOps/enrich/internal/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve single product lookups over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}

		logger := slog.Default()
		env, err := initEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer env.Close()

		var store storage.Backend
		if cfg.Store.DSN != "" {
			store, err = openStore(ctx, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer store.Close()
		}

		h := server.NewHandler(server.Config{
			Resolver: env.Resolver,
			Renderer: env.Renderer,
			Store:    store,
			RPS:      cfg.Server.RPS,
			Burst:    cfg.Server.Burst,
			Logger:   logger,
		})
		return eris.Wrap(server.Run(ctx, cfg.Server.Addr, server.SetupRouter(h), logger), "serve")
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}
