package main

import (
	"encoding/json"
	"log/slog"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/server"
)

var lookupName string

var lookupCmd = &cobra.Command{
	Use:   "lookup <ean>",
	Short: "Resolve a single product and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		logger := slog.Default()
		env, err := initEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer env.Close()

		id := product.Identifier{EAN: args[0], Name: lookupName}
		if !product.ValidEAN(id.EAN) {
			logger.Warn("checksum mismatch, searching anyway", "ean", id.EAN)
		}

		rec, out := env.Resolver.Resolve(ctx, id)
		resp := server.ProductResponse{Record: rec, Outcome: out, ValidEAN: product.ValidEAN(id.EAN)}
		if html, err := env.Renderer.Render(rec); err == nil {
			resp.DescriptionHTML = html
		} else {
			logger.Warn("render failed", "ean", id.EAN, "err", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(resp), "encode result")
	},
}

func init() {
	lookupCmd.Flags().StringVarP(&lookupName, "name", "n", "", "product name used by name keyed sources")
	rootCmd.AddCommand(lookupCmd)
}
