package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/FranksOps/enrich/internal/catalog"
	"github.com/FranksOps/enrich/internal/config"
	"github.com/FranksOps/enrich/internal/metrics"
	"github.com/FranksOps/enrich/internal/pipeline"
	"github.com/FranksOps/enrich/internal/product"
	"github.com/FranksOps/enrich/internal/report"
	"github.com/FranksOps/enrich/internal/storage"
	"github.com/FranksOps/enrich/internal/storage/csvbackend"
)

var (
	runInput       string
	runSheet       string
	runConcurrency int
	runRaw         string
	runHTML        string
	runSummary     string
	runTemplate    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich every product in the input catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		applyRunFlags(cmd, cfg)
		return runBatch(ctx, cfg, cmd.OutOrStdout(), slog.Default())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runInput, "input", "i", "", "input catalog (.csv or .xlsx), overrides input.path")
	f.StringVar(&runSheet, "sheet", "", "worksheet name for .xlsx input")
	f.IntVarP(&runConcurrency, "concurrency", "c", 0, "identifiers resolved at once, overrides pipeline.concurrency")
	f.StringVar(&runRaw, "raw", "", "raw output CSV, overrides output.raw")
	f.StringVar(&runHTML, "html", "", "output CSV with rendered descriptions, overrides output.html")
	f.StringVar(&runSummary, "summary", "", "summary format: text, json, html or none")
	f.StringVar(&runTemplate, "template", "", "description template file")
	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("input") {
		c.Input.Path = runInput
	}
	if f.Changed("sheet") {
		c.Input.Sheet = runSheet
	}
	if f.Changed("concurrency") && runConcurrency > 0 {
		c.Pipeline.Concurrency = runConcurrency
	}
	if f.Changed("raw") {
		c.Output.Raw = runRaw
	}
	if f.Changed("html") {
		c.Output.HTML = runHTML
	}
	if f.Changed("summary") {
		c.Output.Summary = runSummary
	}
	if f.Changed("template") {
		c.Output.Template = runTemplate
	}
}

// runBatch reads the catalog, resolves every identifier and writes the
// output tables, the optional store and the summary.
func runBatch(ctx context.Context, c *config.Config, out io.Writer, logger *slog.Logger) error {
	if err := c.Validate(); err != nil {
		return err
	}

	// The catalog is read before anything touches the network.
	ids, err := readCatalog(c.Input)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "path", c.Input.Path, "products", len(ids))

	env, err := initEnv(c, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	if c.Metrics.Addr != "" {
		ms := metrics.Start(c.Metrics.Addr, logger)
		defer ms.Stop(context.Background())
	}

	stores, err := openOutputs(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range stores {
			if err := s.Close(); err != nil {
				logger.Warn("close store", "err", err)
			}
		}
	}()

	p := &pipeline.Pipeline{
		Resolver:    env.Resolver,
		Renderer:    env.Renderer,
		Stores:      stores,
		Concurrency: c.Pipeline.Concurrency,
		Logger:      logger,
	}
	res, runErr := p.Run(ctx, ids)
	if res == nil || ctx.Err() != nil {
		return eris.Wrap(runErr, "run")
	}

	summary := report.GenerateSummary(res.Outcomes, res.StartTime, res.EndTime)
	logger.Info("summary",
		"total", summary.Total,
		"resolved", summary.Resolved,
		"partial", summary.Partial,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	if err := writeSummary(c.Output, summary, out); err != nil {
		return err
	}
	return eris.Wrap(runErr, "run")
}

func readCatalog(in config.InputConfig) ([]product.Identifier, error) {
	if in.Sheet != "" && strings.EqualFold(filepath.Ext(in.Path), ".xlsx") {
		return catalog.ReadXLSX(in.Path, catalog.XLSXOptions{SheetName: in.Sheet})
	}
	return catalog.Read(in.Path)
}

// openOutputs opens the raw table, the table with rendered descriptions and
// the configured store, in that order. Both tables are rewritten per run.
func openOutputs(ctx context.Context, c *config.Config) ([]storage.Backend, error) {
	var stores []storage.Backend
	closeAll := func() {
		for _, s := range stores {
			s.Close()
		}
	}

	if c.Output.Raw != "" {
		raw, err := csvbackend.New(c.Output.Raw, csvbackend.Options{Truncate: true})
		if err != nil {
			return nil, eris.Wrap(err, "open raw output")
		}
		stores = append(stores, raw)
	}
	if c.Output.HTML != "" {
		html, err := csvbackend.New(c.Output.HTML, csvbackend.Options{HTML: true, Truncate: true})
		if err != nil {
			closeAll()
			return nil, eris.Wrap(err, "open html output")
		}
		stores = append(stores, html)
	}
	if c.Store.DSN != "" {
		s, err := openStore(ctx, c.Store.DSN)
		if err != nil {
			closeAll()
			return nil, err
		}
		stores = append(stores, s)
	}
	return stores, nil
}

// writeSummary writes the summary to output.summary_file, or to out when no
// file is configured.
func writeSummary(oc config.OutputConfig, s report.Summary, out io.Writer) error {
	if oc.Summary == "none" {
		return nil
	}

	w := out
	if oc.SummaryFile != "" {
		f, err := os.Create(oc.SummaryFile)
		if err != nil {
			return eris.Wrap(err, "create summary file")
		}
		defer f.Close()
		w = f
	}

	var err error
	switch oc.Summary {
	case "json":
		err = report.WriteJSON(w, s)
	case "html":
		err = report.WriteHTML(w, s)
	default:
		err = report.WriteText(w, s)
	}
	return eris.Wrap(err, "write summary")
}
