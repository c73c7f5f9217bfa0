package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-pages/extract"
	"github.com/aluiziolira/go-scrape-pages/models"
	"github.com/aluiziolira/go-scrape-pages/output"
	"github.com/aluiziolira/go-scrape-pages/parser"
	"github.com/aluiziolira/go-scrape-pages/pipeline"
	"github.com/aluiziolira/go-scrape-pages/scraper"
	"github.com/aluiziolira/go-scrape-pages/urllist"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type batchOptions struct {
	format      string
	extract     string
	filename    string
	delay       float64
	workers     int
	urlColumn   string
	metricsAddr string
	quiet       bool
}

func newBatchCmd(root *rootOptions) *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <input>",
		Short: "Scrape every URL listed in a text or CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.format, "output", "o", "json", "Output format: json, jsonl, csv, txt or dual")
	flags.StringVarP(&opts.extract, "extract", "e", "all", "What to extract: all, text, links or images")
	flags.StringVarP(&opts.filename, "filename", "f", "", "Output filename without extension")
	flags.Float64VarP(&opts.delay, "delay", "d", 1.0, "Delay between requests in seconds (overrides config)")
	flags.IntVar(&opts.workers, "workers", 1, "Number of hosts processed concurrently")
	flags.StringVar(&opts.urlColumn, "url-column", urllist.DefaultColumn, "CSV column holding the URLs")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVar(&opts.quiet, "quiet", false, "Suppress banner and progress output")
	return cmd
}

func runBatch(cmd *cobra.Command, root *rootOptions, opts *batchOptions, input string) error {
	out := cmd.OutOrStdout()
	if opts.quiet {
		out = io.Discard
	}

	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	mode, err := models.ParseMode(opts.extract)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("delay") {
		cfg.Delay = secondsToDuration(opts.delay)
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("url-column") {
		cfg.URLColumn = opts.urlColumn
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if cfg.Delay < 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrInvalidDelay, cfg.Delay)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	printBanner(out)

	urls, err := urllist.Load(input, cfg.URLColumn)
	if err != nil {
		slog.Error("loading url list", slog.String("path", input), slog.Any("error", err))
	}
	if len(urls) == 0 {
		fmt.Fprintln(out, "No URLs found in input file")
		return nil
	}

	metrics := scraper.NewMetrics()
	metricsServer := startMetricsServer(cfg.MetricsAddr, metrics.Registry)
	defer stopMetricsServer(metricsServer)

	fetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		return err
	}
	manager, err := output.NewManager(cfg.OutputDir)
	if err != nil {
		return err
	}

	runnerOpts := []pipeline.Option{
		pipeline.WithProgress(out),
		pipeline.WithMetrics(metrics),
		pipeline.WithWorkers(cfg.Workers),
	}

	var (
		stream recordStream
		paths  []string
	)
	if format.Streamable() {
		stream.writer, paths, err = manager.OpenReport(format, opts.filename, models.Columns(mode))
		if err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, pipeline.WithSink(stream.writer))
	}

	runner := pipeline.NewRunner(fetcher, parser.HTMLParser{}, extract.New(), runnerOpts...)
	report, err := runner.Run(cmd.Context(), urls, mode, cfg.Delay)
	if report == nil {
		stream.discard(manager, paths)
		return err
	}
	if err != nil {
		slog.Error("streaming results failed", slog.Any("error", err))
	}
	if report.Cancelled {
		slog.Warn("batch cancelled, saving partial results", slog.Int("records", report.Len()))
	}

	if format.Streamable() {
		paths = stream.finish(manager, paths, report)
	} else {
		paths, err = manager.SaveReport(report, format, opts.filename)
		if err != nil && !errors.Is(err, output.ErrNoRecords) {
			slog.Error("saving results", slog.Any("error", err))
		}
	}
	if len(paths) == 0 {
		fmt.Fprintln(out, "No results to save")
	}
	for _, p := range paths {
		fmt.Fprintf(out, "Data saved to %s\n", p)
	}

	printSummary(out, report, paths)
	return nil
}

// recordStream owns the writer records are streamed to during a run.
type recordStream struct {
	writer output.OutputWriter
}

func (s *recordStream) discard(m *output.Manager, paths []string) {
	if s.writer == nil {
		return
	}
	if err := s.writer.Close(); err != nil {
		slog.Error("close output", slog.Any("error", err))
	}
	if err := m.Remove(paths...); err != nil {
		slog.Error("remove output", slog.Any("error", err))
	}
}

// finish closes the stream and returns the paths that hold results.
func (s *recordStream) finish(m *output.Manager, paths []string, report *models.BatchReport) []string {
	if report.Len() == 0 {
		s.discard(m, paths)
		return nil
	}
	if err := s.writer.Close(); err != nil {
		slog.Error("close output", slog.Any("error", err))
		return nil
	}
	if err := s.writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return nil
	}
	return paths
}

func printSummary(w io.Writer, report *models.BatchReport, paths []string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Batch summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Run ID", report.RunID},
		{"Mode", report.Mode.String()},
		{"Records", report.Len()},
		{"Successful", report.Successes()},
		{"Failed", report.Failures()},
		{"Cancelled", report.Cancelled},
		{"Duration", report.Duration().Round(time.Millisecond)},
	})

	byType := map[string]int{}
	for _, rec := range report.Records {
		if !rec.Succeeded() {
			byType[rec.ErrorType]++
		}
	}
	types := make([]string, 0, len(byType))
	for k := range byType {
		types = append(types, k)
	}
	sort.Strings(types)
	for _, k := range types {
		t.AppendRow(table.Row{"Errors (" + k + ")", byType[k]})
	}

	if len(paths) > 0 {
		t.AppendRow(table.Row{"Output", strings.Join(paths, "\n")})
	}
	t.Render()
}
