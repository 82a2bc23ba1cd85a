package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/propane-pricer/internal/metrics"
	"github.com/sells-group/propane-pricer/internal/report"
	"github.com/sells-group/propane-pricer/internal/runner"
)

var (
	uploadConcurrency  int
	uploadDryRun       bool
	uploadReportFormat string
	uploadReportOut    string
)

func init() {
	rootCmd.Flags().IntVar(&uploadConcurrency, "concurrency", 0, "max concurrent upserts (default from upload.concurrency)")
	rootCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "parse and price rows without writing to the database")
	rootCmd.Flags().StringVar(&uploadReportFormat, "report-format", report.FormatText, "run report format: text, json or yaml")
	rootCmd.Flags().StringVar(&uploadReportOut, "report-out", "", "write the run report to a file (default: stdout)")
}

// applyFlags lets command-line flags override loaded configuration.
func applyFlags(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		cfg.Upload.Concurrency = uploadConcurrency
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(uploadDryRun); err != nil {
		return runner.Fatal(err)
	}
	if !report.ValidFormat(uploadReportFormat) {
		return runner.Fatal(eris.Errorf("upload: unknown report format %q", uploadReportFormat))
	}
	policy, err := cfg.Policy()
	if err != nil {
		return runner.Fatal(err)
	}

	up, err := initUpserter(ctx, uploadDryRun)
	if err != nil {
		return runner.Fatal(eris.Wrap(err, "upload: init store"))
	}
	defer up.Close() //nolint:errcheck

	opts := runner.Options{
		Concurrency: cfg.Upload.Concurrency,
		RateLimit:   cfg.Upload.RateLimit,
		DryRun:      uploadDryRun,
		Trace:       cfg.Log.Trace(),
		Source:      cfg.SourceOptions(),
	}
	if cfg.Metrics.Textfile != "" {
		opts.Metrics = metrics.New()
		opts.Textfile = cfg.Metrics.Textfile
	}

	r, err := runner.New(up, policy, opts)
	if err != nil {
		return err
	}

	sum, runErr := r.Run(ctx, args[0])
	if runner.IsFatal(runErr) {
		return runErr
	}

	if err := writeReport(cmd.OutOrStdout(), sum); err != nil {
		return err
	}
	return runErr
}

// writeReport writes the run report to --report-out or w.
func writeReport(w io.Writer, sum report.Summary) error {
	if uploadReportOut != "" {
		f, err := os.Create(uploadReportOut)
		if err != nil {
			return eris.Wrap(err, "upload: create report file")
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	if err := sum.Write(w, uploadReportFormat); err != nil {
		return eris.Wrap(err, "upload: write report")
	}
	if uploadReportOut != "" {
		zap.L().Info("report written", zap.String("path", uploadReportOut))
	}
	return nil
}
