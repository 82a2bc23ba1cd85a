// Package runner drives one pricing run: read the input file, price each
// row, upsert the valid rows under the concurrency cap, and summarize.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/propane-pricer/internal/dispatch"
	"github.com/sells-group/propane-pricer/internal/ingest"
	"github.com/sells-group/propane-pricer/internal/metrics"
	"github.com/sells-group/propane-pricer/internal/model"
	"github.com/sells-group/propane-pricer/internal/parse"
	"github.com/sells-group/propane-pricer/internal/pricing"
	"github.com/sells-group/propane-pricer/internal/report"
)

// FatalError is a setup failure that stops the run before any row is read.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal marks err as fatal.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err, or anything it wraps, is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Options configures a Runner.
type Options struct {
	Concurrency int
	RateLimit   float64
	DryRun      bool
	Trace       bool           // per-row debug logging
	Source      ingest.Options // how the input file is read
	Metrics     *metrics.Run   // optional
	Textfile    string         // metrics textfile written at the end; requires Metrics
}

// Runner executes pricing runs against one Upserter.
type Runner struct {
	policy pricing.Policy
	disp   *dispatch.Dispatcher
	opts   Options
	now    func() time.Time
}

// New creates a Runner. Invalid options are fatal.
func New(up dispatch.Upserter, policy pricing.Policy, opts Options) (*Runner, error) {
	dopts := dispatch.Options{
		Limit:     opts.Concurrency,
		RateLimit: opts.RateLimit,
		Trace:     opts.Trace,
	}
	if opts.Metrics != nil {
		dopts.Observer = opts.Metrics
	}
	d, err := dispatch.New(up, dopts)
	if err != nil {
		return nil, Fatal(err)
	}
	return &Runner{policy: policy, disp: d, opts: opts, now: time.Now}, nil
}

// Run processes the file at path. Row failures land in the summary and do
// not fail the run. A file that cannot be opened or has an unusable header
// returns a FatalError with nothing processed. An input error mid-file stops
// reading; rows already admitted finish and the partial summary is returned
// along with the error.
func (r *Runner) Run(ctx context.Context, path string) (report.Summary, error) {
	src, err := ingest.Open(path, r.opts.Source)
	if err != nil {
		return report.Summary{}, Fatal(err)
	}
	defer src.Close() //nolint:errcheck

	runID := uuid.NewString()
	log := zap.L().With(zap.String("run_id", runID), zap.String("file", path))
	if ignored := src.Ignored(); len(ignored) > 0 {
		log.Debug("run: ignoring columns", zap.Strings("columns", ignored))
	}
	log.Info("run: starting",
		zap.Any("columns", src.Mapped()),
		zap.Int("concurrency", r.disp.Limit()),
		zap.Bool("dry_run", r.opts.DryRun),
		zap.String("policy", r.policy.Describe()),
	)

	rep := report.New(runID, path, r.opts.DryRun, r.now())
	var rec dispatch.Recorder = rep
	if r.opts.Metrics != nil {
		rec = tee{rep, r.opts.Metrics}
	}

	recCh, errCh := src.Stream(ctx)
	rows := make(chan model.Row)
	var rejected int
	go func() {
		defer close(rows)
		for raw := range recCh {
			row, err := parse.Row(raw, r.policy)
			if err != nil {
				rejected++
				f := parse.Failure(raw, err)
				log.Warn("run: row rejected",
					zap.String("id", f.ID),
					zap.Int("line", f.Line),
					zap.String("kind", string(f.Kind)),
					zap.Error(err),
				)
				rec.Record(model.Fail(f))
				continue
			}
			if r.opts.Trace {
				log.Debug("run: row parsed",
					zap.String("sku", row.SKU),
					zap.Int("line", row.Line),
					zap.String("discount_code", row.DiscountCode),
					zap.String("discounted_price", row.DiscountedPrice.String()),
				)
			}
			rows <- row
		}
	}()

	stats := r.disp.Run(ctx, rows, rec)
	streamErr := <-errCh

	sum := rep.Finish(r.now())
	log.Info("run: complete",
		zap.Int("total", sum.Total),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("rejected", rejected),
		zap.Int64("upserts", stats.Dispatched),
		zap.Int64("max_in_flight", stats.MaxInFlight),
		zap.Int64("duration_ms", sum.DurationMS),
	)

	if r.opts.Metrics != nil && r.opts.Textfile != "" {
		if err := r.opts.Metrics.WriteTextfile(r.opts.Textfile, sum.FinishedAt); err != nil {
			log.Warn("run: metrics textfile not written", zap.Error(err))
		}
	}

	if streamErr != nil {
		return sum, eris.Wrap(streamErr, "run: input ended early")
	}
	return sum, nil
}

// tee records each outcome in the report and the metrics.
type tee struct {
	rep *report.Report
	m   *metrics.Run
}

func (t tee) Record(o model.Outcome) {
	t.rep.Record(o)
	t.m.Record(o)
}
