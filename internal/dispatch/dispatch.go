// Package dispatch runs one upsert per row with a hard cap on concurrent calls.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/propane-pricer/internal/db"
	"github.com/sells-group/propane-pricer/internal/model"
)

// Upserter writes a single row.
type Upserter interface {
	Upsert(ctx context.Context, row model.Row) error
}

// Recorder receives one outcome per dispatched row. Record is called from
// many goroutines.
type Recorder interface {
	Record(o model.Outcome)
}

// Observer is notified around every upsert call.
type Observer interface {
	UpsertStarted()
	UpsertFinished(elapsed time.Duration, err error)
}

// Options configures a Dispatcher.
type Options struct {
	Limit     int      // max concurrent upserts; must be positive
	RateLimit float64  // max upserts started per second; 0 = unlimited
	Observer  Observer // optional
	Trace     bool     // log every row outcome at debug level
}

// Stats describes a finished dispatch.
type Stats struct {
	Dispatched  int64
	Failed      int64
	MaxInFlight int64
}

// Dispatcher fans rows out to an Upserter, never running more than Limit
// calls at once. Rows are admitted in the order they arrive; completion
// order is unspecified. A failed call is recorded and never cancels others.
type Dispatcher struct {
	up      Upserter
	limit   int
	limiter *rate.Limiter
	obs     Observer
	trace   bool
}

// New creates a Dispatcher.
func New(up Upserter, opts Options) (*Dispatcher, error) {
	if up == nil {
		return nil, eris.New("dispatch: nil upserter")
	}
	if opts.Limit <= 0 {
		return nil, eris.Errorf("dispatch: concurrency limit must be positive, got %d", opts.Limit)
	}
	if opts.RateLimit < 0 {
		return nil, eris.Errorf("dispatch: rate limit must not be negative, got %g", opts.RateLimit)
	}

	d := &Dispatcher{up: up, limit: opts.Limit, obs: opts.Observer, trace: opts.Trace}
	if opts.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return d, nil
}

// Limit returns the concurrency cap.
func (d *Dispatcher) Limit() int { return d.limit }

// Run consumes rows until the channel is closed, records exactly one outcome
// per row, and returns once every call has finished.
func (d *Dispatcher) Run(ctx context.Context, rows <-chan model.Row, rec Recorder) Stats {
	var (
		g                   errgroup.Group
		dispatched, failed  atomic.Int64
		inFlight, maxFlight atomic.Int64
	)
	g.SetLimit(d.limit)

	for row := range rows {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				dispatched.Add(1)
				failed.Add(1)
				rec.Record(model.Fail(upsertFailure(row, eris.Wrap(err, "dispatch: rate limiter"))))
				continue
			}
		}

		// Blocks while Limit calls are running.
		g.Go(func() error {
			dispatched.Add(1)
			n := inFlight.Add(1)
			for {
				m := maxFlight.Load()
				if n <= m || maxFlight.CompareAndSwap(m, n) {
					break
				}
			}

			if d.obs != nil {
				d.obs.UpsertStarted()
			}
			start := time.Now()
			err := d.up.Upsert(ctx, row)
			elapsed := time.Since(start)
			inFlight.Add(-1)
			if d.obs != nil {
				d.obs.UpsertFinished(elapsed, err)
			}

			if err != nil {
				failed.Add(1)
				f := upsertFailure(row, err)
				zap.L().Warn("dispatch: upsert failed",
					zap.String("sku", row.SKU),
					zap.Int("line", row.Line),
					zap.String("reason", string(f.Reason)),
					zap.Error(err),
				)
				rec.Record(model.Fail(f))
				return nil // don't abort the run on individual failure
			}

			if d.trace {
				zap.L().Debug("dispatch: upserted",
					zap.String("sku", row.SKU),
					zap.String("list_price", row.ListPrice.String()),
					zap.String("discounted_price", row.DiscountedPrice.String()),
					zap.Duration("elapsed", elapsed),
				)
			}
			rec.Record(model.Success(row))
			return nil
		})
	}

	_ = g.Wait()

	return Stats{
		Dispatched:  dispatched.Load(),
		Failed:      failed.Load(),
		MaxInFlight: maxFlight.Load(),
	}
}

func upsertFailure(row model.Row, err error) model.Failure {
	return model.Failure{
		ID:      row.SKU,
		Line:    row.Line,
		Kind:    model.ErrorKindUpsert,
		Reason:  db.ReasonOf(err),
		Message: err.Error(),
	}
}
