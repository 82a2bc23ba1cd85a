package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propane-pricer/internal/model"
)

// fakeUpserter tracks concurrent calls and fails SKUs listed in failOn.
type fakeUpserter struct {
	delay    time.Duration
	failOn   map[string]bool
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64

	mu    sync.Mutex
	order []string
}

func (f *fakeUpserter) Upsert(ctx context.Context, row model.Row) error {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.order = append(f.order, row.SKU)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failOn[row.SKU] {
		return errors.New("connection reset by peer")
	}
	return nil
}

type sliceRecorder struct {
	mu       sync.Mutex
	outcomes []model.Outcome
}

func (r *sliceRecorder) Record(o model.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

type countingObserver struct {
	started, finished atomic.Int64
}

func (c *countingObserver) UpsertStarted() { c.started.Add(1) }

func (c *countingObserver) UpsertFinished(time.Duration, error) { c.finished.Add(1) }

func feed(n int) <-chan model.Row {
	ch := make(chan model.Row)
	go func() {
		defer close(ch)
		for i := 0; i < n; i++ {
			ch <- model.Row{SKU: fmt.Sprintf("SKU%04d", i), Line: i + 2}
		}
	}()
	return ch
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(&fakeUpserter{}, Options{Limit: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")

	_, err = New(&fakeUpserter{}, Options{Limit: 1, RateLimit: -1})
	assert.Error(t, err)

	_, err = New(nil, Options{Limit: 1})
	assert.Error(t, err)
}

func TestRun_ThousandRowsNeverExceedLimit(t *testing.T) {
	up := &fakeUpserter{delay: time.Millisecond}
	obs := &countingObserver{}
	d, err := New(up, Options{Limit: 20, Observer: obs})
	require.NoError(t, err)

	rec := &sliceRecorder{}
	stats := d.Run(context.Background(), feed(1000), rec)

	assert.Len(t, rec.outcomes, 1000)
	assert.Equal(t, int64(1000), up.calls.Load())
	assert.LessOrEqual(t, up.peak.Load(), int64(20))
	assert.LessOrEqual(t, stats.MaxInFlight, int64(20))
	assert.Equal(t, int64(1000), stats.Dispatched)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, int64(1000), obs.started.Load())
	assert.Equal(t, int64(1000), obs.finished.Load())

	seen := make(map[string]int)
	for _, o := range rec.outcomes {
		require.True(t, o.Succeeded())
		seen[o.Row.SKU]++
	}
	assert.Len(t, seen, 1000)
	for sku, n := range seen {
		assert.Equal(t, 1, n, "sku %s recorded %d times", sku, n)
	}
}

func TestRun_LimitHoldsForAnySize(t *testing.T) {
	for _, tc := range []struct{ limit, rows int }{{1, 0}, {1, 1}, {3, 1}, {3, 3}, {5, 40}, {50, 10}} {
		t.Run(fmt.Sprintf("limit=%d rows=%d", tc.limit, tc.rows), func(t *testing.T) {
			up := &fakeUpserter{delay: 200 * time.Microsecond}
			d, err := New(up, Options{Limit: tc.limit})
			require.NoError(t, err)

			rec := &sliceRecorder{}
			d.Run(context.Background(), feed(tc.rows), rec)
			assert.Len(t, rec.outcomes, tc.rows)
			assert.LessOrEqual(t, up.peak.Load(), int64(tc.limit))
		})
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	up := &fakeUpserter{failOn: map[string]bool{"SKU0003": true, "SKU0010": true, "SKU0042": true}}
	d, err := New(up, Options{Limit: 4})
	require.NoError(t, err)

	rec := &sliceRecorder{}
	stats := d.Run(context.Background(), feed(100), rec)

	assert.Len(t, rec.outcomes, 100)
	assert.Equal(t, int64(100), up.calls.Load())
	assert.Equal(t, int64(3), stats.Failed)

	var failed []string
	for _, o := range rec.outcomes {
		if !o.Succeeded() {
			failed = append(failed, o.Failure.ID)
			assert.Equal(t, model.ErrorKindUpsert, o.Failure.Kind)
			assert.Equal(t, model.UpsertReasonConnection, o.Failure.Reason)
			assert.Equal(t, "connection reset by peer", o.Failure.Message)
		}
	}
	assert.ElementsMatch(t, []string{"SKU0003", "SKU0010", "SKU0042"}, failed)
}

func TestRun_AdmissionFollowsInputOrder(t *testing.T) {
	up := &fakeUpserter{}
	d, err := New(up, Options{Limit: 1})
	require.NoError(t, err)

	d.Run(context.Background(), feed(25), &sliceRecorder{})

	require.Len(t, up.order, 25)
	for i, sku := range up.order {
		assert.Equal(t, fmt.Sprintf("SKU%04d", i), sku)
	}
}

func TestRun_RateLimited(t *testing.T) {
	up := &fakeUpserter{}
	d, err := New(up, Options{Limit: 2, RateLimit: 1000})
	require.NoError(t, err)

	rec := &sliceRecorder{}
	stats := d.Run(context.Background(), feed(10), rec)
	assert.Len(t, rec.outcomes, 10)
	assert.Equal(t, int64(10), stats.Dispatched)
}

func TestRun_RateLimiterCancelledStillRecords(t *testing.T) {
	up := &fakeUpserter{}
	d, err := New(up, Options{Limit: 2, RateLimit: 0.001})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &sliceRecorder{}
	stats := d.Run(ctx, feed(3), rec)
	assert.Len(t, rec.outcomes, 3)
	assert.Equal(t, int64(3), stats.Failed)
	for _, o := range rec.outcomes {
		assert.False(t, o.Succeeded())
	}
}
