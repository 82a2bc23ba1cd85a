// Package report accumulates per-row outcomes into the end-of-run summary.
package report

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/propane-pricer/internal/model"
)

// Report collects outcomes for one run. Record is safe for concurrent use;
// once Finish is called the report is frozen.
type Report struct {
	mu        sync.Mutex
	runID     string
	file      string
	dryRun    bool
	startedAt time.Time
	finished  bool
	succeeded int
	failures  []model.Failure
}

// New starts an empty report.
func New(runID, file string, dryRun bool, startedAt time.Time) *Report {
	return &Report{runID: runID, file: file, dryRun: dryRun, startedAt: startedAt}
}

// Record adds one outcome.
func (r *Report) Record(o model.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		zap.L().Warn("report: outcome recorded after finish, dropped", zap.String("run_id", r.runID))
		return
	}
	if o.Succeeded() {
		r.succeeded++
		return
	}
	r.failures = append(r.failures, *o.Failure)
}

// Finish freezes the report and returns its summary.
func (r *Report) Finish(finishedAt time.Time) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finished = true

	failures := make([]model.Failure, len(r.failures))
	copy(failures, r.failures)
	sort.SliceStable(failures, func(i, j int) bool {
		if failures[i].Line != failures[j].Line {
			return failures[i].Line < failures[j].Line
		}
		return failures[i].ID < failures[j].ID
	})

	byKind := make(map[model.ErrorKind]int)
	for _, f := range failures {
		byKind[f.Kind]++
	}

	return Summary{
		RunID:      r.runID,
		File:       r.file,
		DryRun:     r.dryRun,
		StartedAt:  r.startedAt,
		FinishedAt: finishedAt,
		DurationMS: finishedAt.Sub(r.startedAt).Milliseconds(),
		Total:      r.succeeded + len(failures),
		Succeeded:  r.succeeded,
		Failed:     len(failures),
		ByKind:     byKind,
		Failures:   failures,
	}
}

// Summary is the read-only result of a run.
type Summary struct {
	RunID      string                  `json:"run_id" yaml:"run_id"`
	File       string                  `json:"file" yaml:"file"`
	DryRun     bool                    `json:"dry_run" yaml:"dry_run"`
	StartedAt  time.Time               `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time               `json:"finished_at" yaml:"finished_at"`
	DurationMS int64                   `json:"duration_ms" yaml:"duration_ms"`
	Total      int                     `json:"total" yaml:"total"`
	Succeeded  int                     `json:"succeeded" yaml:"succeeded"`
	Failed     int                     `json:"failed" yaml:"failed"`
	ByKind     map[model.ErrorKind]int `json:"failures_by_kind" yaml:"failures_by_kind"`
	Failures   []model.Failure         `json:"failures" yaml:"failures"`
}
