// Package runner drives the per-step tree rebuild loop.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quillaja/bhtree/internal/body"
	"github.com/quillaja/bhtree/internal/logger"
	"github.com/quillaja/bhtree/internal/metrics"
	"github.com/quillaja/bhtree/internal/store"
	"github.com/quillaja/bhtree/internal/tree"
)

// Advancer moves the bodies forward one step using the freshly built
// tree. Force evaluation and integration live behind this interface.
type Advancer interface {
	Advance(ctx context.Context, tr *tree.Tree, bodies body.Store) error
}

// AdvanceFunc adapts a function to Advancer.
type AdvanceFunc func(ctx context.Context, tr *tree.Tree, bodies body.Store) error

// Advance calls f.
func (f AdvanceFunc) Advance(ctx context.Context, tr *tree.Tree, bodies body.Store) error {
	return f(ctx, tr, bodies)
}

// Recorder persists build results. *store.Store is a Recorder.
type Recorder interface {
	RecordBuild(step int, st tree.Stats) error
	RecordNodes(step int, nodes []store.Node) error
}

// Runner rebuilds the tree every step. Only Tree is required.
type Runner struct {
	Tree     *tree.Tree
	Advancer Advancer
	Recorder Recorder
	Metrics  *metrics.BuildMetrics

	// Workers is the number of recorder goroutines; at least one is used.
	Workers int
	// DumpNodes also records the full threaded tree of every step.
	DumpNodes bool

	Log *slog.Logger
}

type job struct {
	step  int
	stats tree.Stats
	nodes []store.Node
}

// Run performs steps builds of the tree from bodies. A failed build or
// advance stops the run; the error is returned after pending records are
// written. Recording errors do not stop the run but are returned too.
func (r *Runner) Run(ctx context.Context, bodies body.Store, steps int) error {
	log := r.Log
	if log == nil {
		log = logger.WithComponent("runner")
	}

	// setup record workers
	var rec recordErrors
	ch := make(chan *job, 32)
	wg := sync.WaitGroup{}
	if r.Recorder != nil {
		workers := max(r.Workers, 1)
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go r.record(&wg, ch, &rec, log)
		}
	}

	start := time.Now()
	var err error
	for step := 0; step < steps; step++ {
		if err = r.step(ctx, bodies, step, ch); err != nil {
			log.Error("step failed", "step", step, "error", err)
			break
		}

		// progress
		avg := time.Since(start) / time.Duration(step+1)
		log.Info("step done",
			"step", step,
			"progress", fmt.Sprintf("%.1f%%", 100*float64(step+1)/float64(steps)),
			"avg", avg.Truncate(time.Microsecond),
			"remaining", (avg * time.Duration(steps-step-1)).Truncate(time.Millisecond))
	}
	close(ch)
	wg.Wait()

	return errors.Join(err, rec.err())
}

func (r *Runner) step(ctx context.Context, bodies body.Store, step int, ch chan<- *job) error {
	if err := r.Tree.Build(ctx, bodies); err != nil {
		if r.Metrics != nil {
			r.Metrics.ObserveFailure()
		}
		return fmt.Errorf("build step %d: %w", step, err)
	}

	stats := r.Tree.Stats()
	if r.Metrics != nil {
		r.Metrics.ObserveBuild(stats)
	}

	if r.Recorder != nil {
		// the tree is rebuilt in place next step, so workers only get copies
		j := &job{step: step, stats: stats}
		if r.DumpNodes {
			j.nodes = store.Snapshot(r.Tree)
		}
		select {
		case ch <- j:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if r.Advancer != nil {
		if err := r.Advancer.Advance(ctx, r.Tree, bodies); err != nil {
			return fmt.Errorf("advance step %d: %w", step, err)
		}
	}
	return nil
}

func (r *Runner) record(wg *sync.WaitGroup, ch <-chan *job, rec *recordErrors, log *slog.Logger) {
	defer wg.Done()
	for j := range ch {
		err := r.Recorder.RecordBuild(j.step, j.stats)
		if err == nil && j.nodes != nil {
			err = r.Recorder.RecordNodes(j.step, j.nodes)
		}
		if err != nil {
			log.Warn("record failed", "step", j.step, "error", err)
			rec.add(err)
		}
	}
}

// recordErrors collects recorder failures from every worker.
type recordErrors struct {
	m    sync.Mutex
	errs []error
}

func (e *recordErrors) add(err error) {
	e.m.Lock()
	e.errs = append(e.errs, err)
	e.m.Unlock()
}

func (e *recordErrors) err() error {
	e.m.Lock()
	defer e.m.Unlock()
	return errors.Join(e.errs...)
}
