package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/NoorahSmith/ViewCounter-d/internal/domain"
	"github.com/NoorahSmith/ViewCounter-d/internal/support"
)

var ErrRunAborted = errors.New("run aborted")

// Runner executes one work unit to a terminal result.
type Runner interface {
	Execute(ctx context.Context, target string) domain.Result
}

// ResultSink receives every folded result in unit order.
type ResultSink interface {
	RecordVisit(ctx context.Context, runID string, index int, result domain.Result) error
}

type PoolStatsSource interface {
	Stats() domain.PoolStats
}

type Options struct {
	RunID   string
	Targets []string
	// Inter-unit (sequential) or inter-batch delay range.
	DelayMin time.Duration
	DelayMax time.Duration
	Rand     *rand.Rand
	Sink     ResultSink
	Pool     PoolStatsSource
}

type Dispatcher struct {
	runner Runner
	opts   Options

	sleep func(ctx context.Context, d time.Duration) error
}

func New(runner Runner, opts Options) (*Dispatcher, error) {
	if runner == nil {
		return nil, errors.New("dispatch: runner is required")
	}
	if len(opts.Targets) == 0 {
		return nil, errors.New("dispatch: at least one target is required")
	}
	if opts.DelayMin < 0 || opts.DelayMax < opts.DelayMin {
		return nil, fmt.Errorf("dispatch: invalid delay range [%s, %s]", opts.DelayMin, opts.DelayMax)
	}

	return &Dispatcher{
		runner: runner,
		opts:   opts,
		sleep:  support.SleepContext,
	}, nil
}

// BatchSizes splits total units into ceil(total/concurrency) batches; only the
// last one may be short.
func BatchSizes(total, concurrency int) []int {
	if total <= 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	sizes := make([]int, 0, (total+concurrency-1)/concurrency)
	for remaining := total; remaining > 0; remaining -= concurrency {
		sizes = append(sizes, min(remaining, concurrency))
	}
	return sizes
}

// Run dispatches totalUnits work units, concurrency at a time. Statistics are
// folded once per batch, in unit order, by this goroutine only. The returned
// statistics are complete up to the point of an abort.
func (d *Dispatcher) Run(ctx context.Context, totalUnits, concurrency int) (*domain.RunStatistics, error) {
	if totalUnits < 1 {
		return nil, fmt.Errorf("dispatch: totalUnits must be at least 1, got %d", totalUnits)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	stats := domain.NewRunStatistics(d.opts.RunID)
	defer d.finalize(stats)

	batches := BatchSizes(totalUnits, concurrency)
	log.Info("Dispatching work", "run", d.opts.RunID, "units", totalUnits, "concurrency", concurrency, "batches", len(batches))

	offset := 0
	for b, size := range batches {
		if err := ctx.Err(); err != nil {
			stats.Abort("canceled")
			return stats, fmt.Errorf("%w: %w", ErrRunAborted, err)
		}

		var results []domain.Result
		if concurrency == 1 {
			results = []domain.Result{d.safeExecute(ctx, offset)}
		} else {
			results = d.runBatch(ctx, offset, size)
		}

		exhausted := false
		for i, result := range results {
			stats.Fold(result)
			d.record(ctx, offset+i, result)
			if result.FailureKind == domain.KindProxyExhausted {
				exhausted = true
			}
		}
		stats.AddBatch(size)
		offset += size

		if concurrency > 1 {
			log.Debug("Batch completed", "batch", b+1, "of", len(batches), "size", size, "succeeded", stats.Succeeded, "failed", stats.Failed)
		}

		if exhausted {
			stats.Abort("proxy pool exhausted")
			log.Error("Proxy pool exhausted; aborting run", "run", d.opts.RunID, "completed", stats.Total, "requested", totalUnits)
			return stats, fmt.Errorf("%w: proxy pool exhausted after %d of %d units", ErrRunAborted, stats.Total, totalUnits)
		}

		if b == len(batches)-1 {
			break
		}
		delay := support.RandomBetween(d.opts.Rand, d.opts.DelayMin, d.opts.DelayMax)
		if err := d.sleep(ctx, delay); err != nil {
			stats.Abort("canceled")
			return stats, fmt.Errorf("%w: %w", ErrRunAborted, err)
		}
	}

	return stats, nil
}

type indexedResult struct {
	index  int
	result domain.Result
}

// runBatch launches size units and waits for a terminal result from each.
func (d *Dispatcher) runBatch(ctx context.Context, offset, size int) []domain.Result {
	ch := make(chan indexedResult, size)

	var g errgroup.Group
	for i := 0; i < size; i++ {
		index := offset + i
		g.Go(func() error {
			ch <- indexedResult{index: index, result: d.safeExecute(ctx, index)}
			return nil
		})
	}
	_ = g.Wait()
	close(ch)

	results := make([]domain.Result, size)
	for r := range ch {
		results[r.index-offset] = r.result
	}
	return results
}

func (d *Dispatcher) safeExecute(ctx context.Context, index int) (result domain.Result) {
	target := d.targetFor(index)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Work unit crashed", "unit", index, "target", target, "panic", r)
			result = domain.Result{
				Target:      target,
				Status:      domain.StatusFailed,
				Attempts:    1,
				FailureKind: domain.KindCrashed,
				Cause:       fmt.Sprintf("unit panicked: %v", r),
				StartedAt:   started,
				Duration:    time.Since(started),
			}
		}
	}()

	return d.runner.Execute(ctx, target)
}

func (d *Dispatcher) targetFor(index int) string {
	return d.opts.Targets[index%len(d.opts.Targets)]
}

func (d *Dispatcher) record(ctx context.Context, index int, result domain.Result) {
	if d.opts.Sink == nil {
		return
	}
	if err := d.opts.Sink.RecordVisit(context.WithoutCancel(ctx), d.opts.RunID, index, result); err != nil {
		log.Warn("Could not record visit", "unit", index, "error", err)
	}
}

func (d *Dispatcher) finalize(stats *domain.RunStatistics) {
	stats.FinishedAt = time.Now()
	if d.opts.Pool != nil {
		stats.Pool = d.opts.Pool.Stats()
	}
}
