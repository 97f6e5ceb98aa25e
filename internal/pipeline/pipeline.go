// Package pipeline runs the reduction engine as one bounded batch request:
// input ceilings enforced up front, record stages sharded across a worker
// pool, a reduce barrier at window grouping, then per-window work in
// parallel. Results are identical to the engine's sequential path.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iron-birch/winnow/internal/config"
	"github.com/iron-birch/winnow/internal/engine"
	"github.com/iron-birch/winnow/internal/engine/query"
	"github.com/iron-birch/winnow/internal/metrics"
	"github.com/iron-birch/winnow/internal/model"
)

// Workers poll the context between strides, not per record.
const ctxCheckStride = 1024

// Pipeline wraps an Engine with concurrency and input limits. Stateless
// across requests; safe for concurrent use.
type Pipeline struct {
	engine     *engine.Engine
	workers    int
	maxRecords int
}

// New builds a Pipeline around an already-validated engine. Workers <= 0
// means one per CPU core.
func New(eng *engine.Engine, cfg config.PipelineConfig) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{engine: eng, workers: workers, maxRecords: cfg.MaxRecords}
}

// Run reduces one batch against one query. Inputs above the record ceiling
// fail fast with a LimitError before any work starts. An empty report is a
// valid outcome, not an error; the only other failures are context
// cancellation.
func (p *Pipeline) Run(ctx context.Context, raws []model.RawRecord, rawQuery string) (model.Report, error) {
	start := time.Now()

	if len(raws) > p.maxRecords {
		return model.Report{}, &model.LimitError{
			What:   "records",
			Limit:  int64(p.maxRecords),
			Actual: int64(len(raws)),
		}
	}
	if err := ctx.Err(); err != nil {
		return model.Report{}, err
	}
	metrics.RecordsIn.Add(float64(len(raws)))

	stageStart := time.Now()
	entries := make([]model.Entry, len(raws))
	degraded, err := p.normalizeDetect(ctx, raws, entries)
	if err != nil {
		return model.Report{}, err
	}
	metrics.StageDuration.WithLabelValues("normalize").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	windows := p.engine.Windows(entries)
	metrics.StageDuration.WithLabelValues("window").Observe(time.Since(stageStart).Seconds())
	metrics.WindowsBuilt.Observe(float64(len(windows)))

	q := p.engine.ParseQuery(rawQuery)

	stageStart = time.Now()
	scored, err := p.evaluate(ctx, windows, q)
	if err != nil {
		return model.Report{}, err
	}
	metrics.StageDuration.WithLabelValues("evaluate").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	ranked := p.engine.Rank(scored)
	metrics.StageDuration.WithLabelValues("rank").Observe(time.Since(stageStart).Seconds())

	stageStart = time.Now()
	report := p.engine.Report(ranked, len(raws), degraded, time.Since(start))
	metrics.StageDuration.WithLabelValues("summarize").Observe(time.Since(stageStart).Seconds())

	metrics.RecordsSurviving.Add(float64(report.SurvivingRecords))
	metrics.CostReduction.Observe(report.CostReduction)

	slog.Debug("reduction complete",
		"total", report.TotalRecords,
		"surviving", report.SurvivingRecords,
		"windows", len(report.Summaries),
		"reduction", report.CostReduction,
		"elapsed", time.Since(start),
	)
	return report, nil
}

// normalizeDetect runs stages one and two across contiguous shards, writing
// results by index so input order is preserved.
func (p *Pipeline) normalizeDetect(ctx context.Context, raws []model.RawRecord, entries []model.Entry) (int, error) {
	if len(raws) == 0 {
		return 0, nil
	}

	shards := p.workers
	if shards > len(raws) {
		shards = len(raws)
	}
	chunk := (len(raws) + shards - 1) / shards
	counts := make([]int, shards)

	g, ctx := errgroup.WithContext(ctx)
	for s := 0; s < shards; s++ {
		lo := s * chunk
		hi := lo + chunk
		if hi > len(raws) {
			hi = len(raws)
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%ctxCheckStride == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}
				entry, d := p.engine.NormalizeDetect(raws[i])
				entries[i] = entry
				if d {
					counts[s]++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	return total, nil
}

// evaluate runs dedupe and scoring per window on the worker pool.
func (p *Pipeline) evaluate(ctx context.Context, windows []model.Window, q query.Query) ([]model.ScoredWindow, error) {
	scored := make([]model.ScoredWindow, len(windows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, w := range windows {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			scored[i] = p.engine.Evaluate(w, q)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}
