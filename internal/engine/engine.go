// Package engine composes the seven reduction stages: normalize, detect,
// window, dedupe, score, rank, summarize. Every method is synchronous and
// deterministic; the pipeline package adds concurrency and input limits on
// top without changing results.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/iron-birch/winnow/internal/config"
	"github.com/iron-birch/winnow/internal/engine/normalize"
	"github.com/iron-birch/winnow/internal/engine/query"
	"github.com/iron-birch/winnow/internal/engine/rank"
	"github.com/iron-birch/winnow/internal/engine/score"
	"github.com/iron-birch/winnow/internal/engine/signal"
	"github.com/iron-birch/winnow/internal/engine/summary"
	"github.com/iron-birch/winnow/internal/engine/template"
	"github.com/iron-birch/winnow/internal/engine/window"
	"github.com/iron-birch/winnow/internal/model"
)

// Engine holds the wired stages.
type Engine struct {
	normalizer *normalize.Normalizer
	detector   *signal.Detector
	builder    *window.Builder
	deduper    *template.Deduper
	parser     *query.Parser
	scorer     *score.Scorer
	ranker     *rank.Ranker
	summarizer *summary.Summarizer
}

// New validates cfg and wires the stages. An invalid configuration is
// rejected here, before any record is processed.
func New(cfg config.PipelineConfig) (*Engine, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("engine: invalid configuration: %w", errors.Join(errs...))
	}

	return &Engine{
		normalizer: normalize.New(),
		detector:   signal.New(cfg.HotKeywords),
		builder:    window.New(cfg.BucketSeconds),
		deduper:    template.New(),
		parser:     query.New(cfg.ServiceSynonyms, cfg.Stopwords),
		scorer: score.New(score.Config{
			ServiceWeight: cfg.ServiceWeight,
			PhraseWeight:  cfg.PhraseWeight,
			KeywordWeight: cfg.KeywordWeight,
			KeywordCap:    cfg.KeywordCap,
		}),
		ranker: rank.New(rank.Config{
			Alpha: cfg.Alpha,
			Beta:  cfg.Beta,
			Gamma: cfg.Gamma,
			TopK:  cfg.TopK,
		}),
		summarizer: summary.New(summary.Config{
			MaxTemplates:    cfg.MaxTemplatesPerWindow,
			MaxSamples:      cfg.MaxSamplesPerWindow,
			MaxMessageChars: cfg.MaxMessageChars,
		}),
	}, nil
}

// ParseQuery turns the user's question into its structured form.
func (e *Engine) ParseQuery(raw string) query.Query {
	return e.parser.Parse(raw)
}

// NormalizeDetect runs stages one and two on a single record. The bool
// reports default substitution.
func (e *Engine) NormalizeDetect(raw model.RawRecord) (model.Entry, bool) {
	rec, degraded := e.normalizer.Normalize(raw)
	return model.Entry{Record: rec, Signal: e.detector.Detect(rec)}, degraded
}

// Windows groups detected entries into correlation windows.
func (e *Engine) Windows(entries []model.Entry) []model.Window {
	return e.builder.Build(entries)
}

// Evaluate runs template deduplication and relevance scoring on one window.
func (e *Engine) Evaluate(w model.Window, q query.Query) model.ScoredWindow {
	return model.ScoredWindow{
		Window:    w,
		Templates: e.deduper.Dedupe(w),
		Relevance: e.scorer.Score(w, q),
	}
}

// Rank filters and orders scored windows.
func (e *Engine) Rank(sws []model.ScoredWindow) []model.ScoredWindow {
	return e.ranker.Rank(sws)
}

// Report summarizes ranked windows into the final output.
func (e *Engine) Report(sws []model.ScoredWindow, total, degraded int, elapsed time.Duration) model.Report {
	return e.summarizer.Report(sws, total, degraded, elapsed)
}

// Reduce runs all stages sequentially. It is the single-threaded reference
// path; the pipeline package produces identical reports concurrently.
func (e *Engine) Reduce(raws []model.RawRecord, rawQuery string) model.Report {
	start := time.Now()

	entries := make([]model.Entry, len(raws))
	degraded := 0
	for i, raw := range raws {
		entry, d := e.NormalizeDetect(raw)
		entries[i] = entry
		if d {
			degraded++
		}
	}

	q := e.ParseQuery(rawQuery)
	windows := e.Windows(entries)

	scored := make([]model.ScoredWindow, len(windows))
	for i, w := range windows {
		scored[i] = e.Evaluate(w, q)
	}

	return e.Report(e.Rank(scored), len(raws), degraded, time.Since(start))
}
