// Package summary renders surviving windows into bounded digests and
// assembles the final report. Every sequence field has a configured cap;
// nothing here grows with raw input size.
package summary

import (
	"fmt"
	"sort"
	"time"

	"github.com/iron-birch/winnow/internal/model"
)

// Config bounds the summarizer's output.
type Config struct {
	MaxTemplates    int
	MaxSamples      int
	MaxMessageChars int
}

// Summarizer produces window summaries and reports. Safe for concurrent use.
type Summarizer struct {
	cfg Config
}

func New(cfg Config) *Summarizer {
	return &Summarizer{cfg: cfg}
}

// Summarize digests one scored window. Sample records come highest
// importance first: worst severity, then hot before cold, then oldest.
func (s *Summarizer) Summarize(sw model.ScoredWindow) model.WindowSummary {
	ws := model.WindowSummary{
		WindowID:       sw.ID,
		CorrelationKey: sw.CorrelationKey,
		StartTime:      sw.StartTime,
		EndTime:        sw.EndTime,
		Services:       make(map[string]int),
		Severities:     make(map[model.Severity]int),
		Relevance:      sw.Relevance,
		Importance:     sw.Importance,
	}

	hot := 0
	for _, e := range sw.Entries {
		ws.Services[e.Record.Service]++
		ws.Severities[e.Record.Severity]++
		if e.Signal.IsHot {
			hot++
		}
	}

	ws.TopTemplates = capTemplates(sw.Templates, s.cfg.MaxTemplates)
	ws.Samples = s.samples(sw.Entries)
	ws.Headline = s.headline(sw, hot)
	return ws
}

// Report assembles the final output from the ranked survivors. total is the
// pre-filter record count, degraded the number recovered with defaults.
func (s *Summarizer) Report(sws []model.ScoredWindow, total, degraded int, elapsed time.Duration) model.Report {
	r := model.Report{
		Summaries:    make([]model.WindowSummary, 0, len(sws)),
		TotalRecords: total,
	}
	for _, sw := range sws {
		r.Summaries = append(r.Summaries, s.Summarize(sw))
		r.SurvivingRecords += len(sw.Entries)
	}
	r.EliminatedRecords = total - r.SurvivingRecords
	if total > 0 {
		r.CostReduction = 1 - float64(r.SurvivingRecords)/float64(total)
	}

	r.ProcessingSummary = fmt.Sprintf(
		"%d records in, %d surviving across %d windows (%.1f%% reduction)",
		total, r.SurvivingRecords, len(r.Summaries), r.CostReduction*100,
	)
	if degraded > 0 {
		r.ProcessingSummary += fmt.Sprintf(", %d recovered with defaults", degraded)
	}
	if elapsed > 0 {
		r.ProcessingSummary += fmt.Sprintf(", in %s", elapsed.Round(time.Millisecond))
	}
	return r
}

func capTemplates(tpls []model.Template, max int) []model.Template {
	if max <= 0 || len(tpls) == 0 {
		return nil
	}
	if len(tpls) > max {
		tpls = tpls[:max]
	}
	out := make([]model.Template, len(tpls))
	copy(out, tpls)
	return out
}

func (s *Summarizer) samples(entries []model.Entry) []model.LogRecord {
	if s.cfg.MaxSamples <= 0 || len(entries) == 0 {
		return nil
	}

	sorted := make([]model.Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Record.Severity != b.Record.Severity {
			return a.Record.Severity > b.Record.Severity
		}
		if a.Signal.IsHot != b.Signal.IsHot {
			return a.Signal.IsHot
		}
		au, bu := a.Record.Timestamp.IsZero(), b.Record.Timestamp.IsZero()
		if au != bu {
			return bu
		}
		if !a.Record.Timestamp.Equal(b.Record.Timestamp) {
			return a.Record.Timestamp.Before(b.Record.Timestamp)
		}
		return a.Record.Message < b.Record.Message
	})

	n := s.cfg.MaxSamples
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]model.LogRecord, 0, n)
	for _, e := range sorted[:n] {
		rec := e.Record
		rec.Message = truncate(rec.Message, s.cfg.MaxMessageChars)
		out = append(out, rec)
	}
	return out
}

func (s *Summarizer) headline(sw model.ScoredWindow, hot int) string {
	h := fmt.Sprintf("%s: %d records, %d hot", sw.CorrelationKey, len(sw.Entries), hot)
	if len(sw.Templates) > 0 {
		h += ", top: " + sw.Templates[0].Pattern
	}
	return truncate(h, s.cfg.MaxMessageChars)
}

// truncate caps s at max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
