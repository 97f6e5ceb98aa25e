package winnow

import (
	"fmt"
	"time"

	"github.com/iron-birch/winnow/internal/model"
)

// Report is the reduction result.
// This is the stable public type; internal representations may evolve
// independently without breaking consumers.
type Report struct {
	Windows           []WindowSummary `json:"windows"`
	TotalRecords      int             `json:"total_records"`
	SurvivingRecords  int             `json:"surviving_records"`
	EliminatedRecords int             `json:"eliminated_records"`
	MalformedRecords  int             `json:"malformed_records,omitempty"`
	CostReduction     float64         `json:"cost_reduction"` // 1 - surviving/total, in [0, 1]
	ProcessingSummary string          `json:"processing_summary"`
}

// Empty reports whether every window was filtered out. A valid outcome for
// a query with no matching activity, not an error.
func (r Report) Empty() bool { return len(r.Windows) == 0 }

// WindowSummary is one surviving correlation window, bounded in every
// dimension: template and sample counts are capped, messages truncated.
type WindowSummary struct {
	ID             string         `json:"id"`
	CorrelationKey string         `json:"correlation_key"` // trace id or synthesized bucket key
	StartTime      time.Time      `json:"start_time"`      // zero when no record carried a timestamp
	EndTime        time.Time      `json:"end_time"`
	Services       map[string]int `json:"services"`
	Severities     map[string]int `json:"severities"`
	Templates      []Template     `json:"templates,omitempty"`
	Samples        []Sample       `json:"samples,omitempty"` // highest-importance records first
	Headline       string         `json:"headline"`
	Relevance      float64        `json:"relevance"`
	Importance     float64        `json:"importance"`
}

// Template is a deduplicated message shape with its occurrence count.
type Template struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Sample is one representative record from a window.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"` // zero when the source time was unparseable
	Service    string    `json:"service"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	TraceID    string    `json:"trace_id,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
}

// LimitError reports input exceeding a configured ceiling.
type LimitError struct {
	What   string // "records" or "bytes"
	Limit  int64
	Actual int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("input too large: %d %s (limit %d)", e.Actual, e.What, e.Limit)
}

func reportFromInternal(rep model.Report, malformed int) Report {
	windows := make([]WindowSummary, 0, len(rep.Summaries))
	for _, sw := range rep.Summaries {
		windows = append(windows, windowFromInternal(sw))
	}
	return Report{
		Windows:           windows,
		TotalRecords:      rep.TotalRecords,
		SurvivingRecords:  rep.SurvivingRecords,
		EliminatedRecords: rep.EliminatedRecords,
		MalformedRecords:  malformed,
		CostReduction:     rep.CostReduction,
		ProcessingSummary: rep.ProcessingSummary,
	}
}

func windowFromInternal(sw model.WindowSummary) WindowSummary {
	severities := make(map[string]int, len(sw.Severities))
	for sev, n := range sw.Severities {
		severities[sev.String()] = n
	}
	templates := make([]Template, 0, len(sw.TopTemplates))
	for _, t := range sw.TopTemplates {
		templates = append(templates, Template{Pattern: t.Pattern, Count: t.Count})
	}
	samples := make([]Sample, 0, len(sw.Samples))
	for _, rec := range sw.Samples {
		samples = append(samples, Sample{
			Timestamp:  rec.Timestamp,
			Service:    rec.Service,
			Severity:   rec.Severity.String(),
			Message:    rec.Message,
			TraceID:    rec.TraceID,
			StatusCode: rec.StatusCode,
		})
	}
	return WindowSummary{
		ID:             sw.WindowID,
		CorrelationKey: sw.CorrelationKey,
		StartTime:      sw.StartTime,
		EndTime:        sw.EndTime,
		Services:       sw.Services,
		Severities:     severities,
		Templates:      templates,
		Samples:        samples,
		Headline:       sw.Headline,
		Relevance:      sw.Relevance,
		Importance:     sw.Importance,
	}
}
