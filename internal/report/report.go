// Package report renders a reduction result for people and scripts. The text
// form is a terminal digest read top to bottom; the JSON form is a single
// indented document with the same field names the HTTP API uses.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/iron-birch/winnow/internal/model"
)

const defaultBufSize = 64 * 1024 // 64KB

// Format selects how a report is serialized.
type Format int

const (
	Text Format = iota
	JSON
)

// ParseFormat maps a flag value to a Format. The empty string means Text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return Text, nil
	case "json":
		return JSON, nil
	default:
		return Text, fmt.Errorf("report: unknown format %q (want text or json)", s)
	}
}

// Writer renders reports to stdout or to a file. Close flushes buffered
// output; a Writer is single-use.
type Writer struct {
	w      *bufio.Writer
	f      *os.File // nil when writing to stdout
	format Format
}

// New creates a Writer for the given destination. An empty path writes to
// stdout; anything else truncates and writes the named file.
func New(path string, format Format) (*Writer, error) {
	w := &Writer{format: format}
	if path == "" {
		w.w = bufio.NewWriterSize(os.Stdout, defaultBufSize)
		return w, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	w.f = f
	w.w = bufio.NewWriterSize(f, defaultBufSize)
	return w, nil
}

// Write renders the report in the configured format. malformed is the count
// of input lines that failed to parse and were carried as raw text.
func (w *Writer) Write(rep model.Report, malformed int) error {
	var err error
	switch w.format {
	case JSON:
		err = writeJSON(w.w, rep, malformed)
	default:
		err = writeText(w.w, rep, malformed)
	}
	if err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// Close flushes the buffer and closes the file, if any.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		if w.f != nil {
			w.f.Close()
		}
		return fmt.Errorf("report: flush: %w", err)
	}
	if w.f == nil {
		return nil
	}
	return w.f.Close()
}

// jsonReport mirrors the HTTP analyze response minus the conversation fields,
// so a saved report diffs cleanly against API output.
type jsonReport struct {
	TotalRecords      int          `json:"total_records"`
	SurvivingRecords  int          `json:"surviving_records"`
	EliminatedRecords int          `json:"eliminated_records"`
	CostReduction     float64      `json:"cost_reduction_percentage"`
	MalformedRecords  int          `json:"malformed_records,omitempty"`
	NoMatch           bool         `json:"no_match,omitempty"`
	ProcessingSummary string       `json:"processing_summary,omitempty"`
	Windows           []jsonWindow `json:"windows"`
}

type jsonWindow struct {
	WindowID       string                 `json:"window_id"`
	CorrelationKey string                 `json:"correlation_key"`
	StartTime      *time.Time             `json:"start_time,omitempty"`
	EndTime        *time.Time             `json:"end_time,omitempty"`
	Services       map[string]int         `json:"services"`
	Severities     map[model.Severity]int `json:"severities"`
	Headline       string                 `json:"headline"`
	Relevance      float64                `json:"relevance"`
	Importance     float64                `json:"importance"`
	Templates      []jsonTemplate         `json:"templates,omitempty"`
	Samples        []jsonSample           `json:"samples,omitempty"`
}

type jsonTemplate struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

type jsonSample struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Severity  string     `json:"severity"`
	Service   string     `json:"service"`
	Message   string     `json:"message"`
}

func writeJSON(w io.Writer, rep model.Report, malformed int) error {
	doc := jsonReport{
		TotalRecords:      rep.TotalRecords,
		SurvivingRecords:  rep.SurvivingRecords,
		EliminatedRecords: rep.EliminatedRecords,
		CostReduction:     rep.ReductionPercent(),
		MalformedRecords:  malformed,
		NoMatch:           rep.Empty(),
		ProcessingSummary: rep.ProcessingSummary,
		Windows:           make([]jsonWindow, 0, len(rep.Summaries)),
	}
	for _, ws := range rep.Summaries {
		jw := jsonWindow{
			WindowID:       ws.WindowID,
			CorrelationKey: ws.CorrelationKey,
			StartTime:      timePtr(ws.StartTime),
			EndTime:        timePtr(ws.EndTime),
			Services:       ws.Services,
			Severities:     ws.Severities,
			Headline:       ws.Headline,
			Relevance:      ws.Relevance,
			Importance:     ws.Importance,
		}
		for _, tpl := range ws.TopTemplates {
			jw.Templates = append(jw.Templates, jsonTemplate{Pattern: tpl.Pattern, Count: tpl.Count})
		}
		for _, rec := range ws.Samples {
			jw.Samples = append(jw.Samples, jsonSample{
				Timestamp: timePtr(rec.Timestamp),
				Severity:  rec.Severity.String(),
				Service:   rec.Service,
				Message:   rec.Message,
			})
		}
		doc.Windows = append(doc.Windows, jw)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeText(w io.Writer, rep model.Report, malformed int) error {
	ew := &errWriter{w: w}

	if rep.Empty() {
		ew.printf("no records matched the query (%d scanned)\n", rep.TotalRecords)
	} else {
		ew.printf("matched %d of %d records in %s, cost reduction %.1f%%\n",
			rep.SurvivingRecords, rep.TotalRecords, plural(len(rep.Summaries), "window"), rep.ReductionPercent())
	}
	if malformed > 0 {
		ew.printf("unparseable lines carried as raw text: %d\n", malformed)
	}
	if rep.ProcessingSummary != "" {
		ew.printf("%s\n", rep.ProcessingSummary)
	}

	for i, ws := range rep.Summaries {
		ew.printf("\n[%d] %s  records %d  relevance %.1f  importance %.1f\n",
			i+1, ws.CorrelationKey, windowCount(ws), ws.Relevance, ws.Importance)
		ew.printf("    %s .. %s  %s\n", textTime(ws.StartTime), textTime(ws.EndTime), severityLine(ws.Severities))
		if len(ws.TopTemplates) > 0 {
			ew.printf("    templates:\n")
			for _, tpl := range ws.TopTemplates {
				ew.printf("      %dx %s\n", tpl.Count, tpl.Pattern)
			}
		}
		if len(ws.Samples) > 0 {
			ew.printf("    samples:\n")
			for _, rec := range ws.Samples {
				ew.printf("      %s %s %s %s\n", textTime(rec.Timestamp), rec.Severity, rec.Service, rec.Message)
			}
		}
	}
	return ew.err
}

// errWriter sticks on the first write error so rendering code stays flat.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// severityOrder lists severities most severe first, for stable rendering of
// the per-window counts.
var severityOrder = []model.Severity{
	model.SeverityFatal,
	model.SeverityError,
	model.SeverityWarn,
	model.SeverityInfo,
	model.SeverityDebug,
	model.SeverityUnknown,
}

func severityLine(counts map[model.Severity]int) string {
	parts := make([]string, 0, len(counts))
	for _, s := range severityOrder {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", s, n))
		}
	}
	return strings.Join(parts, " ")
}

func windowCount(ws model.WindowSummary) int {
	n := 0
	for _, c := range ws.Severities {
		n += c
	}
	return n
}

func textTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
