package summary

import (
	"strings"
	"testing"
	"time"

	"github.com/iron-birch/winnow/internal/model"
)

var testCfg = Config{MaxTemplates: 3, MaxSamples: 2, MaxMessageChars: 50}

var base = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func scored(n int) model.ScoredWindow {
	w := model.Window{
		ID:             "wid",
		CorrelationKey: "cart@100",
		StartTime:      base,
		EndTime:        base.Add(time.Minute),
	}
	for i := 0; i < n; i++ {
		sev := model.SeverityInfo
		hot := false
		if i == 0 {
			sev = model.SeverityError
			hot = true
		}
		w.Entries = append(w.Entries, model.Entry{
			Record: model.LogRecord{
				Timestamp: base.Add(time.Duration(i) * time.Second),
				Service:   "cart",
				Severity:  sev,
				Message:   "msg",
			},
			Signal: model.Signal{IsHot: hot, IsError: hot},
		})
	}
	return model.ScoredWindow{
		Window:    w,
		Relevance: 0.8,
		Templates: []model.Template{
			{Pattern: "payment <num> failed", Count: n - 1},
			{Pattern: "other", Count: 1},
		},
	}
}

func TestSummarizeBreakdowns(t *testing.T) {
	s := New(testCfg)
	ws := s.Summarize(scored(5))

	if ws.WindowID != "wid" || ws.CorrelationKey != "cart@100" {
		t.Errorf("identity fields lost: %+v", ws)
	}
	if ws.Services["cart"] != 5 {
		t.Errorf("Services[cart] = %d, want 5", ws.Services["cart"])
	}
	if ws.Severities[model.SeverityError] != 1 || ws.Severities[model.SeverityInfo] != 4 {
		t.Errorf("Severities = %v", ws.Severities)
	}
}

func TestSummarizeBoundsTemplates(t *testing.T) {
	s := New(Config{MaxTemplates: 1, MaxSamples: 2, MaxMessageChars: 50})
	ws := s.Summarize(scored(5))

	if len(ws.TopTemplates) != 1 {
		t.Fatalf("TopTemplates = %d entries, want 1", len(ws.TopTemplates))
	}
	if ws.TopTemplates[0].Pattern != "payment <num> failed" {
		t.Errorf("top template = %q", ws.TopTemplates[0].Pattern)
	}
}

func TestSummarizeSamplesWorstFirst(t *testing.T) {
	s := New(testCfg)
	ws := s.Summarize(scored(5))

	if len(ws.Samples) != 2 {
		t.Fatalf("Samples = %d records, want 2", len(ws.Samples))
	}
	if ws.Samples[0].Severity != model.SeverityError {
		t.Errorf("first sample severity = %v, want the error record first", ws.Samples[0].Severity)
	}
}

func TestSummarizeTruncatesMessages(t *testing.T) {
	s := New(Config{MaxTemplates: 3, MaxSamples: 1, MaxMessageChars: 10})
	sw := scored(1)
	sw.Entries[0].Record.Message = strings.Repeat("x", 100)

	ws := s.Summarize(sw)
	if got := ws.Samples[0].Message; got != strings.Repeat("x", 10)+"..." {
		t.Errorf("sample message = %q, want 10 runes plus ellipsis", got)
	}
}

func TestSummarizeHeadline(t *testing.T) {
	s := New(testCfg)
	ws := s.Summarize(scored(5))

	if !strings.Contains(ws.Headline, "cart@100") {
		t.Errorf("Headline = %q, want the correlation key in it", ws.Headline)
	}
	if !strings.Contains(ws.Headline, "5 records") {
		t.Errorf("Headline = %q, want the record count in it", ws.Headline)
	}
}

func TestReportAccounting(t *testing.T) {
	s := New(testCfg)
	r := s.Report([]model.ScoredWindow{scored(5)}, 100, 0, 12*time.Millisecond)

	if r.SurvivingRecords != 5 {
		t.Errorf("SurvivingRecords = %d, want 5", r.SurvivingRecords)
	}
	if r.EliminatedRecords != 95 {
		t.Errorf("EliminatedRecords = %d, want 95", r.EliminatedRecords)
	}
	if r.CostReduction != 0.95 {
		t.Errorf("CostReduction = %v, want 0.95", r.CostReduction)
	}
	if r.Empty() {
		t.Error("report with summaries must not be Empty")
	}
	if !strings.Contains(r.ProcessingSummary, "100 records in") {
		t.Errorf("ProcessingSummary = %q", r.ProcessingSummary)
	}
}

func TestReportEmptyResult(t *testing.T) {
	s := New(testCfg)
	r := s.Report(nil, 40, 0, 0)

	if !r.Empty() {
		t.Error("report without summaries must be Empty")
	}
	if r.CostReduction != 1.0 {
		t.Errorf("CostReduction = %v, want exactly 1.0 when everything is filtered", r.CostReduction)
	}
	if r.EliminatedRecords != 40 {
		t.Errorf("EliminatedRecords = %d, want 40", r.EliminatedRecords)
	}
}

func TestReportZeroInput(t *testing.T) {
	s := New(testCfg)
	r := s.Report(nil, 0, 0, 0)

	if r.CostReduction != 0 {
		t.Errorf("CostReduction = %v, want 0 for empty input", r.CostReduction)
	}
	if !r.Empty() {
		t.Error("zero-input report must be Empty")
	}
}

func TestReportMentionsDegraded(t *testing.T) {
	s := New(testCfg)
	r := s.Report(nil, 10, 3, 0)

	if !strings.Contains(r.ProcessingSummary, "3 recovered") {
		t.Errorf("ProcessingSummary = %q, want the degraded count mentioned", r.ProcessingSummary)
	}
}
