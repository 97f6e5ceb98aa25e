package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/iron-birch/winnow/internal/config"
	"github.com/iron-birch/winnow/internal/engine"
	"github.com/iron-birch/winnow/internal/model"
)

func newTestPipeline(t *testing.T, mutate func(*config.PipelineConfig)) *Pipeline {
	t.Helper()
	cfg := config.Default().Pipeline
	if mutate != nil {
		mutate(&cfg)
	}
	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return New(eng, cfg)
}

// cartScenario builds 95 healthy checkout-service records and 5 cart-service
// errors, all inside one time bucket.
func cartScenario() []model.RawRecord {
	records := make([]model.RawRecord, 0, 100)
	for i := 0; i < 95; i++ {
		records = append(records, model.RawRecord{
			"timestamp": int64(1700000000 + i%20),
			"service":   "checkout-service",
			"level":     "INFO",
			"message":   fmt.Sprintf("order %d processed", i),
		})
	}
	for i := 0; i < 5; i++ {
		records = append(records, model.RawRecord{
			"timestamp": int64(1700000000 + i),
			"service":   "cart-service",
			"level":     "ERROR",
			"message":   fmt.Sprintf("cart lookup failed for user %d", i),
		})
	}
	return records
}

func TestRunCartScenario(t *testing.T) {
	p := newTestPipeline(t, nil)

	report, err := p.Run(context.Background(), cartScenario(), "cart service is crashing")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.TotalRecords != 100 {
		t.Errorf("TotalRecords = %d, want 100", report.TotalRecords)
	}
	if report.SurvivingRecords != 5 {
		t.Errorf("SurvivingRecords = %d, want 5", report.SurvivingRecords)
	}
	if report.CostReduction != 0.95 {
		t.Errorf("CostReduction = %v, want exactly 0.95", report.CostReduction)
	}
	for _, w := range report.Summaries {
		if _, ok := w.Services["checkout-service"]; ok {
			t.Errorf("checkout-service window survived: %+v", w.Services)
		}
	}
}

func TestRunMatchesSequentialReduce(t *testing.T) {
	cfg := config.Default().Pipeline
	eng, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	records := cartScenario()
	want := eng.Reduce(records, "cart errors")

	p := New(eng, cfg)
	got, err := p.Run(context.Background(), records, "cart errors")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The processing summary embeds elapsed time; compare everything else.
	want.ProcessingSummary, got.ProcessingSummary = "", ""
	if !reflect.DeepEqual(want, got) {
		t.Errorf("concurrent Run diverged from sequential Reduce:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	records := cartScenario()

	var baseline model.Report
	for i, workers := range []int{1, 2, 8} {
		p := newTestPipeline(t, func(cfg *config.PipelineConfig) {
			cfg.Workers = workers
		})
		report, err := p.Run(context.Background(), records, "cart failure 500")
		if err != nil {
			t.Fatalf("Run(workers=%d): %v", workers, err)
		}
		report.ProcessingSummary = ""
		if i == 0 {
			baseline = report
			continue
		}
		if !reflect.DeepEqual(baseline, report) {
			t.Errorf("workers=%d produced a different report", workers)
		}
	}
}

func TestRunRejectsTooLarge(t *testing.T) {
	p := newTestPipeline(t, func(cfg *config.PipelineConfig) {
		cfg.MaxRecords = 10
	})

	_, err := p.Run(context.Background(), cartScenario(), "cart errors")
	if err == nil {
		t.Fatal("expected limit error, got nil")
	}
	var limitErr *model.LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected *model.LimitError, got %T: %v", err, err)
	}
	if limitErr.Limit != 10 || limitErr.Actual != 100 {
		t.Errorf("LimitError = %+v, want Limit=10 Actual=100", limitErr)
	}
}

func TestRunEmptyResult(t *testing.T) {
	p := newTestPipeline(t, nil)

	records := []model.RawRecord{
		{"timestamp": int64(1700000000), "service": "search", "level": "INFO", "message": "indexed 42 documents"},
		{"timestamp": int64(1700000001), "service": "search", "level": "INFO", "message": "indexed 17 documents"},
	}
	report, err := p.Run(context.Background(), records, "payment gateway timeout")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Empty() {
		t.Errorf("expected empty report, got %d windows", len(report.Summaries))
	}
	if report.CostReduction != 1.0 {
		t.Errorf("CostReduction = %v, want 1.0", report.CostReduction)
	}
}

func TestRunEmptyInput(t *testing.T) {
	p := newTestPipeline(t, nil)

	report, err := p.Run(context.Background(), nil, "anything")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Empty() {
		t.Error("expected empty report for empty input")
	}
	if report.TotalRecords != 0 {
		t.Errorf("TotalRecords = %d, want 0", report.TotalRecords)
	}
}

func TestRunCancelledContext(t *testing.T) {
	p := newTestPipeline(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, cartScenario(), "cart errors")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// Re-running the pipeline over the raw records referenced by a report's
// samples reproduces the same window ids: sample output is a faithful
// subset of the input.
func TestRunIdempotentOnOwnSamples(t *testing.T) {
	p := newTestPipeline(t, nil)

	first, err := p.Run(context.Background(), cartScenario(), "cart service is crashing")
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Empty() {
		t.Fatal("first run produced no windows")
	}

	firstIDs := make(map[string]bool)
	var raws []model.RawRecord
	for _, w := range first.Summaries {
		firstIDs[w.WindowID] = true
		for _, s := range w.Samples {
			raws = append(raws, s.Raw)
		}
	}

	second, err := p.Run(context.Background(), raws, "cart service is crashing")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	for _, w := range second.Summaries {
		if !firstIDs[w.WindowID] {
			t.Errorf("second run produced unknown window %s", w.WindowID)
		}
	}
}
