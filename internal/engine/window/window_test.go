package window

import (
	"reflect"
	"testing"
	"time"

	"github.com/iron-birch/winnow/internal/model"
)

var base = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func entry(service string, offset time.Duration, trace string) model.Entry {
	return model.Entry{
		Record: model.LogRecord{
			Timestamp: base.Add(offset),
			Service:   service,
			TraceID:   trace,
			Message:   "m",
		},
	}
}

func untimed(service string) model.Entry {
	return model.Entry{Record: model.LogRecord{Service: service, Message: "m"}}
}

func countEntries(ws []model.Window) int {
	n := 0
	for _, w := range ws {
		n += len(w.Entries)
	}
	return n
}

func TestBuildPartitionIsExhaustiveAndDisjoint(t *testing.T) {
	b := New(30)
	entries := []model.Entry{
		entry("cart", 0, "aaaa1111aaaa1111"),
		entry("cart", time.Second, ""),
		entry("payment", 2*time.Second, "aaaa1111aaaa1111"),
		entry("payment", 40*time.Second, ""),
		untimed("cart"),
		untimed("auth"),
	}

	ws := b.Build(entries)
	if got := countEntries(ws); got != len(entries) {
		t.Fatalf("windows hold %d entries, want %d", got, len(entries))
	}

	seen := map[string]bool{}
	for _, w := range ws {
		if seen[w.CorrelationKey] {
			t.Fatalf("correlation key %q appears twice", w.CorrelationKey)
		}
		seen[w.CorrelationKey] = true
	}
}

func TestBuildTraceWindowSpansServices(t *testing.T) {
	b := New(30)
	ws := b.Build([]model.Entry{
		entry("cart", 0, "deadbeefdeadbeef"),
		entry("payment", 5*time.Minute, "deadbeefdeadbeef"),
	})

	if len(ws) != 1 {
		t.Fatalf("Build() returned %d windows, want 1", len(ws))
	}
	w := ws[0]
	if w.CorrelationKey != "trace:deadbeefdeadbeef" {
		t.Errorf("CorrelationKey = %q", w.CorrelationKey)
	}
	if !w.StartTime.Equal(base) {
		t.Errorf("StartTime = %v, want %v", w.StartTime, base)
	}
	if !w.EndTime.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("EndTime = %v, want %v", w.EndTime, base.Add(5*time.Minute))
	}
}

func TestBuildBucketBoundaries(t *testing.T) {
	b := New(30)
	ws := b.Build([]model.Entry{
		entry("cart", 0, ""),
		entry("cart", 29*time.Second, ""),
		entry("cart", 30*time.Second, ""),
	})

	if len(ws) != 2 {
		t.Fatalf("Build() returned %d windows, want 2", len(ws))
	}
	if len(ws[0].Entries) != 2 {
		t.Errorf("first bucket holds %d entries, want 2", len(ws[0].Entries))
	}
	if len(ws[1].Entries) != 1 {
		t.Errorf("second bucket holds %d entries, want 1", len(ws[1].Entries))
	}
}

func TestBuildSeparatesServices(t *testing.T) {
	b := New(30)
	ws := b.Build([]model.Entry{
		entry("cart", 0, ""),
		entry("payment", 0, ""),
	})
	if len(ws) != 2 {
		t.Fatalf("Build() returned %d windows, want 2", len(ws))
	}
}

func TestBuildUnknownTimeWindowsSortLast(t *testing.T) {
	b := New(30)
	ws := b.Build([]model.Entry{
		untimed("zeta"),
		entry("cart", time.Minute, ""),
		untimed("alpha"),
		entry("cart", 0, ""),
	})

	if len(ws) != 4 {
		t.Fatalf("Build() returned %d windows, want 4", len(ws))
	}
	if ws[0].StartTime.IsZero() || ws[1].StartTime.IsZero() {
		t.Error("timed windows must sort before unknown-time windows")
	}
	if !ws[2].StartTime.IsZero() || !ws[3].StartTime.IsZero() {
		t.Fatal("unknown-time windows must sort last")
	}
	if ws[2].CorrelationKey > ws[3].CorrelationKey {
		t.Errorf("unknown-time windows out of order: %q before %q", ws[2].CorrelationKey, ws[3].CorrelationKey)
	}
}

func TestBuildOrderingAndTies(t *testing.T) {
	b := New(30)
	ws := b.Build([]model.Entry{
		entry("payment", 0, ""),
		entry("cart", 0, ""),
		entry("auth", time.Minute, ""),
	})

	if len(ws) != 3 {
		t.Fatalf("Build() returned %d windows, want 3", len(ws))
	}
	// Same start time: lexicographic correlation key breaks the tie.
	if ws[0].CorrelationKey >= ws[1].CorrelationKey {
		t.Errorf("tie not broken lexicographically: %q, %q", ws[0].CorrelationKey, ws[1].CorrelationKey)
	}
	if !ws[2].StartTime.After(ws[0].StartTime) {
		t.Error("later window must sort after earlier ones")
	}
}

func TestBuildEntriesTimeOrdered(t *testing.T) {
	b := New(30)
	late := entry("cart", 40*time.Second, "feedfacefeedface")
	early := entry("cart", 0, "feedfacefeedface")
	mid := entry("payment", 20*time.Second, "feedfacefeedface")
	dateless := model.Entry{Record: model.LogRecord{Service: "cart", TraceID: "feedfacefeedface", Message: "m"}}

	ws := b.Build([]model.Entry{late, dateless, early, mid})
	if len(ws) != 1 {
		t.Fatalf("Build() returned %d windows, want 1", len(ws))
	}
	got := ws[0].Entries
	if len(got) != 4 {
		t.Fatalf("window holds %d entries, want 4", len(got))
	}
	for i, want := range []model.Entry{early, mid, late} {
		if !got[i].Record.Timestamp.Equal(want.Record.Timestamp) {
			t.Errorf("entry %d at %v, want %v", i, got[i].Record.Timestamp, want.Record.Timestamp)
		}
	}
	if !got[3].Record.Timestamp.IsZero() {
		t.Error("unknown-time entry must sort last in its window")
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := New(30)
	entries := []model.Entry{
		entry("cart", 0, "aaaa1111aaaa1111"),
		entry("payment", time.Second, ""),
		untimed("auth"),
		entry("cart", 31*time.Second, ""),
	}

	first := b.Build(entries)
	for i := 0; i < 20; i++ {
		if got := b.Build(entries); !reflect.DeepEqual(got, first) {
			t.Fatal("Build() output varied across identical runs")
		}
	}
}

func TestWindowIDStableAndUnique(t *testing.T) {
	if windowID("cart@100") != windowID("cart@100") {
		t.Error("windowID must be stable for equal keys")
	}
	if windowID("cart@100") == windowID("cart@130") {
		t.Error("windowID must differ across keys")
	}
}

func TestBuildEmpty(t *testing.T) {
	if ws := New(30).Build(nil); len(ws) != 0 {
		t.Errorf("Build(nil) = %d windows, want 0", len(ws))
	}
}
