package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iron-birch/winnow/internal/config"
)

type auditRow struct {
	Event          string  `json:"event"`
	ConversationID string  `json:"conversation_id"`
	QuerySHA       string  `json:"query_sha256"`
	TotalRecords   int     `json:"total_records"`
	Surviving      int     `json:"surviving_records"`
	CostReduction  float64 `json:"cost_reduction"`
	Tokens         int     `json:"llm_tokens"`
	Outcome        string  `json:"outcome"`
}

func newTestTrail(t *testing.T) (*Trail, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	trail, err := New(config.AuditConfig{
		Enabled:    true,
		Path:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { trail.Close() })
	return trail, path
}

func readRows(t *testing.T, path string) []auditRow {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var rows []auditRow
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var row auditRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			t.Fatalf("audit line is not JSON: %v\nline: %s", err, line)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestRecordAndSync(t *testing.T) {
	trail, path := newTestTrail(t)

	trail.Record(Event{
		ConversationID: "a1b2c3d4",
		QueryHash:      HashQuery("cart service is crashing"),
		TotalRecords:   100,
		Surviving:      5,
		CostReduction:  0.95,
		TokensUsed:     1234,
		CostUSD:        0.0007,
		Duration:       42 * time.Millisecond,
		Outcome:        "ok",
	})
	trail.Record(Event{
		ConversationID: "e5f6a7b8",
		QueryHash:      HashQuery("why is checkout slow"),
		TotalRecords:   10,
		Outcome:        "no_match",
	})
	if err := trail.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("audit rows = %d, want 2", len(rows))
	}
	first := rows[0]
	if first.Event != "analyze" {
		t.Errorf("event = %q, want %q", first.Event, "analyze")
	}
	if first.ConversationID != "a1b2c3d4" {
		t.Errorf("conversation_id = %q, want %q", first.ConversationID, "a1b2c3d4")
	}
	if first.QuerySHA != HashQuery("cart service is crashing") {
		t.Errorf("query_sha256 = %q, want hash of query", first.QuerySHA)
	}
	if first.TotalRecords != 100 || first.Surviving != 5 {
		t.Errorf("records = %d/%d, want 100/5", first.TotalRecords, first.Surviving)
	}
	if first.CostReduction != 0.95 {
		t.Errorf("cost_reduction = %v, want 0.95", first.CostReduction)
	}
	if first.Tokens != 1234 {
		t.Errorf("llm_tokens = %d, want 1234", first.Tokens)
	}
	if rows[1].Outcome != "no_match" {
		t.Errorf("second outcome = %q, want %q", rows[1].Outcome, "no_match")
	}
}

func TestDisabledTrailIsNil(t *testing.T) {
	trail, err := New(config.AuditConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if trail != nil {
		t.Fatalf("New() with auditing disabled = %v, want nil", trail)
	}

	// Nil trails absorb every call.
	trail.Record(Event{Outcome: "ok"})
	if err := trail.Sync(); err != nil {
		t.Errorf("nil Sync() error = %v", err)
	}
	if err := trail.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestCloseFlushesBuffer(t *testing.T) {
	trail, path := newTestTrail(t)

	trail.Record(Event{ConversationID: "deadbeef", Outcome: "ok"})
	if err := trail.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := trail.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 1 {
		t.Fatalf("audit rows after Close = %d, want 1", len(rows))
	}
	if rows[0].ConversationID != "deadbeef" {
		t.Errorf("conversation_id = %q, want %q", rows[0].ConversationID, "deadbeef")
	}
}

func TestBufferPressureFlushes(t *testing.T) {
	trail, path := newTestTrail(t)

	for i := 0; i < bufferLimit; i++ {
		trail.Record(Event{ConversationID: "cafe0123", Outcome: "ok"})
	}

	// The limit-hitting Record flushes synchronously, no Sync needed.
	rows := readRows(t, path)
	if len(rows) != bufferLimit {
		t.Fatalf("audit rows = %d, want %d", len(rows), bufferLimit)
	}
}

func TestHashQuery(t *testing.T) {
	a := HashQuery("cart service is crashing")
	b := HashQuery("cart service is crashing")
	c := HashQuery("checkout is slow")

	if a != b {
		t.Errorf("HashQuery not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("HashQuery collision for distinct queries")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if strings.ToLower(a) != a {
		t.Errorf("hash not lowercase hex: %q", a)
	}
}
