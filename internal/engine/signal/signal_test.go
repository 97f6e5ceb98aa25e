package signal

import (
	"reflect"
	"testing"

	"github.com/iron-birch/winnow/internal/model"
)

var testKeywords = []string{"timeout", "refused", "crash", "panic"}

func TestSeverityFromMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want model.Severity
	}{
		{"panic: nil pointer dereference", model.SeverityFatal},
		{"FATAL shutdown initiated", model.SeverityFatal},
		{"unhandled exception", model.SeverityError},
		{"Error: connection reset", model.SeverityError},
		{"request failed after 3 retries", model.SeverityError},
		{"warning: disk 90% full", model.SeverityWarn},
		{"field is deprecated", model.SeverityWarn},
		{"debug: cache hit", model.SeverityDebug},
		{"user logged in", model.SeverityUnknown},
		{"", model.SeverityUnknown},
	}

	for _, tt := range tests {
		if got := SeverityFromMessage(tt.msg); got != tt.want {
			t.Errorf("SeverityFromMessage(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestSeverityFromMessageFirstMatchWins(t *testing.T) {
	// Both "panic" and "error" appear; the more severe one must win
	// regardless of position in the message.
	if got := SeverityFromMessage("error recovering from panic"); got != model.SeverityFatal {
		t.Errorf("SeverityFromMessage = %v, want fatal", got)
	}
}

func TestDetect(t *testing.T) {
	d := New(testKeywords)

	tests := []struct {
		name     string
		rec      model.LogRecord
		isError  bool
		isHot    bool
		keywords []string
	}{
		{
			name:    "plain info record",
			rec:     model.LogRecord{Severity: model.SeverityInfo, Message: "user viewed page"},
			isError: false, isHot: false,
		},
		{
			name:    "error severity",
			rec:     model.LogRecord{Severity: model.SeverityError, Message: "boom"},
			isError: true, isHot: true,
		},
		{
			name:    "warn is hot but not error",
			rec:     model.LogRecord{Severity: model.SeverityWarn, Message: "slow response"},
			isError: false, isHot: true,
		},
		{
			name:    "5xx status is an error",
			rec:     model.LogRecord{Severity: model.SeverityInfo, StatusCode: 502, Message: "proxied"},
			isError: true, isHot: true,
		},
		{
			name:    "4xx status is hot",
			rec:     model.LogRecord{Severity: model.SeverityInfo, StatusCode: 403, Message: "denied"},
			isError: false, isHot: true,
		},
		{
			name:     "critical keyword is hot",
			rec:      model.LogRecord{Severity: model.SeverityInfo, Message: "connection timeout to upstream"},
			isError:  false, isHot: true,
			keywords: []string{"timeout"},
		},
		{
			name:     "multiple keywords sorted",
			rec:      model.LogRecord{Severity: model.SeverityInfo, Message: "timeout then connection refused"},
			isError:  false, isHot: true,
			keywords: []string{"refused", "timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := d.Detect(tt.rec)
			if sig.IsError != tt.isError {
				t.Errorf("IsError = %v, want %v", sig.IsError, tt.isError)
			}
			if sig.IsHot != tt.isHot {
				t.Errorf("IsHot = %v, want %v", sig.IsHot, tt.isHot)
			}
			if !reflect.DeepEqual(sig.Keywords, tt.keywords) {
				t.Errorf("Keywords = %v, want %v", sig.Keywords, tt.keywords)
			}
		})
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := New(testKeywords)
	rec := model.LogRecord{Severity: model.SeverityError, StatusCode: 500, Message: "crash after timeout"}

	first := d.Detect(rec)
	for i := 0; i < 100; i++ {
		if got := d.Detect(rec); !reflect.DeepEqual(got, first) {
			t.Fatalf("Detect() varied across runs: %+v vs %+v", got, first)
		}
	}
}

func TestDetectAllPreservesOrder(t *testing.T) {
	d := New(testKeywords)
	recs := []model.LogRecord{
		{Service: "a", Message: "one"},
		{Service: "b", Message: "two"},
		{Service: "c", Message: "three"},
	}
	entries := d.DetectAll(recs)
	if len(entries) != len(recs) {
		t.Fatalf("DetectAll() returned %d entries, want %d", len(entries), len(recs))
	}
	for i, e := range entries {
		if e.Record.Service != recs[i].Service {
			t.Errorf("entry %d service = %q, want %q", i, e.Record.Service, recs[i].Service)
		}
	}
}
