// Package signal derives per-record signals: whether a record is an error,
// whether it is "hot" (worth keeping regardless of query relevance), and
// which critical keywords fired. Detection is pure and deterministic; the
// same record always yields the same signal.
package signal

import (
	"sort"
	"strings"

	"github.com/iron-birch/winnow/internal/model"
)

// messageSeverities is the ordered fallback used when a record carries no
// explicit severity field. First match wins, so the scan goes from most to
// least severe.
var messageSeverities = []struct {
	needle string
	sev    model.Severity
}{
	{"panic", model.SeverityFatal},
	{"fatal", model.SeverityFatal},
	{"emergency", model.SeverityFatal},
	{"exception", model.SeverityError},
	{"error", model.SeverityError},
	{"critical", model.SeverityError},
	{"fail", model.SeverityError},
	{"warn", model.SeverityWarn},
	{"alert", model.SeverityWarn},
	{"deprecat", model.SeverityWarn},
	{"debug", model.SeverityDebug},
}

// SeverityFromMessage scans the message for severity-bearing keywords,
// case-insensitively, and returns the first match. Returns SeverityUnknown
// when nothing fires.
func SeverityFromMessage(msg string) model.Severity {
	if msg == "" {
		return model.SeverityUnknown
	}
	lower := strings.ToLower(msg)
	for _, ms := range messageSeverities {
		if strings.Contains(lower, ms.needle) {
			return ms.sev
		}
	}
	return model.SeverityUnknown
}

// Detector computes signals against a configured critical-keyword list.
// Safe for concurrent use once constructed.
type Detector struct {
	hot []string
}

// New builds a Detector. Keywords are matched case-insensitively as
// substrings of the record message.
func New(hotKeywords []string) *Detector {
	hot := make([]string, 0, len(hotKeywords))
	for _, kw := range hotKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			hot = append(hot, kw)
		}
	}
	return &Detector{hot: hot}
}

// Detect derives the signal for a single record.
//
// A record is an error when its severity is ERROR or above, or its status
// code is 5xx. It is hot when its severity is WARN or above, its status
// code is 4xx or 5xx, or a critical keyword appears in its message.
func (d *Detector) Detect(rec model.LogRecord) model.Signal {
	sig := model.Signal{
		IsError: rec.Severity >= model.SeverityError || rec.StatusCode >= 500,
	}

	lower := strings.ToLower(rec.Message)
	for _, kw := range d.hot {
		if strings.Contains(lower, kw) {
			sig.Keywords = append(sig.Keywords, kw)
		}
	}
	sort.Strings(sig.Keywords)

	sig.IsHot = sig.IsError ||
		rec.Severity >= model.SeverityWarn ||
		rec.StatusCode >= 400 ||
		len(sig.Keywords) > 0
	return sig
}

// DetectAll maps Detect over a batch, preserving order and length.
func (d *Detector) DetectAll(recs []model.LogRecord) []model.Entry {
	out := make([]model.Entry, len(recs))
	for i, rec := range recs {
		out[i] = model.Entry{Record: rec, Signal: d.Detect(rec)}
	}
	return out
}
