// Package normalize maps heterogeneous raw log entries onto the canonical
// record shape the rest of the engine consumes. Resolution order per field
// is fixed; a record that resolves nothing still comes out the other side
// with defaults so batch counts stay intact.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/iron-birch/winnow/internal/engine/signal"
	"github.com/iron-birch/winnow/internal/model"
)

// Field resolution chains, most specific first. Dotted keys match either a
// flattened key or a nested map path.
var (
	timestampKeys = []string{"timestamp", "@timestamp", "time", "ts", "datetime", "fields.timestamp", "attributes.timestamp"}
	severityKeys  = []string{"fields.severity_text", "severity_text", "severity", "level", "loglevel", "log_level", "levelname"}
	traceKeys     = []string{"fields.trace_id", "trace_id", "traceId", "traceid", "attributes.trace_id"}
	statusKeys    = []string{"status_code", "statusCode", "status", "http.status_code", "response_code"}
	messageKeys   = []string{"body", "message", "msg", "text", "log", "content"}
	serviceKeys   = []string{
		"resource_attributes.service.name", "service.name", "service", "service_name",
		"serviceName", "containerName", "container_name", "k8s.deployment.name",
		"k8s.container.name", "podName", "app", "component",
	}
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

var (
	traceBodyRE  = regexp.MustCompile(`(?i)trace[_-]?id[:\s=]+([a-fA-F0-9]{16,64})`)
	statusBodyRE = regexp.MustCompile(`(?i)\b(?:status|code)\b[^0-9]{0,3}([45]\d{2})\b`)
)

// Epoch magnitude thresholds: values at or above each bound are interpreted
// as nanoseconds, microseconds, and milliseconds respectively; anything
// smaller is seconds.
const (
	nanosFloor  = 1e17
	microsFloor = 1e14
	millisFloor = 1e11
)

// Normalizer converts raw records to canonical ones. Stateless and safe for
// concurrent use.
type Normalizer struct{}

func New() *Normalizer {
	return &Normalizer{}
}

// Normalize resolves one raw record. The second return is true when the
// record was degraded (no message could be resolved) and defaults were
// substituted. Never fails.
func (n *Normalizer) Normalize(raw model.RawRecord) (model.LogRecord, bool) {
	rec := model.LogRecord{Raw: raw}

	rec.Message, _ = resolveString(raw, messageKeys)
	degraded := rec.Message == ""

	if v, ok := resolve(raw, timestampKeys); ok {
		rec.Timestamp = parseTimestamp(v)
	}

	if s, ok := resolveString(raw, serviceKeys); ok && s != "" {
		rec.Service = strings.ToLower(s)
	} else {
		rec.Service = "unknown"
	}

	if s, ok := resolveString(raw, traceKeys); ok && s != "" {
		rec.TraceID = strings.ToLower(s)
	} else if m := traceBodyRE.FindStringSubmatch(rec.Message); m != nil {
		rec.TraceID = strings.ToLower(m[1])
	}

	if v, ok := resolve(raw, statusKeys); ok {
		rec.StatusCode = parseStatus(v)
	}
	if rec.StatusCode == 0 {
		if m := statusBodyRE.FindStringSubmatch(rec.Message); m != nil {
			code, _ := strconv.Atoi(m[1])
			rec.StatusCode = code
		}
	}

	// Explicit severity field wins; then message keywords; then the status
	// code decides between error and warning.
	if s, ok := resolveString(raw, severityKeys); ok {
		rec.Severity = model.ParseSeverity(s)
	}
	if rec.Severity == model.SeverityUnknown {
		rec.Severity = signal.SeverityFromMessage(rec.Message)
	}
	if rec.Severity == model.SeverityUnknown {
		switch {
		case rec.StatusCode >= 500:
			rec.Severity = model.SeverityError
		case rec.StatusCode >= 400:
			rec.Severity = model.SeverityWarn
		}
	}

	return rec, degraded
}

// Batch normalizes every record in order. Output length always equals input
// length; the second return counts degraded records.
func (n *Normalizer) Batch(raws []model.RawRecord) ([]model.LogRecord, int) {
	out := make([]model.LogRecord, len(raws))
	degraded := 0
	for i, raw := range raws {
		rec, d := n.Normalize(raw)
		out[i] = rec
		if d {
			degraded++
		}
	}
	return out, degraded
}

// resolve returns the first value present along the chain. A dotted key is
// tried verbatim first, then as a nested map path.
func resolve(raw model.RawRecord, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			return v, true
		}
		if !strings.Contains(key, ".") {
			continue
		}
		if v, ok := walk(raw, strings.Split(key, ".")); ok {
			return v, true
		}
	}
	return nil, false
}

func walk(m map[string]any, path []string) (any, bool) {
	cur := any(m)
	for _, seg := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func resolveString(raw model.RawRecord, keys []string) (string, bool) {
	v, ok := resolve(raw, keys)
	if !ok {
		return "", false
	}
	return coerceString(v), true
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// parseTimestamp accepts epoch numbers (unit decided by magnitude) and the
// layouts in timeLayouts. Returns the zero time when unparseable.
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case float64:
		// Whole floats go through the integer path so nanosecond epochs
		// keep full precision.
		if t == math.Trunc(t) && t < float64(math.MaxInt64) {
			return fromEpochInt(int64(t))
		}
		return fromEpochFloat(t)
	case int:
		return fromEpochInt(int64(t))
	case int64:
		return fromEpochInt(t)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpochInt(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpochFloat(f)
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC()
			}
		}
	}
	return time.Time{}
}

func fromEpochInt(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	switch {
	case n >= nanosFloor:
		return time.Unix(0, n).UTC()
	case n >= microsFloor:
		return time.UnixMicro(n).UTC()
	case n >= millisFloor:
		return time.UnixMilli(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}

func fromEpochFloat(f float64) time.Time {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}
	}
	switch {
	case f >= nanosFloor:
		return time.Unix(0, int64(f)).UTC()
	case f >= microsFloor:
		return time.UnixMicro(int64(f)).UTC()
	case f >= millisFloor:
		return time.UnixMilli(int64(f)).UTC()
	default:
		sec := int64(f)
		nanos := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nanos).UTC()
	}
}

func parseStatus(v any) int {
	var code int
	switch t := v.(type) {
	case float64:
		code = int(t)
	case int:
		code = t
	case int64:
		code = int(t)
	case string:
		code, _ = strconv.Atoi(strings.TrimSpace(t))
	}
	if code < 100 || code > 599 {
		return 0
	}
	return code
}
