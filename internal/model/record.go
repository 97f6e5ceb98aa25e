package model

import (
	"strings"
	"time"
)

// RawRecord is one log entry exactly as ingested: a flattened key/value view
// of the source object, schema unknown. Nested objects appear as dotted keys
// ("resource_attributes.service.name"). Values are string, int64, float64 or
// bool. Not retained past normalization except as an audit back-reference.
type RawRecord map[string]any

// Severity is the canonical log level. The zero value is SeverityUnknown,
// which ranks below every known level so unclassifiable records never
// outrank classified ones.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

// ParseSeverity maps a raw level token to a Severity. Synonyms collapse to
// the nearest canonical level (PANIC and EMERGENCY are fatal, CRITICAL is
// an error, ALERT is a warning, TRACE and VERBOSE are debug). Unrecognized
// tokens map to SeverityUnknown.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FATAL", "PANIC", "EMERGENCY":
		return SeverityFatal
	case "ERROR", "ERR", "CRITICAL":
		return SeverityError
	case "WARN", "WARNING", "ALERT":
		return SeverityWarn
	case "INFO", "NOTICE":
		return SeverityInfo
	case "DEBUG", "TRACE", "VERBOSE":
		return SeverityDebug
	default:
		return SeverityUnknown
	}
}

// String returns the canonical upper-case name.
func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "FATAL"
	case SeverityError:
		return "ERROR"
	case SeverityWarn:
		return "WARN"
	case SeverityInfo:
		return "INFO"
	case SeverityDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler so Severity serializes as
// its name in JSON, including as a map key.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	*s = ParseSeverity(string(b))
	return nil
}

// LogRecord is the canonical record shape every downstream stage consumes.
// Created once by the normalizer and never mutated afterward; derived data
// (signals, scores) is attached alongside, never written into the record.
type LogRecord struct {
	Timestamp  time.Time // zero value means the source time was unparseable
	Service    string    // lower-cased, "unknown" when absent
	TraceID    string    // empty when the record carries no trace correlation
	Severity   Severity
	Message    string
	StatusCode int // 0 when no HTTP status was found
	Raw        RawRecord
}

// KnownTime reports whether the record carries a parseable timestamp.
// Records without one sort after all timestamped records.
func (r LogRecord) KnownTime() bool {
	return !r.Timestamp.IsZero()
}
