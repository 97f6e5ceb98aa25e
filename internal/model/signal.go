package model

// Signal is the per-record classification derived by the signal detector.
// Read-only after detection.
type Signal struct {
	IsError  bool
	IsHot    bool     // severity >= WARN, a critical keyword, or status >= 400
	Keywords []string // matched indicator terms, sorted for determinism
}

// Entry pairs a canonical record with its derived signal. Windows hold
// entries so later stages see both without mutating the record.
type Entry struct {
	Record LogRecord
	Signal Signal
}
