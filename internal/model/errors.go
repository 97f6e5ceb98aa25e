package model

import "fmt"

// LimitError reports input exceeding a hard configured ceiling. Fatal for
// the request; the caller surfaces both numbers so the rejection is
// explainable.
type LimitError struct {
	What   string // "records" or "bytes"
	Limit  int64
	Actual int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("input too large: %d %s (limit %d)", e.Actual, e.What, e.Limit)
}
