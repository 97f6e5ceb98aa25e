package model

import "time"

// Window is a trace- or time-correlated group of entries treated as one
// analysis unit. Entries are ordered time-ascending, records without a
// parseable timestamp last.
type Window struct {
	ID             string
	CorrelationKey string // traceId, or "service/bucket" for time windows
	StartTime      time.Time
	EndTime        time.Time
	Entries        []Entry
}

// HotCount returns the number of entries flagged hot.
func (w Window) HotCount() int {
	n := 0
	for _, e := range w.Entries {
		if e.Signal.IsHot {
			n++
		}
	}
	return n
}

// Template is a deduplicated message pattern: the masked form shared by one
// or more near-identical records, how many matched it, and the first record
// observed for it.
type Template struct {
	Pattern string
	Count   int
	Example LogRecord
}

// ScoredWindow carries a window through scoring and ranking. Templates and
// scores are attached alongside the window, leaving it untouched.
type ScoredWindow struct {
	Window
	Templates  []Template
	Relevance  float64 // query relevance, >= 0; 0 means no query term matched
	Importance float64 // final ranking key
}
