package model

import (
	"math"
	"time"
)

// WindowSummary is the bounded per-window digest handed to the analysis
// collaborator. Every sequence field has a configured maximum length; the
// summarizer never emits an unbounded field.
type WindowSummary struct {
	WindowID       string
	CorrelationKey string
	StartTime      time.Time
	EndTime        time.Time
	Services       map[string]int   // record count per service
	Severities     map[Severity]int // record count per severity
	TopTemplates   []Template
	Samples        []LogRecord // highest-importance records first
	Headline       string      // one-line digest for rendering
	Relevance      float64
	Importance     float64
}

// Report is the pipeline's final output: the ordered surviving window
// summaries plus the accounting the caller renders and prompts with.
type Report struct {
	Summaries         []WindowSummary
	TotalRecords      int
	SurvivingRecords  int
	EliminatedRecords int
	CostReduction     float64 // 1 - surviving/total, in [0, 1]
	ProcessingSummary string
}

// Empty reports whether every window was filtered out. A valid terminal
// state, distinct from a processing failure.
func (r Report) Empty() bool {
	return len(r.Summaries) == 0
}

// ReductionPercent returns CostReduction as a percentage rounded to one
// decimal place, the form rendered to clients.
func (r Report) ReductionPercent() float64 {
	return math.Round(r.CostReduction*1000) / 10
}
