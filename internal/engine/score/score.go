// Package score rates windows against the parsed query. Scores are pure
// functions of window contents and query, order-independent, and normalized
// by record count so a large chatty window cannot outrank a small exact one
// on volume alone.
package score

import (
	"strings"

	"github.com/iron-birch/winnow/internal/engine/query"
	"github.com/iron-birch/winnow/internal/model"
)

// Config holds the match weights. ServiceWeight is also the per-record
// contribution ceiling: a record that matches the queried service scores
// the maximum a single record can, which keeps window scores monotone when
// service-matching records are added.
type Config struct {
	ServiceWeight float64
	PhraseWeight  float64
	KeywordWeight float64
	KeywordCap    float64
}

// Scorer computes query relevance for windows. Safe for concurrent use.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score returns the window's relevance in [0, 1]: the mean per-record
// contribution. Zero means no record matched any query term.
func (s *Scorer) Score(w model.Window, q query.Query) float64 {
	if len(w.Entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range w.Entries {
		sum += s.contribution(e.Record, q)
	}
	return sum / float64(len(w.Entries))
}

// contribution rates one record in [0, 1]. Service match scores highest,
// phrase and status mentions next, keyword hits lowest with a cap so one
// verbose record cannot dominate.
func (s *Scorer) contribution(rec model.LogRecord, q query.Query) float64 {
	var points float64

	if serviceMatch(rec.Service, q.Services) {
		points += s.cfg.ServiceWeight
	}

	lower := strings.ToLower(rec.Message)
	for _, phrase := range q.Phrases {
		if strings.Contains(lower, phrase) {
			points += s.cfg.PhraseWeight
		}
	}
	for _, code := range q.Statuses {
		if rec.StatusCode == code {
			points += s.cfg.PhraseWeight
		}
	}

	var kw float64
	for _, term := range q.Keywords {
		if strings.Contains(lower, term) {
			kw += s.cfg.KeywordWeight
		}
	}
	if kw > s.cfg.KeywordCap {
		kw = s.cfg.KeywordCap
	}
	points += kw

	if points > s.cfg.ServiceWeight {
		points = s.cfg.ServiceWeight
	}
	return points / s.cfg.ServiceWeight
}

// serviceMatch reports whether the record's service equals a queried term,
// either whole or split on the usual separators. "cart" matches
// "cart-service" but not "cartel".
func serviceMatch(service string, terms []string) bool {
	if service == "" || len(terms) == 0 {
		return false
	}
	for _, term := range terms {
		if service == term {
			return true
		}
	}
	for _, part := range strings.FieldsFunc(service, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == '/'
	}) {
		for _, term := range terms {
			if part == term {
				return true
			}
		}
	}
	return false
}
