// Package rank orders scored windows by importance and applies the strict
// elimination filter: windows with zero relevance and no hot record never
// survive. This filter, not the top-K cap, is the primary cost control.
package rank

import (
	"math"
	"sort"

	"github.com/iron-birch/winnow/internal/model"
)

// Config holds the importance weights. Alpha >= Beta >= Gamma so relevance
// dominates the hot-record fraction, which dominates raw volume.
type Config struct {
	Alpha float64
	Beta  float64
	Gamma float64
	TopK  int
}

// Ranker computes importance and retains the top windows. Deterministic:
// identical inputs produce bit-identical output ordering.
type Ranker struct {
	cfg Config
}

func New(cfg Config) *Ranker {
	return &Ranker{cfg: cfg}
}

// Rank filters, scores, sorts, and caps. The input slice is not modified.
// Fewer than TopK survivors are returned as-is, never padded.
func (r *Ranker) Rank(sws []model.ScoredWindow) []model.ScoredWindow {
	out := make([]model.ScoredWindow, 0, len(sws))
	for _, sw := range sws {
		if sw.Relevance == 0 && sw.HotCount() == 0 {
			continue
		}
		sw.Importance = r.importance(sw)
		out = append(out, sw)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		iu, ju := out[i].StartTime.IsZero(), out[j].StartTime.IsZero()
		if iu != ju {
			return ju // unknown-time windows lose ties
		}
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].CorrelationKey < out[j].CorrelationKey
	})

	if r.cfg.TopK > 0 && len(out) > r.cfg.TopK {
		out = out[:r.cfg.TopK]
	}
	return out
}

func (r *Ranker) importance(sw model.ScoredWindow) float64 {
	hotFrac := 0.0
	if n := len(sw.Entries); n > 0 {
		hotFrac = float64(sw.HotCount()) / float64(n)
	}
	return r.cfg.Alpha*sw.Relevance +
		r.cfg.Beta*hotFrac +
		r.cfg.Gamma*math.Log1p(float64(len(sw.Entries)))
}
