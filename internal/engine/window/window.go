// Package window groups detected records into correlation windows: one
// window per distinct trace id, time buckets per service for the rest, and
// a terminal per-service window for records with no usable timestamp.
package window

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iron-birch/winnow/internal/model"
)

// Builder partitions entries into windows. The partition is exhaustive and
// disjoint: every input entry lands in exactly one window.
type Builder struct {
	bucket int64 // seconds
}

func New(bucketSeconds int) *Builder {
	if bucketSeconds < 1 {
		bucketSeconds = 1
	}
	return &Builder{bucket: int64(bucketSeconds)}
}

// Build groups entries and returns windows sorted by start time ascending,
// ties broken by correlation key. Windows holding only unknown-time records
// sort last, and entries within each window are likewise time ascending with
// unknown-time entries last. Output is deterministic for a given input order.
func (b *Builder) Build(entries []model.Entry) []model.Window {
	if len(entries) == 0 {
		return nil
	}

	groups := make(map[string]*model.Window)
	order := make([]string, 0)

	add := func(key string, e model.Entry) {
		w, ok := groups[key]
		if !ok {
			w = &model.Window{ID: windowID(key), CorrelationKey: key}
			groups[key] = w
			order = append(order, key)
		}
		w.Entries = append(w.Entries, e)
		if ts := e.Record.Timestamp; !ts.IsZero() {
			if w.StartTime.IsZero() || ts.Before(w.StartTime) {
				w.StartTime = ts
			}
			if ts.After(w.EndTime) {
				w.EndTime = ts
			}
		}
	}

	for _, e := range entries {
		add(b.keyFor(e.Record), e)
	}

	out := make([]model.Window, 0, len(groups))
	for _, key := range order {
		w := *groups[key]
		sortEntries(w.Entries)
		out = append(out, w)
	}

	sort.SliceStable(out, func(i, j int) bool {
		iu, ju := out[i].StartTime.IsZero(), out[j].StartTime.IsZero()
		if iu != ju {
			return ju // unknown-time windows sort last
		}
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].CorrelationKey < out[j].CorrelationKey
	})
	return out
}

// sortEntries orders a window's records time ascending, unknown-time
// records last. Ties keep input order.
func sortEntries(entries []model.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].Record.Timestamp, entries[j].Record.Timestamp
		iu, ju := ti.IsZero(), tj.IsZero()
		if iu != ju {
			return ju
		}
		return ti.Before(tj)
	})
}

// keyFor picks the window an entry belongs to. Trace id beats everything;
// otherwise the record falls into its service's time bucket, or the
// service's terminal unknown-time window.
func (b *Builder) keyFor(rec model.LogRecord) string {
	if rec.TraceID != "" {
		return "trace:" + rec.TraceID
	}
	if rec.Timestamp.IsZero() {
		return rec.Service + "@unknown"
	}
	floor := bucketFloor(rec.Timestamp, b.bucket)
	return fmt.Sprintf("%s@%d", rec.Service, floor)
}

func bucketFloor(ts time.Time, bucket int64) int64 {
	sec := ts.Unix()
	floor := sec - (sec % bucket)
	if sec < 0 && sec%bucket != 0 {
		floor -= bucket
	}
	return floor
}

// windowID derives a stable id from the correlation key, so identical input
// always yields identical window ids.
func windowID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("winnow:window:"+key)).String()
}
