// Package template collapses a window's records into message templates by
// masking volatile fragments (identifiers, timestamps, numbers) and grouping
// what remains. Ten "payment 123 failed" lines become one template with
// count 10 and the first line as its example.
package template

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/iron-birch/winnow/internal/model"
)

// Masking rules, applied in order on the lowercased, accent-folded message.
// UUIDs go first so their segments are not eaten piecemeal by the hex and
// number rules; timestamps before bare numbers for the same reason. The
// placeholders contain no digits, so masking is idempotent.
var maskRules = []struct {
	re          *regexp.Regexp
	placeholder string
}{
	{regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), "<uuid>"},
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:z|[+-]\d{2}:?\d{2})?`), "<ts>"},
	{regexp.MustCompile(`\b[0-9a-f]{16,64}\b`), "<hex>"},
	{regexp.MustCompile(`-?\d+(?:\.\d+)?`), "<num>"},
}

// Mask reduces a message to its template pattern. Deterministic, and a
// fixed point: Mask(Mask(s)) == Mask(s).
func Mask(msg string) string {
	s := foldAccents(strings.ToLower(msg))
	for _, rule := range maskRules {
		s = rule.re.ReplaceAllString(s, rule.placeholder)
	}
	return strings.Join(strings.Fields(s), " ")
}

// foldAccents removes combining diacritical marks after NFD normalization,
// so "café" and "cafe" share a template.
func foldAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Deduper groups a window's records by template pattern.
type Deduper struct{}

func New() *Deduper {
	return &Deduper{}
}

// Dedupe collapses the window's entries into templates. Counts sum to the
// window's entry count. Output is sorted by count descending; equal counts
// keep first-occurrence order.
func (d *Deduper) Dedupe(w model.Window) []model.Template {
	if len(w.Entries) == 0 {
		return nil
	}

	groups := make(map[string]int)
	order := make([]model.Template, 0)

	for _, e := range w.Entries {
		pattern := Mask(e.Record.Message)
		if idx, ok := groups[pattern]; ok {
			order[idx].Count++
			continue
		}
		groups[pattern] = len(order)
		order = append(order, model.Template{
			Pattern: pattern,
			Count:   1,
			Example: e.Record,
		})
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Count > order[j].Count
	})
	return order
}
