// Package query turns a natural-language incident question into the
// structured form the relevance scorer consumes: service mentions (expanded
// through a synonym table), quoted phrases, route and status tokens, and
// residual keywords.
package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

var (
	quotedRE = regexp.MustCompile(`"([^"]+)"`)
	routeRE  = regexp.MustCompile(`(/[\w\-./]+)`)
	statusRE = regexp.MustCompile(`\b([45]\d{2})\b`)
)

// Query is the parsed form of a user question. All text is lowercased.
type Query struct {
	Raw      string
	Services []string // expanded synonym terms for every mentioned service group, sorted
	Phrases  []string // quoted phrases and route tokens, in appearance order
	Statuses []int    // HTTP status codes mentioned, ascending
	Keywords []string // residual terms, in appearance order
}

// Empty reports whether parsing extracted nothing usable.
func (q Query) Empty() bool {
	return len(q.Services) == 0 && len(q.Phrases) == 0 && len(q.Statuses) == 0 && len(q.Keywords) == 0
}

// Parser holds the synonym and stopword tables. Safe for concurrent use
// once constructed.
type Parser struct {
	groups    []group
	stopwords map[string]struct{}
}

type group struct {
	canonical string
	terms     []string
}

// New builds a Parser. Synonym groups map a canonical service name to the
// terms that should trigger it; stopwords are dropped from keywords.
func New(synonyms map[string][]string, stopwords []string) *Parser {
	p := &Parser{stopwords: make(map[string]struct{}, len(stopwords))}
	for _, w := range stopwords {
		p.stopwords[strings.ToLower(w)] = struct{}{}
	}

	canonicals := make([]string, 0, len(synonyms))
	for c := range synonyms {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)
	for _, c := range canonicals {
		terms := make([]string, 0, len(synonyms[c]))
		for _, t := range synonyms[c] {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				terms = append(terms, t)
			}
		}
		sort.Strings(terms)
		p.groups = append(p.groups, group{canonical: strings.ToLower(c), terms: terms})
	}
	return p
}

// Parse extracts the structured query. Deterministic: the same input always
// produces the same Query, field by field.
func (p *Parser) Parse(raw string) Query {
	q := Query{Raw: raw}
	lower := strings.ToLower(raw)

	for _, m := range quotedRE.FindAllStringSubmatch(lower, -1) {
		if phrase := strings.TrimSpace(m[1]); phrase != "" {
			q.Phrases = appendUnique(q.Phrases, phrase)
		}
	}
	for _, m := range routeRE.FindAllStringSubmatch(lower, -1) {
		q.Phrases = appendUnique(q.Phrases, m[1])
	}

	seenStatus := map[int]bool{}
	for _, m := range statusRE.FindAllStringSubmatch(lower, -1) {
		code, _ := strconv.Atoi(m[1])
		if !seenStatus[code] {
			seenStatus[code] = true
			q.Statuses = append(q.Statuses, code)
		}
	}
	sort.Ints(q.Statuses)

	tokens := tokenize(lower)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}

	for _, g := range p.groups {
		for _, term := range g.terms {
			if _, ok := tokenSet[term]; ok {
				for _, t := range g.terms {
					q.Services = appendUnique(q.Services, t)
				}
				break
			}
		}
	}
	sort.Strings(q.Services)

	for _, tok := range tokens {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := p.stopwords[tok]; stop {
			continue
		}
		if isDigits(tok) {
			continue
		}
		q.Keywords = appendUnique(q.Keywords, tok)
	}

	return q
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
