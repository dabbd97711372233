// Package retrieval searches a single authoritative website. Pages outside
// the configured site prefix are never fetched or returned.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

const DefaultSite = "https://www.hdb.gov.sg/cs/infoweb"

var ErrNotFound = errors.New("no relevant passages found")

// Searcher is the retrieval collaborator used by the research stage.
type Searcher interface {
	Search(ctx context.Context, query string) (*Findings, error)
	Site() string
}

type Passage struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type Findings struct {
	Query    string    `json:"query"`
	Passages []Passage `json:"passages"`
}

// Sources lists the distinct passage URLs in rank order.
func (f *Findings) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range f.Passages {
		if !seen[p.URL] {
			seen[p.URL] = true
			out = append(out, p.URL)
		}
	}
	return out
}

// Text renders the passages as stage context.
func (f *Findings) Text() string {
	var b strings.Builder
	for i, p := range f.Passages {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, p.Title, p.URL, p.Text)
	}
	return strings.TrimSpace(b.String())
}

// index ranks passages with a small BM25 over the crawled pages.
type index struct {
	passages []Passage
	terms    []map[string]int
	lengths  []int
	df       map[string]int
	avgLen   float64
}

func newIndex(passages []Passage) *index {
	idx := &index{passages: passages, df: make(map[string]int)}
	total := 0
	for _, p := range passages {
		toks := tokenize(p.Title + " " + p.Text)
		tf := make(map[string]int)
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			idx.df[t]++
		}
		idx.terms = append(idx.terms, tf)
		idx.lengths = append(idx.lengths, len(toks))
		total += len(toks)
	}
	if len(passages) > 0 {
		idx.avgLen = float64(total) / float64(len(passages))
	}
	return idx
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

func (idx *index) search(query string, limit int) []Passage {
	qterms := tokenize(query)
	if len(qterms) == 0 || len(idx.passages) == 0 {
		return nil
	}

	n := float64(len(idx.passages))
	var hits []Passage
	for i, p := range idx.passages {
		score := 0.0
		for _, t := range qterms {
			tf := float64(idx.terms[i][t])
			if tf == 0 {
				continue
			}
			df := float64(idx.df[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(idx.lengths[i])/idx.avgLen))
			score += idf * norm
		}
		if score > 0 {
			p.Score = score
			hits = append(hits, p)
		}
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "am": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true, "from": true,
	"how": true, "i": true, "if": true, "in": true, "is": true, "it": true, "me": true,
	"my": true, "of": true, "on": true, "or": true, "the": true, "to": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "will": true, "with": true,
	"you": true, "your": true, "we": true, "our": true, "this": true, "that": true,
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if !stopwords[f] {
			out = append(out, stem(f))
		}
	}
	return out
}

// stem folds simple plurals so "grants" matches "grant".
func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}
