// Package retrieval selects the brochure passage that best matches a
// free-text question.
//
// Scoring is plain lexical overlap: a passage scores one point for each
// distinct query token that occurs anywhere in its lowercased text.
// Matching is substring based, so "fee" matches "Fees" (wanted) and also
// "coffee" (a known false positive). The passage with the strictly
// highest score wins; the earliest passage wins a tie. This is not
// semantic search and is kept deterministic so results are easy to test.
package retrieval

import (
	"sort"
	"strings"

	"github.com/n1dhiparate/admit-assist/internal/brochure"
)

// Result is the outcome of a retrieval. The zero value means no match.
type Result struct {
	Passage brochure.Passage
	Score   int
	found   bool
}

// Found reports whether a passage was selected.
func (r Result) Found() bool {
	return r.found
}

// Text returns the selected passage text, or "" for no match.
func (r Result) Text() string {
	if !r.found {
		return ""
	}
	return r.Passage.Text
}

// Tokens normalizes a query into its distinct lowercase whitespace
// separated tokens, sorted.
func Tokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	sort.Strings(tokens)
	return tokens
}

// Score counts the query tokens present in the passage.
func Score(tokens []string, p brochure.Passage) int {
	lower := p.Lower()
	n := 0
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}

// Retrieve returns the best passage for query in doc. A nil or empty
// document, an empty query, or a query sharing no tokens with any
// passage all produce a zero Result.
func Retrieve(query string, doc *brochure.Document) Result {
	tokens := Tokens(query)
	if len(tokens) == 0 || doc.Empty() {
		return Result{}
	}

	var best Result
	for _, p := range doc.Passages {
		score := Score(tokens, p)
		// Strictly greater: the first passage holding the maximum keeps it.
		if score > best.Score {
			best = Result{Passage: p, Score: score, found: true}
		}
	}
	return best
}
