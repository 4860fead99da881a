package storage

import (
	"strings"
	"unicode"

	"github.com/kgraphdb/kgraph/pkg/graph"
)

// Full-text index over node text fields. Tokens from the node name carry a
// higher posting weight than tokens from purpose, pattern descriptions, or
// documentation, so name matches rank first at query time.
//
// The index is not internally locked; it is owned by a Store and mutated only
// under the store's write lock.

const (
	weightName = 2.0
	weightText = 1.0
)

// fuzzyEditBudget returns the edit-distance threshold for a query token.
// Short tokens tolerate one edit, longer ones two.
func fuzzyEditBudget(token string) int {
	if len([]rune(token)) < 6 {
		return 1
	}
	return 2
}

type fulltextIndex struct {
	// postings: token -> node -> accumulated field weight
	postings map[string]map[graph.NodeID]float64

	// docTokens remembers each node's tokens so removal needs no re-tokenize
	// of stale text.
	docTokens map[graph.NodeID][]string
}

func newFulltextIndex() *fulltextIndex {
	return &fulltextIndex{
		postings:  make(map[string]map[graph.NodeID]float64),
		docTokens: make(map[graph.NodeID][]string),
	}
}

// index adds a node's text fields, replacing any previous entry for the ID.
func (f *fulltextIndex) index(n *graph.Node) {
	f.remove(n.ID)

	weights := make(map[string]float64)
	accumulate := func(text string, weight float64) {
		for _, token := range tokenize(text) {
			weights[token] += weight
		}
	}

	accumulate(n.Name, weightName)
	accumulate(n.Metadata.Documentation, weightText)
	if n.Semantics != nil {
		accumulate(n.Semantics.Purpose, weightText)
		for _, p := range n.Semantics.Patterns {
			accumulate(p.Description, weightText)
		}
	}

	if len(weights) == 0 {
		return
	}

	tokens := make([]string, 0, len(weights))
	for token, weight := range weights {
		tokens = append(tokens, token)
		if f.postings[token] == nil {
			f.postings[token] = make(map[graph.NodeID]float64)
		}
		f.postings[token][n.ID] = weight
	}
	f.docTokens[n.ID] = tokens
}

// remove drops a node from the index. Unknown IDs are a no-op.
func (f *fulltextIndex) remove(id graph.NodeID) {
	tokens, ok := f.docTokens[id]
	if !ok {
		return
	}
	for _, token := range tokens {
		if docs, ok := f.postings[token]; ok {
			delete(docs, id)
			if len(docs) == 0 {
				delete(f.postings, token)
			}
		}
	}
	delete(f.docTokens, id)
}

// lookup scores nodes against the query tokens. With fuzzy disabled only
// exact token matches contribute. With fuzzy enabled, index terms within the
// edit budget also contribute, down-weighted by edit distance so exact
// matches always outrank approximations of the same token.
func (f *fulltextIndex) lookup(tokens []string, fuzzy bool) map[graph.NodeID]float64 {
	scores := make(map[graph.NodeID]float64)

	for _, token := range tokens {
		if docs, ok := f.postings[token]; ok {
			for id, weight := range docs {
				scores[id] += weight
			}
		}

		if !fuzzy {
			continue
		}

		budget := fuzzyEditBudget(token)
		for term, docs := range f.postings {
			if term == token {
				continue
			}
			dist := boundedEditDistance(token, term, budget)
			if dist < 0 {
				continue
			}
			penalty := 1.0 / float64(1+dist)
			for id, weight := range docs {
				scores[id] += weight * penalty
			}
		}
	}

	return scores
}

// tokenize lowercases, splits on non-alphanumerics, and drops single-rune
// tokens and stop words.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})

	var tokens []string
	for _, word := range words {
		if len(word) < 2 || stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// Minimal stop word list; domain terms are deliberately not filtered.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"to": true, "was": true, "were": true, "with": true, "this": true,
}

// boundedEditDistance computes Levenshtein distance between a and b, giving
// up once the distance must exceed max. Returns -1 when over budget.
func boundedEditDistance(a, b string, max int) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la-lb > max || lb-la > max {
		return -1
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return -1
		}
		prev, curr = curr, prev
	}

	if prev[lb] > max {
		return -1
	}
	return prev[lb]
}
