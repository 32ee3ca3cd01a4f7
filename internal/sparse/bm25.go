// Package sparse implements an in-memory BM25 index for lexical retrieval.
//
// The index is built once from a fixed corpus and is immutable during query
// serving, which makes concurrent reads safe without locking. Each retriever
// owns its index instance; there is no package-level state.
package sparse

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultK1 is the term frequency saturation parameter.
	DefaultK1 = 1.5

	// DefaultB is the document length normalization parameter.
	DefaultB = 0.75
)

var tokenPattern = regexp.MustCompile(`\w+`)

// Tokenize splits text into lowercase word tokens on non-alphanumeric
// boundaries. The same function is used for indexing and querying.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Result is a single document hit with its accumulated BM25 score.
type Result struct {
	DocID string
	Score float64
}

// Index is an in-memory BM25 index over a fixed document corpus.
type Index struct {
	k1 float64
	b  float64

	documents  map[string][]string // doc_id -> tokens
	docLengths map[string]int
	docOrder   map[string]int // doc_id -> insertion position, for stable ties
	order      []string       // doc ids in insertion order

	avgDocLength float64
	totalLength  int

	docFreqs      map[string]int             // term -> number of docs containing it
	invertedIndex map[string]map[string]bool // term -> doc ids containing it
}

// NewIndex creates an empty BM25 index with the given tuning parameters.
// Non-positive k1 and negative b fall back to the defaults. b = 0 is a
// valid setting: it turns document length normalization off entirely.
func NewIndex(k1, b float64) *Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 {
		b = DefaultB
	}
	return &Index{
		k1:            k1,
		b:             b,
		documents:     make(map[string][]string),
		docLengths:    make(map[string]int),
		docOrder:      make(map[string]int),
		docFreqs:      make(map[string]int),
		invertedIndex: make(map[string]map[string]bool),
	}
}

// Add indexes a document under docID. Callers must build the index from a
// deduplicated source; adding the same docID twice is not supported.
func (idx *Index) Add(docID, text string) {
	tokens := Tokenize(text)

	idx.docOrder[docID] = len(idx.order)
	idx.order = append(idx.order, docID)
	idx.documents[docID] = tokens
	idx.docLengths[docID] = len(tokens)
	idx.totalLength += len(tokens)

	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		if seen[token] {
			continue
		}
		seen[token] = true
		idx.docFreqs[token]++
		postings := idx.invertedIndex[token]
		if postings == nil {
			postings = make(map[string]bool)
			idx.invertedIndex[token] = postings
		}
		postings[docID] = true
	}

	idx.avgDocLength = float64(idx.totalLength) / float64(len(idx.order))
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	return len(idx.order)
}

// idf computes the inverse document frequency for a term. Terms absent from
// the corpus contribute zero.
func (idx *Index) idf(term string) float64 {
	df := idx.docFreqs[term]
	if df == 0 {
		return 0
	}
	n := float64(len(idx.order))
	return math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1)
}

// Search returns the topK best-matching documents for the query, sorted by
// descending BM25 score with ties broken by insertion order. Documents
// matching no query token are never returned. Searching an empty index
// returns nil.
func (idx *Index) Search(query string, topK int) []Result {
	if len(idx.order) == 0 || idx.avgDocLength == 0 {
		return nil
	}

	scores := make(map[string]float64)

	for _, token := range Tokenize(query) {
		postings, ok := idx.invertedIndex[token]
		if !ok {
			continue
		}

		tokenIDF := idx.idf(token)

		for docID := range postings {
			tf := 0
			for _, t := range idx.documents[docID] {
				if t == token {
					tf++
				}
			}
			docLen := float64(idx.docLengths[docID])

			numerator := float64(tf) * (idx.k1 + 1)
			denominator := float64(tf) + idx.k1*(1-idx.b+idx.b*docLen/idx.avgDocLength)
			scores[docID] += tokenIDF * numerator / denominator
		}
	}

	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		results = append(results, Result{DocID: docID, Score: score})
	}

	// Insertion order first so the stable sort breaks score ties
	// deterministically.
	sort.Slice(results, func(i, j int) bool {
		return idx.docOrder[results[i].DocID] < idx.docOrder[results[j].DocID]
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
