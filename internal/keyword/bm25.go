package keyword

import (
	"math"
	"sort"
)

// BM25Index is an immutable Okapi BM25 snapshot over a corpus. Safe for concurrent reads.
type BM25Index struct {
	params     Params
	ids        []string
	termFreqs  []map[string]int
	docLens    []int
	docFreq    map[string]int
	idf        map[string]float64
	avgDocLen  float64
	generation uint64
}

// NewBM25Index tokenizes docs and computes term statistics. Zero-valued params fall back to defaults.
func NewBM25Index(docs []Document, params Params) *BM25Index {
	if params.K1 <= 0 {
		params.K1 = DefaultParams().K1
	}
	if params.B < 0 || params.B > 1 {
		params.B = DefaultParams().B
	}
	idx := &BM25Index{
		params:    params,
		ids:       make([]string, len(docs)),
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		docFreq:   make(map[string]int),
	}
	total := 0
	for i, d := range docs {
		tokens := Tokenize(d.Text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			idx.docFreq[term]++
		}
		idx.ids[i] = d.ID
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		total += len(tokens)
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}
	n := float64(len(docs))
	idx.idf = make(map[string]float64, len(idx.docFreq))
	for term, df := range idx.docFreq {
		idx.idf[term] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
	}
	return idx
}

// Len returns the number of documents in the snapshot.
func (idx *BM25Index) Len() int { return len(idx.ids) }

// Generation returns the store generation this snapshot was built from.
func (idx *BM25Index) Generation() uint64 { return idx.generation }

// IDF returns the inverse document frequency of term, or 0 when the term is unknown.
func (idx *BM25Index) IDF(term string) float64 { return idx.idf[term] }

// Score returns every document with a positive score for query, strongest first.
// Equal scores keep corpus order.
func (idx *BM25Index) Score(query string) []*KeywordResult {
	terms := Tokenize(query)
	if len(terms) == 0 || len(idx.ids) == 0 {
		return nil
	}
	k1, b := idx.params.K1, idx.params.B
	results := make([]*KeywordResult, 0)
	for i, tf := range idx.termFreqs {
		norm := 1.0
		if idx.avgDocLen > 0 {
			norm = 1 - b + b*float64(idx.docLens[i])/idx.avgDocLen
		}
		score := 0.0
		for _, term := range terms {
			f, ok := tf[term]
			if !ok {
				continue
			}
			freq := float64(f)
			score += idx.idf[term] * freq * (k1 + 1) / (freq + k1*norm)
		}
		if score > 0 {
			results = append(results, &KeywordResult{ID: idx.ids[i], Score: score})
		}
	}
	sort.SliceStable(results, func(a, c int) bool {
		return results[a].Score > results[c].Score
	})
	return results
}

// GetAllTerms implements TermDictionary.
func (idx *BM25Index) GetAllTerms() ([]string, error) {
	terms := make([]string, 0, len(idx.docFreq))
	for term := range idx.docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms, nil
}

// GetTermFrequency implements TermDictionary.
func (idx *BM25Index) GetTermFrequency(term string) (int, error) {
	return idx.docFreq[term], nil
}

// ContainsTerm implements TermDictionary.
func (idx *BM25Index) ContainsTerm(term string) (bool, error) {
	_, ok := idx.docFreq[term]
	return ok, nil
}

// Score builds a one-off index over corpus and scores query against it.
func Score(query string, corpus []Document, params Params) []*KeywordResult {
	return NewBM25Index(corpus, params).Score(query)
}
