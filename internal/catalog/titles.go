package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// TitleHit is one title search result.
type TitleHit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// TitleIndex is a Bleve full-text index over instruction titles and tags, used to look
// instructions up by name.
type TitleIndex struct {
	index     bleve.Index
	fuzziness int
}

// NewTitleIndex creates or opens a Bleve index at path. An existing index is reused; if the
// mapping changes, remove the directory so titles are re-indexed.
func NewTitleIndex(path string) (*TitleIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open title index: %w", openErr)
		}
		return &TitleIndex{index: index, fuzziness: 2}, nil
	}

	index, err := bleve.New(path, titleMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create title index: %w", err)
	}
	return &TitleIndex{index: index, fuzziness: 2}, nil
}

func titleMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// No stemming: Russian titles must match on whole lowercase words.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	im.AddDocumentMapping("instruction", docMapping)
	im.DefaultType = "instruction"
	im.DefaultMapping = docMapping
	return im
}

// Index adds or replaces the title entry for an instruction.
func (t *TitleIndex) Index(id, title string, tags []string) error {
	return t.index.Index(id, map[string]interface{}{
		"title": title,
		"tags":  strings.Join(tags, " "),
	})
}

// Delete removes an instruction from the index.
func (t *TitleIndex) Delete(id string) error {
	return t.index.Delete(id)
}

// Search matches query against titles and tags. When the exact match finds nothing, a fuzzy
// query tolerates typos in each term.
func (t *TitleIndex) Search(query string, limit int) ([]*TitleHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return nil, nil
	}
	hits, err := t.run(bleve.NewMatchQuery(query), limit)
	if err != nil || len(hits) > 0 {
		return hits, err
	}
	return t.run(t.fuzzyQuery(query), limit)
}

func (t *TitleIndex) run(q blevequery.Query, limit int) ([]*TitleHit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := t.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("title search failed: %w", err)
	}
	out := make([]*TitleHit, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &TitleHit{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (t *TitleIndex) fuzzyQuery(query string) blevequery.Query {
	terms := strings.Fields(strings.ToLower(query))
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(t.fuzziness)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed titles.
func (t *TitleIndex) DocCount() (uint64, error) {
	return t.index.DocCount()
}

// Close closes the index.
func (t *TitleIndex) Close() error {
	return t.index.Close()
}
