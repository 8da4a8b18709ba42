package store

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
)

// NewMapping returns the chunk index mapping. Unknown fields are ignored;
// unqualified query terms go to searchable_text.
func NewMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	analyzers := map[string]map[string]interface{}{
		CodeAnalyzerName: {
			"type":          custom.Name,
			"tokenizer":     CodeTokenizerName,
			"token_filters": []string{lowercase.Name, CodeStopFilterName},
		},
		PathAnalyzerName: {
			"type":          custom.Name,
			"tokenizer":     CodeTokenizerName,
			"token_filters": []string{lowercase.Name},
		},
		EmbeddingAnalyzerName: {
			"type":      custom.Name,
			"tokenizer": whitespace.Name,
		},
	}
	for name, def := range analyzers {
		if err := im.AddCustomAnalyzer(name, def); err != nil {
			return nil, fmt.Errorf("failed to add analyzer %s: %w", name, err)
		}
	}

	corpus := bleve.NewKeywordFieldMapping()
	corpus.Store = true
	corpus.IncludeInAll = false

	attributes := bleve.NewTextFieldMapping()
	attributes.Index = false
	attributes.Store = true
	attributes.IncludeInAll = false
	attributes.IncludeTermVectors = false
	attributes.DocValues = false

	path := bleve.NewTextFieldMapping()
	path.Analyzer = PathAnalyzerName
	path.Store = false
	path.IncludeInAll = false

	language := bleve.NewKeywordFieldMapping()
	language.Store = true
	language.IncludeInAll = false

	text := bleve.NewTextFieldMapping()
	text.Analyzer = CodeAnalyzerName
	text.Store = false

	embedding := bleve.NewTextFieldMapping()
	embedding.Analyzer = EmbeddingAnalyzerName
	embedding.Store = false
	embedding.IncludeInAll = false
	embedding.IncludeTermVectors = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(FieldCorpus, corpus)
	doc.AddFieldMappingsAt(FieldAttributes, attributes)
	doc.AddFieldMappingsAt(FieldFilepath, path)
	doc.AddFieldMappingsAt(FieldLanguage, language)
	doc.AddFieldMappingsAt(FieldSearchableText, text)
	doc.AddFieldMappingsAt(FieldEmbeddingTokens, embedding)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = CodeAnalyzerName
	im.DefaultField = FieldSearchableText
	return im, nil
}
