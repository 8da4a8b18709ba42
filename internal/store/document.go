// Package store owns the on-disk state of repoindex: the bleve/scorch
// chunk index, read access to its segments, and the sqlite metadata that
// makes rebuilds incremental.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Index field names.
const (
	FieldCorpus          = "corpus"
	FieldAttributes      = "attributes"
	FieldFilepath        = "filepath"
	FieldLanguage        = "language"
	FieldSearchableText  = "searchable_text"
	FieldEmbeddingTokens = "embedding_tokens"
)

// Attributes is the stored JSON blob of a chunk.
type Attributes struct {
	Filepath  string `json:"filepath"`
	Body      string `json:"body"`
	Language  string `json:"language"`
	StartLine *int   `json:"start_line,omitempty"`
	GitURL    string `json:"git_url"`
}

var requiredAttributes = []string{"filepath", "body", "language", "git_url"}

// ParseAttributes decodes a stored attributes blob. ok is false when the
// blob is not a JSON object or lacks a required key.
func ParseAttributes(blob string) (Attributes, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return Attributes{}, false
	}
	for _, k := range requiredAttributes {
		if _, ok := raw[k]; !ok {
			return Attributes{}, false
		}
	}
	var a Attributes
	if err := json.Unmarshal([]byte(blob), &a); err != nil {
		return Attributes{}, false
	}
	return a, true
}

// Document is one indexed chunk as bleve sees it.
type Document struct {
	ID              string `json:"-"`
	Corpus          string `json:"corpus"`
	Attributes      string `json:"attributes"`
	Filepath        string `json:"filepath"`
	Language        string `json:"language"`
	SearchableText  string `json:"searchable_text"`
	EmbeddingTokens string `json:"embedding_tokens,omitempty"`
}

// NewDocument builds the document for one chunk of corpus.
func NewDocument(id, corpus string, attrs Attributes, embeddingTokens []string) (Document, error) {
	blob, err := json.Marshal(attrs)
	if err != nil {
		return Document{}, fmt.Errorf("encode attributes for %s: %w", id, err)
	}
	return Document{
		ID:              id,
		Corpus:          corpus,
		Attributes:      string(blob),
		Filepath:        attrs.Filepath,
		Language:        attrs.Language,
		SearchableText:  attrs.Body,
		EmbeddingTokens: strings.Join(embeddingTokens, " "),
	}, nil
}

// ChunkID names the n-th chunk of path within corpus.
func ChunkID(corpus, path string, n int) string {
	return fmt.Sprintf("%s:%s#%d", corpus, path, n)
}
