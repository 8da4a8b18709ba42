// Package query answers read-only questions against the chunk index:
// corpus listings straight from segment postings, ranked full-text search
// with post-filters, fuzzy file lookup and index info.
//
// Queries take their own reader per call and never wait for builds, so
// they may observe a partially built index.
package query

// Limits of the query operations.
const (
	MaxDocuments     = 10
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultFileLimit = 20

	fileFuzziness = 2
)

// Document is one stored chunk as listed by Documents. Content is the
// JSON object of its stored fields.
type Document struct {
	Corpus  string `json:"corpus"`
	Content string `json:"content"`
}

// SearchRequest is a ranked search.
type SearchRequest struct {
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
	FilePath string `json:"filePath,omitempty"`
}

// Result is one search hit.
type Result struct {
	Filepath  string  `json:"filepath"`
	Body      string  `json:"body"`
	Language  string  `json:"language"`
	StartLine *int    `json:"startLine,omitempty"`
	GitURL    string  `json:"gitUrl"`
	Score     float64 `json:"score"`
}

// SearchResponse is the result of a ranked search. Total counts the
// returned results.
type SearchResponse struct {
	Results     []Result `json:"results"`
	Total       int      `json:"total"`
	QueryTimeMs int64    `json:"queryTimeMs"`
}

// Info describes the on-disk index.
type Info struct {
	NumSegments int   `json:"numSegments"`
	TotalBytes  int64 `json:"totalBytes"`
}
