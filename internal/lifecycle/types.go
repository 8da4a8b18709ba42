// Package lifecycle reports on the index and guards the operations that
// would change it wholesale. Delete, rebuild and batch builds are declared
// but not implemented; they fail with a NotImplemented error instead of
// pretending to succeed.
package lifecycle

import "time"

// StatusReady is the only status Status reports.
const StatusReady = "ready"

// Status describes the index as seen from one corpus.
type Status struct {
	IndexID       string     `json:"indexId"`
	Status        string     `json:"status"`
	DocumentCount uint64     `json:"documentCount"`
	SizeBytes     int64      `json:"sizeBytes"`
	LastUpdated   *time.Time `json:"lastUpdated"`
	Version       string     `json:"version"`
}

// BatchStatus is the aggregate state of a batch build.
type BatchStatus struct {
	BatchID        string `json:"batchId"`
	TotalTasks     int    `json:"totalTasks"`
	CompletedTasks int    `json:"completedTasks"`
	FailedTasks    int    `json:"failedTasks"`
	Status         string `json:"status"`
}

// IndexingConfig is the effective configuration new builds run with.
type IndexingConfig struct {
	MaxFileSizeKB      int      `json:"maxFileSizeKb"`
	MaxFileSizeKBLimit int      `json:"maxFileSizeKbLimit"`
	DefaultExclude     []string `json:"defaultExclude"`
	Include            []string `json:"include"`
	Exclude            []string `json:"exclude"`
	SupportedLanguages []string `json:"supportedLanguages"`
	SyntaxLanguages    []string `json:"syntaxLanguages"`
	ChunkStrategy      string   `json:"chunkStrategy"`
	ChunkMaxLines      int      `json:"chunkMaxLines"`
	ChunkOverlapLines  int      `json:"chunkOverlapLines"`
	EmbeddingProvider  string   `json:"embeddingProvider"`
	EmbeddingModel     string   `json:"embeddingModel"`
	EmbeddingDims      int      `json:"embeddingDimensions"`
	GitBackend         string   `json:"gitBackend"`
}

// Validation is the outcome of ValidateConfig.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}
