// Package chunk splits source files into the chunks stored in the index.
//
// Two strategies exist. LineChunker cuts fixed windows of lines with some
// overlap. SyntaxChunker parses the file with tree-sitter and keeps each
// top-level declaration in a chunk of its own, falling back to line windows
// for the code between declarations and for languages it cannot parse.
package chunk

import (
	"context"

	"github.com/Aman-CERP/repoindex/internal/config"
)

// Defaults used when a chunker is built with zero values.
const (
	DefaultMaxLines     = 60
	DefaultOverlapLines = 10
)

// Kind is the kind of declaration a chunk holds.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindType      Kind = "type"
	KindConstant  Kind = "constant"
	KindVariable  Kind = "variable"
	KindModule    Kind = "module"

	// KindBlock is a window of lines that is not a single declaration.
	KindBlock Kind = "block"
)

// Chunk is a contiguous slice of a file.
type Chunk struct {
	StartLine int // 1-indexed
	EndLine   int // inclusive
	Body      string
	Symbol    string
	Kind      Kind
}

// File is the input of a chunker.
type File struct {
	Path     string
	Language string
	Content  []byte
}

// Chunker splits a file into chunks. Chunks are returned in line order and
// never contain whitespace-only bodies.
type Chunker interface {
	Chunk(ctx context.Context, f File) ([]Chunk, error)
}

// New returns the chunker selected by cfg.
func New(cfg config.ChunkConfig) Chunker {
	lines := LineChunker{MaxLines: cfg.MaxLines, Overlap: cfg.OverlapLines}
	if cfg.Strategy == config.ChunkStrategyLines {
		return lines
	}
	return NewSyntaxChunker(lines)
}
