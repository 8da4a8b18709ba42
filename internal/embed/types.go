// Package embed turns chunk text into embedding vectors.
//
// The index never stores raw vectors. Each vector is binarized into tokens
// (one per positive dimension) that live in a dedicated text field, so a
// nearest-neighbour lookup becomes a term query over those tokens.
package embed

import (
	"context"
	"fmt"
	"math"
)

// Provider names accepted in configuration.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
)

// DefaultDimensions is the vector size of the static embedder.
const DefaultDimensions = 256

// Embedder generates vector embeddings for text. Implementations are safe
// for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// BinaryTokens binarizes a vector: dimension i yields the token
// "embedding_<i>" when its value is positive.
func BinaryTokens(vec []float32) []string {
	out := make([]string, 0, len(vec)/2)
	for i, v := range vec {
		if v > 0 {
			out = append(out, TokenFor(i))
		}
	}
	return out
}

// TokenFor is the token of dimension i.
func TokenFor(i int) string {
	return fmt.Sprintf("embedding_%d", i)
}

func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
