package embed

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/Aman-CERP/repoindex/internal/store"
)

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var errClosed = errors.New("embedder is closed")

// StaticEmbedder hashes identifiers and character trigrams into a fixed
// number of buckets. It needs no model and no network, and it gives the
// same vector for the same text on every machine.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder returns a static embedder with dims dimensions (zero
// means DefaultDimensions).
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

var _ Embedder = (*StaticEmbedder)(nil)

// Embed implements Embedder. Blank text embeds to the zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *StaticEmbedder) check(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errClosed
	}
	return ctx.Err()
}

func (e *StaticEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	if strings.TrimSpace(text) == "" {
		return v
	}
	for _, tok := range store.TokenizeCode(text) {
		v[bucket(tok, e.dims)] += tokenWeight
	}
	for _, g := range trigrams(text) {
		v[bucket(g, e.dims)] += ngramWeight
	}
	return normalizeVector(v)
}

func trigrams(text string) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	s := []rune(sb.String())
	if len(s) < ngramSize {
		return nil
	}
	out := make([]string, 0, len(s)-ngramSize+1)
	for i := 0; i+ngramSize <= len(s); i++ {
		out = append(out, string(s[i:i+ngramSize]))
	}
	return out
}

func bucket(s string, n int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(n))
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string { return ProviderStatic }

// Close implements Embedder.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
