package store

import (
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// CodeTokenizerName splits identifiers at underscores and case changes.
	CodeTokenizerName = "code_tokenizer"

	// CodeStopFilterName drops keywords that appear in nearly every chunk.
	CodeStopFilterName = "code_stop"

	// CodeAnalyzerName analyzes chunk bodies.
	CodeAnalyzerName = "code_analyzer"

	// PathAnalyzerName analyzes file paths for fuzzy lookup. It has no
	// stop filter: "data/key.go" must keep both directory and file tokens.
	PathAnalyzerName = "path_analyzer"

	// EmbeddingAnalyzerName keeps whitespace-separated embedding tokens as is.
	EmbeddingAnalyzerName = "embedding_analyzer"

	minTokenLen = 2
)

// DefaultCodeStopWords are keywords too common in source code to rank on.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

func init() {
	_ = registry.RegisterTokenizer(CodeTokenizerName,
		func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
			return codeTokenizer{}, nil
		})
	_ = registry.RegisterTokenFilter(CodeStopFilterName,
		func(map[string]interface{}, *registry.Cache) (analysis.TokenFilter, error) {
			return stopFilter{words: stopWordSet(DefaultCodeStopWords)}, nil
		})
}

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

type span struct{ start, end int }

// codeSpans returns the byte ranges of identifier parts in text. Words are
// cut at underscores and at camelCase boundaries; acronyms stay whole, so
// "parseHTTPRequest" yields parse, HTTP, Request.
func codeSpans(text string) []span {
	var out []span
	for _, m := range wordPattern.FindAllStringIndex(text, -1) {
		start := m[0]
		for i := m[0]; i <= m[1]; i++ {
			if i == m[1] || text[i] == '_' {
				out = appendCamelSpans(out, text, start, i)
				start = i + 1
			}
		}
	}
	return out
}

func appendCamelSpans(out []span, text string, start, end int) []span {
	if start >= end {
		return out
	}
	cut := start
	for i := start + 1; i < end; i++ {
		if !isUpper(text[i]) {
			continue
		}
		prevLower := isLower(text[i-1])
		nextLower := i+1 < end && isLower(text[i+1])
		if prevLower || nextLower {
			out = append(out, span{cut, i})
			cut = i
		}
	}
	return append(out, span{cut, end})
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

// TokenizeCode returns the lowercased identifier parts of text, dropping
// parts shorter than two characters.
func TokenizeCode(text string) []string {
	spans := codeSpans(text)
	tokens := make([]string, 0, len(spans))
	for _, s := range spans {
		if s.end-s.start < minTokenLen {
			continue
		}
		tokens = append(tokens, strings.ToLower(text[s.start:s.end]))
	}
	return tokens
}

// codeTokenizer is the bleve face of codeSpans. Terms keep their case; the
// analyzer lowercases them.
type codeTokenizer struct{}

func (codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	spans := codeSpans(text)
	stream := make(analysis.TokenStream, 0, len(spans))
	pos := 1
	for _, s := range spans {
		if s.end-s.start < minTokenLen {
			continue
		}
		stream = append(stream, &analysis.Token{
			Term:     input[s.start:s.end],
			Start:    s.start,
			End:      s.end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return stream
}

type stopFilter struct {
	words map[string]struct{}
}

func (f stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := input[:0]
	for _, tok := range input {
		if _, stop := f.words[strings.ToLower(string(tok.Term))]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

func stopWordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
