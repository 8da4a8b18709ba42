package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Aman-CERP/repoindex/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

func TestLineChunker_WindowsWithOverlap(t *testing.T) {
	// Given: 25 lines, windows of 10 with 2 lines of overlap
	c := LineChunker{MaxLines: 10, Overlap: 2}

	// When: chunking
	chunks, err := c.Chunk(context.Background(), File{Path: "a.txt", Content: []byte(numbered(25))})

	// Then: windows start every 8 lines and the last one stops at the end
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 10, chunks[0].EndLine)
	assert.Equal(t, 9, chunks[1].StartLine)
	assert.Equal(t, 18, chunks[1].EndLine)
	assert.Equal(t, 17, chunks[2].StartLine)
	assert.Equal(t, 25, chunks[2].EndLine)
	assert.True(t, strings.HasPrefix(chunks[1].Body, "line 9\n"))
	assert.True(t, strings.HasSuffix(chunks[2].Body, "line 25"))
	assert.Equal(t, KindBlock, chunks[0].Kind)
}

func TestLineChunker_Defaults(t *testing.T) {
	chunks, err := LineChunker{}.Chunk(context.Background(), File{Content: []byte(numbered(DefaultMaxLines))})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, DefaultMaxLines, chunks[0].EndLine)
}

func TestLineChunker_SkipsBlankWindows(t *testing.T) {
	content := "a\nb\n" + strings.Repeat("\n", 10) + "c\n"
	c := LineChunker{MaxLines: 4}

	chunks, err := c.Chunk(context.Background(), File{Content: []byte(content)})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 13, chunks[1].StartLine)
	assert.Equal(t, "c", chunks[1].Body)
}

func TestLineChunker_EmptyAndCRLF(t *testing.T) {
	chunks, err := LineChunker{}.Chunk(context.Background(), File{})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = LineChunker{}.Chunk(context.Background(), File{Content: []byte("a\r\nb\r\n")})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a\nb", chunks[0].Body)
	assert.Equal(t, 2, chunks[0].EndLine)
}

const goSource = `package demo

import "fmt"

// Greet says hello.
func Greet(name string) string {
	return fmt.Sprintf("hello %s", name)
}

type Server struct {
	addr string
}

func (s *Server) Addr() string {
	return s.addr
}
`

func TestSyntaxChunker_GoDeclarations(t *testing.T) {
	// Given: a Go file with a function, a type and a method
	c := NewSyntaxChunker(LineChunker{MaxLines: 40})

	// When: chunking it
	chunks, err := c.Chunk(context.Background(), File{Path: "demo.go", Language: "go", Content: []byte(goSource)})

	// Then: the preamble is a block and each declaration is its own chunk
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, KindBlock, chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Contains(t, chunks[0].Body, `import "fmt"`)

	assert.Equal(t, "Greet", chunks[1].Symbol)
	assert.Equal(t, KindFunction, chunks[1].Kind)
	assert.Equal(t, 5, chunks[1].StartLine, "leading comment is attached")
	assert.Equal(t, 8, chunks[1].EndLine)
	assert.True(t, strings.HasPrefix(chunks[1].Body, "// Greet says hello."))

	assert.Equal(t, "Server", chunks[2].Symbol)
	assert.Equal(t, KindType, chunks[2].Kind)

	assert.Equal(t, "Addr", chunks[3].Symbol)
	assert.Equal(t, KindMethod, chunks[3].Kind)
	assert.Equal(t, 16, chunks[3].EndLine)
}

func TestSyntaxChunker_SplitsLongDeclarations(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("package demo\n\nfunc Long() {\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "\t_ = %d\n", i)
	}
	sb.WriteString("}\n")
	c := NewSyntaxChunker(LineChunker{MaxLines: 10})

	chunks, err := c.Chunk(context.Background(), File{Path: "long.go", Language: "go", Content: []byte(sb.String())})

	require.NoError(t, err)
	require.Greater(t, len(chunks), 3)
	for _, ch := range chunks[1:] {
		assert.Equal(t, "Long", ch.Symbol)
		assert.LessOrEqual(t, ch.EndLine-ch.StartLine+1, 10)
	}
	assert.Equal(t, 34, chunks[len(chunks)-1].EndLine)
}

func TestSyntaxChunker_Python(t *testing.T) {
	src := "import os\n\n@cache\ndef load(path):\n    return os.path.exists(path)\n\nclass Repo:\n    pass\n"
	c := NewSyntaxChunker(LineChunker{})

	chunks, err := c.Chunk(context.Background(), File{Path: "repo.py", Language: "python", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "load", chunks[1].Symbol)
	assert.Equal(t, 3, chunks[1].StartLine, "decorator belongs to the function")
	assert.Equal(t, "Repo", chunks[2].Symbol)
	assert.Equal(t, KindClass, chunks[2].Kind)
}

func TestSyntaxChunker_TypeScriptExports(t *testing.T) {
	src := "export interface User {\n  id: string\n}\n\nexport function load(id: string): User {\n  return { id }\n}\n"
	c := NewSyntaxChunker(LineChunker{})

	chunks, err := c.Chunk(context.Background(), File{Path: "user.ts", Language: "typescript", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "User", chunks[0].Symbol)
	assert.Equal(t, KindInterface, chunks[0].Kind)
	assert.Equal(t, "load", chunks[1].Symbol)
}

func TestSyntaxChunker_RustItems(t *testing.T) {
	src := "use std::fmt;\n\n/// A point.\n#[derive(Debug)]\nstruct Point { x: i32 }\n\nimpl Point {\n    fn x(&self) -> i32 { self.x }\n}\n\nfn main() {}\n"
	c := NewSyntaxChunker(LineChunker{})

	chunks, err := c.Chunk(context.Background(), File{Path: "src/main.rs", Language: "rust", Content: []byte(src)})

	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, "Point", chunks[1].Symbol)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, "Point", chunks[2].Symbol)
	assert.Equal(t, KindClass, chunks[2].Kind)
	assert.Equal(t, "main", chunks[3].Symbol)
}

func TestSyntaxChunker_FallsBackToLines(t *testing.T) {
	c := NewSyntaxChunker(LineChunker{MaxLines: 5})

	chunks, err := c.Chunk(context.Background(), File{Path: "notes.md", Language: "markdown", Content: []byte(numbered(12))})

	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, KindBlock, chunks[0].Kind)
	assert.Empty(t, chunks[0].Symbol)
}

func TestSyntaxChunker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSyntaxChunker(LineChunker{}).Chunk(ctx, File{Path: "a.go", Language: "go", Content: []byte(goSource)})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_PicksStrategy(t *testing.T) {
	_, isLines := New(config.ChunkConfig{Strategy: config.ChunkStrategyLines, MaxLines: 10}).(LineChunker)
	assert.True(t, isLines)

	_, isSyntax := New(config.ChunkConfig{Strategy: config.ChunkStrategySyntax, MaxLines: 10}).(*SyntaxChunker)
	assert.True(t, isSyntax)
}

func TestGrammarFor(t *testing.T) {
	g, ok := GrammarFor("typescript", "web/App.tsx")
	require.True(t, ok)
	assert.Equal(t, "tsx", g.Name)

	g, ok = GrammarFor("typescript", "web/app.ts")
	require.True(t, ok)
	assert.Equal(t, "typescript", g.Name)

	_, ok = GrammarFor("markdown", "README.md")
	assert.False(t, ok)
}
