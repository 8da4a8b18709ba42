package chunk

import (
	"context"
	"log/slog"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// SyntaxChunker keeps each top-level declaration in its own chunk. Code
// between declarations, declarations longer than the window and files in
// languages without a grammar go through the line chunker.
type SyntaxChunker struct {
	lines   LineChunker
	parsers sync.Pool
}

// NewSyntaxChunker returns a SyntaxChunker that falls back to lines.
func NewSyntaxChunker(lines LineChunker) *SyntaxChunker {
	return &SyntaxChunker{
		lines:   lines,
		parsers: sync.Pool{New: func() any { return sitter.NewParser() }},
	}
}

// declaration is a top-level declaration, with the 0-indexed rows it covers.
type declaration struct {
	first, last int
	symbol      string
	kind        Kind
}

// Chunk implements Chunker.
func (c *SyntaxChunker) Chunk(ctx context.Context, f File) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grammar, ok := GrammarFor(f.Language, f.Path)
	if !ok || len(f.Content) == 0 {
		return c.lines.Chunk(ctx, f)
	}

	decls, err := c.declarations(ctx, grammar, f.Content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("chunk_parse_fallback", slog.String("path", f.Path), slog.String("error", err.Error()))
		return c.lines.Chunk(ctx, f)
	}

	lines := splitLines(string(f.Content))

	var out []Chunk
	cursor := 0
	for _, d := range decls {
		if d.first < cursor {
			continue
		}
		if d.first >= len(lines) {
			break
		}
		if d.last >= len(lines) {
			d.last = len(lines) - 1
		}
		if d.first > cursor {
			out = append(out, c.lines.window(lines[cursor:d.first], cursor+1, "", KindBlock)...)
		}
		// A declaration longer than the window is split, keeping its symbol.
		out = append(out, c.lines.window(lines[d.first:d.last+1], d.first+1, d.symbol, d.kind)...)
		cursor = d.last + 1
	}
	if cursor < len(lines) {
		out = append(out, c.lines.window(lines[cursor:], cursor+1, "", KindBlock)...)
	}
	return out, nil
}

func (c *SyntaxChunker) declarations(ctx context.Context, g *Grammar, src []byte) ([]declaration, error) {
	parser := c.parsers.Get().(*sitter.Parser)
	defer c.parsers.Put(parser)

	parser.SetLanguage(g.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	var (
		decls   []declaration
		leading = -1
	)
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		if n == nil {
			continue
		}
		if g.Leading[n.Type()] {
			if leading < 0 {
				leading = int(n.StartPoint().Row)
			}
			continue
		}

		inner := n
		if field, ok := g.Wrappers[n.Type()]; ok {
			if d := n.ChildByFieldName(field); d != nil {
				inner = d
			}
		}
		kind, ok := g.Declarations[inner.Type()]
		if !ok {
			leading = -1
			continue
		}

		first := int(n.StartPoint().Row)
		if leading >= 0 {
			first = leading
		}
		leading = -1
		decls = append(decls, declaration{
			first:  first,
			last:   lastRow(n),
			symbol: symbolName(inner, src),
			kind:   kind,
		})
	}
	return decls, nil
}

// lastRow is the last row holding text of n. A node ending at column 0
// stops on the line before.
func lastRow(n *sitter.Node) int {
	start, end := n.StartPoint(), n.EndPoint()
	if end.Column == 0 && end.Row > start.Row {
		return int(end.Row) - 1
	}
	return int(end.Row)
}

// symbolName finds the declared name: the name field of the node, of its
// first named child (Go type and var specs, JS declarators), or the type
// of a Rust impl block.
func symbolName(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	if typ := n.ChildByFieldName("type"); typ != nil && n.Type() == "impl_item" {
		return typ.Content(src)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		if name := child.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	}
	return ""
}
