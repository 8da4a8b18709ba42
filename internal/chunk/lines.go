package chunk

import (
	"context"
	"strings"
)

// LineChunker cuts files into windows of MaxLines lines, each sharing
// Overlap lines with the previous one.
type LineChunker struct {
	MaxLines int
	Overlap  int
}

// Chunk implements Chunker.
func (c LineChunker) Chunk(ctx context.Context, f File) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.window(splitLines(string(f.Content)), 1, "", KindBlock), nil
}

func (c LineChunker) limits() (size, step int) {
	size = c.MaxLines
	if size <= 0 {
		size = DefaultMaxLines
	}
	overlap := c.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return size, size - overlap
}

// window chunks lines, where lines[0] is line number first of the file.
func (c LineChunker) window(lines []string, first int, symbol string, kind Kind) []Chunk {
	size, step := c.limits()
	var out []Chunk
	for start := 0; start < len(lines); start += step {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) != "" {
			out = append(out, Chunk{
				StartLine: first + start,
				EndLine:   first + end - 1,
				Body:      body,
				Symbol:    symbol,
				Kind:      kind,
			})
		}
		if end == len(lines) {
			break
		}
	}
	return out
}

// splitLines splits text into lines without their terminators. A trailing
// newline does not produce an empty last line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
