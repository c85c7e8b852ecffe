// Package chunker splits normalized text into overlapping windows with
// position metadata. Overlap carries trailing context into the next window so
// an answer straddling a boundary is still retrievable from one chunk.
package chunker

import "strings"

const (
	// DefaultSize is the window size in characters.
	DefaultSize = 1000
	// DefaultOverlap is the number of trailing characters carried into the
	// next window.
	DefaultOverlap = 200
)

// Chunk is one window of text with its character offsets into the source.
type Chunk struct {
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
}

// Chunker produces overlapping character windows, preferring paragraph and
// sentence boundaries over hard cuts.
type Chunker struct {
	size     int
	overlap  int
	lookback int
}

// New creates a chunker. Non-positive size or overlap fall back to defaults;
// overlap is clamped below size so every window makes forward progress.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{
		size:     size,
		overlap:  overlap,
		lookback: size / 5,
	}
}

// Split divides text into ordered chunks. Text shorter than the window size
// yields exactly one chunk; empty text yields none. Offsets are in runes,
// counted over the input text.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, c.makeChunk(runes, start, len(runes), len(chunks)))
			return chunks
		}

		cut := c.cutPoint(runes, start, end)
		chunks = append(chunks, c.makeChunk(runes, start, cut, len(chunks)))

		next := cut - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
}

func (c *Chunker) makeChunk(runes []rune, start, end, index int) Chunk {
	return Chunk{
		Index:       index,
		Text:        strings.TrimSpace(string(runes[start:end])),
		StartOffset: start,
		EndOffset:   end,
	}
}

// cutPoint snaps the window end back to the nearest natural boundary within
// the lookback span: a blank line first, then a sentence end. Without one,
// the hard cut at end stands.
func (c *Chunker) cutPoint(runes []rune, start, end int) int {
	limit := end - c.lookback
	if limit < start+1 {
		limit = start + 1
	}

	// Paragraph break: "\n\n" ending at or before the window end.
	for i := end; i >= limit+1; i-- {
		if runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}

	// Sentence end followed by whitespace.
	for i := end; i >= limit+1; i-- {
		if isSentenceEnd(runes[i-2]) && isSpace(runes[i-1]) {
			return i
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
