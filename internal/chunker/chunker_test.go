package chunker

import (
	"strings"
	"testing"
)

// boundaryFreeText produces text with no paragraph breaks or sentence ends,
// so every cut is a hard cut at the window edge.
func boundaryFreeText(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('a' + (i*7)%26))
	}
	return b.String()
}

// TestSplit_Empty tests that empty input yields no chunks.
func TestSplit_Empty(t *testing.T) {
	chunks := New(100, 20).Split("")
	if chunks != nil {
		t.Errorf("Expected nil chunks for empty input, got %d", len(chunks))
	}
}

// TestSplit_ShortText tests that text within one window yields a single chunk.
func TestSplit_ShortText(t *testing.T) {
	text := "A short note that fits in one window."
	chunks := New(100, 20).Split(text)

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Index != 0 {
		t.Errorf("Chunk index: expected 0, got %d", chunks[0].Index)
	}
	if chunks[0].Text != text {
		t.Errorf("Chunk text: expected %q, got %q", text, chunks[0].Text)
	}
	if chunks[0].StartOffset != 0 || chunks[0].EndOffset != len([]rune(text)) {
		t.Errorf("Chunk offsets: expected [0,%d], got [%d,%d]",
			len([]rune(text)), chunks[0].StartOffset, chunks[0].EndOffset)
	}
}

// TestSplit_WindowCount tests the chunk count on boundary-free text: with
// window W, overlap O and length L, the sliding window yields
// ceil((L-O)/(W-O)) chunks.
func TestSplit_WindowCount(t *testing.T) {
	cases := []struct {
		size, overlap, length, want int
	}{
		{100, 20, 250, 3},  // ceil(230/80)
		{100, 20, 100, 1},  // exactly one window
		{100, 20, 101, 2},  // one rune past the window
		{100, 0, 250, 3},   // no overlap: ceil(250/100)
		{1000, 200, 2500, 3},
	}

	for _, tc := range cases {
		chunks := New(tc.size, tc.overlap).Split(boundaryFreeText(tc.length))
		if len(chunks) != tc.want {
			t.Errorf("size=%d overlap=%d length=%d: expected %d chunks, got %d",
				tc.size, tc.overlap, tc.length, tc.want, len(chunks))
		}
	}
}

// TestSplit_Overlap tests that consecutive chunks on boundary-free text share
// exactly the configured overlap.
func TestSplit_Overlap(t *testing.T) {
	const size, overlap = 100, 20
	text := boundaryFreeText(250)
	chunks := New(size, overlap).Split(text)

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if prev.EndOffset-cur.StartOffset != overlap {
			t.Errorf("Chunks %d/%d: expected overlap %d, got %d",
				i-1, i, overlap, prev.EndOffset-cur.StartOffset)
		}
		tail := prev.Text[len(prev.Text)-overlap:]
		if !strings.HasPrefix(cur.Text, tail) {
			t.Errorf("Chunk %d does not start with chunk %d's trailing %d runes", i, i-1, overlap)
		}
	}
	if last := chunks[len(chunks)-1]; last.EndOffset != len([]rune(text)) {
		t.Errorf("Final chunk end: expected %d, got %d", len([]rune(text)), last.EndOffset)
	}
}

// TestSplit_ParagraphBoundary tests that a blank line near the window edge
// becomes the cut point instead of a hard cut.
func TestSplit_ParagraphBoundary(t *testing.T) {
	para1 := boundaryFreeText(90)
	text := para1 + "\n\n" + boundaryFreeText(100)

	chunks := New(100, 20).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected at least 2 chunks, got %d", len(chunks))
	}

	if chunks[0].Text != para1 {
		t.Errorf("Chunk 0: expected first paragraph only, got %q", chunks[0].Text)
	}
	// Cut lands just after the blank line.
	if chunks[0].EndOffset != 92 {
		t.Errorf("Chunk 0 end: expected 92, got %d", chunks[0].EndOffset)
	}
	if chunks[1].StartOffset != 92-20 {
		t.Errorf("Chunk 1 start: expected %d, got %d", 92-20, chunks[1].StartOffset)
	}
}

// TestSplit_SentenceBoundary tests the sentence-end fallback when no blank
// line is in reach.
func TestSplit_SentenceBoundary(t *testing.T) {
	sentence := boundaryFreeText(85) + "."
	text := sentence + " " + boundaryFreeText(100)

	chunks := New(100, 20).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("Expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != sentence {
		t.Errorf("Chunk 0: expected %q, got %q", sentence, chunks[0].Text)
	}
	if chunks[0].EndOffset != 87 {
		t.Errorf("Chunk 0 end: expected 87, got %d", chunks[0].EndOffset)
	}
}

// TestSplit_DistantBoundaryIgnored tests that a boundary far outside the
// lookback span does not shrink the window.
func TestSplit_DistantBoundaryIgnored(t *testing.T) {
	// Blank line at offset 10, well before the lookback span of a 100-rune
	// window.
	text := boundaryFreeText(10) + "\n\n" + boundaryFreeText(200)

	chunks := New(100, 20).Split(text)
	if chunks[0].EndOffset != 100 {
		t.Errorf("Chunk 0 end: expected hard cut at 100, got %d", chunks[0].EndOffset)
	}
}

// TestSplit_OverlapClamped tests that overlap >= size still makes forward
// progress and covers the whole text.
func TestSplit_OverlapClamped(t *testing.T) {
	text := boundaryFreeText(250)
	chunks := New(100, 100).Split(text)

	if len(chunks) == 0 {
		t.Fatal("Expected chunks, got none")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartOffset <= chunks[i-1].StartOffset {
			t.Fatalf("Chunk %d start %d does not advance past %d",
				i, chunks[i].StartOffset, chunks[i-1].StartOffset)
		}
	}
	if last := chunks[len(chunks)-1]; last.EndOffset != 250 {
		t.Errorf("Final chunk end: expected 250, got %d", last.EndOffset)
	}
}

// TestSplit_IndexesSequential tests chunk indexes are 0..n-1 in order.
func TestSplit_IndexesSequential(t *testing.T) {
	chunks := New(100, 20).Split(boundaryFreeText(500))
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("Chunk %d: expected index %d, got %d", i, i, chunk.Index)
		}
	}
}
