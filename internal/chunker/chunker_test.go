package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	// Character estimate dominates for a long single word.
	assert.Equal(t, 3, EstimateTokens("abcdefghijkl"))
	// Word count dominates for many short words.
	assert.Equal(t, 6, EstimateTokens("a b c d e f"))
}

func TestChunkWhitespaceOnlyYieldsNothing(t *testing.T) {
	c := New(0, -1)
	assert.Nil(t, c.Chunk("", Hints{}))
	assert.Nil(t, c.Chunk("   \n\n \t ", Hints{}))
}

func TestChunkSmallInputYieldsSingleChunk(t *testing.T) {
	c := New(0, -1)
	chunks := c.Chunk("A short paragraph.\n\nAnother short paragraph.", Hints{})
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short paragraph.\n\nAnother short paragraph.", chunks[0].Text)
	assert.Positive(t, chunks[0].TokenCount)
	assert.NotNil(t, chunks[0].Pages)
	assert.NotNil(t, chunks[0].Sections)
	assert.Empty(t, chunks[0].Pages)
}

func TestChunkWindowsOverlap(t *testing.T) {
	p1 := "a b c d e f"
	p2 := "g h i j k l"
	p3 := "m n o p q r"
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	// 6 tokens per paragraph, 15-token windows, 2-token overlap.
	c := New(15, 0.15)
	chunks := c.Chunk(text, Hints{})
	require.Len(t, chunks, 2)
	assert.Equal(t, p1+"\n\n"+p2, chunks[0].Text)
	assert.Equal(t, p2+"\n\n"+p3, chunks[1].Text)
	assert.Equal(t, 12, chunks[0].TokenCount)
}

func TestChunkOversizedParagraphStillProgresses(t *testing.T) {
	big1 := strings.Repeat("word ", 50)
	big2 := strings.Repeat("term ", 50)
	text := strings.TrimSpace(big1) + "\n\n" + strings.TrimSpace(big2)

	c := New(10, 0.15)
	chunks := c.Chunk(text, Hints{})
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.TrimSpace(big1), chunks[0].Text)
	assert.Equal(t, strings.TrimSpace(big2), chunks[1].Text)
}

func TestChunkResolvesPagesAndSections(t *testing.T) {
	p1 := "a b c d e f"
	p2 := "g h i j k l"
	p3 := "m n o p q r"
	text := p1 + "\n\n" + p2 + "\n\n" + p3

	hints := Hints{
		PageMap: []PageSpan{
			{Start: 0, End: 12, PageNumber: 1},
			{Start: 12, End: 25, PageNumber: 2},
			{Start: 26, End: 40, PageNumber: 3},
		},
		Sections: []SectionHint{
			{Title: "Intro", PageNumber: 1},
			{Title: "Closing", PageNumber: 3},
		},
	}
	c := New(15, 0.15)
	chunks := c.Chunk(text, hints)
	require.Len(t, chunks, 2)

	assert.Equal(t, []int{1, 2}, chunks[0].Pages)
	assert.Equal(t, []string{"Intro"}, chunks[0].Sections)
	assert.Equal(t, []int{2, 3}, chunks[1].Pages)
	assert.Equal(t, []string{"Closing"}, chunks[1].Sections)
}

func TestChunkSectionsEmptyWithoutPageMap(t *testing.T) {
	c := New(0, -1)
	hints := Hints{Sections: []SectionHint{{Title: "Only Section"}}}
	chunks := c.Chunk("one paragraph of text", hints)
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Pages)
	assert.Empty(t, chunks[0].Sections)
}

func TestChunkRecordsCharOffsets(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph"
	c := New(0, -1)
	chunks := c.Chunk(text, Hints{})
	require.Len(t, chunks, 1)
	assert.Zero(t, chunks[0].StartChar)
	assert.Equal(t, len(text), chunks[0].EndChar)
}
