// Package chunker splits document text into overlapping token-bounded windows.
package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSizeTokens   = 900
	DefaultChunkOverlapRatio = 0.15
)

// PageSpan maps a character span of the source text to a page number.
type PageSpan struct {
	Start      int `json:"start"`
	End        int `json:"end"`
	PageNumber int `json:"page_number"`
}

// SectionHint names a section title and the page it starts on.
type SectionHint struct {
	Title      string `json:"title"`
	PageNumber int    `json:"page_number,omitempty"`
}

// Hints carries optional structural metadata used to annotate chunks with
// provenance. Missing hints produce empty (never nil) pages and sections.
type Hints struct {
	PageMap  []PageSpan
	Sections []SectionHint
}

// Chunk is one window of the source text.
type Chunk struct {
	Text       string
	TokenCount int
	StartChar  int
	EndChar    int
	Pages      []int
	Sections   []string
}

type segment struct {
	text   string
	tokens int
	start  int
	end    int
}

// Chunker accumulates paragraph segments into overlapping windows.
type Chunker struct {
	chunkSizeTokens    int
	chunkOverlapTokens int
}

func New(chunkSizeTokens int, overlapRatio float64) *Chunker {
	if chunkSizeTokens <= 0 {
		chunkSizeTokens = DefaultChunkSizeTokens
	}
	if overlapRatio < 0 {
		overlapRatio = DefaultChunkOverlapRatio
	}
	overlap := int(float64(chunkSizeTokens) * overlapRatio)
	if overlap < 1 {
		overlap = 1
	}
	return &Chunker{chunkSizeTokens: chunkSizeTokens, chunkOverlapTokens: overlap}
}

// EstimateTokens approximates the token count of text as
// max(word_count, ceil(rune_count/4)).
//
// This heuristic is pinned: the integrity checker compares counts recomputed
// with it against whatever was previously indexed, so replacing it with a real
// tokenizer silently breaks every existing index until a full rebuild.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := (utf8.RuneCountInString(text) + 3) / 4
	if words > chars {
		return words
	}
	return chars
}

// Chunk splits text into windows of at most chunkSizeTokens estimated tokens,
// with consecutive windows sharing roughly chunkOverlapTokens. Whitespace-only
// input yields no chunks; input below the budget yields exactly one.
func (c *Chunker) Chunk(text string, hints Hints) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	segments := buildSegments(text)
	if len(segments) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0)
	idx := 0
	for idx < len(segments) {
		startIdx := idx
		tokenTotal := 0
		current := make([]segment, 0, 4)
		for idx < len(segments) && (tokenTotal+segments[idx].tokens <= c.chunkSizeTokens || len(current) == 0) {
			current = append(current, segments[idx])
			tokenTotal += segments[idx].tokens
			idx++
		}

		parts := make([]string, 0, len(current))
		for _, seg := range current {
			parts = append(parts, seg.text)
		}
		chunkStart := current[0].start
		chunkEnd := current[len(current)-1].end
		pages := resolvePages(hints.PageMap, chunkStart, chunkEnd)
		chunks = append(chunks, Chunk{
			Text:       strings.Join(parts, "\n\n"),
			TokenCount: tokenTotal,
			StartChar:  chunkStart,
			EndChar:    chunkEnd,
			Pages:      pages,
			Sections:   resolveSections(hints.Sections, pages),
		})

		if idx >= len(segments) {
			break
		}
		idx = c.applyOverlap(segments, startIdx, idx)
		if idx <= startIdx {
			idx = startIdx + 1
		}
	}
	return chunks
}

func buildSegments(text string) []segment {
	parts := strings.Split(text, "\n\n")
	segments := make([]segment, 0, len(parts))
	cursor := 0
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			cursor += len(part) + 2
			continue
		}
		start := strings.Index(text[cursor:], part)
		if start < 0 {
			start = cursor
		} else {
			start += cursor
		}
		end := start + len(part)
		cursor = end + 2

		tokens := EstimateTokens(trimmed)
		if tokens < 1 {
			tokens = 1
		}
		segments = append(segments, segment{text: trimmed, tokens: tokens, start: start, end: end})
	}
	return segments
}

// applyOverlap walks backwards from the end of the previous window until the
// overlap token budget is covered and returns the next window's start index.
func (c *Chunker) applyOverlap(segments []segment, startIdx, endIdx int) int {
	if c.chunkOverlapTokens <= 0 {
		return endIdx
	}
	accum := 0
	newStart := endIdx
	for i := endIdx - 1; i >= startIdx; i-- {
		accum += segments[i].tokens
		if accum >= c.chunkOverlapTokens {
			newStart = i
			break
		}
	}
	return newStart
}

func resolvePages(pageMap []PageSpan, start, end int) []int {
	seen := make(map[int]struct{})
	pages := make([]int, 0)
	for _, span := range pageMap {
		if span.End >= start && span.Start <= end {
			if _, ok := seen[span.PageNumber]; !ok {
				seen[span.PageNumber] = struct{}{}
				pages = append(pages, span.PageNumber)
			}
		}
	}
	sort.Ints(pages)
	return pages
}

func resolveSections(sections []SectionHint, pages []int) []string {
	titles := make([]string, 0)
	if len(pages) == 0 {
		return titles
	}
	onPage := make(map[int]struct{}, len(pages))
	for _, p := range pages {
		onPage[p] = struct{}{}
	}
	for _, sec := range sections {
		if sec.Title == "" {
			continue
		}
		if _, ok := onPage[sec.PageNumber]; ok {
			titles = append(titles, sec.Title)
		}
	}
	return titles
}
