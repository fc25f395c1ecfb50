// Package chunker turns an ordered block sequence into the dual chunk sets:
// coarse section chunks that preserve context and fine window chunks tuned
// for high-precision retrieval.
package chunker

import (
	"fmt"
	"strings"

	"github.com/smallnest/docgraph"
)

// DualChunker produces coarse and fine chunks from a block sequence. Sizes
// are measured in words, matching the upstream word-window strategy.
type DualChunker struct {
	sectionDepth  int
	maxCoarseSize int
	fineSize      int
	fineOverlap   int
}

// DualChunkerOption configures the DualChunker.
type DualChunkerOption func(*DualChunker)

// WithSectionDepth sets how many leading heading-path entries identify a
// coarse section.
func WithSectionDepth(depth int) DualChunkerOption {
	return func(c *DualChunker) {
		c.sectionDepth = depth
	}
}

// WithMaxCoarseSize sets the maximum coarse chunk size in words before a
// section is split at block boundaries.
func WithMaxCoarseSize(words int) DualChunkerOption {
	return func(c *DualChunker) {
		c.maxCoarseSize = words
	}
}

// WithFineSize sets the target fine chunk size in words.
func WithFineSize(words int) DualChunkerOption {
	return func(c *DualChunker) {
		c.fineSize = words
	}
}

// WithFineOverlap sets the number of words shared between adjacent fine
// chunks produced by a window split.
func WithFineOverlap(words int) DualChunkerOption {
	return func(c *DualChunker) {
		c.fineOverlap = words
	}
}

// NewDualChunker creates a DualChunker with the documented defaults.
func NewDualChunker(opts ...DualChunkerOption) *DualChunker {
	c := &DualChunker{
		sectionDepth:  1,
		maxCoarseSize: 400,
		fineSize:      50,
		fineOverlap:   10,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fineOverlap >= c.fineSize {
		c.fineOverlap = c.fineSize / 2
	}
	return c
}

// Chunk splits blocks into coarse and fine chunks. An empty block sequence
// yields zero chunks. Every fine chunk's span nests inside exactly one
// coarse chunk's span, and the coarse spans partition the block sequence.
func (c *DualChunker) Chunk(documentID string, blocks []docgraph.ContentBlock) (coarse, fine []docgraph.Chunk, err error) {
	if len(blocks) == 0 {
		return nil, nil, nil
	}

	coarse = c.coarseChunks(documentID, blocks)
	if err := validateCoarse(coarse, blocks); err != nil {
		return nil, nil, err
	}

	fineIndex := 0
	for _, cc := range coarse {
		parts := c.fineChunks(documentID, cc, blocksOf(cc, blocks), &fineIndex)
		fine = append(fine, parts...)
	}

	return coarse, fine, nil
}

// coarseChunks groups consecutive blocks sharing the same leading
// heading-path prefix, splitting oversized sections at block boundaries. A
// block sitting exactly on the size boundary stays with the earlier chunk.
func (c *DualChunker) coarseChunks(documentID string, blocks []docgraph.ContentBlock) []docgraph.Chunk {
	var chunks []docgraph.Chunk

	var (
		current      []docgraph.ContentBlock
		currentKey   string
		currentWords int
		sectionIndex = -1
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, c.buildCoarse(documentID, len(chunks), sectionIndex, current))
		current = nil
		currentWords = 0
	}

	for _, block := range blocks {
		key := c.sectionKey(block.HeadingPath)
		words := wordCount(block.Text)

		// The first block always opens section 0, even when its heading
		// path is empty and key matches the zero-value currentKey.
		if sectionIndex < 0 || key != currentKey {
			flush()
			currentKey = key
			sectionIndex++
		} else if currentWords+words > c.maxCoarseSize && len(current) > 0 {
			flush()
		}

		current = append(current, block)
		currentWords += words
	}
	flush()

	return chunks
}

func (c *DualChunker) buildCoarse(documentID string, index, sectionIndex int, blocks []docgraph.ContentBlock) docgraph.Chunk {
	texts := make([]string, len(blocks))
	ids := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
		ids[i] = b.ID
	}

	path := blocks[0].HeadingPath
	if len(path) > c.sectionDepth {
		path = path[:c.sectionDepth]
	}

	return docgraph.Chunk{
		ID:          fmt.Sprintf("%s:coarse:%04d", documentID, index),
		DocumentID:  documentID,
		Granularity: docgraph.Coarse,
		Text:        strings.Join(texts, "\n\n"),
		HeadingPath: path,
		Span: docgraph.Span{
			BlockIDs: ids,
			First:    blocks[0].OrderIndex,
			Last:     blocks[len(blocks)-1].OrderIndex,
		},
		SectionID: fmt.Sprintf("%s:sec:%04d", documentID, sectionIndex),
	}
}

// fineChunks re-segments one coarse chunk into word windows. Whole blocks
// are grouped while they fit the target size; a block too large on its own
// is window-split with overlapping words so context survives the split.
func (c *DualChunker) fineChunks(documentID string, parent docgraph.Chunk, blocks []docgraph.ContentBlock, index *int) []docgraph.Chunk {
	var chunks []docgraph.Chunk

	var (
		current      []docgraph.ContentBlock
		currentWords int
	)

	build := func(text string, span []docgraph.ContentBlock) docgraph.Chunk {
		ids := make([]string, len(span))
		for i, b := range span {
			ids[i] = b.ID
		}
		chunk := docgraph.Chunk{
			ID:          fmt.Sprintf("%s:fine:%04d", documentID, *index),
			DocumentID:  documentID,
			Granularity: docgraph.Fine,
			Text:        text,
			HeadingPath: span[0].HeadingPath,
			Span: docgraph.Span{
				BlockIDs: ids,
				First:    span[0].OrderIndex,
				Last:     span[len(span)-1].OrderIndex,
			},
			SectionID: parent.SectionID,
		}
		*index++
		return chunk
	}

	flush := func() {
		if len(current) == 0 {
			return
		}
		texts := make([]string, len(current))
		for i, b := range current {
			texts[i] = b.Text
		}
		chunks = append(chunks, build(strings.Join(texts, "\n\n"), current))
		current = nil
		currentWords = 0
	}

	for _, block := range blocks {
		words := strings.Fields(block.Text)

		if len(words) > c.fineSize {
			// Oversized block: flush what we have, then window-split it at
			// sentence boundaries.
			flush()
			for _, window := range c.windows(block.Text) {
				chunks = append(chunks, build(window, []docgraph.ContentBlock{block}))
			}
			continue
		}

		if currentWords+len(words) > c.fineSize && len(current) > 0 {
			flush()
		}
		current = append(current, block)
		currentWords += len(words)
	}
	flush()

	return chunks
}

// windows splits text into overlapping word windows of the target fine
// size, preferring sentence boundaries. Adjacent windows share the trailing
// overlap words of the earlier window.
func (c *DualChunker) windows(text string) []string {
	var out []string
	var current []string
	fresh := 0 // words added since the last emitted window

	flush := func() {
		if fresh == 0 {
			return
		}
		out = append(out, strings.Join(current, " "))
		if c.fineOverlap > 0 && len(current) > c.fineOverlap {
			current = append([]string(nil), current[len(current)-c.fineOverlap:]...)
		} else {
			current = nil
		}
		fresh = 0
	}

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)

		if len(words) > c.fineSize {
			// A single runaway sentence: fall back to fixed word windows.
			flush()
			current, fresh = nil, 0
			step := c.fineSize - c.fineOverlap
			if step <= 0 {
				step = 1
			}
			for i := 0; i < len(words); i += step {
				end := i + c.fineSize
				if end > len(words) {
					end = len(words)
				}
				out = append(out, strings.Join(words[i:end], " "))
				if end >= len(words) {
					break
				}
			}
			continue
		}

		if len(current)+len(words) > c.fineSize && fresh > 0 {
			flush()
		}
		current = append(current, words...)
		fresh += len(words)
	}
	flush()

	return out
}

// splitSentences breaks text on sentence-ending punctuation. It is a cheap
// heuristic; abbreviations split early but windows tolerate that.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func (c *DualChunker) sectionKey(path []string) string {
	if len(path) > c.sectionDepth {
		path = path[:c.sectionDepth]
	}
	return strings.Join(path, "\x1f")
}

func blocksOf(chunk docgraph.Chunk, all []docgraph.ContentBlock) []docgraph.ContentBlock {
	return all[chunk.Span.First : chunk.Span.Last+1]
}

// validateCoarse checks that coarse spans are contiguous and cover every
// block exactly once. A violation indicates a chunker bug and surfaces as a
// *docgraph.ChunkingError instead of being silently corrected.
func validateCoarse(coarse []docgraph.Chunk, blocks []docgraph.ContentBlock) error {
	next := 0
	for _, chunk := range coarse {
		if chunk.Span.First != next {
			return &docgraph.ChunkingError{
				ChunkID: chunk.ID,
				Reason:  fmt.Sprintf("span starts at %d, want %d", chunk.Span.First, next),
			}
		}
		if chunk.Span.Last < chunk.Span.First {
			return &docgraph.ChunkingError{
				ChunkID: chunk.ID,
				Reason:  "span end precedes span start",
			}
		}
		next = chunk.Span.Last + 1
	}
	if next != len(blocks) {
		return &docgraph.ChunkingError{
			Reason: fmt.Sprintf("coarse spans cover %d of %d blocks", next, len(blocks)),
		}
	}
	return nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
