package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/docgraph"
)

func block(index int, kind docgraph.BlockKind, text string, path ...string) docgraph.ContentBlock {
	return docgraph.ContentBlock{
		ID:          fmt.Sprintf("doc1:block:%d", index),
		Kind:        kind,
		Text:        text,
		Page:        1,
		HeadingPath: path,
		OrderIndex:  index,
	}
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestDualChunker_Chunk(t *testing.T) {
	t.Run("empty input yields zero chunks", func(t *testing.T) {
		c := NewDualChunker()
		coarse, fine, err := c.Chunk("doc1", nil)
		require.NoError(t, err)
		assert.Empty(t, coarse)
		assert.Empty(t, fine)
	})

	t.Run("single small block yields one coarse and one fine chunk", func(t *testing.T) {
		c := NewDualChunker()
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockParagraph, "a tiny paragraph"),
		}

		coarse, fine, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.Len(t, coarse, 1)
		require.Len(t, fine, 1)

		assert.Equal(t, "doc1:coarse:0000", coarse[0].ID)
		assert.Equal(t, "doc1:fine:0000", fine[0].ID)
		assert.Equal(t, "a tiny paragraph", fine[0].Text)
		assert.True(t, coarse[0].Span.Contains(fine[0].Span))
	})

	t.Run("sections become separate coarse chunks", func(t *testing.T) {
		c := NewDualChunker()
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockHeading, "1. Intro", "1. Intro"),
			block(1, docgraph.BlockParagraph, "intro words here", "1. Intro"),
			block(2, docgraph.BlockHeading, "2. Methods", "2. Methods"),
			block(3, docgraph.BlockParagraph, "method words here", "2. Methods"),
		}

		coarse, _, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.Len(t, coarse, 2)

		assert.Equal(t, []string{"1. Intro"}, coarse[0].HeadingPath)
		assert.Equal(t, []string{"2. Methods"}, coarse[1].HeadingPath)
		assert.Equal(t, 0, coarse[0].Span.First)
		assert.Equal(t, 1, coarse[0].Span.Last)
		assert.Equal(t, 2, coarse[1].Span.First)
		assert.Equal(t, 3, coarse[1].Span.Last)
		assert.NotEqual(t, coarse[0].SectionID, coarse[1].SectionID)
	})

	t.Run("blocks before any heading open section zero", func(t *testing.T) {
		c := NewDualChunker()
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockParagraph, "a preamble paragraph"),
			block(1, docgraph.BlockParagraph, "another preamble paragraph"),
			block(2, docgraph.BlockHeading, "1. Intro", "1. Intro"),
			block(3, docgraph.BlockParagraph, "intro words", "1. Intro"),
		}

		coarse, fine, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.Len(t, coarse, 2)

		assert.Equal(t, "doc1:sec:0000", coarse[0].SectionID)
		assert.Equal(t, "doc1:sec:0001", coarse[1].SectionID)
		require.NotEmpty(t, fine)
		assert.Equal(t, "doc1:sec:0000", fine[0].SectionID)
	})

	t.Run("oversized section splits at block boundaries", func(t *testing.T) {
		c := NewDualChunker(WithMaxCoarseSize(10))
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockParagraph, words(6), "S"),
			block(1, docgraph.BlockParagraph, words(4), "S"),
			block(2, docgraph.BlockParagraph, words(4), "S"),
		}

		coarse, _, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.Len(t, coarse, 2)

		// 6+4 = 10 sits exactly on the boundary and stays in the first chunk.
		assert.Equal(t, 0, coarse[0].Span.First)
		assert.Equal(t, 1, coarse[0].Span.Last)
		assert.Equal(t, 2, coarse[1].Span.First)
		// Both splits belong to the same section.
		assert.Equal(t, coarse[0].SectionID, coarse[1].SectionID)
	})

	t.Run("fine spans nest inside coarse spans", func(t *testing.T) {
		c := NewDualChunker(WithFineSize(8), WithFineOverlap(2))
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockHeading, "A", "A"),
			block(1, docgraph.BlockParagraph, words(20), "A"),
			block(2, docgraph.BlockHeading, "B", "B"),
			block(3, docgraph.BlockParagraph, words(5), "B"),
			block(4, docgraph.BlockParagraph, words(5), "B"),
		}

		coarse, fine, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.NotEmpty(t, fine)

		for _, f := range fine {
			parents := 0
			for _, cc := range coarse {
				if cc.Span.Contains(f.Span) {
					parents++
					assert.Equal(t, cc.SectionID, f.SectionID)
				}
			}
			assert.Equal(t, 1, parents, "fine chunk %s must nest in exactly one coarse span", f.ID)
		}
	})

	t.Run("coarse spans partition the block sequence", func(t *testing.T) {
		c := NewDualChunker(WithMaxCoarseSize(5))
		var blocks []docgraph.ContentBlock
		for i := 0; i < 9; i++ {
			blocks = append(blocks, block(i, docgraph.BlockParagraph, words(3), "S"))
		}

		coarse, _, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)

		next := 0
		for _, cc := range coarse {
			assert.Equal(t, next, cc.Span.First)
			next = cc.Span.Last + 1
		}
		assert.Equal(t, len(blocks), next)
	})

	t.Run("oversized block becomes overlapping windows", func(t *testing.T) {
		c := NewDualChunker(WithFineSize(10), WithFineOverlap(3))
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockParagraph, words(25)),
		}

		_, fine, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.Greater(t, len(fine), 1)

		// Adjacent windows share the trailing overlap words.
		first := strings.Fields(fine[0].Text)
		second := strings.Fields(fine[1].Text)
		assert.Equal(t, first[len(first)-3:], second[:3])

		// Every word of the source survives somewhere.
		seen := map[string]bool{}
		for _, f := range fine {
			for _, w := range strings.Fields(f.Text) {
				seen[w] = true
			}
		}
		for _, w := range strings.Fields(words(25)) {
			assert.True(t, seen[w], "word %s lost in windowing", w)
		}

		// All windows of a split block keep the single-block span.
		for _, f := range fine {
			assert.Equal(t, 0, f.Span.First)
			assert.Equal(t, 0, f.Span.Last)
		}
	})

	t.Run("window split prefers sentence boundaries", func(t *testing.T) {
		c := NewDualChunker(WithFineSize(6), WithFineOverlap(0))
		text := "One two three. Four five six. Seven eight nine."
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockParagraph, text),
		}

		_, fine, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.Len(t, fine, 2)
		assert.Equal(t, "One two three. Four five six.", fine[0].Text)
		assert.Equal(t, "Seven eight nine.", fine[1].Text)
	})

	t.Run("small consecutive blocks group into one fine chunk", func(t *testing.T) {
		c := NewDualChunker(WithFineSize(10))
		blocks := []docgraph.ContentBlock{
			block(0, docgraph.BlockParagraph, words(4)),
			block(1, docgraph.BlockParagraph, words(4)),
			block(2, docgraph.BlockParagraph, words(4)),
		}

		_, fine, err := c.Chunk("doc1", blocks)
		require.NoError(t, err)
		require.Len(t, fine, 2)
		assert.Equal(t, 0, fine[0].Span.First)
		assert.Equal(t, 1, fine[0].Span.Last)
		assert.Equal(t, 2, fine[1].Span.First)
	})
}
