// Package layout normalizes external layout-analysis output into the
// ordered, typed content blocks the rest of the pipeline consumes.
package layout

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smallnest/docgraph"
)

// Adapter validates raw layout blocks and turns them into ContentBlocks
// with strictly increasing order indexes and heading-path breadcrumbs.
type Adapter struct {
	defaultHeadingLevel int
}

// AdapterOption configures the Adapter.
type AdapterOption func(*Adapter)

// WithDefaultHeadingLevel sets the level assumed for heading blocks whose
// source did not report one.
func WithDefaultHeadingLevel(level int) AdapterOption {
	return func(a *Adapter) {
		a.defaultHeadingLevel = level
	}
}

// NewAdapter creates a layout adapter.
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{
		defaultHeadingLevel: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FromSource pulls raw blocks from a layout source and normalizes them.
func (a *Adapter) FromSource(ctx context.Context, documentID string, src docgraph.LayoutSource) ([]docgraph.ContentBlock, error) {
	raws, err := src.Blocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("layout source failed: %w", err)
	}
	return a.Normalize(documentID, raws)
}

// Normalize validates raw blocks, orders them by reading order (page, then
// top-to-bottom, then left-to-right) and assigns heading paths. A malformed
// block fails the whole document with *docgraph.LayoutParseError.
func (a *Adapter) Normalize(documentID string, raws []docgraph.RawBlock) ([]docgraph.ContentBlock, error) {
	for i, raw := range raws {
		if err := a.validate(i, raw); err != nil {
			return nil, err
		}
	}

	ordered := make([]docgraph.RawBlock, len(raws))
	copy(ordered, raws)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Page != ordered[j].Page {
			return ordered[i].Page < ordered[j].Page
		}
		if ordered[i].BBox.Y != ordered[j].BBox.Y {
			return ordered[i].BBox.Y < ordered[j].BBox.Y
		}
		return ordered[i].BBox.X < ordered[j].BBox.X
	})

	// Heading stack, scoped to this call. Each entry is an open heading;
	// shallower levels sit closer to the front.
	type openHeading struct {
		level int
		text  string
	}
	var stack []openHeading

	pathOf := func() []string {
		path := make([]string, len(stack))
		for i, h := range stack {
			path[i] = h.text
		}
		return path
	}

	blocks := make([]docgraph.ContentBlock, 0, len(ordered))
	for i, raw := range ordered {
		kind := docgraph.BlockKind(raw.Kind)
		level := 0
		if kind == docgraph.BlockHeading {
			level = raw.Level
			if level <= 0 {
				level = a.defaultHeadingLevel
			}
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, openHeading{level: level, text: strings.TrimSpace(raw.Text)})
		}

		blocks = append(blocks, docgraph.ContentBlock{
			ID:          fmt.Sprintf("%s:block:%d", documentID, i),
			Kind:        kind,
			Text:        raw.Text,
			Page:        raw.Page,
			BBox:        raw.BBox,
			Level:       level,
			HeadingPath: pathOf(),
			OrderIndex:  i,
		})
	}

	return blocks, nil
}

func (a *Adapter) validate(index int, raw docgraph.RawBlock) error {
	switch docgraph.BlockKind(raw.Kind) {
	case docgraph.BlockParagraph, docgraph.BlockHeading, docgraph.BlockTable, docgraph.BlockListItem:
	case "":
		return &docgraph.LayoutParseError{BlockIndex: index, Reason: "missing kind"}
	default:
		return &docgraph.LayoutParseError{BlockIndex: index, Reason: fmt.Sprintf("unknown kind %q", raw.Kind)}
	}
	if strings.TrimSpace(raw.Text) == "" {
		return &docgraph.LayoutParseError{BlockIndex: index, Reason: "missing text"}
	}
	if raw.Page < 0 {
		return &docgraph.LayoutParseError{BlockIndex: index, Reason: fmt.Sprintf("negative page %d", raw.Page)}
	}
	return nil
}
