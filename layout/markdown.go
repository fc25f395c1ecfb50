package layout

import (
	"context"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/smallnest/docgraph"
)

// MarkdownSource is a LayoutSource backed by a Markdown document. Headings,
// paragraphs, list items and tables become raw blocks in document order.
type MarkdownSource struct {
	name    string
	content []byte
}

var _ docgraph.LayoutSource = (*MarkdownSource)(nil)

// NewMarkdownSource creates a layout source for Markdown content.
func NewMarkdownSource(name string, content []byte) *MarkdownSource {
	return &MarkdownSource{
		name:    name,
		content: content,
	}
}

// Blocks parses the Markdown and returns its blocks. Markdown has no page
// geometry, so every block sits on page 1 with its document position as the
// vertical coordinate, which keeps the adapter's reading-order sort stable.
func (s *MarkdownSource) Blocks(ctx context.Context) ([]docgraph.RawBlock, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	root := p.Parse(s.content)

	var raws []docgraph.RawBlock
	emit := func(kind string, text string, level int) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		raws = append(raws, docgraph.RawBlock{
			Kind:  kind,
			Text:  text,
			Page:  1,
			BBox:  docgraph.BBox{Y: float64(len(raws))},
			Level: level,
		})
	}

	ast.WalkFunc(root, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch n := node.(type) {
		case *ast.Heading:
			emit(string(docgraph.BlockHeading), flattenText(n), n.Level)
			return ast.SkipChildren
		case *ast.ListItem:
			emit(string(docgraph.BlockListItem), flattenText(n), 0)
			return ast.SkipChildren
		case *ast.Table:
			emit(string(docgraph.BlockTable), flattenText(n), 0)
			return ast.SkipChildren
		case *ast.Paragraph:
			emit(string(docgraph.BlockParagraph), flattenText(n), 0)
			return ast.SkipChildren
		}
		return ast.GoToNext
	})

	return raws, nil
}

// flattenText collects the literal text beneath a node.
func flattenText(node ast.Node) string {
	var sb strings.Builder
	ast.WalkFunc(node, func(n ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch t := n.(type) {
		case *ast.Text:
			sb.Write(t.Literal)
		case *ast.Code:
			sb.Write(t.Literal)
		case *ast.Softbreak, *ast.Hardbreak:
			sb.WriteByte(' ')
		case *ast.TableCell:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
		return ast.GoToNext
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}
