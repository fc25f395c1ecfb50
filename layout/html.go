package layout

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/docgraph"
)

// HTMLSource is a LayoutSource backed by an HTML document. Markup is
// sanitized before traversal so script and style payloads never reach the
// pipeline.
type HTMLSource struct {
	name    string
	content string
	policy  *bluemonday.Policy
}

var _ docgraph.LayoutSource = (*HTMLSource)(nil)

// NewHTMLSource creates a layout source for HTML content.
func NewHTMLSource(name string, content string) *HTMLSource {
	return &HTMLSource{
		name:    name,
		content: content,
		policy:  bluemonday.UGCPolicy(),
	}
}

// Blocks parses the sanitized HTML and returns heading, paragraph, list
// item and table blocks in document order.
func (s *HTMLSource) Blocks(ctx context.Context) ([]docgraph.RawBlock, error) {
	clean := s.policy.Sanitize(s.content)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML %s: %w", s.name, err)
	}

	var raws []docgraph.RawBlock
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, table").Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)

		// Paragraphs nested in list items or tables are already covered by
		// their container block.
		if tag == "p" && sel.ParentsFiltered("li, table").Length() > 0 {
			return
		}

		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}

		kind := docgraph.BlockParagraph
		level := 0
		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			kind = docgraph.BlockHeading
			level = int(tag[1] - '0')
		case "li":
			kind = docgraph.BlockListItem
		case "table":
			kind = docgraph.BlockTable
		}

		raws = append(raws, docgraph.RawBlock{
			Kind:  string(kind),
			Text:  text,
			Page:  1,
			BBox:  docgraph.BBox{Y: float64(len(raws))},
			Level: level,
		})
	})

	return raws, nil
}
