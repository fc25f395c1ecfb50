// Package relation builds the typed edge set linking a document's chunks.
// Extraction is a pure function of the chunk contents: running it twice on
// the same input yields the same edges.
package relation

import (
	"sort"
	"strings"

	"github.com/smallnest/docgraph"
)

// Extractor infers sequential, parent-child, cross-reference and
// entity-co-occurrence edges between a document's chunks.
type Extractor struct {
	referenceThreshold float64
	minSharedTerms     int
	maxCoEdges         int
}

// ExtractorOption configures the Extractor.
type ExtractorOption func(*Extractor)

// WithReferenceThreshold sets the minimum match confidence for a fuzzy
// cross-reference. Matches below it are discarded, not added.
func WithReferenceThreshold(threshold float64) ExtractorOption {
	return func(e *Extractor) {
		e.referenceThreshold = threshold
	}
}

// WithMinSharedTerms sets how many salient terms two chunks must share
// before a co-occurrence edge is considered.
func WithMinSharedTerms(n int) ExtractorOption {
	return func(e *Extractor) {
		e.minSharedTerms = n
	}
}

// WithMaxCoOccurrenceEdges caps co-occurrence edges per chunk to bound
// graph density.
func WithMaxCoOccurrenceEdges(n int) ExtractorOption {
	return func(e *Extractor) {
		e.maxCoEdges = n
	}
}

// NewExtractor creates an Extractor with the documented defaults. The
// reference threshold is workload-dependent; 0.82 keeps loose paraphrases
// out while tolerating minor heading rewording.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		referenceThreshold: 0.82,
		minSharedTerms:     3,
		maxCoEdges:         5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the full edge set for one document's chunks. No duplicate
// (source, target, type) triple is ever emitted.
func (e *Extractor) Extract(coarse, fine []docgraph.Chunk) []docgraph.Edge {
	coarse = sortedBySpan(coarse)
	fine = sortedBySpan(fine)

	set := newEdgeSet()
	e.sequentialEdges(set, coarse)
	e.sequentialEdges(set, fine)
	e.parentChildEdges(set, coarse, fine)
	e.crossReferenceEdges(set, coarse, fine)
	e.coOccurrenceEdges(set, append(append([]docgraph.Chunk(nil), coarse...), fine...))
	return set.edges()
}

// sequentialEdges connects document-order-adjacent chunks of one
// granularity. Fine chunks only link inside their section; coarse chunks
// are the sections themselves, so their peer group is the whole document.
func (e *Extractor) sequentialEdges(set *edgeSet, chunks []docgraph.Chunk) {
	for i := 0; i+1 < len(chunks); i++ {
		a, b := chunks[i], chunks[i+1]
		if a.Granularity == docgraph.Fine && topSection(a) != topSection(b) {
			continue
		}
		set.add(docgraph.Edge{
			ID:       docgraph.EdgeID(a.ID, b.ID, docgraph.EdgeSequential),
			Source:   a.ID,
			Target:   b.ID,
			Type:     docgraph.EdgeSequential,
			Weight:   1.0,
			Directed: true,
		})
	}
}

// parentChildEdges connects each coarse chunk to every fine chunk nested in
// its span.
func (e *Extractor) parentChildEdges(set *edgeSet, coarse, fine []docgraph.Chunk) {
	for _, c := range coarse {
		for _, f := range fine {
			if !c.Span.Contains(f.Span) {
				continue
			}
			set.add(docgraph.Edge{
				ID:       docgraph.EdgeID(c.ID, f.ID, docgraph.EdgeParentChild),
				Source:   c.ID,
				Target:   f.ID,
				Type:     docgraph.EdgeParentChild,
				Weight:   1.0,
				Directed: true,
			})
		}
	}
}

// crossReferenceEdges detects chunks whose text mentions another section's
// heading and links them to that section's first coarse chunk.
func (e *Extractor) crossReferenceEdges(set *edgeSet, coarse, fine []docgraph.Chunk) {
	type section struct {
		label  []string
		target docgraph.Chunk
	}
	var sections []section
	seen := map[string]bool{}
	for _, c := range coarse {
		if len(c.HeadingPath) == 0 || seen[c.SectionID] {
			continue
		}
		seen[c.SectionID] = true
		label := headingLabel(c.HeadingPath[len(c.HeadingPath)-1])
		if len(label) == 0 {
			continue
		}
		sections = append(sections, section{label: label, target: c})
	}

	for _, chunk := range append(append([]docgraph.Chunk(nil), coarse...), fine...) {
		text := lowerWords(chunk.Text)
		for _, sec := range sections {
			if sec.target.SectionID == chunk.SectionID {
				continue
			}
			confidence := matchConfidence(text, sec.label)
			if confidence < e.referenceThreshold {
				continue
			}
			set.add(docgraph.Edge{
				ID:       docgraph.EdgeID(chunk.ID, sec.target.ID, docgraph.EdgeCrossRef),
				Source:   chunk.ID,
				Target:   sec.target.ID,
				Type:     docgraph.EdgeCrossRef,
				Weight:   confidence,
				Directed: true,
			})
		}
	}
}

// coOccurrenceEdges links chunks sharing salient terms, capped per chunk
// with lowest-weight edges dropped first.
func (e *Extractor) coOccurrenceEdges(set *edgeSet, chunks []docgraph.Chunk) {
	terms := make([]map[string]bool, len(chunks))
	for i, c := range chunks {
		terms[i] = salientTerms(c.Text)
	}

	type candidate struct {
		source, target string
		weight         float64
	}
	var candidates []candidate

	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			shared, union := overlap(terms[i], terms[j])
			if shared < e.minSharedTerms || union == 0 {
				continue
			}
			src, dst := chunks[i].ID, chunks[j].ID
			if dst < src {
				src, dst = dst, src
			}
			candidates = append(candidates, candidate{
				source: src,
				target: dst,
				weight: float64(shared) / float64(union),
			})
		}
	}

	// Highest weight first; ties resolved by earliest target then source id
	// so the cap cuts deterministically.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].weight != candidates[j].weight {
			return candidates[i].weight > candidates[j].weight
		}
		if candidates[i].target != candidates[j].target {
			return candidates[i].target < candidates[j].target
		}
		return candidates[i].source < candidates[j].source
	})

	degree := map[string]int{}
	for _, cand := range candidates {
		if degree[cand.source] >= e.maxCoEdges || degree[cand.target] >= e.maxCoEdges {
			continue
		}
		added := set.add(docgraph.Edge{
			ID:       docgraph.EdgeID(cand.source, cand.target, docgraph.EdgeCoOccurrence),
			Source:   cand.source,
			Target:   cand.target,
			Type:     docgraph.EdgeCoOccurrence,
			Weight:   cand.weight,
			Directed: false,
		})
		if added {
			degree[cand.source]++
			degree[cand.target]++
		}
	}
}

// matchConfidence scores how strongly a chunk's words mention a section
// label. A verbatim word-sequence mention is 1.0; otherwise the fraction of
// label words present serves as a near-verbatim signal. Matching works on
// whole words so short labels never fire inside longer words.
func matchConfidence(textWords, labelWords []string) float64 {
	if containsSequence(textWords, labelWords) {
		return 1.0
	}

	present := make(map[string]bool, len(textWords))
	for _, w := range textWords {
		present[w] = true
	}
	found := 0
	for _, w := range labelWords {
		if present[w] {
			found++
		}
	}
	return float64(found) / float64(len(labelWords))
}

func containsSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, w := range needle {
			if haystack[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

// headingLabel normalizes a heading for reference matching: enumeration
// prefixes like "2." or "3.1" are dropped and the remaining words
// lowercased.
func headingLabel(heading string) []string {
	label := strings.TrimSpace(heading)
	label = strings.TrimLeft(label, "0123456789.)- ")
	return lowerWords(label)
}

// lowerWords splits text into lowercased alphanumeric words.
func lowerWords(text string) []string {
	words := extractWords(text)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

func topSection(c docgraph.Chunk) string {
	if len(c.HeadingPath) == 0 {
		return ""
	}
	return c.HeadingPath[0]
}

func overlap(a, b map[string]bool) (shared, union int) {
	for t := range a {
		if b[t] {
			shared++
		}
	}
	union = len(a) + len(b) - shared
	return shared, union
}

func sortedBySpan(chunks []docgraph.Chunk) []docgraph.Chunk {
	out := append([]docgraph.Chunk(nil), chunks...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Span.First != out[j].Span.First {
			return out[i].Span.First < out[j].Span.First
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// edgeSet enforces the no-duplicate-(source,target,type) invariant while
// keeping insertion order for deterministic output.
type edgeSet struct {
	seen  map[string]bool
	order []docgraph.Edge
}

func newEdgeSet() *edgeSet {
	return &edgeSet{seen: map[string]bool{}}
}

func (s *edgeSet) add(edge docgraph.Edge) bool {
	if s.seen[edge.ID] {
		return false
	}
	s.seen[edge.ID] = true
	s.order = append(s.order, edge)
	return true
}

func (s *edgeSet) edges() []docgraph.Edge {
	return s.order
}
