// Package segment splits a node's content into the spans that get embedded.
//
// Strategies are pure functions of the node: iterating the same node twice
// yields the same spans. The leading metadata region (Node.MetadataEnd) is
// never part of a span.
package segment

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// Strategy names accepted by New.
const (
	WholeName     = "whole"
	ParagraphName = "paragraph"
)

// paragraphBreak separates paragraphs.
const paragraphBreak = "\n\n"

// Strategy produces the spans of a node.
type Strategy interface {
	Name() string
	Segment(node *notes.Node) iter.Seq[vector.Span]
}

// New returns the strategy registered under name. An empty name selects the
// whole-document strategy.
func New(name string) (Strategy, error) {
	switch name {
	case WholeName, "":
		return Whole{}, nil
	case ParagraphName:
		return Paragraph{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown segmenter strategy %q (want %s or %s)",
			vector.ErrConfiguration, name, WholeName, ParagraphName)
	}
}

// Collect materializes the spans of node.
func Collect(s Strategy, node *notes.Node) []vector.Span {
	return slices.Collect(s.Segment(node))
}

func bodyStart(node *notes.Node) int {
	return min(max(node.MetadataEnd, 0), len(node.Content))
}

// Whole emits exactly one span from the end of the metadata region to the
// end of the content, even when that span is empty.
type Whole struct{}

func (Whole) Name() string { return WholeName }

func (Whole) Segment(node *notes.Node) iter.Seq[vector.Span] {
	return func(yield func(vector.Span) bool) {
		yield(vector.Span{Start: bodyStart(node), End: len(node.Content)})
	}
}

// Paragraph emits one span per run of text between blank-line separators.
// A span ends right before the next "\n\n" and the following scan starts
// right after it. Spans holding only whitespace are not emitted.
type Paragraph struct{}

func (Paragraph) Name() string { return ParagraphName }

func (Paragraph) Segment(node *notes.Node) iter.Seq[vector.Span] {
	return func(yield func(vector.Span) bool) {
		content := node.Content
		pos := bodyStart(node)

		for pos < len(content) {
			end := len(content)
			next := end
			if i := strings.Index(content[pos:], paragraphBreak); i >= 0 {
				end = pos + i
				next = end + len(paragraphBreak)
			}

			if strings.TrimSpace(content[pos:end]) != "" {
				if !yield(vector.Span{Start: pos, End: end}) {
					return
				}
			}
			pos = next
		}
	}
}
