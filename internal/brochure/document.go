// Package brochure loads the admission brochure that answers are
// grounded in and splits it into paragraph-level passages.
package brochure

import "strings"

// Passage is one paragraph of the brochure, the unit of retrieval.
type Passage struct {
	// Index is the passage's position in document order.
	Index int
	// Text is the original paragraph, trimmed.
	Text string
	// Section is the nearest markdown heading or "page N" for PDFs.
	// It is never scored.
	Section string

	lower string
}

// Lower returns the case-folded passage text used for matching.
func (p Passage) Lower() string {
	if p.lower == "" && p.Text != "" {
		return strings.ToLower(p.Text)
	}
	return p.lower
}

// Document is an immutable, ordered set of passages.
type Document struct {
	Source   string
	Passages []Passage
}

// Len returns the number of passages. A nil document has none.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Passages)
}

// Empty reports whether the document has no passages.
func (d *Document) Empty() bool {
	return d.Len() == 0
}

// Parse splits plain text on blank lines. Chunks are trimmed and empty
// chunks dropped.
func Parse(text string) *Document {
	doc := &Document{}
	doc.addParagraphs(text, "")
	return doc
}

func (d *Document) addParagraphs(text, section string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, chunk := range strings.Split(text, "\n\n") {
		d.add(chunk, section)
	}
}

func (d *Document) add(text, section string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.Passages = append(d.Passages, Passage{
		Index:   len(d.Passages),
		Text:    text,
		Section: section,
		lower:   strings.ToLower(text),
	})
}
