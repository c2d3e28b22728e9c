package brochure

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Load reads and splits the brochure at path without caching. The
// format is chosen by extension: .pdf, .md/.markdown, or plain text.
func Load(path string) (*Document, error) {
	var (
		doc *Document
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		doc, err = loadPDF(path)
	case ".md", ".markdown":
		doc, err = loadMarkdown(path)
	default:
		doc, err = loadText(path)
	}
	if err != nil {
		return nil, err
	}
	doc.Source = path
	return doc, nil
}

func loadText(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brochure: %w", err)
	}
	return Parse(string(data)), nil
}

// loadPDF extracts plain text page by page. Each page is split on blank
// lines like a text brochure and its passages are tagged with the page.
func loadPDF(path string) (*Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	doc := &Document{}
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		doc.addParagraphs(content, fmt.Sprintf("page %d", i))
	}
	return doc, nil
}

func loadMarkdown(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read brochure: %w", err)
	}
	return ParseMarkdown(data), nil
}

// ParseMarkdown turns each top-level block (paragraph, list, quote,
// code) into a passage. Headings are not passages; they label the
// blocks that follow them.
func ParseMarkdown(src []byte) *Document {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	doc := &Document{}
	section := ""
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		body := blockText(n, src)
		if n.Kind() == ast.KindHeading {
			section = body
			continue
		}
		doc.add(body, section)
	}
	return doc
}

// blockText collects the raw source lines under a block node. Only block
// nodes carry line segments; inline children are covered by their parent.
func blockText(n ast.Node, src []byte) string {
	var lines []string
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if segs := n.Lines(); segs != nil && segs.Len() > 0 {
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				lines = append(lines, strings.TrimRight(string(seg.Value(src)), "\r\n"))
			}
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if c.Type() == ast.TypeBlock {
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Store caches the loaded brochure for the life of the process. The
// source file does not change at runtime unless an operator edits it,
// in which case [Store.Invalidate] (called by [Watch] or the admin API)
// forces a reload on the next read.
type Store struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	doc *Document
}

// NewStore creates a brochure store for path. Nothing is read until the
// first call to Document.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the brochure file path.
func (s *Store) Path() string {
	return s.path
}

// Document returns the cached brochure, loading it on first use. A
// missing or unreadable file yields an empty document (the assistant
// still answers non-factual questions), and that empty result is cached
// like any other.
func (s *Store) Document() *Document {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()
	if doc != nil {
		return doc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		return s.doc
	}

	doc, err := Load(s.path)
	if err != nil {
		s.logger.Warn("brochure unavailable, answers will be ungrounded",
			"path", s.path,
			"error", err,
		)
		doc = &Document{Source: s.path}
	} else {
		s.logger.Info("brochure loaded", "path", s.path, "passages", doc.Len())
	}
	s.doc = doc
	return doc
}

// Invalidate drops the cached document.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.doc = nil
	s.mu.Unlock()
	s.logger.Debug("brochure cache invalidated", "path", s.path)
}
