// Package label extracts metadata and a flattened section rendering from a
// normalized SPL drug label.
//
// Extraction is a pure pass over one document: no goroutines, no shared
// state. Callers that process many labels fan out themselves; each Label is
// independent.
package label

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/beevik/etree"

	"github.com/dgallion1/splgest/internal/doctree"
	"github.com/dgallion1/splgest/internal/markup"
)

// ExtractionError wraps an unexpected failure of the metadata and section
// pass. The document yields no result.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return "extract label: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Result is everything extracted from one label. Metadata fields are
// flattened into the top level of the JSON form.
type Result struct {
	Metadata
	Sections    map[string]string `json:"sections"`
	SectionText string            `json:"sectionText"`

	// SectionKeys lists Sections keys in the order they were first seen.
	SectionKeys []string `json:"-"`
	// Tree is the section hierarchy the flattened fields were built from.
	Tree *doctree.Tree `json:"-"`
}

// Option configures a Label.
type Option func(*Label)

// WithLogger routes field-level diagnostics to log.
func WithLogger(log *slog.Logger) Option {
	return func(l *Label) { l.log = log }
}

// Label is one parsed, normalized document.
type Label struct {
	doc  *etree.Document
	tree *tree
	log  *slog.Logger
}

// New normalizes raw. Malformed markup returns a *markup.ParseError.
func New(raw []byte, opts ...Option) (*Label, error) {
	doc, err := markup.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc, opts...), nil
}

// FromDocument wraps an already normalized document.
func FromDocument(doc *etree.Document, opts ...Option) *Label {
	l := &Label{
		doc: doc,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Process resolves the metadata record and flattens the section tree.
func (l *Label) Process() (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &ExtractionError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if l.doc == nil {
		return nil, &ExtractionError{Err: errors.New("no document")}
	}
	root := l.doc.Root()
	if root == nil {
		return nil, &ExtractionError{Err: errors.New("document has no root element")}
	}
	if l.tree == nil || l.tree.root != root {
		l.tree = newTree(root)
	}

	meta := l.resolveMetadata()
	sections := l.buildSections()
	idx := flattenSections(sections)

	return &Result{
		Metadata:    meta,
		Sections:    idx.sections,
		SectionText: idx.fullText.String(),
		SectionKeys: idx.keys,
		Tree:        sections,
	}, nil
}

// Extract is New followed by Process.
func Extract(raw []byte, opts ...Option) (*Result, error) {
	l, err := New(raw, opts...)
	if err != nil {
		return nil, err
	}
	return l.Process()
}
