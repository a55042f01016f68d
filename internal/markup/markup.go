// Package markup turns raw SPL XML into a namespace-free element tree.
//
// Drug labels declare the HL7 v3 default namespace and often a handful of
// prefixed ones (xsi, sdtc). Extraction only ever matches on local names, so
// Normalize drops every prefix and namespace declaration up front and strips
// the blank text that pretty-printed files carry between elements.
package markup

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// ParseError reports input that is not well-formed XML.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse markup: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// annotationSpaces are attribute prefixes whose attributes are schema or
// binding annotations rather than label content.
var annotationSpaces = map[string]bool{
	"xmlns": true,
	"xsi":   true,
	"py":    true,
}

// Normalize parses raw and returns the normalized document. The input is
// never repaired: unbalanced tags, truncated input or an undecodable
// encoding yield a *ParseError.
func Normalize(raw []byte) (*etree.Document, error) {
	if err := checkWellFormed(raw); err != nil {
		return nil, &ParseError{Err: err}
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, &ParseError{Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &ParseError{Err: errors.New("no root element")}
	}

	stripElement(root)
	return doc, nil
}

// NormalizeString normalizes raw and serializes the result with a UTF-8 XML
// declaration.
func NormalizeString(raw []byte) (string, error) {
	doc, err := Normalize(raw)
	if err != nil {
		return "", err
	}

	// The source declaration may name an encoding we already decoded away.
	for i := len(doc.Child) - 1; i >= 0; i-- {
		if p, ok := doc.Child[i].(*etree.ProcInst); ok && p.Target == "xml" {
			doc.RemoveChildAt(i)
		}
	}
	doc.InsertChildAt(0, etree.NewProcInst("xml", `version="1.0" encoding="UTF-8"`))

	return doc.WriteToString()
}

// checkWellFormed runs a strict token pass. etree reads raw tokens and
// tolerates some mismatches that must be rejected here.
func checkWellFormed(raw []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	sawElement := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
	if !sawElement {
		return errors.New("no root element")
	}
	return nil
}

func stripElement(e *etree.Element) {
	e.Space = ""

	attrs := e.Attr[:0]
	for _, a := range e.Attr {
		if annotationSpaces[a.Space] || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		if a.Space != "xml" {
			a.Space = ""
		}
		attrs = append(attrs, a)
	}
	e.Attr = attrs

	// Blank text is only dropped from element-only content; mixed content
	// keeps the spaces between its inline elements.
	mixed := false
	for _, tok := range e.Child {
		if cd, ok := tok.(*etree.CharData); ok && !cd.IsWhitespace() {
			mixed = true
			break
		}
	}

	for i := len(e.Child) - 1; i >= 0; i-- {
		switch t := e.Child[i].(type) {
		case *etree.CharData:
			if !mixed && t.IsWhitespace() {
				e.RemoveChildAt(i)
			}
		case *etree.Element:
			stripElement(t)
		}
	}
}
