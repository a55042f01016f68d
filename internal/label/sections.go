package label

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/dgallion1/splgest/internal/doctree"
)

var (
	topSectionsPath = Path{Child("component"), Child("structuredBody"), Child("component"), Child("section")}
	subSectionsPath = Path{Child("component"), Child("section")}
)

// buildSections reads the structured body into a section tree.
func (l *Label) buildSections() *doctree.Tree {
	tree := &doctree.Tree{}
	for _, sec := range l.tree.selectAll(l.tree.root, topSectionsPath) {
		tree.Sections = append(tree.Sections, l.buildNode(sec))
	}
	return tree
}

func (l *Label) buildNode(sec *etree.Element) *doctree.Node {
	n := &doctree.Node{}
	n.Code, n.Coded = firstAttrInSubtree(sec, "displayName")
	if title := sec.SelectElement("title"); title != nil {
		n.Title = title.Text()
	}
	n.Text = sectionText(sec)
	for _, child := range l.tree.selectAll(sec, subSectionsPath) {
		n.Children = append(n.Children, l.buildNode(child))
	}
	return n
}

// sectionText joins every text fragment under the section's own <text>
// element(s) with a single space and restricts the result to ASCII.
func sectionText(sec *etree.Element) string {
	var frags []string
	for _, text := range sec.SelectElements("text") {
		frags = append(frags, textFragments(text)...)
	}
	if len(frags) == 0 {
		return ""
	}
	return ASCIIOnly(strings.Join(frags, " "))
}

// sectionIndex is the flattened view of a section tree.
type sectionIndex struct {
	sections map[string]string
	keys     []string // first-insertion order of sections
	fullText strings.Builder
}

// flattenSections walks the top-level sections in order. Every section
// contributes "name\ntext" to the full text, followed by a composite block
// (title, text and the recursive child text) that is also accumulated under
// the section's key. Sections whose keys collide are concatenated.
func flattenSections(tree *doctree.Tree) *sectionIndex {
	idx := &sectionIndex{sections: make(map[string]string)}

	for i, sec := range tree.Sections {
		name := fmt.Sprintf("section%d", i)
		if sec.Coded {
			name = StripText(sec.Code)
		}

		idx.fullText.WriteString(name + "\n" + sec.Text)

		inner := ""
		if sec.HasChildren() {
			inner = childText(sec.Children)
		}

		key := SectionKey(name)
		if existing, ok := idx.sections[key]; ok {
			block := sec.Title + "\n" + sec.Text + "\n" + inner
			idx.fullText.WriteString(block)
			idx.sections[key] = existing + block
			continue
		}

		block := name + "\n" + sec.Text + "\n" + inner
		idx.fullText.WriteString(block)
		idx.sections[key] = block
		idx.keys = append(idx.keys, key)
	}

	return idx
}

// childText renders nested sections depth first: each child's title, its own
// text between newlines, then its descendants.
func childText(children []*doctree.Node) string {
	var b strings.Builder
	for _, c := range children {
		b.WriteString(c.Title)
		b.WriteString("\n" + c.Text + "\n")
		if c.HasChildren() {
			b.WriteString(childText(c.Children))
		}
	}
	return b.String()
}
