package doctree

// Tree is the section hierarchy of one label, in document order.
type Tree struct {
	Sections []*Node // Top-level sections under the structured body
}

// Node is a recursive section in the label.
type Node struct {
	Code     string  // First displayName found in the section subtree
	Coded    bool    // Whether any displayName was found (Code may still be "")
	Title    string  // Leading text of the section's own <title>
	Text     string  // Body text owned by this section, excluding subsections
	Children []*Node // Subsections
}

// HasChildren reports whether the section nests further sections.
func (n *Node) HasChildren() bool {
	return len(n.Children) > 0
}

// Passage is a sized slice of section text with structural context, ready for indexing.
type Passage struct {
	Text       string   `json:"text"`
	Index      int      `json:"index"`
	Breadcrumb []string `json:"breadcrumb"` // e.g. ["Lisinopril", "warningsAndPrecautions"]
	SectionKey string   `json:"section_key"`
}
