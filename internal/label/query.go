package label

import (
	"sort"

	"github.com/beevik/etree"
)

type axis int

const (
	childAxis axis = iota
	descendantAxis
)

// Step selects elements by local name along one axis.
type Step struct {
	axis axis
	name string
}

// Child matches direct children named name.
func Child(name string) Step { return Step{axis: childAxis, name: name} }

// Desc matches descendants (at any depth) named name.
func Desc(name string) Step { return Step{axis: descendantAxis, name: name} }

// Path is a sequence of steps evaluated left to right.
type Path []Step

// tree numbers every element in document order so that query results can be
// deduplicated and ordered the same way regardless of how contexts overlap.
type tree struct {
	root  *etree.Element
	order map[*etree.Element]int
}

func newTree(root *etree.Element) *tree {
	t := &tree{root: root, order: make(map[*etree.Element]int)}
	n := 0
	var number func(*etree.Element)
	number = func(e *etree.Element) {
		t.order[e] = n
		n++
		for _, c := range e.ChildElements() {
			number(c)
		}
	}
	number(root)
	return t
}

// selectAll evaluates p from ctx and returns matches in document order.
func (t *tree) selectAll(ctx *etree.Element, p Path) []*etree.Element {
	set := []*etree.Element{ctx}
	for _, st := range p {
		set = t.step(set, st)
		if len(set) == 0 {
			return nil
		}
	}
	return set
}

func (t *tree) step(ctxs []*etree.Element, st Step) []*etree.Element {
	seen := make(map[*etree.Element]bool)
	var out []*etree.Element
	add := func(e *etree.Element) {
		if e.Tag == st.name && !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}

	for _, ctx := range ctxs {
		switch st.axis {
		case childAxis:
			for _, c := range ctx.ChildElements() {
				add(c)
			}
		case descendantAxis:
			var walk func(*etree.Element)
			walk = func(e *etree.Element) {
				for _, c := range e.ChildElements() {
					add(c)
					walk(c)
				}
			}
			walk(ctx)
		}
	}

	if len(ctxs) > 1 {
		sort.Slice(out, func(i, j int) bool { return t.order[out[i]] < t.order[out[j]] })
	}
	return out
}

// first returns the first match of p from ctx, or nil.
func (t *tree) first(ctx *etree.Element, p Path) *etree.Element {
	if m := t.selectAll(ctx, p); len(m) > 0 {
		return m[0]
	}
	return nil
}

// firstAttr returns the attribute key of the first match of p that carries it.
func (t *tree) firstAttr(ctx *etree.Element, p Path, key string) (string, bool) {
	for _, e := range t.selectAll(ctx, p) {
		if v, ok := attr(e, key); ok {
			return v, true
		}
	}
	return "", false
}

// attr looks up an unprefixed attribute.
func attr(e *etree.Element, key string) (string, bool) {
	for _, a := range e.Attr {
		if a.Space == "" && a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// firstAttrInSubtree finds key on e or any descendant, in document order.
func firstAttrInSubtree(e *etree.Element, key string) (string, bool) {
	if v, ok := attr(e, key); ok {
		return v, true
	}
	for _, c := range e.ChildElements() {
		if v, ok := firstAttrInSubtree(c, key); ok {
			return v, true
		}
	}
	return "", false
}

// textFragments returns every character-data fragment under e, in document order.
func textFragments(e *etree.Element) []string {
	var frags []string
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				frags = append(frags, t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(e)
	return frags
}
