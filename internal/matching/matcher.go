// Package matching implements the torrent filter expression language: the
// lexer and parser that turn a filter string into a matcher tree, the
// per-type literal parsers, and the prefetch/pushdown analysis that plans
// the remote calls needed to evaluate the tree.
//
// Matcher evaluation is pure and performs no I/O of its own: leaf
// accessors read attribute values the evaluation driver has already
// prefetched into the item. This is what lets Analyze reason about a tree
// without touching any backend.
package matching

import (
	"strings"

	"rtctl/internal/fields"
)

// Matcher is one node of the filter tree. The variant set is closed:
// *Leaf, *AndGroup, *OrGroup and *Not.
type Matcher interface {
	matcher()
	// Match reports whether the item satisfies this subtree. It never
	// performs remote calls; errors come only from item accessors.
	Match(it fields.Item) (bool, error)
	// String returns the canonical text form of the subtree.
	String() string
}

// AndGroup matches when all terms match. An empty group matches
// everything (the AND identity).
type AndGroup struct {
	Terms []Matcher
}

func (*AndGroup) matcher() {}

func (a *AndGroup) Match(it fields.Item) (bool, error) {
	for _, t := range a.Terms {
		ok, err := t.Match(it)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (a *AndGroup) String() string {
	parts := make([]string, len(a.Terms))
	for i, t := range a.Terms {
		parts[i] = t.String()
	}
	return "[ " + strings.Join(parts, " ") + " ]"
}

// OrGroup matches when any term matches. An empty group matches nothing
// (the OR identity).
type OrGroup struct {
	Terms []Matcher
}

func (*OrGroup) matcher() {}

func (o *OrGroup) Match(it fields.Item) (bool, error) {
	for _, t := range o.Terms {
		ok, err := t.Match(it)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (o *OrGroup) String() string {
	parts := make([]string, len(o.Terms))
	for i, t := range o.Terms {
		parts[i] = t.String()
	}
	return "[ " + strings.Join(parts, " OR ") + " ]"
}

// Not inverts exactly one term.
type Not struct {
	Term Matcher
}

func (*Not) matcher() {}

func (n *Not) Match(it fields.Item) (bool, error) {
	ok, err := n.Term.Match(it)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n *Not) String() string {
	return "NOT " + n.Term.String()
}

// Leaf is one field/operator/value condition. The literal is parsed into
// a typed comparator at construction time; a literal that does not fit
// the field's value type never survives to evaluation.
type Leaf struct {
	Field *fields.Descriptor
	Op    Op

	lit string     // raw literal as written, for String()
	cmp comparator // typed comparison against the parsed value
}

func (*Leaf) matcher() {}

func (l *Leaf) Match(it fields.Item) (bool, error) {
	raw, err := l.Field.Accessor(it)
	if err != nil {
		return false, err
	}
	return l.cmp.match(l.Op, raw)
}

func (l *Leaf) String() string {
	return l.Field.Name + l.Op.String() + l.lit
}

// flattenAnd appends right to an AND run, merging nested AndGroups.
func flattenAnd(left, right Matcher) Matcher {
	var terms []Matcher
	if a, ok := left.(*AndGroup); ok {
		terms = append(terms, a.Terms...)
	} else {
		terms = append(terms, left)
	}
	if a, ok := right.(*AndGroup); ok {
		terms = append(terms, a.Terms...)
	} else {
		terms = append(terms, right)
	}
	return &AndGroup{Terms: terms}
}

// flattenOr appends right to an OR chain, merging nested OrGroups. Keeping
// chains flat is what makes three-or-more OR terms behave uniformly.
func flattenOr(left, right Matcher) Matcher {
	var terms []Matcher
	if o, ok := left.(*OrGroup); ok {
		terms = append(terms, o.Terms...)
	} else {
		terms = append(terms, left)
	}
	if o, ok := right.(*OrGroup); ok {
		terms = append(terms, o.Terms...)
	} else {
		terms = append(terms, right)
	}
	return &OrGroup{Terms: terms}
}
