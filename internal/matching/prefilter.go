package matching

import (
	"fmt"
	"strings"

	"rtctl/internal/fields"
)

// Caps are the backend capability flags the analyzer consults. They come
// from probing the remote method list; a backend without the filtered
// multicall primitive gets no pushdown at all.
type Caps struct {
	FilteredMulticall bool // d.multicall.filtered is available
	ContainsI         bool // string.contains_i is available
}

// Plan is the prefetch plan for one matcher tree: the remote getters that
// must be fetched to evaluate it, and an optional server-side pre-filter.
//
// The pre-filter is a superset filter: it may pass items the tree later
// rejects but never excludes an item the tree would accept. That
// asymmetry is the invariant every emission below must preserve.
type Plan struct {
	RequiredFields []string
	Prefilter      string
}

// Analyze walks a matcher tree and computes its prefetch plan.
func Analyze(m Matcher, caps Caps) Plan {
	plan := Plan{}

	seen := make(map[string]bool)
	walkLeaves(m, func(l *Leaf) {
		for _, req := range l.Field.Requires {
			if !seen[req] {
				seen[req] = true
				plan.RequiredFields = append(plan.RequiredFields, req)
			}
		}
	})

	if caps.FilteredMulticall {
		plan.Prefilter = prefilterExpr(m, caps)
	}
	return plan
}

// walkLeaves visits every leaf in document order.
func walkLeaves(m Matcher, visit func(*Leaf)) {
	switch n := m.(type) {
	case *Leaf:
		visit(n)
	case *AndGroup:
		for _, t := range n.Terms {
			walkLeaves(t, visit)
		}
	case *OrGroup:
		for _, t := range n.Terms {
			walkLeaves(t, visit)
		}
	case *Not:
		walkLeaves(n.Term, visit)
	}
}

// prefilterExpr attempts a structural translation of the tree into the
// backend's filter syntax. Translation is tried only for plain
// conjunctions of leaves: any Or or Not anywhere disables pushdown, the
// conservative policy that keeps the superset guarantee trivial. Leaves
// that cannot be expressed contribute nothing (the conjunction just
// over-admits more).
func prefilterExpr(m Matcher, caps Caps) string {
	leaves, ok := conjunctionLeaves(m)
	if !ok {
		return ""
	}
	var conds []string
	for _, l := range leaves {
		if cond := l.cmp.prefilter(l.Op, l.Field, caps); cond != "" {
			conds = append(conds, cond)
		}
	}
	switch len(conds) {
	case 0:
		return ""
	case 1:
		return conds[0]
	default:
		quoted := make([]string, len(conds))
		for i, c := range conds {
			quoted[i] = `"` + strings.ReplaceAll(c, `"`, `\"`) + `"`
		}
		return "and=" + strings.Join(quoted, ",")
	}
}

// conjunctionLeaves flattens a pure Leaf/And tree into its leaves.
func conjunctionLeaves(m Matcher) ([]*Leaf, bool) {
	switch n := m.(type) {
	case *Leaf:
		return []*Leaf{n}, true
	case *AndGroup:
		var out []*Leaf
		for _, t := range n.Terms {
			leaves, ok := conjunctionLeaves(t)
			if !ok {
				return nil, false
			}
			out = append(out, leaves...)
		}
		return out, true
	default:
		return nil, false
	}
}

// prefilterKey strips the trailing "=" from a prefilter attribute for the
// value= comparison forms.
func prefilterKey(d *fields.Descriptor) string {
	return strings.TrimSuffix(d.Prefilter, "=")
}

// Per-comparator emission. Each form over-admits or is exact, never
// under-admits.

func (c *patternCmp) prefilter(op Op, d *fields.Descriptor, caps Caps) string {
	if d.Prefilter == "" || op != OpEq {
		return ""
	}
	if c.pat.re == nil && c.pat.raw == "" {
		return "equal=" + d.Prefilter + ",cat="
	}
	if !caps.ContainsI {
		return ""
	}
	needle, ok := c.pat.literalNeedle()
	if !ok {
		return ""
	}
	return fmt.Sprintf(`string.contains_i=$%s,"%s"`, d.Prefilter, strings.ReplaceAll(needle, `"`, `\"`))
}

func (c *fileListCmp) prefilter(Op, *fields.Descriptor, Caps) string {
	return ""
}

func (c *tagsCmp) prefilter(op Op, d *fields.Descriptor, caps Caps) string {
	if d.Prefilter == "" || op != OpEq {
		return ""
	}
	if c.exact && len(c.names) == 0 {
		return "equal=" + d.Prefilter + ",cat="
	}
	// A single plain tag can be pushed as a substring test; multiple tags
	// have OR semantics a conjunction cannot express soundly.
	if !c.exact && len(c.names) == 1 && caps.ContainsI && !strings.ContainsAny(c.names[0], "*?[") {
		return fmt.Sprintf(`string.contains_i=$%s,"%s"`, d.Prefilter, c.names[0])
	}
	return ""
}

func (c *boolCmp) prefilter(op Op, d *fields.Descriptor, _ Caps) string {
	if d.Prefilter == "" {
		return ""
	}
	want := c.want
	if op == OpNe {
		want = !want
	}
	val := 0
	if want {
		val = 1
	}
	return fmt.Sprintf("equal=%s,value=%d", prefilterKey(d), val)
}

func (c *numberCmp) prefilter(op Op, d *fields.Descriptor, _ Caps) string {
	if d.Prefilter == "" {
		return ""
	}
	scale := d.Scale
	if scale == 0 {
		scale = 1
	}
	return orderedPrefilter(op, prefilterKey(d), int64(c.val*float64(scale)))
}

func (c *byteSizeCmp) prefilter(op Op, d *fields.Descriptor, _ Caps) string {
	if d.Prefilter == "" {
		return ""
	}
	return orderedPrefilter(op, prefilterKey(d), c.bytes)
}

// orderedPrefilter renders an ordered comparison, widened by one so that
// inclusive bounds over-admit (rtorrent only has strict greater/less).
func orderedPrefilter(op Op, key string, val int64) string {
	var cmp string
	switch op {
	case OpEq:
		cmp = "equal"
	case OpGt:
		cmp = "greater"
	case OpGe:
		cmp, val = "greater", val-1
	case OpLt:
		cmp = "less"
	case OpLe:
		cmp, val = "less", val+1
	default:
		return ""
	}
	return fmt.Sprintf("%s=value=$%s,value=%d", cmp, key, val)
}

func (c *timeCmp) prefilter(op Op, d *fields.Descriptor, _ Caps) string {
	if d.Prefilter == "" {
		return ""
	}
	bound := c.bound()
	if bound == 0 {
		return ""
	}
	// A day of fuzz in the over-admitting direction absorbs timezone and
	// clock differences between the tool and the backend.
	const fuzz = 86400
	switch op {
	case OpGt, OpGe:
		return fmt.Sprintf("greater=value=$%s,value=%d", prefilterKey(d), bound-fuzz)
	case OpLt, OpLe:
		return fmt.Sprintf("less=value=$%s,value=%d", prefilterKey(d), bound+fuzz)
	default:
		return ""
	}
}

func (c *durationCmp) prefilter(Op, *fields.Descriptor, Caps) string {
	// Duration fields are derived locally from timestamps; there is no
	// backend attribute carrying the duration itself.
	return ""
}
