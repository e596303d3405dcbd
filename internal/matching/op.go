package matching

// Op is a comparison operator in a filter condition.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	default:
		return "?"
	}
}

// invert flips an ordering operator around the comparison point. Used for
// relative time deltas, where "completed>2d" reads as "completed more than
// two days ago", i.e. a timestamp BELOW the now-2d bound.
func (o Op) invert() Op {
	switch o {
	case OpGt:
		return OpLe
	case OpGe:
		return OpLt
	case OpLt:
		return OpGe
	case OpLe:
		return OpGt
	default:
		return o
	}
}

// operatorGlyphs maps condition glyphs to operators, longest first so that
// two-character forms win over their one-character prefixes. The ==, <>,
// =+ and =- forms are legacy aliases kept for compatibility.
var operatorGlyphs = []struct {
	glyph string
	op    Op
}{
	{"!=", OpNe},
	{"<>", OpNe},
	{"<=", OpLe},
	{">=", OpGe},
	{"==", OpEq},
	{"=+", OpGt},
	{"=-", OpLe},
	{"=", OpEq},
	{"<", OpLt},
	{">", OpGt},
}

// compareOrdered applies an ordering operator to two float64 values.
func compareOrdered(op Op, val, ref float64) bool {
	switch op {
	case OpEq:
		return val == ref
	case OpNe:
		return val != ref
	case OpGt:
		return val > ref
	case OpGe:
		return val >= ref
	case OpLt:
		return val < ref
	case OpLe:
		return val <= ref
	default:
		return false
	}
}
