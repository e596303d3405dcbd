package matching

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"

	"rtctl/internal/fields"
)

// comparator holds the parsed value of a leaf condition and applies the
// comparison against a raw field value. One implementation per field
// kind; construction fails on a literal/type mismatch so evaluation
// never does.
type comparator interface {
	match(op Op, raw any) (bool, error)
	// prefilter renders an rtorrent-native pre-filter condition for the
	// leaf, or "" when the comparison cannot be soundly pushed down.
	prefilter(op Op, d *fields.Descriptor, caps Caps) string
}

// newLeaf builds a leaf matcher, parsing the literal according to the
// field's value type.
func newLeaf(d *fields.Descriptor, op Op, lit string, clock clockwork.Clock) (*Leaf, error) {
	valueErr := func(err error) error {
		return &ValueError{Field: d.Name, Literal: lit, Err: err}
	}
	orderedOnly := func() error {
		if op == OpEq || op == OpNe {
			return nil
		}
		return fmt.Errorf("%w: %s%s", ErrBadOperator, d.Name, op)
	}

	var cmp comparator
	switch d.Kind {
	case fields.String:
		if err := orderedOnly(); err != nil {
			return nil, err
		}
		p, err := newPattern(lit)
		if err != nil {
			return nil, valueErr(err)
		}
		cmp = &patternCmp{pat: p}

	case fields.FileList:
		if err := orderedOnly(); err != nil {
			return nil, err
		}
		p, err := newPattern(lit)
		if err != nil {
			return nil, valueErr(err)
		}
		cmp = &fileListCmp{pat: p}

	case fields.Tags:
		if err := orderedOnly(); err != nil {
			return nil, err
		}
		c, err := newTagsCmp(lit)
		if err != nil {
			return nil, valueErr(err)
		}
		cmp = c

	case fields.Bool:
		if err := orderedOnly(); err != nil {
			return nil, err
		}
		want, err := parseTruth(lit)
		if err != nil {
			return nil, valueErr(err)
		}
		cmp = &boolCmp{want: want}

	case fields.Number:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, valueErr(fmt.Errorf("%w: %q", errBadNumber, lit))
		}
		cmp = &numberCmp{val: f}

	case fields.ByteSize:
		n, err := parseByteSize(lit)
		if err != nil {
			return nil, valueErr(err)
		}
		cmp = &byteSizeCmp{bytes: n}

	case fields.Priority:
		n, err := parsePriority(lit)
		if err != nil {
			return nil, valueErr(err)
		}
		cmp = &numberCmp{val: float64(n)}

	case fields.Time, fields.TimeDelayed:
		c, newOp, err := newTimeCmp(lit, op, clock, d.Kind == fields.TimeDelayed)
		if err != nil {
			return nil, valueErr(err)
		}
		op = newOp
		cmp = c

	case fields.Duration:
		c, err := newDurationCmp(lit, clock)
		if err != nil {
			return nil, valueErr(err)
		}
		cmp = c

	default:
		return nil, fmt.Errorf("unhandled field kind %v", d.Kind)
	}

	return &Leaf{Field: d, Op: op, lit: lit, cmp: cmp}, nil
}

// rawString coerces a field value to a string for pattern comparison.
func rawString(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// rawFloat coerces a field value to a float for ordered comparison.
// Unset values count as zero, mirroring rtorrent's empty custom fields.
func rawFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("non-numeric field value %T", raw)
	}
}

// patternCmp compares string fields against a glob or regex.
type patternCmp struct {
	pat *pattern
}

func (c *patternCmp) match(op Op, raw any) (bool, error) {
	ok := c.pat.matches(rawString(raw))
	if op == OpNe {
		return !ok, nil
	}
	return ok, nil
}

// fileListCmp matches when any file path in the item satisfies the pattern.
type fileListCmp struct {
	pat *pattern
}

func (c *fileListCmp) match(op Op, raw any) (bool, error) {
	paths, _ := raw.([]string)
	found := false
	for _, p := range paths {
		if c.pat.matches(p) {
			found = true
			break
		}
	}
	if op == OpNe {
		return !found, nil
	}
	return found, nil
}

// tagsCmp compares tag-set fields. The default semantics are OR-of-tags:
// the item matches when ANY listed tag is present. The ":tag,..." exact
// form instead requires the item's tag set to equal the listed set, and
// ":" alone (or an empty literal) means "no tags at all".
type tagsCmp struct {
	pats  []*pattern
	names []string // lowercased literal tokens, for exact-set compare
	exact bool
}

func newTagsCmp(lit string) (*tagsCmp, error) {
	c := &tagsCmp{}
	rest := lit
	if strings.HasPrefix(rest, ":") {
		c.exact = true
		rest = rest[1:]
	}
	tokens := strings.FieldsFunc(strings.ToLower(rest), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(tokens) == 0 {
		// ":" or empty literal: matches only untagged items.
		c.exact = true
		return c, nil
	}
	for _, tok := range tokens {
		p, err := newPattern(tok)
		if err != nil {
			return nil, err
		}
		c.pats = append(c.pats, p)
		c.names = append(c.names, tok)
	}
	return c, nil
}

func (c *tagsCmp) eq(raw any) bool {
	tags, _ := raw.([]string)
	if c.exact {
		if len(tags) != len(c.names) {
			return false
		}
		have := make(map[string]bool, len(tags))
		for _, t := range tags {
			have[strings.ToLower(t)] = true
		}
		for _, want := range c.names {
			if !have[want] {
				return false
			}
		}
		return true
	}
	for _, p := range c.pats {
		for _, t := range tags {
			if p.matches(t) {
				return true
			}
		}
	}
	return false
}

func (c *tagsCmp) match(op Op, raw any) (bool, error) {
	ok := c.eq(raw)
	if op == OpNe {
		return !ok, nil
	}
	return ok, nil
}

// boolCmp compares boolean flags.
type boolCmp struct {
	want bool
}

func (c *boolCmp) match(op Op, raw any) (bool, error) {
	val, err := rawFloat(raw)
	if err != nil {
		return false, err
	}
	ok := (val != 0) == c.want
	if op == OpNe {
		return !ok, nil
	}
	return ok, nil
}

// numberCmp compares plain numeric fields with standard ordering.
type numberCmp struct {
	val float64
}

func (c *numberCmp) match(op Op, raw any) (bool, error) {
	val, err := rawFloat(raw)
	if err != nil {
		return false, err
	}
	return compareOrdered(op, val, c.val), nil
}

// byteSizeCmp compares byte counts.
type byteSizeCmp struct {
	bytes int64
}

func (c *byteSizeCmp) match(op Op, raw any) (bool, error) {
	val, err := rawFloat(raw)
	if err != nil {
		return false, err
	}
	return compareOrdered(op, val, float64(c.bytes)), nil
}

// timeCmp compares epoch-timestamp fields. Relative deltas keep the
// unresolved offset and resolve against the clock at every evaluation, so
// "completed>1h" stays correct however long after parsing it runs. The
// ordering operator has already been inverted for the relative form (see
// Op.invert); notNull marks fields whose zero value means "never", which
// match only an explicit =0 comparison.
type timeCmp struct {
	offset   int64 // relative seconds before now; valid when relative
	abs      int64 // absolute epoch bound; valid when !relative
	relative bool
	notNull  bool
	clock    clockwork.Clock
}

func newTimeCmp(lit string, op Op, clock clockwork.Clock, notNull bool) (*timeCmp, Op, error) {
	c := &timeCmp{notNull: notNull, clock: clock}
	if delta, ok := parseDelta(lit); ok {
		c.offset = delta
		c.relative = true
		return c, op.invert(), nil
	}
	abs, err := parseAbsoluteTime(lit)
	if err != nil {
		return nil, op, err
	}
	c.abs = abs
	return c, op, nil
}

// bound returns the epoch value the field is compared against, resolved
// fresh for relative deltas.
func (c *timeCmp) bound() int64 {
	if c.relative {
		return c.clock.Now().Unix() - c.offset
	}
	return c.abs
}

func (c *timeCmp) match(op Op, raw any) (bool, error) {
	val, err := rawFloat(raw)
	if err != nil {
		return false, err
	}
	ref := c.bound()
	if c.notNull && ref != 0 && val == 0 {
		// Timestamp was never set; only =0 may match.
		return false, nil
	}
	return compareOrdered(op, val, float64(ref)), nil
}

// durationCmp compares duration-in-seconds fields. A relative literal IS
// the duration (no operator inversion); an absolute timestamp literal
// compares against the time elapsed since it, resolved at evaluation
// time. A nil or zero raw value means "not applicable" and matches only
// the explicit zero-equality form.
type durationCmp struct {
	zero     bool  // literal was "0" or empty
	offset   int64 // duration in seconds; valid when delta form
	abs      int64 // epoch timestamp; valid when absolute form
	absolute bool
	clock    clockwork.Clock
}

func newDurationCmp(lit string, clock clockwork.Clock) (*durationCmp, error) {
	c := &durationCmp{clock: clock}
	if lit == "" || lit == "0" {
		c.zero = true
		return c, nil
	}
	if delta, ok := parseDelta(lit); ok {
		c.offset = delta
		return c, nil
	}
	abs, err := parseAbsoluteTime(lit)
	if err != nil {
		return nil, err
	}
	c.abs = abs
	c.absolute = true
	return c, nil
}

func (c *durationCmp) value() int64 {
	switch {
	case c.zero:
		return 0
	case c.absolute:
		return c.clock.Now().Unix() - c.abs
	default:
		return c.offset
	}
}

func (c *durationCmp) match(op Op, raw any) (bool, error) {
	ref := c.value()
	if raw == nil {
		// Never match "N/A" items, except against an explicit zero.
		return ref == 0 && op == OpEq, nil
	}
	val, err := rawFloat(raw)
	if err != nil {
		return false, err
	}
	if ref != 0 && val == 0 {
		return false, nil
	}
	return compareOrdered(op, val, float64(ref)), nil
}
