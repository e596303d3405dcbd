package matching

import (
	"errors"
	"strings"

	"github.com/jonboulle/clockwork"

	"rtctl/internal/fields"
)

// Parser turns filter expressions into matcher trees.
//
// Grammar (EBNF):
//
//	expr      = or_expr EOF
//	or_expr   = and_expr ( "OR" and_expr )*
//	and_expr  = term+
//	term      = "!" term | "NOT" term | "[" or_expr "]" | condition
//	condition = [ field_name operator ] value_literal
//
// Precedence (highest to lowest):
//  1. Brackets [ ]
//  2. NOT / ! (prefix; binds the single following term, so "! a b"
//     parses as (NOT a) AND b — bracket the run for NOT (a AND b))
//  3. Implicit AND (adjacency)
//  4. OR
//
// A bare value literal is shorthand for a glob match on the default
// field: "ubuntu*" means name=ubuntu*.
type Parser struct {
	registry     *fields.Registry
	clock        clockwork.Clock
	defaultField string
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock injects the clock used to resolve relative time literals at
// evaluation time. Tests pass a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(p *Parser) { p.clock = c }
}

// WithDefaultField changes the field bare literals are matched against.
func WithDefaultField(name string) Option {
	return func(p *Parser) { p.defaultField = name }
}

// NewParser creates a parser over the given field registry.
func NewParser(reg *fields.Registry, opts ...Option) *Parser {
	p := &Parser{
		registry:     reg,
		clock:        clockwork.NewRealClock(),
		defaultField: "name",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses a filter expression into a matcher tree. The first parse
// freezes the field registry against further external registration.
func (p *Parser) Parse(input string) (Matcher, error) {
	p.registry.Freeze()

	run := &parseRun{Parser: p, lex: NewLexer(input)}
	if err := run.advance(); err != nil {
		return nil, err
	}
	if run.cur.Kind == TokEOF {
		return nil, newSyntaxError(0, ErrEmptyQuery, "empty query")
	}

	m, err := run.parseOr()
	if err != nil {
		return nil, err
	}
	if run.cur.Kind != TokEOF {
		if run.cur.Kind == TokRBracket {
			return nil, newSyntaxError(run.cur.Pos, ErrUnbalancedBrackets, "unmatched closing bracket")
		}
		return nil, newSyntaxError(run.cur.Pos, ErrTrailingGarbage, "unexpected token %s", run.cur.Kind)
	}
	return m, nil
}

// parseRun is the per-invocation parser state.
type parseRun struct {
	*Parser
	lex *Lexer
	cur Token
}

func (r *parseRun) advance() error {
	tok, err := r.lex.Next()
	if err != nil {
		return err
	}
	r.cur = tok
	return nil
}

// parseOr parses: or_expr = and_expr ( "OR" and_expr )*
func (r *parseRun) parseOr() (Matcher, error) {
	left, err := r.parseAnd()
	if err != nil {
		return nil, err
	}
	for r.cur.Kind == TokOr {
		if err := r.advance(); err != nil {
			return nil, err
		}
		right, err := r.parseAnd()
		if err != nil {
			return nil, err
		}
		left = flattenOr(left, right)
	}
	return left, nil
}

// parseAnd parses: and_expr = term+ (adjacency is implicit AND)
func (r *parseRun) parseAnd() (Matcher, error) {
	left, err := r.parseTerm()
	if err != nil {
		return nil, err
	}
	for r.isTermStart() {
		right, err := r.parseTerm()
		if err != nil {
			return nil, err
		}
		left = flattenAnd(left, right)
	}
	return left, nil
}

func (r *parseRun) isTermStart() bool {
	switch r.cur.Kind {
	case TokNot, TokLBracket, TokCond:
		return true
	default:
		return false
	}
}

// parseTerm parses: term = "!" term | "NOT" term | "[" or_expr "]" | condition
func (r *parseRun) parseTerm() (Matcher, error) {
	switch r.cur.Kind {
	case TokNot:
		pos := r.cur.Pos
		if err := r.advance(); err != nil {
			return nil, err
		}
		if !r.isTermStart() {
			return nil, newSyntaxError(pos, ErrDanglingNot, "expected expression after NOT")
		}
		term, err := r.parseTerm()
		if err != nil {
			return nil, err
		}
		return &Not{Term: term}, nil

	case TokLBracket:
		openPos := r.cur.Pos
		if err := r.advance(); err != nil {
			return nil, err
		}
		if r.cur.Kind == TokRBracket {
			return nil, newSyntaxError(openPos, ErrEmptyQuery, "empty brackets")
		}
		m, err := r.parseOr()
		if err != nil {
			return nil, err
		}
		if r.cur.Kind != TokRBracket {
			return nil, newSyntaxError(openPos, ErrUnbalancedBrackets, "unmatched opening bracket")
		}
		if err := r.advance(); err != nil {
			return nil, err
		}
		return m, nil

	case TokCond:
		return r.parseCondition()

	case TokOr:
		return nil, newSyntaxError(r.cur.Pos, ErrTrailingGarbage, "unexpected OR")
	case TokRBracket:
		return nil, newSyntaxError(r.cur.Pos, ErrUnbalancedBrackets, "unmatched closing bracket")
	default:
		return nil, newSyntaxError(r.cur.Pos, ErrTrailingGarbage, "unexpected end of query")
	}
}

// parseCondition builds a leaf from the current condition token.
func (r *parseRun) parseCondition() (Matcher, error) {
	tok := r.cur
	if err := r.advance(); err != nil {
		return nil, err
	}

	name := tok.Field
	op := tok.Op
	if !tok.HasOp {
		name = r.defaultField
		op = OpEq
	}

	d, err := r.registry.Lookup(name)
	if err != nil {
		return nil, newSyntaxError(tok.Pos, err, "unknown field %q", name)
	}

	leaf, err := newLeaf(d, op, tok.Lit, r.clock)
	if err != nil {
		return nil, newSyntaxError(tok.Pos, err, "condition %s: %v", tok.Lit, err)
	}
	return leaf, nil
}

// JoinArgs assembles CLI-style condition arguments into one expression
// string, quoting values that contain whitespace so that an argument like
// "name=[ARCH] live.iso" survives as a single condition.
func JoinArgs(args []string) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if !strings.ContainsAny(arg, " \t") {
		return arg
	}
	switch arg {
	case "OR", "NOT":
		return arg
	}
	// Quote only the value part so the field/operator split still works.
	if field, op, hasOp := splitCondition(arg); hasOp {
		return field + op + `"` + strings.ReplaceAll(arg[len(field)+len(op):], `"`, `\"`) + `"`
	}
	return `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
}

// splitCondition finds the field/operator prefix of a condition argument.
func splitCondition(arg string) (field, op string, ok bool) {
	i := 0
	for i < len(arg) && isIdentChar(arg[i]) {
		i++
	}
	if i == 0 {
		return "", "", false
	}
	rest := arg[i:]
	for _, g := range operatorGlyphs {
		if strings.HasPrefix(rest, g.glyph) {
			return arg[:i], g.glyph, true
		}
	}
	return "", "", false
}

// IsSyntaxError reports whether err is a filter syntax error, as opposed
// to an evaluation-time failure.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}
