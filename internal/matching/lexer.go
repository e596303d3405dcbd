package matching

import (
	"strings"
)

// TokenKind identifies the type of lexical token.
type TokenKind int

const (
	TokEOF      TokenKind = iota
	TokCond               // one condition word: field/operator/literal or bare literal
	TokOr                 // OR keyword
	TokNot                // NOT keyword or !
	TokLBracket           // [ used for grouping
	TokRBracket           // ] closing a group
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "EOF"
	case TokCond:
		return "COND"
	case TokOr:
		return "OR"
	case TokNot:
		return "NOT"
	case TokLBracket:
		return "["
	case TokRBracket:
		return "]"
	default:
		return "UNKNOWN"
	}
}

// Token is one lexical unit of the filter grammar. Condition tokens are
// pre-split into field, operator and literal; the literal has quotes
// stripped but keeps regex delimiters so the value parser can tell the
// forms apart.
type Token struct {
	Kind  TokenKind
	Field string // empty for a bare (unnamed) condition
	Op    Op
	HasOp bool
	Lit   string
	Pos   int // byte offset in input for error reporting
}

// Lexer tokenizes a filter expression.
//
// Bracket handling is literal-aware: [ and ] are structural grouping
// tokens only at a term boundary. Inside a condition word a [ opens a
// glob character class and the matching ] belongs to it, so patterns like
// name=[Aa]rch* lex as one condition. A ] inside a word with no open [
// ends the word, which is what closes groups written without a trailing
// space (ratio>1]).
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Next returns the next token.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	startPos := l.pos
	switch ch := l.input[l.pos]; ch {
	case '[':
		l.pos++
		return Token{Kind: TokLBracket, Pos: startPos}, nil
	case ']':
		l.pos++
		return Token{Kind: TokRBracket, Pos: startPos}, nil
	case '!':
		// A lone ! is negation. A != with no field name in front falls
		// through to scanCondition, which finds no leading identifier
		// and treats the whole word as a default-field glob literal.
		if l.pos+1 >= len(l.input) || l.input[l.pos+1] != '=' {
			l.pos++
			return Token{Kind: TokNot, Pos: startPos}, nil
		}
	}

	return l.scanCondition()
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

// scanCondition scans one condition word. It first tries to split off a
// leading field name and operator glyph; the remainder (or the whole word
// when no operator is present) is the value literal. Quoted segments and
// regex literals may contain whitespace and brackets.
func (l *Lexer) scanCondition() (Token, error) {
	startPos := l.pos

	field, op, hasOp := l.scanFieldOp()

	lit, quoted, err := l.scanLiteral()
	if err != nil {
		return Token{}, err
	}

	if !hasOp && !quoted {
		// Bare keywords. These are case-sensitive: "or" and "not" stay
		// ordinary name patterns, and a quoted "OR" is a literal.
		switch lit {
		case "OR":
			return Token{Kind: TokOr, Pos: startPos}, nil
		case "NOT":
			return Token{Kind: TokNot, Pos: startPos}, nil
		}
	}

	return Token{
		Kind:  TokCond,
		Field: field,
		Op:    op,
		HasOp: hasOp,
		Lit:   lit,
		Pos:   startPos,
	}, nil
}

// scanFieldOp consumes "field<op>" when the word starts with an
// identifier followed by an operator glyph. On no match the position is
// restored and the whole word is a bare literal.
func (l *Lexer) scanFieldOp() (field string, op Op, ok bool) {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		return "", 0, false
	}
	name := l.input[start:l.pos]

	rest := l.input[l.pos:]
	for _, g := range operatorGlyphs {
		if strings.HasPrefix(rest, g.glyph) {
			l.pos += len(g.glyph)
			return name, g.op, true
		}
	}

	l.pos = start
	return "", 0, false
}

// scanLiteral scans a value literal up to the next term boundary. The
// quoted result reports whether any part of the literal was quoted, so a
// quoted "OR" is not mistaken for the keyword.
func (l *Lexer) scanLiteral() (lit string, quoted bool, err error) {
	var sb strings.Builder
	classDepth := 0 // open glob character classes in this word

	// A literal starting with / is a regex and may span whitespace.
	if l.pos < len(l.input) && l.input[l.pos] == '/' {
		lit, err = l.scanRegex()
		return lit, false, err
	}

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			return sb.String(), quoted, nil
		case ch == '"' || ch == '\'':
			s, err := l.scanQuoted(ch)
			if err != nil {
				return "", false, err
			}
			quoted = true
			sb.WriteString(s)
		case ch == '[':
			classDepth++
			sb.WriteByte(ch)
			l.pos++
		case ch == ']':
			if classDepth == 0 {
				// Structural bracket closing a group.
				return sb.String(), quoted, nil
			}
			classDepth--
			sb.WriteByte(ch)
			l.pos++
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}
	return sb.String(), quoted, nil
}

// scanQuoted consumes a quoted segment, returning the content without the
// quotes. A backslash escapes the quote character and itself.
func (l *Lexer) scanQuoted(quote byte) (string, error) {
	startPos := l.pos
	l.pos++ // opening quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == quote {
			l.pos++
			return sb.String(), nil
		}
		if ch == '\\' && l.pos+1 < len(l.input) {
			next := l.input[l.pos+1]
			if next == quote || next == '\\' {
				sb.WriteByte(next)
				l.pos += 2
				continue
			}
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return "", newSyntaxError(startPos, ErrUnterminatedQuote, "unterminated quote starting at position %d", startPos)
}

// scanRegex consumes a /pattern/ literal with an optional i flag. The
// delimiters and flag are kept so the value parser recognizes the form.
// Whitespace inside the pattern does not split terms.
func (l *Lexer) scanRegex() (string, error) {
	startPos := l.pos
	var sb strings.Builder
	sb.WriteByte('/')
	l.pos++

	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) && l.input[l.pos+1] == '/' {
			sb.WriteString(`\/`)
			l.pos += 2
			continue
		}
		if ch == '/' {
			sb.WriteByte('/')
			l.pos++
			if l.pos < len(l.input) && l.input[l.pos] == 'i' {
				sb.WriteByte('i')
				l.pos++
			}
			return sb.String(), nil
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return "", newSyntaxError(startPos, ErrUnterminatedRegex, "unterminated regex starting at position %d", startPos)
}

// isIdentChar reports whether ch can be part of a field name.
func isIdentChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_'
}
