package matching

import (
	"errors"
	"fmt"
)

// Parser errors.
var (
	ErrEmptyQuery         = errors.New("empty query")
	ErrUnbalancedBrackets = errors.New("unbalanced brackets")
	ErrUnterminatedRegex  = errors.New("unterminated regex")
	ErrUnterminatedQuote  = errors.New("unterminated quote")
	ErrBadOperator        = errors.New("operator not supported for field")
	ErrTrailingGarbage    = errors.New("unexpected token")
	ErrDanglingNot        = errors.New("expected expression after NOT")
)

// SyntaxError reports a malformed filter expression. The whole expression
// is rejected; there is no partial recovery.
type SyntaxError struct {
	Pos     int    // byte offset in input
	Message string // human-readable error message
	Err     error  // underlying sentinel or ValueError (for errors.Is/As)
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Message)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

func newSyntaxError(pos int, err error, msgFmt string, args ...any) *SyntaxError {
	return &SyntaxError{
		Pos:     pos,
		Message: fmt.Sprintf(msgFmt, args...),
		Err:     err,
	}
}

// ValueError reports a literal that does not match the grammar of its
// field's declared value type. Raised at parse time, before any RPC.
type ValueError struct {
	Field   string
	Literal string
	Err     error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("bad value %q for field %s: %v", e.Literal, e.Field, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}
