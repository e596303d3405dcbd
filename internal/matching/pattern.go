package matching

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pattern is the parsed form of a string-field literal: an exact string,
// a glob, or a regex. Matching is case-insensitive for globs (rtorrent
// names are compared the way a shell would) and full-string anchored.
type pattern struct {
	raw  string
	re   *regexp.Regexp // set for /regex/ literals
	glob string         // lowercased glob, used when re is nil
}

// newPattern parses a string-field literal into a pattern.
func newPattern(lit string) (*pattern, error) {
	p := &pattern{raw: lit}
	if body, insensitive, ok := regexForm(lit); ok {
		re, err := compileRegex(body, insensitive)
		if err != nil {
			return nil, err
		}
		p.re = re
		return p, nil
	}
	if !doublestar.ValidatePattern(lit) {
		return nil, fmt.Errorf("%w: invalid glob %q", errBadPattern, lit)
	}
	p.glob = strings.ToLower(lit)
	return p, nil
}

// matches reports whether the value satisfies the pattern.
//
// An exact string equal to the pattern always matches, even when the
// pattern text contains glob metacharacters: the name "[ARCH] live.iso"
// matches the literal [ARCH] live.iso although [ARCH] is also a valid
// character class. The equality check runs before the glob test.
func (p *pattern) matches(val string) bool {
	if p.re != nil {
		return p.re.MatchString(val)
	}
	if val == p.raw {
		return true
	}
	if p.raw == "" {
		return val == ""
	}
	if p.raw == "*" {
		return true
	}
	ok, err := doublestar.Match(p.glob, strings.ToLower(val))
	return err == nil && ok
}

// literalNeedle returns the longest literal run of a pattern, used as a
// contains_i needle for server-side pre-filtering. ok is false when no
// usable ASCII needle exists.
func (p *pattern) literalNeedle() (string, bool) {
	var parts []string
	if p.re != nil {
		// Strip the grouping constructs a regex may carry and keep only
		// text that must appear verbatim in any match.
		needle := regexCleanRE.ReplaceAllString(p.re.String(), " ")
		needle = strings.TrimPrefix(needle, "(?i)")
		if strings.ContainsAny(needle, `{}[]\|()`) {
			return "", false
		}
		parts = regexSplitRE.Split(needle, -1)
	} else {
		parts = globSplitRE.Split(p.raw, -1)
	}

	longest := ""
	for _, part := range parts {
		if len(part) > len(longest) {
			longest = part
		}
	}
	if longest == "" || !isASCII(longest) {
		return "", false
	}
	return longest, true
}

var (
	regexCleanRE = regexp.MustCompile(`(?:\[.*?\])|(?:\(.*?\))|(?:\{.*?\})|(?:\\)|(?:\(\?i\))`)
	regexSplitRE = regexp.MustCompile(`[^a-zA-Z0-9/_]+`)
	globSplitRE  = regexp.MustCompile(`[?*[\]]+`)
)

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
