package matching

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Literal grammar errors, wrapped in ValueError by the leaf constructor.
var (
	errBadNumber    = errors.New("not a number")
	errBadByteSize  = errors.New("not a byte size")
	errBadTruth     = errors.New("not a truth value")
	errBadTimestamp = errors.New("not a duration or timestamp")
	errBadPriority  = errors.New("not a priority value")
	errBadPattern   = errors.New("bad pattern")
)

// Truth words accepted for boolean fields.
var (
	truthTrue  = map[string]bool{"true": true, "t": true, "yes": true, "y": true, "1": true}
	truthFalse = map[string]bool{"false": true, "f": true, "no": true, "n": true, "0": true}
)

// parseTruth converts a boolean literal.
func parseTruth(lit string) (bool, error) {
	lower := strings.ToLower(lit)
	if truthTrue[lower] {
		return true, nil
	}
	if truthFalse[lower] {
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", errBadTruth, lit)
}

// byteUnits are the binary-multiple size suffixes.
var byteUnits = map[byte]int64{
	'b': 1,
	'k': 1 << 10,
	'm': 1 << 20,
	'g': 1 << 30,
	't': 1 << 40,
}

// parseByteSize converts a size literal like "4g" or "1.5m" to bytes.
// Units are case-insensitive and 1024-based; no suffix means raw bytes.
func parseByteSize(lit string) (int64, error) {
	if lit == "" {
		return 0, fmt.Errorf("%w: empty literal", errBadByteSize)
	}
	scale := int64(1)
	num := lit
	if unit, ok := byteUnits[lit[len(lit)-1]|0x20]; ok && !isDigit(lit[len(lit)-1]) {
		scale = unit
		num = lit[:len(lit)-1]
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errBadByteSize, lit)
	}
	return int64(f * float64(scale)), nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

// deltaUnits maps duration unit letters to seconds. Unit letters are
// case-sensitive: M is a 30-day month, m is a minute.
var deltaUnits = map[byte]int64{
	'y': 365 * 86400,
	'M': 30 * 86400,
	'w': 7 * 86400,
	'd': 86400,
	'h': 3600,
	'm': 60,
	's': 1,
}

// parseDelta parses a compound relative duration like "3w22h1y6M" into
// seconds. Units may appear in any order and repeated units accumulate.
// Returns ok=false when the literal is not of this form at all.
func parseDelta(lit string) (seconds int64, ok bool) {
	if lit == "" {
		return 0, false
	}
	var total int64
	i := 0
	for i < len(lit) {
		start := i
		for i < len(lit) && isDigit(lit[i]) {
			i++
		}
		if start == i || i >= len(lit) {
			return 0, false
		}
		unit, known := deltaUnits[lit[i]]
		if !known {
			return 0, false
		}
		n, err := strconv.ParseInt(lit[start:i], 10, 64)
		if err != nil {
			return 0, false
		}
		total += n * unit
		i++
	}
	return total, true
}

// absoluteFormats pairs a date layout with its detection rule. A trailing
// time part is appended as "T15:04" or "T15:04:05" depending on how many
// colons the literal carries.
var absoluteFormats = []struct {
	detect func(string) bool
	layout string
}{
	{func(s string) bool { return strings.Contains(s, "/") }, "01/02/2006"}, // US
	{func(s string) bool { return strings.Contains(s, ".") }, "02.01.2006"}, // European
	{func(s string) bool { return true }, "2006-01-02"},                     // ISO fallback
}

// parseAbsoluteTime parses an absolute time literal: a bare integer epoch
// timestamp, or a date in one of the three supported layouts optionally
// followed by a T- or space-separated time of day (local time).
func parseAbsoluteTime(lit string) (int64, error) {
	if lit == "" {
		return 0, fmt.Errorf("%w: empty literal", errBadTimestamp)
	}
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return n, nil
	}

	val := strings.ToUpper(strings.Replace(lit, " ", "T", 1))
	for _, f := range absoluteFormats {
		if !f.detect(val) {
			continue
		}
		layout := f.layout
		if strings.Contains(val, "T") {
			layout += "T15:04"
			if strings.Count(val, ":") > 1 {
				layout += ":05"
			}
		}
		t, err := time.ParseInLocation(layout, val, time.Local)
		if err != nil {
			return 0, fmt.Errorf("%w: %q does not match %q", errBadTimestamp, lit, layout)
		}
		return t.Unix(), nil
	}
	return 0, fmt.Errorf("%w: %q", errBadTimestamp, lit)
}

// priorityNames are the symbolic rtorrent priority values.
var priorityNames = map[string]int64{
	"off":    0,
	"low":    1,
	"normal": 2,
	"high":   3,
}

// parsePriority accepts a priority name or a bare 0..3.
func parsePriority(lit string) (int64, error) {
	if n, ok := priorityNames[strings.ToLower(lit)]; ok {
		return n, nil
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil || n < 0 || n > 3 {
		return 0, fmt.Errorf("%w: %q (expected off/low/normal/high or 0..3)", errBadPriority, lit)
	}
	return n, nil
}

// regexForm splits a /body/ or /body/i literal. ok is false when the
// literal is not regex-shaped.
func regexForm(lit string) (body string, insensitive bool, ok bool) {
	if len(lit) < 2 || lit[0] != '/' {
		return "", false, false
	}
	rest := lit[1:]
	if strings.HasSuffix(rest, "/i") {
		return strings.ReplaceAll(rest[:len(rest)-2], `\/`, "/"), true, true
	}
	if strings.HasSuffix(rest, "/") {
		return strings.ReplaceAll(rest[:len(rest)-1], `\/`, "/"), false, true
	}
	return "", false, false
}

// compileRegex compiles a regex literal body with unanchored search
// semantics (matches anywhere unless the pattern itself anchors).
func compileRegex(body string, insensitive bool) (*regexp.Regexp, error) {
	if insensitive {
		body = "(?i)" + body
	}
	re, err := regexp.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPattern, err)
	}
	return re, nil
}
