package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"rtctl/internal/fields"
)

// printer handles table or JSON output.
type printer struct {
	w io.Writer
}

func newPrinter() *printer {
	return &printer{w: os.Stdout}
}

// json marshals v as indented JSON.
func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes rows using tabwriter. header is the first row.
func (p *printer) table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// kv prints a key-value detail view.
func (p *printer) kv(pairs [][2]string) {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for _, pair := range pairs {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", pair[0], pair[1])
	}
	_ = tw.Flush()
}

var priorityNames = [...]string{"off", "low", "normal", "high"}

// formatValue renders one field value for table output, by field kind.
func formatValue(kind fields.Kind, v any) string {
	if v == nil {
		return ""
	}
	switch kind {
	case fields.Bool:
		if b, _ := v.(bool); b {
			return "yes"
		}
		return "no"
	case fields.ByteSize:
		return formatBytes(toInt(v))
	case fields.Time, fields.TimeDelayed:
		n := toInt(v)
		if n == 0 {
			return "never"
		}
		return time.Unix(n, 0).UTC().Format(time.RFC3339)
	case fields.Duration:
		return formatDelta(toInt(v))
	case fields.Priority:
		n := toInt(v)
		if n >= 0 && n < int64(len(priorityNames)) {
			return priorityNames[n]
		}
		return strconv.FormatInt(n, 10)
	case fields.Number:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
		return strconv.FormatInt(toInt(v), 10)
	case fields.Tags, fields.FileList:
		if list, ok := v.([]string); ok {
			return strings.Join(list, " ")
		}
	}
	return fmt.Sprint(v)
}

// formatBytes renders a byte count in human units (binary multiples).
func formatBytes(n int64) string {
	if n < 1024 {
		return strconv.FormatInt(n, 10)
	}
	f := float64(n)
	for _, unit := range "KMGTP" {
		f /= 1024
		if f < 1024 {
			return fmt.Sprintf("%.1f%c", f, unit)
		}
	}
	return fmt.Sprintf("%.1fP", f)
}

// deltaParts mirrors the filter grammar's duration unit letters
// (case-sensitive, M is a 30-day month).
var deltaParts = []struct {
	unit byte
	secs int64
}{
	{'y', 365 * 86400},
	{'M', 30 * 86400},
	{'w', 7 * 86400},
	{'d', 86400},
	{'h', 3600},
	{'m', 60},
	{'s', 1},
}

// formatDelta renders seconds compactly in the filter grammar's own
// units, e.g. "1y2M3d". At most the two most significant nonzero parts
// are shown.
func formatDelta(secs int64) string {
	if secs <= 0 {
		return "0s"
	}
	var b strings.Builder
	parts := 0
	for _, p := range deltaParts {
		if secs < p.secs {
			continue
		}
		n := secs / p.secs
		secs -= n * p.secs
		fmt.Fprintf(&b, "%d%c", n, p.unit)
		if parts++; parts == 2 {
			break
		}
	}
	return b.String()
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

// compareValues orders two field values of the same kind for --sort.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case bool:
		bv, _ := b.(bool)
		return toIntCmp(toInt(av), toInt(bv))
	case []string:
		bv, _ := b.([]string)
		return strings.Compare(strings.Join(av, " "), strings.Join(bv, " "))
	}
	af, bf := toFloat(a), toFloat(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	}
	return 0
}

func toIntCmp(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toFloat(v any) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	return float64(toInt(v))
}
