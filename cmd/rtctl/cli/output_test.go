package cli

import (
	"testing"

	"rtctl/internal/fields"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{512, "512"},
		{1024, "1.0K"},
		{1536, "1.5K"},
		{5 * 1024 * 1024, "5.0M"},
		{1073741824, "1.0G"},
		{3 * 1024 * 1024 * 1024 * 1024, "3.0T"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatDelta(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{3600, "1h"},
		{3660, "1h1m"},
		{86400 + 7200, "1d2h"},
		{395 * 86400, "1y1M"},
	}
	for _, tt := range tests {
		if got := formatDelta(tt.secs); got != tt.want {
			t.Errorf("formatDelta(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		kind fields.Kind
		v    any
		want string
	}{
		{fields.Bool, true, "yes"},
		{fields.Bool, false, "no"},
		{fields.ByteSize, int64(1536), "1.5K"},
		{fields.Time, int64(0), "never"},
		{fields.Time, int64(1800000000), "2027-01-15T08:00:00Z"},
		{fields.Priority, int64(2), "normal"},
		{fields.Number, float64(1.5), "1.50"},
		{fields.Number, int64(7), "7"},
		{fields.Tags, []string{"movie", "hd"}, "movie hd"},
		{fields.String, "arch.iso", "arch.iso"},
		{fields.Duration, nil, ""},
	}
	for _, tt := range tests {
		if got := formatValue(tt.kind, tt.v); got != tt.want {
			t.Errorf("formatValue(%v, %v) = %q, want %q", tt.kind, tt.v, got, tt.want)
		}
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		a, b any
		want int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{int64(1), int64(2), -1},
		{float64(2.5), int64(2), 1},
		{true, false, 1},
		{nil, "x", -1},
		{nil, nil, 0},
		{[]string{"a"}, []string{"a"}, 0},
	}
	for _, tt := range tests {
		if got := compareValues(tt.a, tt.b); got != tt.want {
			t.Errorf("compareValues(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOutputColumns(t *testing.T) {
	reg := fields.NewRegistry()

	tmpl, cols, err := outputColumns(reg, "name, size,ratio")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl != nil {
		t.Error("unexpected template for a field list")
	}
	if len(cols) != 3 || cols[0].Name != "name" || cols[1].Name != "size" {
		t.Errorf("unexpected columns %v", cols)
	}

	if _, _, err := outputColumns(reg, "name,bogus"); err == nil {
		t.Error("unknown field accepted")
	}
	if _, _, err := outputColumns(reg, " , "); err == nil {
		t.Error("empty field list accepted")
	}

	tmpl, cols, err = outputColumns(reg, "tmpl:{{.name}} {{.size}}")
	if err != nil {
		t.Fatal(err)
	}
	if tmpl == nil {
		t.Fatal("expected a template")
	}
	found := map[string]bool{}
	for _, c := range cols {
		found[c.Name] = true
	}
	if !found["name"] || !found["size"] {
		t.Errorf("template prefetch missed fields, got %v", found)
	}

	if _, _, err := outputColumns(reg, "tmpl:{{.name"); err == nil {
		t.Error("bad template accepted")
	}
}
