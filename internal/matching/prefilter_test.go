package matching

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"rtctl/internal/fields"
)

var fullCaps = Caps{FilteredMulticall: true, ContainsI: true}

// prefilterNow pins evaluation time for the relative-delta vectors.
var prefilterNow = time.Unix(1800000000, 0)

func newPrefilterParser(t *testing.T) *Parser {
	t.Helper()
	clock := clockwork.NewFakeClockAt(prefilterNow)
	return NewParser(fields.NewRegistryWithClock(clock), WithClock(clock))
}

func TestAnalyzePrefilter(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		// String fields push the longest literal needle as a substring test.
		{"name=arch", `string.contains_i=$d.name=,"arch"`},
		{"name=*ubuntu*desktop*", `string.contains_i=$d.name=,"desktop"`},
		// Negated patterns are never pushed down.
		{"name!=arch", ""},
		// Byte sizes map onto strict ordered comparisons; inclusive bounds
		// widen by one.
		{"size<1G", "less=value=$d.size_bytes,value=1073741824"},
		{"size<=1G", "less=value=$d.size_bytes,value=1073741825"},
		{"size>4g", "greater=value=$d.size_bytes,value=4294967296"},
		// Ratio is stored pre-scaled by 1000 on the backend.
		{"ratio>=1", "greater=value=$d.ratio,value=999"},
		{"ratio>2.5", "greater=value=$d.ratio,value=2500"},
		// Booleans compare the raw 0/1 flag, honoring negation.
		{"is_complete=no", "equal=d.complete,value=0"},
		{"is_complete=yes", "equal=d.complete,value=1"},
		{"is_complete!=yes", "equal=d.complete,value=0"},
		// Tag sets: ":" selects untagged items, a single plain tag becomes a
		// substring test, anything else stays local.
		{"tagged=:", "equal=d.custom=tags,cat="},
		{"tagged=tv", `string.contains_i=$d.custom=tags,"tv"`},
		{"tagged=tv,movie", ""},
		{"tagged=t*", ""},
		// Priorities use the numeric scale.
		{"prio>normal", "greater=value=$d.priority,value=2"},
		// Relative timestamps resolve against the clock with a day of fuzz
		// toward over-admission. 2w before prefilterNow is 1798790400.
		{"completed<2w", "greater=value=$d.timestamp.finished,value=1798704000"},
		{"completed>2w", "less=value=$d.timestamp.finished,value=1798876800"},
		// Fields without a backend attribute stay local.
		{"files=*.iso", ""},
		{"seedtime>1d", ""},
		// Conjunctions join the pushable conditions.
		{
			"name=arch size<1G",
			`and="string.contains_i=$d.name=,\"arch\"","less=value=$d.size_bytes,value=1073741824"`,
		},
		{
			"files=*.iso is_complete=yes ratio>=1",
			`and="equal=d.complete,value=1","greater=value=$d.ratio,value=999"`,
		},
		// Any OR or NOT anywhere disables pushdown entirely.
		{"name=arch OR name=debian", ""},
		{"! name=arch", ""},
		{"size>1g [ is_open=yes OR is_complete=yes ]", ""},
	}
	p := newPrefilterParser(t)
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			m := mustParse(t, p, tt.expr)
			plan := Analyze(m, fullCaps)
			if plan.Prefilter != tt.want {
				t.Errorf("Prefilter = %q, want %q", plan.Prefilter, tt.want)
			}
		})
	}
}

func TestAnalyzeCapsGate(t *testing.T) {
	p := newPrefilterParser(t)
	m := mustParse(t, p, "name=arch size<1G")

	// No filtered multicall: no pushdown at all.
	plan := Analyze(m, Caps{})
	if plan.Prefilter != "" {
		t.Errorf("Prefilter without caps = %q", plan.Prefilter)
	}

	// Without string.contains_i the pattern condition drops out but the
	// ordered one survives.
	plan = Analyze(m, Caps{FilteredMulticall: true})
	if want := "less=value=$d.size_bytes,value=1073741824"; plan.Prefilter != want {
		t.Errorf("Prefilter = %q, want %q", plan.Prefilter, want)
	}
}

func TestAnalyzeRequiredFields(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"name=arch", []string{"d.name"}},
		// Duplicates collapse, order follows first appearance.
		{"name=a name=b size>1g", []string{"d.name", "d.size_bytes"}},
		{"path=/data/", []string{"d.directory", "d.is_multi_file", "d.name"}},
		// Or and Not terms still contribute their getters.
		{"! [ is_open=yes OR done<100 ]", []string{"d.is_open", "d.completed_bytes", "d.size_bytes"}},
	}
	p := newPrefilterParser(t)
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			plan := Analyze(mustParse(t, p, tt.expr), fullCaps)
			if diff := cmp.Diff(tt.want, plan.RequiredFields); diff != "" {
				t.Errorf("RequiredFields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
