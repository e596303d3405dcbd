package fields

import (
	"errors"
	"testing"
)

// fakeItem is a canned attribute map for accessor tests.
type fakeItem map[string]any

func (f fakeItem) Fetch(name string) (any, error) {
	v, ok := f[name]
	if !ok {
		return nil, errors.New("attribute not prefetched: " + name)
	}
	return v, nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"name", "size", "is_complete", "tagged", "ratio", "completed", "label", "stopped"} {
		d, err := r.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", name, err)
		}
		if d.Name != name {
			t.Errorf("Lookup(%q).Name = %q", name, d.Name)
		}
	}

	if _, err := r.Lookup("no_such_field"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Lookup(no_such_field) = %v, want ErrUnknownField", err)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Descriptor{Name: "name", Kind: String})
	if !errors.Is(err, ErrDuplicateField) {
		t.Errorf("Register duplicate = %v, want ErrDuplicateField", err)
	}
}

func TestRegistryFreeze(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&Descriptor{Name: "plugin_field", Kind: String}); err != nil {
		t.Fatalf("Register before freeze: %v", err)
	}

	r.Freeze()

	err := r.Register(&Descriptor{Name: "late_field", Kind: String})
	if !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("Register after freeze = %v, want ErrRegistryFrozen", err)
	}

	// Generator materialization stays allowed after the freeze.
	d, err := r.Lookup("custom_tv_show")
	if err != nil {
		t.Fatalf("Lookup(custom_tv_show) after freeze: %v", err)
	}
	if d.Kind != String {
		t.Errorf("generated field kind = %v, want String", d.Kind)
	}
}

func TestLabelField(t *testing.T) {
	r := NewRegistry()
	d, err := r.Lookup("label")
	if err != nil {
		t.Fatalf("Lookup(label): %v", err)
	}
	if got, want := d.Requires[0], "d.custom1"; got != want {
		t.Errorf("label getter = %q, want %q", got, want)
	}
	if d.Prefilter != "d.custom1=" {
		t.Errorf("label prefilter = %q", d.Prefilter)
	}

	v, err := d.Accessor(fakeItem{"d.custom1": "tv"})
	if err != nil {
		t.Fatal(err)
	}
	if v != "tv" {
		t.Errorf("label = %v, want tv", v)
	}
}

func TestStoppedField(t *testing.T) {
	r := NewRegistry()
	d, err := r.Lookup("stopped")
	if err != nil {
		t.Fatalf("Lookup(stopped): %v", err)
	}
	if d.Kind != TimeDelayed {
		t.Errorf("stopped kind = %v, want TimeDelayed", d.Kind)
	}

	tests := []struct {
		name        string
		activations string
		want        int64
	}{
		{"never recorded", "", 0},
		{"paused once", "R1283008245P1283008268", 1283008268},
		{"latest pause wins", "R1283008245P1283008268R1283009000P1283009100", 1283009100},
		{"resumed only", "R1283008245", 0},
		{"dangling event letter", "R1283008245P", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := d.Accessor(fakeItem{"d.custom=activations": tt.activations})
			if err != nil {
				t.Fatal(err)
			}
			if v != tt.want {
				t.Errorf("stopped(%q) = %v, want %d", tt.activations, v, tt.want)
			}
		})
	}
}

func TestGeneratedCustomSlots(t *testing.T) {
	r := NewRegistry()

	d, err := r.Lookup("custom_1")
	if err != nil {
		t.Fatalf("Lookup(custom_1): %v", err)
	}
	if got, want := d.Requires[0], "d.custom1"; got != want {
		t.Errorf("custom_1 getter = %q, want %q", got, want)
	}

	d, err = r.Lookup("custom_kind")
	if err != nil {
		t.Fatalf("Lookup(custom_kind): %v", err)
	}
	if got, want := d.Requires[0], "d.custom=kind"; got != want {
		t.Errorf("custom_kind getter = %q, want %q", got, want)
	}
}

func TestGeneratedRawField(t *testing.T) {
	r := NewRegistry()
	d, err := r.Lookup("d_down_rate")
	if err != nil {
		t.Fatalf("Lookup(d_down_rate): %v", err)
	}
	if got, want := d.Requires[0], "d.down.rate"; got != want {
		t.Errorf("d_down_rate getter = %q, want %q", got, want)
	}
}

func TestPathAccessor(t *testing.T) {
	r := NewRegistry()
	d, err := r.Lookup("path")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		item fakeItem
		want string
	}{
		{
			name: "multi file",
			item: fakeItem{"d.directory": "/data/linux-isos", "d.is_multi_file": int64(1), "d.name": "linux-isos"},
			want: "/data/linux-isos",
		},
		{
			name: "single file",
			item: fakeItem{"d.directory": "/data", "d.is_multi_file": int64(0), "d.name": "live.iso"},
			want: "/data/live.iso",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.Accessor(tt.item)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("path = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaggedAccessor(t *testing.T) {
	r := NewRegistry()
	d, err := r.Lookup("tagged")
	if err != nil {
		t.Fatal(err)
	}
	got, err := d.Accessor(fakeItem{"d.custom=tags": "TV seen Archive"})
	if err != nil {
		t.Fatal(err)
	}
	tags, ok := got.([]string)
	if !ok || len(tags) != 3 || tags[0] != "tv" || tags[2] != "archive" {
		t.Errorf("tagged = %#v, want lowercased [tv seen archive]", got)
	}
}

func TestTrackerDomain(t *testing.T) {
	r := NewRegistry()
	d, err := r.Lookup("alias")
	if err != nil {
		t.Fatal(err)
	}
	item := fakeItem{
		"t.multicall=,t.url=,t.is_enabled=": []any{
			[]any{"https://tracker.example.org:2710/announce", int64(1)},
		},
	}
	got, err := d.Accessor(item)
	if err != nil {
		t.Fatal(err)
	}
	if got != "example.org" {
		t.Errorf("alias = %q, want example.org", got)
	}
}
