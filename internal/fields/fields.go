// Package fields defines the torrent field registry: the mapping from
// field names usable in filter expressions to typed descriptors that know
// how to fetch and compare a value on an item.
//
// The registry is populated once at process start from the built-in table.
// Extension code may register additional descriptors before the first
// expression is parsed; after that the registry is frozen and external
// registration fails. Prefix families (custom_*, d_*, kind_*) materialize
// descriptors lazily inside Lookup, which stays permitted after the freeze.
package fields

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
)

// Registry errors.
var (
	ErrUnknownField   = errors.New("unknown field")
	ErrDuplicateField = errors.New("duplicate field")
	ErrRegistryFrozen = errors.New("field registry is frozen")
)

// Item is the minimal item-proxy surface a field accessor needs.
// The concrete implementation lives in internal/rtorrent; accessors must
// treat Fetch as cheap (the evaluation driver prefetches into a cache).
type Item interface {
	// Fetch returns the raw value of a remote attribute, e.g. "d.name".
	// Custom attributes use the "d.custom=key" form.
	Fetch(name string) (any, error)
}

// Kind is the closed set of field value types. It selects both the literal
// parser and the comparison semantics used by the matcher layer.
type Kind int

const (
	String Kind = iota // plain string, glob/regex compared
	FileList           // list of file paths, glob compared per entry
	Tags               // whitespace-separated tag set
	Bool               // boolean flag
	Number             // plain number (float ordering)
	ByteSize           // byte count with k/m/g/t literals
	Time               // absolute epoch timestamp
	TimeDelayed        // epoch timestamp, unset values never match except =0
	Duration           // seconds, unset values never match except =0
	Priority           // 0..3 enum (off/low/normal/high)
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case FileList:
		return "files"
	case Tags:
		return "tags"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case ByteSize:
		return "bytesize"
	case Time:
		return "time"
	case TimeDelayed:
		return "time"
	case Duration:
		return "duration"
	case Priority:
		return "priority"
	default:
		return "unknown"
	}
}

// Descriptor describes one queryable field.
type Descriptor struct {
	Name string
	Kind Kind
	Help string

	// Requires lists the remote getter names that must be prefetched before
	// Accessor can run without extra round-trips (e.g. "d.size_bytes").
	Requires []string

	// Prefilter is the rtorrent-native attribute key used for server-side
	// pre-filtering (e.g. "d.name="). Empty means the field cannot be
	// pushed down.
	Prefilter string

	// Scale is the fixed-point multiplier the backend applies to this
	// field's numeric value (rtorrent stores ratio as permille). Zero
	// means unscaled. Only consulted when emitting prefilters.
	Scale int

	// Accessor fetches and derives the field value from an item.
	Accessor func(Item) (any, error)
}

// Registry maps field names to descriptors. Not safe for concurrent
// mutation; per the engine's lifecycle all registration happens before the
// first parse on a single goroutine.
type Registry struct {
	byName map[string]*Descriptor
	order  []string
	gens   []generator
	frozen bool
}

// generator materializes descriptors for a whole name family on demand.
type generator func(name string) *Descriptor

// NewRegistry returns a registry pre-populated with the built-in field
// table and generator families.
func NewRegistry() *Registry {
	return NewRegistryWithClock(clockwork.NewRealClock())
}

// NewRegistryWithClock is NewRegistry with an injected clock for the
// duration-typed accessors. Tests pass a fake clock so that relative
// comparisons and derived durations agree on "now".
func NewRegistryWithClock(clock clockwork.Clock) *Registry {
	r := &Registry{byName: make(map[string]*Descriptor)}
	for _, d := range builtinFields(clock) {
		if err := r.register(d); err != nil {
			panic(err) // built-in table has a duplicate; programmer error
		}
	}
	r.gens = builtinGenerators()
	return r
}

// Register adds a descriptor. It fails with ErrDuplicateField if the name
// is taken and with ErrRegistryFrozen once expression parsing has begun.
func (r *Registry) Register(d *Descriptor) error {
	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, d.Name)
	}
	return r.register(d)
}

func (r *Registry) register(d *Descriptor) error {
	if d.Name == "" {
		return errors.New("field name must not be empty")
	}
	if _, ok := r.byName[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateField, d.Name)
	}
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup resolves a field name, materializing generator-family fields on
// first use. Generated fields are permitted after the freeze.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	if d, ok := r.byName[name]; ok {
		return d, nil
	}
	for _, gen := range r.gens {
		if d := gen(name); d != nil {
			if err := r.register(d); err != nil {
				return nil, err
			}
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
}

// Freeze marks the registry immutable for external registration. Called by
// the expression parser before its first parse.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Names returns all registered field names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
