package fields

import (
	"strconv"
	"strings"
)

// builtinGenerators returns the prefix families materialized on demand:
//
//	custom_<key>  — value of the custom attribute <key> (custom_1..custom_5
//	                use the numbered custom slots)
//	d_<method>    — raw passthrough of any d.<method>= getter
//	kind_<N>      — file extensions making up at least N percent of the
//	                item's data
func builtinGenerators() []generator {
	return []generator{customField, rawField, kindField}
}

func customField(name string) *Descriptor {
	key, ok := strings.CutPrefix(name, "custom_")
	if !ok || key == "" {
		return nil
	}

	// custom_1..custom_5 map to the numbered rtorrent custom slots, which
	// have their own getter methods.
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= 5 {
		getter := "d.custom" + key
		return &Descriptor{
			Name: name, Kind: String,
			Help:      "custom attribute slot " + key,
			Requires:  []string{getter},
			Prefilter: getter + "=",
			Accessor:  func(it Item) (any, error) { return itemString(it, getter) },
		}
	}

	getter := "d.custom=" + key
	return &Descriptor{
		Name: name, Kind: String,
		Help:      "custom attribute " + key,
		Requires:  []string{getter},
		Prefilter: getter,
		Accessor:  func(it Item) (any, error) { return itemString(it, getter) },
	}
}

func rawField(name string) *Descriptor {
	method, ok := strings.CutPrefix(name, "d_")
	if !ok || method == "" {
		return nil
	}
	getter := "d." + strings.ReplaceAll(method, "_", ".")
	return &Descriptor{
		Name: name, Kind: String,
		Help:     "raw value of " + getter,
		Requires: []string{getter},
		Accessor: func(it Item) (any, error) { return itemString(it, getter) },
	}
}

func kindField(name string) *Descriptor {
	pct, ok := strings.CutPrefix(name, "kind_")
	if !ok {
		return nil
	}
	limit, err := strconv.Atoi(pct)
	if err != nil || limit < 0 || limit > 100 {
		return nil
	}
	return &Descriptor{
		Name: name, Kind: Tags,
		Help:     "file types making up at least " + pct + "% of the data",
		Requires: []string{"f.multicall=,f.path=,f.size_bytes="},
		Accessor: func(it Item) (any, error) {
			v, err := it.Fetch("f.multicall=,f.path=,f.size_bytes=")
			if err != nil {
				return nil, err
			}
			return kindsAbove(v, limit), nil
		},
	}
}

// kindsAbove aggregates per-extension byte totals from f.multicall rows and
// returns the extensions whose share is at least limit percent.
func kindsAbove(v any, limit int) []string {
	rows, ok := v.([]any)
	if !ok {
		return nil
	}
	sizes := make(map[string]int64)
	var total int64
	for _, row := range rows {
		cols, ok := row.([]any)
		if !ok || len(cols) < 2 {
			continue
		}
		path, _ := cols[0].(string)
		size, _ := cols[1].(int64)
		ext := strings.ToLower(strings.TrimPrefix(pathExt(path), "."))
		if ext == "" {
			continue
		}
		sizes[ext] += size
		total += size
	}
	if total == 0 {
		return nil
	}
	var out []string
	for ext, n := range sizes {
		if int(100*n/total) >= limit {
			out = append(out, ext)
		}
	}
	return out
}

func pathExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 && !strings.ContainsRune(p[i:], '/') {
		return p[i:]
	}
	return ""
}
