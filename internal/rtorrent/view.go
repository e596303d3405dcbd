package rtorrent

import (
	"context"
	"fmt"
	"iter"

	"rtctl/internal/matching"
)

// View is a named backend item list ("main", "started", "stopped",
// "complete", ...). A 40-hex info hash is accepted as a view name and
// resolves to that single item.
type View struct {
	name   string
	client *Client
}

// View binds a view name to the connection.
func (c *Client) View(name string) *View {
	return &View{name: name, client: c}
}

func (v *View) Name() string { return v.name }

// Hashes lists the info hashes in the view, in backend order.
func (v *View) Hashes(ctx context.Context) ([]string, error) {
	if isInfoHash(v.name) {
		return []string{v.name}, nil
	}
	raw, err := v.client.Call(ctx, "download_list", "", v.name)
	if err != nil {
		return nil, fmt.Errorf("list view %s: %w", v.name, err)
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected download_list type %T", raw)
	}
	hashes := make([]string, 0, len(rows))
	for _, r := range rows {
		h, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected hash type %T", r)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// Items streams the view's items in backend order, prefetching the
// plan's getters in one multicall and yielding the items the matcher
// accepts. A nil matcher yields everything. The first RPC or matcher
// error aborts the stream through the error slot.
func (v *View) Items(ctx context.Context, plan matching.Plan, m matching.Matcher) iter.Seq2[*Item, error] {
	return func(yield func(*Item, error) bool) {
		getters := planGetters(plan)

		items, err := v.fetch(ctx, plan, getters)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, it := range items {
			if m != nil {
				ok, err := m.Match(it)
				if err != nil {
					yield(nil, fmt.Errorf("match %s: %w", it.Hash, err))
					return
				}
				if !ok {
					continue
				}
			}
			if !yield(it, nil) {
				return
			}
		}
	}
}

// planGetters is the deduplicated getter list for one prefetch plan,
// with the identifying d.hash getter always first.
func planGetters(plan matching.Plan) []string {
	getters := []string{"d.hash"}
	seen := map[string]bool{"d.hash": true}
	for _, g := range plan.RequiredFields {
		if !seen[g] {
			seen[g] = true
			getters = append(getters, g)
		}
	}
	return getters
}

func (v *View) fetch(ctx context.Context, plan matching.Plan, getters []string) ([]*Item, error) {
	if isInfoHash(v.name) {
		return v.fetchSingle(ctx, getters)
	}

	cmds := make([]any, 0, len(getters)+3)
	method := "d.multicall2"
	cmds = append(cmds, "", v.name)
	if plan.Prefilter != "" {
		method = "d.multicall.filtered"
		cmds = append(cmds, plan.Prefilter)
	}
	for _, g := range getters {
		cmds = append(cmds, multicallCommand(g))
	}

	raw, err := v.client.Call(ctx, method, cmds...)
	if err != nil {
		return nil, fmt.Errorf("%s view %s: %w", method, v.name, err)
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected multicall result type %T", raw)
	}

	items := make([]*Item, 0, len(rows))
	for _, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) == 0 {
			return nil, fmt.Errorf("unexpected multicall row %T", r)
		}
		hash, ok := row[0].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected hash type %T", row[0])
		}
		it := newItem(v.client, hash)
		it.fill(getters, row)
		items = append(items, it)
	}
	return items, nil
}

// fetchSingle resolves an info-hash view by issuing the plan's getters
// individually for that one item.
func (v *View) fetchSingle(ctx context.Context, getters []string) ([]*Item, error) {
	it := newItem(v.client, v.name)
	it.set("d.hash", v.name)
	for _, g := range getters[1:] {
		method, args := parseGetter(g)
		callArgs := append([]any{v.name}, args...)
		val, err := v.client.Call(ctx, method, callArgs...)
		if err != nil {
			return nil, fmt.Errorf("fetch %s for %s: %w", g, v.name, err)
		}
		it.set(g, val)
	}
	return []*Item{it}, nil
}

// isInfoHash reports whether the view name is a 40-hex info hash.
func isInfoHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
