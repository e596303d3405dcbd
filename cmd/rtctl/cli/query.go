package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rtctl/internal/fields"
	"rtctl/internal/matching"
	"rtctl/internal/rtorrent"
)

const defaultColumns = "name,size,ratio,alias"

// NewQueryCommand returns the "query" command: parse a filter
// expression, stream the matching items, and print or act on them.
func NewQueryCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <condition>...",
		Short: "List items matching a filter expression",
		Long: `Filter the download list with conditions like "is_open=no ratio>=1"
or "size>4g completed<2w [ tagged=movie OR alias=tracker.example.org ]".
Multiple arguments are joined into one expression; bare terms match the
item name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, logger)
		},
	}
	cmd.Flags().String("view", "main", "view to query, or a single info hash")
	cmd.Flags().Bool("all", false, "query every configured connection")
	cmd.Flags().StringP("output", "o", defaultColumns, "comma-separated field list, or tmpl:<text/template>")
	cmd.Flags().Bool("json", false, "JSON output")
	cmd.Flags().String("sort", "", "sort matches by this field")
	cmd.Flags().Bool("summary", false, "print byte totals for the matches")
	cmd.Flags().Bool("start", false, "start matching items")
	cmd.Flags().Bool("stop", false, "stop matching items")
	cmd.Flags().Bool("close", false, "close matching items")
	return cmd
}

// match is one filtered item with the field values the output needs.
type match struct {
	conn   string // set when querying multiple connections
	hash   string
	values map[string]any
}

func runQuery(cmd *cobra.Command, args []string, logger *slog.Logger) error {
	ctx := cmd.Context()
	viewName, _ := cmd.Flags().GetString("view")
	outputSpec, _ := cmd.Flags().GetString("output")
	asJSON, _ := cmd.Flags().GetBool("json")
	sortField, _ := cmd.Flags().GetString("sort")
	summary, _ := cmd.Flags().GetBool("summary")

	action, err := queryAction(cmd)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	registry := fields.NewRegistryWithClock(clock)
	parser := matching.NewParser(registry, matching.WithClock(clock))
	matcher, err := parser.Parse(matching.JoinArgs(args))
	if err != nil {
		return err
	}

	// Resolve every field the output, sort and summary need, so one
	// multicall prefetches them all.
	tmpl, cols, err := outputColumns(registry, outputSpec)
	if err != nil {
		return err
	}
	wanted := make(map[string]*fields.Descriptor)
	for _, col := range cols {
		wanted[col.Name] = col
	}
	if sortField != "" {
		d, err := registry.Lookup(sortField)
		if err != nil {
			return fmt.Errorf("--sort: %w", err)
		}
		wanted[d.Name] = d
	}
	if summary {
		for _, name := range []string{"size", "uploaded", "downloaded"} {
			d, err := registry.Lookup(name)
			if err != nil {
				return err
			}
			wanted[d.Name] = d
		}
	}

	all, _ := cmd.Flags().GetBool("all")
	if all && action != "" {
		return fmt.Errorf("--%s requires a single connection", action)
	}

	var matches []match
	var client *rtorrent.Client
	if all {
		matches, err = collectAll(ctx, cmd, viewName, matcher, wanted, logger)
		if err != nil {
			return err
		}
	} else {
		client, err = connect(cmd, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		matches, err = collectMatches(ctx, client, viewName, matcher, wanted)
		if err != nil {
			return err
		}
	}

	if sortField != "" {
		sort.SliceStable(matches, func(i, j int) bool {
			return compareValues(matches[i].values[sortField], matches[j].values[sortField]) < 0
		})
	}

	if err := printMatches(matches, cols, tmpl, asJSON); err != nil {
		return err
	}

	if action != "" {
		if err := applyAction(cmd, client, matches, action, logger); err != nil {
			return err
		}
	}

	if summary {
		printSummary(matches)
	}
	return nil
}

// collectMatches analyzes the pushdown plan against one backend's
// capabilities, merges the output fields into the prefetch set, and
// streams the view.
func collectMatches(ctx context.Context, client *rtorrent.Client, viewName string,
	matcher matching.Matcher, wanted map[string]*fields.Descriptor) ([]match, error) {

	caps, err := client.Caps(ctx)
	if err != nil {
		return nil, err
	}
	plan := matching.Analyze(matcher, caps)
	for _, d := range wanted {
		plan.RequiredFields = mergeRequires(plan.RequiredFields, d.Requires)
	}

	var matches []match
	for it, err := range client.View(viewName).Items(ctx, plan, matcher) {
		if err != nil {
			return nil, err
		}
		m := match{hash: it.Hash, values: make(map[string]any, len(wanted))}
		for name, d := range wanted {
			v, err := d.Accessor(it)
			if err != nil {
				return nil, fmt.Errorf("field %s of %s: %w", name, it.Hash, err)
			}
			m.values[name] = v
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// collectAll fans the query out over every configured connection.
func collectAll(ctx context.Context, cmd *cobra.Command, viewName string,
	matcher matching.Matcher, wanted map[string]*fields.Descriptor,
	logger *slog.Logger) ([]match, error) {

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var matches []match
	g, gctx := errgroup.WithContext(ctx)
	for _, conn := range cfg.Connections {
		g.Go(func() error {
			client, err := dialConnection(conn, logger)
			if err != nil {
				return fmt.Errorf("%s: %w", conn.Name, err)
			}
			defer client.Close()

			ms, err := collectMatches(gctx, client, viewName, matcher, wanted)
			if err != nil {
				return fmt.Errorf("%s: %w", conn.Name, err)
			}
			for i := range ms {
				ms[i].conn = conn.Name
			}
			mu.Lock()
			matches = append(matches, ms...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matches, nil
}

// queryAction returns the single requested mutating action, if any.
func queryAction(cmd *cobra.Command) (string, error) {
	var actions []string
	for _, name := range []string{"start", "stop", "close"} {
		if on, _ := cmd.Flags().GetBool(name); on {
			actions = append(actions, name)
		}
	}
	switch len(actions) {
	case 0:
		return "", nil
	case 1:
		return actions[0], nil
	}
	return "", fmt.Errorf("--%s conflicts with --%s", actions[0], actions[1])
}

// outputColumns resolves the --output spec into field descriptors, or a
// template when the spec carries the tmpl: prefix.
func outputColumns(registry *fields.Registry, spec string) (*template.Template, []*fields.Descriptor, error) {
	if text, ok := strings.CutPrefix(spec, "tmpl:"); ok {
		tmpl, err := template.New("output").Parse(text)
		if err != nil {
			return nil, nil, fmt.Errorf("--output template: %w", err)
		}
		// The template picks values by name; prefetch what it mentions.
		var cols []*fields.Descriptor
		for _, name := range registry.Names() {
			if strings.Contains(text, "."+name) {
				d, _ := registry.Lookup(name)
				cols = append(cols, d)
			}
		}
		return tmpl, cols, nil
	}

	var cols []*fields.Descriptor
	for _, name := range strings.Split(spec, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		d, err := registry.Lookup(name)
		if err != nil {
			return nil, nil, fmt.Errorf("--output: %w", err)
		}
		cols = append(cols, d)
	}
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("--output: no fields given")
	}
	return nil, cols, nil
}

func printMatches(matches []match, cols []*fields.Descriptor, tmpl *template.Template, asJSON bool) error {
	p := newPrinter()

	if asJSON {
		out := make([]map[string]any, 0, len(matches))
		for _, m := range matches {
			row := map[string]any{"hash": m.hash}
			if m.conn != "" {
				row["connection"] = m.conn
			}
			for _, col := range cols {
				row[col.Name] = m.values[col.Name]
			}
			out = append(out, row)
		}
		return p.json(out)
	}

	if tmpl != nil {
		for _, m := range matches {
			data := map[string]any{"hash": m.hash}
			if m.conn != "" {
				data["connection"] = m.conn
			}
			for k, v := range m.values {
				data[k] = v
			}
			if err := tmpl.Execute(p.w, data); err != nil {
				return err
			}
			fmt.Fprintln(p.w)
		}
		return nil
	}

	multiConn := len(matches) > 0 && matches[0].conn != ""
	var header []string
	if multiConn {
		header = append(header, "CONNECTION")
	}
	for _, col := range cols {
		header = append(header, strings.ToUpper(col.Name))
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		var row []string
		if multiConn {
			row = append(row, m.conn)
		}
		for _, col := range cols {
			row = append(row, formatValue(col.Kind, m.values[col.Name]))
		}
		rows = append(rows, row)
	}
	p.table(header, rows)
	return nil
}

func applyAction(cmd *cobra.Command, client *rtorrent.Client, matches []match, action string, logger *slog.Logger) error {
	ctx := cmd.Context()
	act := client.StartItem
	switch action {
	case "stop":
		act = client.StopItem
	case "close":
		act = client.CloseItem
	}
	for _, m := range matches {
		if err := act(ctx, m.hash); err != nil {
			return fmt.Errorf("%s %s: %w", action, m.hash, err)
		}
		logger.Info("action applied", "action", action, "hash", m.hash)
	}
	fmt.Printf("%s applied to %d item(s)\n", action, len(matches))
	return nil
}

func printSummary(matches []match) {
	var size, up, down int64
	for _, m := range matches {
		size += toInt(m.values["size"])
		up += toInt(m.values["uploaded"])
		down += toInt(m.values["downloaded"])
	}
	fmt.Printf("TOTAL %d items  size %s  uploaded %s  downloaded %s\n",
		len(matches), formatBytes(size), formatBytes(up), formatBytes(down))
}

// mergeRequires appends getters not already present, preserving order.
func mergeRequires(dst, reqs []string) []string {
	for _, r := range reqs {
		found := false
		for _, d := range dst {
			if d == r {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, r)
		}
	}
	return dst
}
