package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"rtctl/internal/fields"
)

// NewFieldsCommand returns the "fields" command: a dump of the
// queryable field table.
func NewFieldsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List the queryable fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return runFields(asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "JSON output")
	return cmd
}

func runFields(asJSON bool) error {
	registry := fields.NewRegistry()
	p := newPrinter()

	if asJSON {
		type jsonField struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
			Help string `json:"help"`
		}
		var out []jsonField
		for _, name := range registry.Names() {
			d, err := registry.Lookup(name)
			if err != nil {
				return err
			}
			out = append(out, jsonField{Name: d.Name, Kind: d.Kind.String(), Help: d.Help})
		}
		return p.json(out)
	}

	var rows [][]string
	for _, name := range registry.Names() {
		d, err := registry.Lookup(name)
		if err != nil {
			return err
		}
		rows = append(rows, []string{d.Name, d.Kind.String(), d.Help})
	}
	p.table([]string{"NAME", "KIND", "HELP"}, rows)

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, "Dynamic families: custom_<key>, d_<method> (raw getter), kind_<N> (file types >= N%).")
	return nil
}
