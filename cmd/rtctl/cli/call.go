package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/theory/jsonpath"
)

// NewCallCommand returns the "call" command: a raw RPC escape hatch.
func NewCallCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <method> [arg]...",
		Short: "Issue a raw RPC call",
		Long: `Call any backend method directly, e.g.
"rtctl call d.name <hash>" or "rtctl call view.list". String arguments
pass through as-is; with --int, arguments that look like integers are
sent as integers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, args, logger)
		},
	}
	cmd.Flags().Bool("int", false, "send integer-looking arguments as integers")
	cmd.Flags().String("extract", "", "JSONPath expression applied to the result")
	cmd.Flags().Bool("json", false, "JSON output")
	return cmd
}

func runCall(cmd *cobra.Command, args []string, logger *slog.Logger) error {
	asInt, _ := cmd.Flags().GetBool("int")
	extract, _ := cmd.Flags().GetString("extract")
	asJSON, _ := cmd.Flags().GetBool("json")

	callArgs := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		if asInt {
			if n, err := strconv.ParseInt(a, 10, 64); err == nil {
				callArgs = append(callArgs, n)
				continue
			}
		}
		callArgs = append(callArgs, a)
	}

	client, err := connect(cmd, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Call(cmd.Context(), args[0], callArgs...)
	if err != nil {
		return err
	}

	if extract != "" {
		result, err = extractPath(result, extract)
		if err != nil {
			return err
		}
	}

	p := newPrinter()
	if asJSON {
		return p.json(result)
	}
	if s, ok := result.(string); ok {
		fmt.Fprintln(p.w, s)
		return nil
	}
	return p.json(result)
}

// extractPath applies a JSONPath query to the decoded RPC result. The
// result is round-tripped through JSON so typed values (int64, []byte)
// become plain JSON shapes the query engine understands.
func extractPath(result any, path string) (any, error) {
	p, err := jsonpath.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("--extract: %w", err)
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("--extract: result not representable as JSON: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	nodes := p.Select(doc)
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return []any(nodes), nil
}
