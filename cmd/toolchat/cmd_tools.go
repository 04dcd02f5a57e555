package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/toolchat/internal/runtime"
)

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd, toolsCallCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and run the local tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools offered to the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tDESCRIPTION")
		for _, t := range runtime.DefaultRegistry().All() {
			fmt.Fprintf(w, "%s\t%s\n", t.Name(), t.Description())
		}
		return w.Flush()
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <name> [json-arguments]",
	Short: "Dispatch a tool the way a model reply would",
	Example: `  toolchat tools call get_time
  toolchat tools call calculate '{"operation": "divide", "numbers": [10, 4]}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs := map[string]any{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
				return fmt.Errorf("arguments must be a JSON object: %w", err)
			}
		}
		result := runtime.DefaultRegistry().Dispatch(context.Background(), args[0], toolArgs)
		fmt.Fprintln(os.Stdout, result)
		return nil
	},
}
