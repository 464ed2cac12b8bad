package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/harun/erptools/internal/tracing"
	"github.com/harun/erptools/pkg/toolexecutor"
	"github.com/harun/erptools/pkg/tools"
	"github.com/spf13/cobra"
)

var (
	listCategory string
	listJSON     bool
	callArgs     string
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and run ERP tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tool catalog",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Run one tool against the configured platform and print its result",
	Example: `  erptools tools call get_item --args '{"item_code":"WIDGET-01"}'
  erptools tools call get_balance_sheet --args '{"company":"Acme Ltd","periodicity":"Yearly"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runToolsCall,
}

func init() {
	toolsListCmd.Flags().StringVar(&listCategory, "category", "", "only list tools in this category (sales, stock, accounting)")
	toolsListCmd.Flags().BoolVar(&listJSON, "json", false, "print definitions with input schemas as JSON")
	toolsCallCmd.Flags().StringVar(&callArgs, "args", "{}", "tool arguments as a JSON object")

	toolsCmd.AddCommand(toolsListCmd, toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

// catalogDefinitions builds definitions without a platform; handlers are never invoked
func catalogDefinitions() []toolexecutor.ToolDefinition {
	catalog := tools.Catalog()
	defs := make([]toolexecutor.ToolDefinition, 0, len(catalog))
	for _, reg := range catalog {
		defs = append(defs, reg.Build(tools.Env{}))
	}
	return defs
}

func runToolsList(cmd *cobra.Command, args []string) error {
	defs := catalogDefinitions()
	if listCategory != "" {
		if !toolexecutor.IsValidCategory(listCategory) {
			return fmt.Errorf("unknown category %q", listCategory)
		}
		defs = toolexecutor.FilterByCategory(defs, toolexecutor.ToolCategory(listCategory))
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	}
	return printToolTable(out, defs)
}

func printToolTable(out io.Writer, defs []toolexecutor.ToolDefinition) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tPERMISSION\tDESCRIPTION")
	for _, def := range defs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.Name, def.Category, def.Permission, firstLine(def.Description))
	}
	return w.Flush()
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	var toolArgs map[string]interface{}
	if err := json.Unmarshal([]byte(callArgs), &toolArgs); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := tracing.NewRequestContext(cmd.Context(), "cli", "cli")
	result := a.executor.Execute(ctx, args[0], toolexecutor.Args(toolArgs), &toolexecutor.ExecutionContext{CallerID: "cli"})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Payload()); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("tool %s failed", args[0])
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
