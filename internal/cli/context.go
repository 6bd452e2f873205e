package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble relevant memories within a token budget",
		Long:  "Find memories relevant to the query, follow their links, and pack them greedily into a token budget.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().IntP("budget", "b", 1000, "Token budget")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")
	query := strings.Join(args, " ")

	p, closeAll := openPipeline(cmd.Context())
	defer closeAll()

	result, err := p.Context(cmd.Context(), query, budget)
	if err != nil {
		exitErr("context", err)
	}

	printJSON(result)
}
