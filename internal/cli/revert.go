package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "revert <id> [index]",
		Short: "Revert a memory's metadata to a history entry",
		Long:  "Revert to history entry index (default -1, the most recent). Negative indices count from the end.",
		Args:  cobra.RangeArgs(1, 2),
		Run:   runRevert,
	}

	RootCmd.AddCommand(cmd)
}

func runRevert(cmd *cobra.Command, args []string) {
	idx := -1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			exitErr("revert", fmt.Errorf("invalid index %q", args[1]))
		}
		idx = n
	}

	p, closeAll := openPipeline(cmd.Context())
	defer closeAll()

	m, err := p.Revert(cmd.Context(), args[0], idx)
	if err != nil {
		exitErr("revert", err)
	}
	m.Embedding = nil

	printJSON(m)
}
