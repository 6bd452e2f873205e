package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove links below the quality threshold",
		Run:   runPrune,
	}

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	p, closeAll := openPipeline(cmd.Context())
	defer closeAll()

	res, err := p.Prune(cmd.Context())
	if err != nil {
		exitErr("prune", err)
	}

	printJSON(res)
}
