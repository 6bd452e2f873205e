package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Regenerate every embedding",
		Long:  "Drop cached and stored vectors and embed the whole corpus again, e.g. after switching embedding models.",
		Run:   runReembed,
	}

	cmd.Flags().BoolP("quiet", "q", false, "Suppress progress output")

	RootCmd.AddCommand(cmd)
}

func runReembed(cmd *cobra.Command, args []string) {
	quiet, _ := cmd.Flags().GetBool("quiet")

	p, closeAll := openPipeline(cmd.Context())
	defer closeAll()

	progress := func(done, total int) {
		if !quiet {
			fmt.Fprintf(os.Stderr, "\rembedding %d/%d", done, total)
		}
	}
	res, err := p.Reembed(cmd.Context(), progress)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		exitErr("reembed", err)
	}

	printJSON(res)
}
