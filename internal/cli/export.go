package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export memories, including links, evolution history and embeddings, as a JSON array. Filter by platform with -p.",
		Run:   runExport,
	}

	cmd.Flags().StringP("platform", "p", "", "Filter by platform")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	platform, _ := cmd.Flags().GetString("platform")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.ExportAll(cmd.Context(), platform)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(memories)
}
