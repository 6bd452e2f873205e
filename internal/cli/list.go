package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/assoc-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent memories",
		Run:   runList,
	}

	cmd.Flags().StringP("platform", "p", "", "Filter by platform")
	cmd.Flags().StringP("conversation", "c", "", "Filter by conversation id")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	platform, _ := cmd.Flags().GetString("platform")
	conversation, _ := cmd.Flags().GetString("conversation")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	memories, err := s.List(cmd.Context(), store.ListParams{
		Platform:       platform,
		ConversationID: conversation,
		Limit:          limit,
	})
	if err != nil {
		exitErr("list", err)
	}

	if len(memories) == 0 {
		fmt.Println("[]")
		return
	}
	for _, m := range memories {
		m.Embedding = nil
	}

	printJSON(memories)
}
