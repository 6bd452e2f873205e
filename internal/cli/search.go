package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/assoc-memory/internal/pipeline"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search memories by meaning",
		Long: "Rank memories by hybrid semantic and keyword similarity. " +
			"With --links, also include memories linked from the top hits.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().IntP("limit", "l", 5, "Max results")
	cmd.Flags().Float64P("threshold", "t", 0.5, "Minimum score")
	cmd.Flags().Bool("links", false, "Expand results through links")

	RootCmd.AddCommand(cmd)
}

type searchResult struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Role     string   `json:"role"`
	Platform string   `json:"platform"`
	Tags     []string `json:"tags,omitempty"`
	Score    float64  `json:"score"`
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	withLinks, _ := cmd.Flags().GetBool("links")
	query := strings.Join(args, " ")

	p, closeAll := openPipeline(cmd.Context())
	defer closeAll()

	results, err := p.Search(cmd.Context(), query, pipeline.SearchParams{
		Limit:     limit,
		Threshold: threshold,
		WithLinks: withLinks,
	})
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	out := make([]searchResult, len(results))
	for i, c := range results {
		out[i] = searchResult{
			ID:       c.Memory.ID,
			Text:     c.Memory.Text,
			Role:     c.Memory.Role,
			Platform: c.Memory.Platform,
			Tags:     c.Memory.Tags,
			Score:    math.Round(c.Score*1000) / 1000,
		}
	}
	printJSON(out)
}
