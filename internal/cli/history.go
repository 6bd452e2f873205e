package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/assoc-memory/internal/evolution"
	"github.com/rcliao/assoc-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show a memory's evolution history",
		Long:  "Show the current metadata and the evolution history, oldest first. Use the entry index with revert.",
		Args:  cobra.ExactArgs(1),
		Run:   runHistory,
	}

	RootCmd.AddCommand(cmd)
}

type historyView struct {
	ID        string                    `json:"id"`
	Keywords  []string                  `json:"keywords"`
	Tags      []string                  `json:"tags"`
	Context   string                    `json:"context"`
	Evolution *model.EvolutionState     `json:"evolution,omitempty"`
	History   []model.EvolutionSnapshot `json:"history"`
}

func runHistory(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("history", err)
	}

	history := evolution.History(m)
	if history == nil {
		history = []model.EvolutionSnapshot{}
	}
	var state *model.EvolutionState
	if m.Evolution != nil {
		st := *m.Evolution
		st.History = nil
		state = &st
	}

	printJSON(historyView{
		ID:        m.ID,
		Keywords:  m.Keywords,
		Tags:      m.Tags,
		Context:   m.Context,
		Evolution: state,
		History:   history,
	})
}
