package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/assoc-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "links <id>",
		Short: "Show a memory's links",
		Args:  cobra.ExactArgs(1),
		Run:   runLinks,
	}

	RootCmd.AddCommand(cmd)
}

type linkView struct {
	MemoryID  string    `json:"memory_id"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text,omitempty"`
	Missing   bool      `json:"missing,omitempty"`
}

func runLinks(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m, err := s.Get(cmd.Context(), args[0])
	if err != nil {
		exitErr("links", err)
	}

	out := make([]linkView, 0, len(m.Links))
	for _, l := range m.Links {
		v := linkView{MemoryID: l.MemoryID, Score: l.Score, Reason: l.Reason, CreatedAt: l.CreatedAt}
		other, err := s.Get(cmd.Context(), l.MemoryID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			v.Missing = true
		case err != nil:
			exitErr("links", err)
		default:
			v.Text = other.Text
		}
		out = append(out, v)
	}

	printJSON(out)
}
