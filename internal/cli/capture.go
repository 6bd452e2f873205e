package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/assoc-memory/internal/pipeline"
)

func init() {
	cmd := &cobra.Command{
		Use:   "capture [text]",
		Short: "Capture a conversation turn as a memory",
		Long: "Capture a conversation turn. Text can be a positional arg or piped via stdin. " +
			"The memory is enriched, embedded, linked to related memories, and may evolve them.",
		Run: runCapture,
	}

	cmd.Flags().StringP("role", "r", "user", "Speaker role: user or assistant")
	cmd.Flags().StringP("platform", "p", "", "Chat platform the turn came from")
	cmd.Flags().StringP("conversation", "c", "", "Conversation id")

	RootCmd.AddCommand(cmd)
}

func runCapture(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	platform, _ := cmd.Flags().GetString("platform")
	conversation, _ := cmd.Flags().GetString("conversation")

	// Get text: positional arg first, then check stdin
	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}

	if strings.TrimSpace(text) == "" {
		exitErr("capture", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	p, closeAll := openPipeline(cmd.Context())
	defer closeAll()

	res, err := p.Capture(cmd.Context(), pipeline.CaptureParams{
		Text:           strings.TrimSpace(text),
		Role:           role,
		Platform:       platform,
		ConversationID: conversation,
	})
	if err != nil {
		exitErr("capture", err)
	}
	out := *res.Memory
	out.Embedding = nil
	res.Memory = &out

	printJSON(res)
}
