package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/chat"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <message-id> <like|dislike|none>",
	Short: "Rate an assistant message",
	Long:  `Records like or dislike on an assistant message. "none" removes the rating.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		messageID, verdict := args[0], args[1]

		var kind chat.FeedbackKind
		if verdict != "none" {
			kind = chat.FeedbackKind(verdict)
			if !kind.Valid() {
				return fmt.Errorf("invalid feedback %q, expected like, dislike or none", verdict)
			}
		}

		client, err := newBackend()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		if kind == "" {
			if err := client.DeleteFeedback(ctx, messageID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed feedback from %s\n", messageID)
			return nil
		}
		if err := client.CreateFeedback(ctx, messageID, kind); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as %s\n", messageID, kind)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
}
