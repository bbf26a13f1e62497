package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/backend"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage saved conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		archived, _ := cmd.Flags().GetBool("archived")
		chatType, _ := cmd.Flags().GetString("type")

		ctx, cancel := commandContext()
		defer cancel()
		convs, err := client.ListConversations(ctx, backend.ListOptions{
			Limit:    limit,
			Offset:   offset,
			Archived: &archived,
			ChatType: chatType,
		})
		if err != nil {
			return err
		}
		renderConversations(cmd.OutOrStdout(), convs)
		return nil
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation with its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		conv, err := client.GetConversation(ctx, args[0])
		if err != nil {
			return err
		}
		messages, err := client.ListMessages(ctx, args[0])
		if err != nil {
			return err
		}
		var md *markdown
		if useMarkdown, _ := cmd.Flags().GetBool("markdown"); useMarkdown {
			width, _ := cmd.Flags().GetInt("width")
			if md, err = newMarkdown(width); err != nil {
				return err
			}
		}
		renderConversation(cmd.OutOrStdout(), *conv, messages, md)
		return nil
	},
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		conv, err := client.RenameConversation(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", conv.ID, conv.Title)
		return nil
	},
}

var conversationsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a conversation, or restore it with --undo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		undo, _ := cmd.Flags().GetBool("undo")
		ctx, cancel := commandContext()
		defer cancel()

		conv, err := client.ArchiveConversation(ctx, args[0], !undo)
		if err != nil {
			return err
		}
		if conv.Archived {
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", conv.ID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", conv.ID)
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		if err := client.DeleteConversation(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().Int("limit", 20, "maximum conversations to list")
	conversationsListCmd.Flags().Int("offset", 0, "conversations to skip")
	conversationsListCmd.Flags().Bool("archived", false, "list archived conversations instead")
	conversationsListCmd.Flags().String("type", "", "only conversations of this chat type")
	conversationsShowCmd.Flags().Bool("markdown", false, "render answers as markdown")
	conversationsShowCmd.Flags().Int("width", 80, "wrap width for markdown answers")
	conversationsArchiveCmd.Flags().Bool("undo", false, "restore an archived conversation")

	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsRenameCmd,
		conversationsArchiveCmd, conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}
