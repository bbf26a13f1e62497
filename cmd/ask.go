package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>...",
	Short: "Answer a question locally from the indexed normas",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		col, closeStore, err := openCollection()
		if err != nil {
			return err
		}
		defer closeStore()

		pipeline, err := newPipeline(col)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		out := cmd.OutOrStdout()
		streamed := false
		answer, err := pipeline.AskStream(ctx, strings.Join(args, " "), func(chunk string) error {
			streamed = true
			_, err := fmt.Fprint(out, chunk)
			return err
		})
		if err != nil {
			return err
		}
		if !streamed {
			fmt.Fprint(out, answer.Text)
		}
		fmt.Fprintln(out)

		if showSources, _ := cmd.Flags().GetBool("sources"); showSources {
			for _, s := range answer.Sources {
				fmt.Fprintf(out, "  %s %s %s\n",
					dimStyle.Render(fmt.Sprintf("[Norma %d]", s.NormaID)),
					s.Title,
					dimStyle.Render(fmt.Sprintf("%.2f", s.Score)))
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("sources", true, "list the retrieved sources after the answer")
	rootCmd.AddCommand(askCmd)
}
