package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/legal/infoleg"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Query public legislation sources",
}

var sourcesInfolegCmd = &cobra.Command{
	Use:   "infoleg <norma-id>",
	Short: "Print the text of a norma from InfoLEG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		updated, _ := cmd.Flags().GetBool("updated")
		variant := infoleg.Original
		if updated {
			variant = infoleg.Updated
		}

		client, _ := newSources()
		ctx, cancel := commandContext()
		defer cancel()

		n, err := client.Fetch(ctx, ids[0], variant)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(n.Title))
		fmt.Fprintln(out, dimStyle.Render(n.URL))
		fmt.Fprintln(out)
		fmt.Fprintln(out, n.Text)
		return nil
	},
}

var sourcesSaijCmd = &cobra.Command{
	Use:   "saij <query>...",
	Short: "Search legislation in SAIJ",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt("offset")
		size, _ := cmd.Flags().GetInt("size")

		_, client := newSources()
		ctx, cancel := commandContext()
		defer cancel()

		res, err := client.Search(ctx, strings.Join(args, " "), offset, size)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		renderNormas(out, res.Normas)
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d de %d resultados", len(res.Normas), res.Total)))
		return nil
	},
}

func init() {
	sourcesInfolegCmd.Flags().Bool("updated", false, "fetch the consolidated text instead of the original")
	sourcesSaijCmd.Flags().Int("offset", 0, "results to skip")
	sourcesSaijCmd.Flags().Int("size", 10, "results per page")

	sourcesCmd.AddCommand(sourcesInfolegCmd, sourcesSaijCmd)
	rootCmd.AddCommand(sourcesCmd)
}
