package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/cache"
	"github.com/killallgit/normachat/pkg/config"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Look up normas known to the backend",
}

var docsLookupCmd = &cobra.Command{
	Use:   "lookup <norma-id>...",
	Short: "Show normas by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		client, err := newBackend()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		lookup := cache.NewNormaLookup(client, cache.WithTTL(config.Get().Cache.TTL))
		res, err := lookup.Lookup(ctx, ids)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		normas, err := lookup.Normas(ctx, ids)
		if err != nil {
			return err
		}
		renderNormas(out, normas)
		if len(res.NotFound) > 0 {
			fmt.Fprintln(out, dimStyle.Render("No encontradas: "+joinIDs(res.NotFound)))
		}
		return nil
	},
}

func init() {
	docsCmd.AddCommand(docsLookupCmd)
	rootCmd.AddCommand(docsCmd)
}
