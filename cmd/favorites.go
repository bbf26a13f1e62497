package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/cache"
	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/optimistic"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "List favorite normas",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newBackend()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		ids, err := client.ListFavorites(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No hay normas favoritas."))
			return nil
		}
		normas, err := cache.NewNormaLookup(client).Normas(ctx, ids)
		if err != nil {
			return err
		}
		renderNormas(cmd.OutOrStdout(), normas)
		return nil
	},
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle <norma-id>...",
	Short: "Add or remove normas from favorites",
	Long: `Flips each norma's favorite state. The change is shown immediately and
undone if the backend rejects it.`,
	Args: cobra.MinimumNArgs(1),
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

		current, err := client.ListFavorites(ctx)
		if err != nil {
			return err
		}
		favorites := optimistic.NewFavorites(current...)

		out := cmd.OutOrStdout()
		failed := 0
		dispatcher := optimistic.NewDispatcher(
			optimistic.WithTimeout(config.Get().Backend.Timeout),
			optimistic.WithFailureHandler(func(f optimistic.Failure) {
				failed++
				logger.Error("favorite update failed: %v", f.Err)
				renderError(out, f.Err)
			}),
		)
		defer dispatcher.Close()

		for _, id := range ids {
			if err := dispatcher.Submit(favorites.Toggle(client, id)); err != nil {
				return err
			}
		}
		if err := dispatcher.Flush(ctx); err != nil {
			return err
		}

		fmt.Fprintf(out, "Favorites: %s\n", joinIDs(favorites.IDs()))
		if failed > 0 {
			return fmt.Errorf("%d favorite update(s) failed", failed)
		}
		return nil
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesToggleCmd)
	rootCmd.AddCommand(favoritesCmd)
}
