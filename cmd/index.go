package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/killallgit/normachat/pkg/legal/infoleg"
	"github.com/killallgit/normachat/pkg/legal/saij"
	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/norma"
	"github.com/killallgit/normachat/pkg/rag"
)

var indexCmd = &cobra.Command{
	Use:   "index [norma-id...]",
	Short: "Download normas from InfoLEG and index them for local answers",
	Long: `Fetches each norma's text from InfoLEG and stores it in the local vector store.
With --saij the ids come from a SAIJ search, whose metadata is kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		query, _ := cmd.Flags().GetString("saij")
		limit, _ := cmd.Flags().GetInt("limit")
		updated, _ := cmd.Flags().GetBool("updated")
		workers, _ := cmd.Flags().GetInt("concurrency")
		if len(ids) == 0 && query == "" {
			return fmt.Errorf("nothing to index: pass norma ids or --saij")
		}

		ctx, cancel := commandContext()
		defer cancel()
		out := cmd.OutOrStdout()
		infolegClient, saijClient := newSources()

		// metadata known before the text is downloaded
		known := make(map[int64]norma.Norma, len(ids))
		for _, id := range ids {
			known[id] = norma.Norma{ID: id}
		}
		if query != "" {
			found, err := searchNormas(ctx, saijClient, query, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "SAIJ: %d normas para %q\n", len(found), query)
			for _, n := range found {
				known[n.ID] = n
			}
		}

		variant := infoleg.Original
		if updated {
			variant = infoleg.Updated
		}
		normas := fetchTexts(ctx, out, infolegClient, known, variant, workers)
		if len(normas) == 0 {
			return fmt.Errorf("no norma text could be downloaded")
		}

		col, closeStore, err := openCollection()
		if err != nil {
			return err
		}
		defer closeStore()

		indexer := rag.NewIndexer(col, chunkConfig(), rag.WithProgress(func(n norma.Norma, chunks int) {
			fmt.Fprintf(out, "  %s %s\n", titleStyle.Render(n.DisplayName()), dimStyle.Render(fmt.Sprintf("%d fragmentos", chunks)))
		}))
		stats, err := indexer.Index(ctx, normas...)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Indexadas %d normas en %d fragmentos\n", stats.Normas, stats.Chunks)
		return nil
	},
}

// searchNormas pages through SAIJ until limit normas are collected
func searchNormas(ctx context.Context, client *saij.Client, query string, limit int) ([]norma.Norma, error) {
	var found []norma.Norma
	for offset := 0; len(found) < limit; {
		res, err := client.Search(ctx, query, offset, limit-len(found))
		if err != nil {
			return nil, err
		}
		found = append(found, res.Normas...)
		seen := len(res.Normas) + res.Skipped
		offset += seen
		if seen == 0 || offset >= res.Total {
			break
		}
	}
	return found, nil
}

// fetchTexts downloads texts concurrently; the shared limiter paces the requests.
// Normas that fail to download are reported and left out.
func fetchTexts(ctx context.Context, out io.Writer, client *infoleg.Client, known map[int64]norma.Norma, v infoleg.Variant, workers int) []norma.Norma {
	if workers < 1 {
		workers = 1
	}
	p := pool.NewWithResults[norma.Norma]().WithContext(ctx).WithMaxGoroutines(workers)
	for _, meta := range known {
		meta := meta
		p.Go(func(ctx context.Context) (norma.Norma, error) {
			page, err := client.Fetch(ctx, meta.ID, v)
			if err != nil {
				return norma.Norma{}, err
			}
			meta.Text = page.Text
			meta.URL = page.URL
			if meta.Title == "" {
				meta.Title = page.Title
			}
			if meta.Source == "" {
				meta.Source = page.Source
			}
			return meta, nil
		})
	}

	normas, err := p.Wait()
	if err != nil {
		logger.Warn("index: %v", err)
		renderError(out, err)
	}
	// deterministic order for indexing output
	byID := make(map[int64]norma.Norma, len(normas))
	ids := make([]int64, 0, len(normas))
	for _, n := range normas {
		byID[n.ID] = n
		ids = append(ids, n.ID)
	}
	sorted := make([]norma.Norma, 0, len(normas))
	for _, id := range norma.UniqueIDs(ids) {
		sorted = append(sorted, byID[id])
	}
	return sorted
}

func init() {
	indexCmd.Flags().String("saij", "", "index the results of a SAIJ search")
	indexCmd.Flags().Int("limit", 20, "maximum SAIJ results to index")
	indexCmd.Flags().Bool("updated", false, "index consolidated texts instead of the originals")
	indexCmd.Flags().Int("concurrency", 4, "parallel downloads")
	rootCmd.AddCommand(indexCmd)
}
