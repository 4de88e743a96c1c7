package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// searchCmd represents the search command.
var searchCmd = &cobra.Command{
	Use:   "search <book> <query>",
	Short: "Search a book's text for a query",
	Long: `Search the full text of a book. Matching is case-insensitive and
accent-normalized. Hits are listed in reading order with an excerpt
around each match.

Examples:
  reader search book.epub "white whale"
  reader search paper.pdf methodology --format json`,
	Args:         cobra.ExactArgs(2),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := cmd.Context()

		sess, cleanup, err := openLocalSession(ctx, cfg, args[0])
		if err != nil {
			return err
		}
		defer cleanup()

		query := args[1]
		count, err := sess.Search(ctx, query)
		if err != nil {
			return fmt.Errorf("searching for %q: %w", query, err)
		}

		type hitOut struct {
			Page    int    `json:"page"`
			Offset  int    `json:"offset"`
			Excerpt string `json:"excerpt"`
		}
		hits := make([]hitOut, 0, count)
		for i := 0; i < count; i++ {
			hit, ok, err := sess.NextHit(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			hits = append(hits, hitOut{Page: hit.Page, Offset: hit.Offset, Excerpt: hit.Excerpt})
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case outputFormatJSON:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"query": query, "hits": hits})
		case outputFormatText:
			if len(hits) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no hits for %q\n", query)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d hit(s) for %q:\n", len(hits), query)
			for _, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "  page %d: %s\n", h.Page, h.Excerpt)
			}
			return nil
		default:
			return fmt.Errorf("invalid output format: %s (must be text or json)", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
}
