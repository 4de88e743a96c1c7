package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leafmark/reader/internal/annotate"
	"github.com/leafmark/reader/internal/store"
)

// annotationsCmd represents the annotations command.
var annotationsCmd = &cobra.Command{
	Use:   "annotations <book>",
	Short: "List or export a book's annotations",
	Long: `List the highlights and bookmarks saved for a book. The book may be
given as a file path or a bare book id.

Examples:
  reader annotations book.epub
  reader annotations book.epub --page 12
  reader annotations book.epub --export highlights.yaml`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := cmd.Context()

		db, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "reader.db"))
		if err != nil {
			return fmt.Errorf("opening reading data store: %w", err)
		}
		defer func() { _ = db.Close() }()

		bookID := bookIDFromPath(args[0])

		var anns []*annotate.Annotation
		if page, _ := cmd.Flags().GetInt("page"); page > 0 {
			anns, err = db.ListByPage(ctx, localUserID, bookID, page)
		} else {
			anns, err = db.List(ctx, localUserID, bookID)
		}
		if err != nil {
			return fmt.Errorf("listing annotations: %w", err)
		}

		if exportPath, _ := cmd.Flags().GetString("export"); exportPath != "" {
			data, err := yaml.Marshal(anns)
			if err != nil {
				return fmt.Errorf("encoding annotations: %w", err)
			}
			if err := os.WriteFile(exportPath, data, 0o600); err != nil {
				return fmt.Errorf("writing %s: %w", exportPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d annotation(s) to %s\n", len(anns), exportPath)
			return nil
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case outputFormatJSON:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(anns)
		case outputFormatText:
			if len(anns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no annotations")
				return nil
			}
			for _, a := range anns {
				loc := a.Anchor.Range
				if loc == "" {
					loc = fmt.Sprintf("page %d", a.Anchor.Page)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-9s %s  %s\n",
					a.CreatedAt.Format("2006-01-02 15:04"), a.Type, loc, a.Text)
			}
			return nil
		default:
			return fmt.Errorf("invalid output format: %s (must be text or json)", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(annotationsCmd)
	annotationsCmd.Flags().Int("page", 0, "only annotations on this page ordinal")
	annotationsCmd.Flags().String("export", "", "write annotations to this YAML file")
	annotationsCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
}
