package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leafmark/reader/internal/ocr"
)

// textCmd represents the text command.
var textCmd = &cobra.Command{
	Use:   "text <book>",
	Short: "Extract the text layer of a page",
	Long: `Resolve and print the text layer of a page. PDF pages with native text
are extracted directly; scanned pages fall back to OCR, with results
cached so repeated extractions are instant. EPUB pages are always
native.

Examples:
  reader text book.epub --page 1
  reader text scan.pdf --page 3 --format json`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := cmd.Context()

		sess, cleanup, err := openLocalSession(ctx, cfg, args[0])
		if err != nil {
			return err
		}
		defer cleanup()

		page, _ := cmd.Flags().GetInt("page")
		if page < 1 {
			page = sess.Ordinal()
		}
		if page > sess.PageCount() {
			return fmt.Errorf("page %d out of range (book has %d pages)", page, sess.PageCount())
		}

		text, err := sess.PageText(ctx, page)
		if err != nil {
			if errors.Is(err, ocr.ErrUnavailable) {
				return fmt.Errorf("page %d has no native text and OCR is unavailable", page)
			}
			return fmt.Errorf("resolving text for page %d: %w", page, err)
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case outputFormatJSON:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(text)
		case outputFormatText:
			fmt.Fprintln(cmd.OutOrStdout(), text.FlatText)
			return nil
		default:
			return fmt.Errorf("invalid output format: %s (must be text or json)", format)
		}
	},
}

func init() {
	rootCmd.AddCommand(textCmd)
	textCmd.Flags().Int("page", 0, "page ordinal (defaults to the resume position)")
	textCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
}
