package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/session"
)

const (
	outputFormatJSON = "json"
	outputFormatText = "text"
)

// openCmd represents the open command.
var openCmd = &cobra.Command{
	Use:   "open <book>",
	Short: "Open a book and report its reading state",
	Long: `Open a PDF or EPUB and report its page count and resume position.
Opening resumes from the last saved reading progress for the book.

Examples:
  reader open book.epub
  reader open paper.pdf --page 12
  reader open book.epub --png page.png`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		ctx := cmd.Context()

		sess, cleanup, err := openLocalSession(ctx, cfg, args[0])
		if err != nil {
			if document.IsDecodeError(err) {
				return fmt.Errorf("book cannot be opened: %w", err)
			}
			return err
		}
		defer cleanup()

		if page, _ := cmd.Flags().GetInt("page"); page > 0 {
			if err := sess.GoTo(ctx, page); err != nil {
				return fmt.Errorf("jumping to page %d: %w", page, err)
			}
		}

		if pngPath, _ := cmd.Flags().GetString("png"); pngPath != "" {
			if err := writeCurrentPagePNG(ctx, sess, pngPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", pngPath)
		}

		doc := sess.Document()
		format, _ := cmd.Flags().GetString("format")
		switch format {
		case outputFormatJSON:
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"book":       doc.ID,
				"kind":       string(doc.Kind),
				"position":   sess.Position().String(),
				"page":       sess.Ordinal(),
				"page_count": sess.PageCount(),
			})
		case outputFormatText:
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): page %d of %d at %s\n",
				doc.ID, doc.Kind, sess.Ordinal(), sess.PageCount(), sess.Position())
			return nil
		default:
			return fmt.Errorf("invalid output format: %s (must be text or json)", format)
		}
	},
}

// writeCurrentPagePNG waits for the session's asynchronous render of the
// current position and encodes the surface to a PNG file.
func writeCurrentPagePNG(ctx context.Context, sess *session.Session, path string) error {
	want := sess.Position()
	if page := sess.CurrentPage(); page == nil || !page.Position.Equal(want) {
		if err := sess.Render(ctx); err != nil {
			return fmt.Errorf("rendering page: %w", err)
		}
		deadline := time.Now().Add(10 * time.Second)
		for {
			if page := sess.CurrentPage(); page != nil && page.Position.Equal(want) {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("rendering page timed out")
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := png.Encode(f, sess.CurrentPage().Image); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().Int("page", 0, "jump to this page ordinal after opening")
	openCmd.Flags().String("png", "", "render the current page to this PNG file")
	openCmd.Flags().StringP("format", "f", outputFormatText, "output format (text, json)")
}
