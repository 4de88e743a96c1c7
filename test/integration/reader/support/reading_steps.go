package support

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/leafmark/reader/internal/annotate"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/session"
	"github.com/leafmark/reader/internal/store"
	"github.com/leafmark/reader/internal/testutil"
)

// rejectingAnnotations fails every write while leaving reads intact.
type rejectingAnnotations struct {
	store.AnnotationStore
}

func (r *rejectingAnnotations) Create(context.Context, string, string, *annotate.Annotation) (string, error) {
	return "", fmt.Errorf("annotation backend unavailable")
}

// RegisterReadingSteps wires the reading-session step definitions.
func (tc *TestContext) RegisterReadingSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a scanned PDF book with (\d+) pages$`, tc.aScannedPDFBook)
	sc.Step(`^an EPUB book with a chapter mentioning "([^"]*)"$`, tc.anEPUBBookMentioning)
	sc.Step(`^an OCR engine that reads "([^"]*)"$`, tc.anOCREngineThatReads)
	sc.Step(`^an annotation store that rejects writes$`, tc.anAnnotationStoreThatRejectsWrites)

	sc.Step(`^I open the book$`, tc.iOpenTheBook)
	sc.Step(`^I reopen the book$`, tc.iOpenTheBook)
	sc.Step(`^I request the text layer of page (\d+)$`, tc.iRequestTheTextLayer)
	sc.Step(`^I search for "([^"]*)"$`, tc.iSearchFor)
	sc.Step(`^I jump to the next hit$`, tc.iJumpToTheNextHit)
	sc.Step(`^I highlight the current passage with note "([^"]*)"$`, tc.iHighlightWithNote)
	sc.Step(`^I bookmark the current page$`, tc.iBookmarkTheCurrentPage)
	sc.Step(`^I go to page (\d+)$`, tc.iGoToPage)

	sc.Step(`^the text layer source is "([^"]*)"$`, tc.theTextLayerSourceIs)
	sc.Step(`^the text layer contains "([^"]*)"$`, tc.theTextLayerContains)
	sc.Step(`^the OCR engine was called (\d+) times?$`, tc.theOCREngineWasCalled)
	sc.Step(`^the search reports (\d+) hits?$`, tc.theSearchReports)
	sc.Step(`^the current page is the hit page$`, tc.theCurrentPageIsTheHitPage)
	sc.Step(`^the annotation list for the current page has (\d+) entr(?:y|ies)$`, tc.theAnnotationListHas)
	sc.Step(`^the listed annotation has note "([^"]*)"$`, tc.theListedAnnotationHasNote)
	sc.Step(`^no error is reported$`, tc.noErrorIsReported)
	sc.Step(`^a notice event is published$`, tc.aNoticeEventIsPublished)
	sc.Step(`^the session resumes at page (\d+)$`, tc.theSessionResumesAtPage)
}

func (tc *TestContext) aScannedPDFBook(pages int) error {
	images := make([]image.Image, pages)
	for i := range images {
		images[i] = testutil.CreateTextImage("scanned page text", testutil.MediumSize)
	}
	data, err := testutil.ScannedPDFBytes(images)
	if err != nil {
		return fmt.Errorf("building scanned PDF: %w", err)
	}
	tc.bookPath = filepath.Join(tc.TempDir, "book.pdf")
	tc.kind = document.KindPDF
	return os.WriteFile(tc.bookPath, data, 0o600)
}

func (tc *TestContext) anEPUBBookMentioning(keyword string) error {
	filler := strings.Repeat("A plain sentence with nothing remarkable in it. ", 200)
	data, err := testutil.EPUBBytes([]string{
		filler,
		fmt.Sprintf("This closing chapter mentions a %s exactly once.", keyword),
	})
	if err != nil {
		return fmt.Errorf("building EPUB: %w", err)
	}
	tc.bookPath = filepath.Join(tc.TempDir, "book.epub")
	tc.kind = document.KindEPUB
	return os.WriteFile(tc.bookPath, data, 0o600)
}

func (tc *TestContext) anOCREngineThatReads(text string) error {
	tc.fakeOCR = testutil.NewFakeOCR(text)
	return nil
}

func (tc *TestContext) anAnnotationStoreThatRejectsWrites() error {
	tc.failCreates = true
	return nil
}

func (tc *TestContext) iOpenTheBook(ctx context.Context) error {
	return tc.openSession(ctx)
}

func (tc *TestContext) iRequestTheTextLayer(ctx context.Context, page int) error {
	text, err := tc.sess.PageText(ctx, page)
	if err != nil {
		return fmt.Errorf("resolving text for page %d: %w", page, err)
	}
	tc.lastText = text
	return nil
}

func (tc *TestContext) iSearchFor(ctx context.Context, query string) error {
	hits, err := tc.sess.Search(ctx, query)
	if err != nil {
		return err
	}
	tc.lastHits = hits
	return nil
}

func (tc *TestContext) iJumpToTheNextHit(ctx context.Context) error {
	hit, found, err := tc.sess.NextHit(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no hit to jump to")
	}
	tc.hitPage = hit.Page
	return nil
}

func (tc *TestContext) iHighlightWithNote(ctx context.Context, note string) error {
	a, err := tc.sess.HighlightRange(ctx, tc.epubToken(), note)
	tc.lastErr = err
	if err == nil && a == nil {
		return fmt.Errorf("highlight produced no annotation")
	}
	return err
}

func (tc *TestContext) iBookmarkTheCurrentPage(context.Context) error {
	events := tc.sess.Events()
	if a := tc.sess.Bookmark(context.Background()); a == nil {
		return fmt.Errorf("bookmark produced no annotation")
	}
	// Drain events published by the bookmark so the notice assertion can
	// inspect them.
	tc.drainEvents(events)
	return nil
}

func (tc *TestContext) iGoToPage(ctx context.Context, page int) error {
	return tc.sess.GoTo(ctx, page)
}

func (tc *TestContext) theTextLayerSourceIs(source string) error {
	if tc.lastText == nil {
		return fmt.Errorf("no text layer resolved yet")
	}
	if string(tc.lastText.Source) != source {
		return fmt.Errorf("text source is %q, expected %q", tc.lastText.Source, source)
	}
	return nil
}

func (tc *TestContext) theTextLayerContains(substr string) error {
	if tc.lastText == nil {
		return fmt.Errorf("no text layer resolved yet")
	}
	if !strings.Contains(tc.lastText.FlatText, substr) {
		return fmt.Errorf("text layer %q does not contain %q", tc.lastText.FlatText, substr)
	}
	return nil
}

func (tc *TestContext) theOCREngineWasCalled(n int) error {
	if tc.fakeOCR == nil {
		return fmt.Errorf("no OCR engine configured")
	}
	if got := tc.fakeOCR.Calls(); got != n {
		return fmt.Errorf("OCR engine was called %d times, expected %d", got, n)
	}
	return nil
}

func (tc *TestContext) theSearchReports(n int) error {
	if tc.lastHits != n {
		return fmt.Errorf("search reported %d hits, expected %d", tc.lastHits, n)
	}
	return nil
}

func (tc *TestContext) theCurrentPageIsTheHitPage() error {
	if tc.hitPage < 1 {
		return fmt.Errorf("no hit recorded")
	}
	if got := tc.sess.Ordinal(); got != tc.hitPage {
		return fmt.Errorf("current page is %d, hit was on page %d", got, tc.hitPage)
	}
	return nil
}

func (tc *TestContext) theAnnotationListHas(ctx context.Context, n int) error {
	anns, err := tc.sess.AnnotationsForPage(ctx, tc.sess.Ordinal())
	if err != nil {
		return err
	}
	if len(anns) != n {
		return fmt.Errorf("annotation list has %d entries, expected %d", len(anns), n)
	}
	return nil
}

func (tc *TestContext) theListedAnnotationHasNote(ctx context.Context, note string) error {
	anns, err := tc.sess.AnnotationsForPage(ctx, tc.sess.Ordinal())
	if err != nil {
		return err
	}
	for _, a := range anns {
		if a.Text == note {
			return nil
		}
	}
	return fmt.Errorf("no annotation with note %q among %d entries", note, len(anns))
}

func (tc *TestContext) noErrorIsReported() error {
	return tc.lastErr
}

func (tc *TestContext) aNoticeEventIsPublished() error {
	for _, e := range tc.seenEvents {
		if e.Type == session.EventNotice {
			return nil
		}
	}
	return fmt.Errorf("no notice event observed among %d events", len(tc.seenEvents))
}

func (tc *TestContext) theSessionResumesAtPage(page int) error {
	if got := tc.sess.Ordinal(); got != page {
		return fmt.Errorf("session resumed at page %d, expected %d", got, page)
	}
	return nil
}

// drainEvents collects events already queued on the session bus.
func (tc *TestContext) drainEvents(events <-chan session.Event) {
	deadline := time.After(time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			tc.seenEvents = append(tc.seenEvents, e)
		case <-deadline:
			return
		default:
			if len(tc.seenEvents) > 0 {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}
