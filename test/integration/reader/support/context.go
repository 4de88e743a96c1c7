// Package support holds the shared state and step definitions for the
// reading-session feature tests.
package support

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/ocrcache"
	"github.com/leafmark/reader/internal/session"
	"github.com/leafmark/reader/internal/store"
	"github.com/leafmark/reader/internal/testutil"
	"github.com/leafmark/reader/internal/textlayer"
)

const testUserID = "itest"

// TestContext holds the state for one scenario.
type TestContext struct {
	TempDir string

	cfg     *config.Config
	mem     *store.MemoryStore
	cache   *ocrcache.Store
	fakeOCR *testutil.FakeOCR

	// failCreates wraps the annotation store so writes are rejected.
	failCreates bool

	bookPath string
	kind     document.Kind

	sess       *session.Session
	lastErr    error
	lastText   *textlayer.PageText
	lastHits   int
	hitPage    int
	seenEvents []session.Event
}

// NewTestContext creates a fresh context with its own temp directory,
// in-memory stores, and a persistent OCR cache file.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "reader-itest-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	cache, err := ocrcache.NewStore(filepath.Join(tempDir, "ocr-cache.db"))
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, fmt.Errorf("opening OCR cache: %w", err)
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = tempDir
	cfg.Render.ViewportWidth = 640
	cfg.Render.ViewportHeight = 480

	return &TestContext{
		TempDir: tempDir,
		cfg:     cfg,
		mem:     store.NewMemoryStore(),
		cache:   cache,
	}, nil
}

// Cleanup closes the open session and removes scenario state.
func (tc *TestContext) Cleanup() error {
	if tc.sess != nil {
		tc.sess.Close()
		tc.sess = nil
	}
	if tc.cache != nil {
		_ = tc.cache.Close()
		tc.cache = nil
	}
	return os.RemoveAll(tc.TempDir)
}

// openSession opens (or reopens) a session on the scenario's book with the
// scenario's shared stores, so cache and annotations survive reloads.
func (tc *TestContext) openSession(ctx context.Context) error {
	if tc.sess != nil {
		tc.sess.Close()
		tc.sess = nil
	}

	deps := session.Deps{
		Cache:       tc.cache,
		Progress:    tc.mem,
		Annotations: tc.mem,
	}
	if tc.fakeOCR != nil {
		deps.OCR = tc.fakeOCR
	}
	if tc.failCreates {
		deps.Annotations = &rejectingAnnotations{AnnotationStore: tc.mem}
	}

	doc := document.Document{ID: "book", Kind: tc.kind, Path: tc.bookPath}
	sess, err := session.Open(ctx, tc.cfg, testUserID, doc, deps)
	if err != nil {
		return err
	}
	tc.sess = sess
	return nil
}

// epubToken strips the engine tag from the session's position string,
// leaving the spine/paragraph/offset range token.
func (tc *TestContext) epubToken() string {
	return strings.TrimPrefix(tc.sess.Position().String(), "epub:")
}
