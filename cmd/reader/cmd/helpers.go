package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/ocr"
	"github.com/leafmark/reader/internal/ocrcache"
	"github.com/leafmark/reader/internal/session"
	"github.com/leafmark/reader/internal/store"
)

// localUserID scopes progress and annotations written by CLI commands.
const localUserID = "local"

func kindFromPath(path string) (document.Kind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return document.KindEPUB, nil
	case ".pdf":
		return document.KindPDF, nil
	default:
		return "", fmt.Errorf("unsupported document type %q (expected .epub or .pdf)", filepath.Ext(path))
	}
}

func bookIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// buildDeps assembles the session collaborators from the configuration:
// SQLite-backed progress and annotation stores under the data directory, the
// persistent OCR cache, and a Tesseract engine when OCR is enabled.
func buildDeps(cfg *config.Config) (session.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "reader.db"))
	if err != nil {
		return session.Deps{}, nil, fmt.Errorf("opening reading data store: %w", err)
	}
	closers = append(closers, func() { _ = db.Close() })

	deps := session.Deps{Progress: db, Annotations: db}

	cache, err := ocrcache.NewStore(cfg.CachePath())
	if err != nil {
		cleanup()
		return session.Deps{}, nil, fmt.Errorf("opening OCR cache: %w", err)
	}
	closers = append(closers, func() { _ = cache.Close() })
	deps.Cache = cache

	if cfg.Text.OCREnabled {
		engine, err := ocr.NewTesseractEngine(cfg.Text.OCRLanguages)
		if err != nil {
			slog.Warn("OCR engine unavailable, scanned pages will have no text layer", "error", err)
		} else {
			closers = append(closers, func() { _ = engine.Close() })
			deps.OCR = engine
		}
	}

	return deps, cleanup, nil
}

// openLocalSession opens a reading session for a document on the local
// filesystem. The returned cleanup closes the session and its stores.
func openLocalSession(ctx context.Context, cfg *config.Config, path string) (*session.Session, func(), error) {
	kind, err := kindFromPath(path)
	if err != nil {
		return nil, nil, err
	}

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		return nil, nil, err
	}

	doc := document.Document{ID: bookIDFromPath(path), Kind: kind, Path: path}
	sess, err := session.Open(ctx, cfg, localUserID, doc, deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return sess, func() {
		sess.Close()
		cleanup()
	}, nil
}
