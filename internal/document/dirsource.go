package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirSource resolves book ids against a local library directory, looking for
// <root>/<bookID>.epub and <root>/<bookID>.pdf. It ignores the user id;
// per-user libraries are the surrounding app's concern.
type DirSource struct {
	root string
}

// NewDirSource returns a source over the given library directory.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Resolve implements Source.
func (d *DirSource) Resolve(_ context.Context, _, bookID string) (Handle, error) {
	for _, kind := range []Kind{KindEPUB, KindPDF} {
		path := filepath.Join(d.root, bookID+"."+string(kind))
		if _, err := os.Stat(path); err == nil {
			return Handle{URL: path, Kind: kind}, nil
		}
	}
	return Handle{}, fmt.Errorf("book %q in %s: %w", bookID, d.root, ErrNotFound)
}
