package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/leafmark/reader/internal/annotate"
)

type key struct{ user, book string }

// MemoryStore is a map-backed ProgressStore and AnnotationStore, used by
// tests and by sessions running without configured persistence.
type MemoryStore struct {
	mu          sync.RWMutex
	progress    map[key]*Progress
	annotations map[key][]*annotate.Annotation
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		progress:    make(map[key]*Progress),
		annotations: make(map[key][]*annotate.Annotation),
	}
}

// Get implements ProgressStore.
func (m *MemoryStore) Get(_ context.Context, userID, bookID string) (*Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[key{userID, bookID}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Merge implements ProgressStore.
func (m *MemoryStore) Merge(_ context.Context, userID, bookID string, partial Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{userID, bookID}
	p, ok := m.progress[k]
	if !ok {
		p = &Progress{}
		m.progress[k] = p
	}
	p.merge(partial)
	return nil
}

// Create implements AnnotationStore.
func (m *MemoryStore) Create(_ context.Context, userID, bookID string, a *annotate.Annotation) (string, error) {
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("invalid annotation: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{userID, bookID}
	cp := *a
	m.annotations[k] = append(m.annotations[k], &cp)
	return a.ID, nil
}

// List implements AnnotationStore.
func (m *MemoryStore) List(_ context.Context, userID, bookID string) ([]*annotate.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.annotations[key{userID, bookID}]
	out := make([]*annotate.Annotation, len(stored))
	for i, a := range stored {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

// ListByPage implements AnnotationStore.
func (m *MemoryStore) ListByPage(_ context.Context, userID, bookID string, page int) ([]*annotate.Annotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*annotate.Annotation
	for _, a := range m.annotations[key{userID, bookID}] {
		if a.Anchor.Page == page {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Delete implements AnnotationStore.
func (m *MemoryStore) Delete(_ context.Context, userID, bookID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{userID, bookID}
	stored := m.annotations[k]
	for i, a := range stored {
		if a.ID == id {
			m.annotations[k] = append(stored[:i:i], stored[i+1:]...)
			return nil
		}
	}
	return nil
}
