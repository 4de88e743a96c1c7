package session

import (
	"sync"

	"github.com/leafmark/reader/internal/annotate"
	"github.com/leafmark/reader/internal/document"
)

// EventType names the session events the surrounding app can react to.
type EventType string

const (
	// EventPositionChanged fires on every page turn or jump, feeding
	// "continue reading" surfaces elsewhere in the app.
	EventPositionChanged EventType = "position-changed"
	// EventPageRendered fires when a render completes.
	EventPageRendered EventType = "page-rendered"
	// EventRenderFailed fires when a render fails; the page keeps its
	// previous surface.
	EventRenderFailed EventType = "render-failed"
	// EventAnnotationCreated fires when an annotation is captured, before
	// persistence settles.
	EventAnnotationCreated EventType = "annotation-created"
	// EventNotice carries transient user-facing degradation notices, like
	// OCR being unavailable.
	EventNotice EventType = "notice"
)

// Event is one session notification.
type Event struct {
	Type       EventType
	Position   document.Position
	Annotation *annotate.Annotation
	Notice     string
	Err        error
}

// bus fans session events out to a single buffered subscriber channel.
// Publishing never blocks: when the subscriber lags, the oldest queued
// event is dropped in favor of the new one.
type bus struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newBus() *bus {
	return &bus{ch: make(chan Event, 64)}
}

func (b *bus) channel() <-chan Event { return b.ch }

func (b *bus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- e:
			return
		default:
			select {
			case <-b.ch:
			default:
			}
		}
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
