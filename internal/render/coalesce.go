package render

import (
	"context"
	"errors"
	"sync"

	"github.com/leafmark/reader/internal/document"
)

// ErrClosed is returned by Submit after the coalescer is closed.
var ErrClosed = errors.New("render: coalescer closed")

// Request asks for one page render.
type Request struct {
	Position document.Position
	Zoom     float64
}

// Outcome is the result of one completed render.
type Outcome struct {
	Request Request
	Page    *Page
	Err     error
}

// RenderFunc performs the actual render for a request.
type RenderFunc func(ctx context.Context, req Request) (*Page, error)

type waiting struct {
	ctx context.Context
	req Request
}

// Coalescer serializes renders for one document. At most one render runs at
// a time and at most one request waits behind it; submitting while a request
// is waiting replaces it. A burst of page or zoom changes therefore costs
// two renders, the in-flight one and the latest.
type Coalescer struct {
	render  RenderFunc
	deliver func(Outcome)

	mu       sync.Mutex
	inflight bool
	pending  *waiting
	closed   bool
	wg       sync.WaitGroup
}

// NewCoalescer wraps render. Every completed render is passed to deliver,
// from the render goroutine.
func NewCoalescer(render RenderFunc, deliver func(Outcome)) *Coalescer {
	return &Coalescer{render: render, deliver: deliver}
}

// Submit requests a render. It never blocks: when a render is already in
// flight the request parks in the pending slot, displacing whatever was
// there.
func (c *Coalescer) Submit(ctx context.Context, req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.inflight {
		c.pending = &waiting{ctx: ctx, req: req}
		return nil
	}
	c.inflight = true
	c.wg.Add(1)
	go c.run(ctx, req)
	return nil
}

func (c *Coalescer) run(ctx context.Context, req Request) {
	defer c.wg.Done()

	for {
		page, err := c.render(ctx, req)
		c.deliver(Outcome{Request: req, Page: page, Err: err})

		c.mu.Lock()
		if c.pending == nil || c.closed {
			c.inflight = false
			c.mu.Unlock()
			return
		}
		next := *c.pending
		c.pending = nil
		c.mu.Unlock()

		ctx, req = next.ctx, next.req
	}
}

// Close rejects further submissions, discards any pending request, and waits
// for the in-flight render to finish.
func (c *Coalescer) Close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()
	c.wg.Wait()
}
