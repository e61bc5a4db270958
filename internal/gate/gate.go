// Package gate implements the per-item output gate that decouples when an
// item finishes fetching from when its records reach the console.
package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/codebuildervaibhav/vodchat/internal/render"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// State is the gate lifecycle: Buffering -> Releasing -> Drained.
type State int

const (
	Buffering State = iota
	Releasing
	Drained
)

func (s State) String() string {
	switch s {
	case Buffering:
		return "buffering"
	case Releasing:
		return "releasing"
	case Drained:
		return "drained"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type entry struct {
	rec  types.CommentRecord
	line string
}

// Gate buffers rendered lines for one item until Release, then passes
// every later submission straight through. One fetcher submits; the
// coordinator releases and waits.
type Gate struct {
	mu       sync.Mutex
	state    State
	fifo     []entry
	out      io.Writer
	renderer *render.Renderer
	observe  func(types.CommentRecord)
	written  int
	writeErr error

	done     chan struct{}
	finish   sync.Once
	fetchErr error
}

// Option configures a Gate
type Option func(*Gate)

// WithObserver registers fn to receive each record at the moment it is written.
func WithObserver(fn func(types.CommentRecord)) Option {
	return func(g *Gate) {
		g.observe = fn
	}
}

// New creates a gate in the Buffering state
func New(renderer *render.Renderer, out io.Writer, opts ...Option) *Gate {
	g := &Gate{
		out:      out,
		renderer: renderer,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewReleased creates a gate that prints records as soon as they are submitted.
func NewReleased(renderer *render.Renderer, out io.Writer, opts ...Option) *Gate {
	g := New(renderer, out, opts...)
	g.state = Releasing
	return g
}

// Submit renders rec and either queues it or writes it immediately,
// depending on whether the gate has been released.
func (g *Gate) Submit(rec types.CommentRecord) error {
	e := entry{rec: rec, line: g.renderer.Line(rec)}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Buffering {
		g.fifo = append(g.fifo, e)
		return nil
	}
	g.writeLocked(e)
	return g.writeErr
}

// Release flushes the buffered lines in FIFO order and switches the gate to
// pass-through. Calling it again is a no-op.
func (g *Gate) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Buffering {
		return g.writeErr
	}
	g.state = Releasing
	g.flushLocked()
	return g.writeErr
}

// Finish records that the fetcher has stopped producing. err is the
// transport error that stopped it early, if any. Only the first call counts.
func (g *Gate) Finish(err error) {
	g.finish.Do(func() {
		g.fetchErr = err
		close(g.done)
	})
}

// Done is closed once Finish has been called
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the fetcher has finished, releases the gate if nobody
// did, and reports the fetch error joined with any write error.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.done:
	case <-ctx.Done():
		// a finished fetch wins over a cancellation that raced with it
		select {
		case <-g.done:
		default:
			return ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Buffering {
		g.state = Releasing
		g.flushLocked()
	}
	g.state = Drained
	return errors.Join(g.fetchErr, g.writeErr)
}

// State returns the current lifecycle state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Written returns how many lines reached the writer
func (g *Gate) Written() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.written
}

// Buffered returns how many lines are waiting for release
func (g *Gate) Buffered() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fifo)
}

func (g *Gate) flushLocked() {
	for _, e := range g.fifo {
		g.writeLocked(e)
	}
	g.fifo = nil
}

func (g *Gate) writeLocked(e entry) {
	if g.writeErr != nil {
		return
	}
	if _, err := io.WriteString(g.out, e.line+"\n"); err != nil {
		g.writeErr = fmt.Errorf("failed to write record: %w", err)
		return
	}
	g.written++
	if g.observe != nil {
		g.observe(e.rec)
	}
}
