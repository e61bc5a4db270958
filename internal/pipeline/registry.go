package pipeline

import (
	"io"
	"sync"

	"github.com/codebuildervaibhav/vodchat/internal/fetch"
	"github.com/codebuildervaibhav/vodchat/internal/gate"
	"github.com/codebuildervaibhav/vodchat/internal/render"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// entry is one registered item: its gate plus what its fetcher reported.
// stats is written by the fetcher goroutine before the gate is finished and
// read by the coordinator only after Done is closed.
type entry struct {
	item  types.WorkItem
	gate  *gate.Gate
	stats fetch.Stats

	mu      sync.Mutex
	status  string
	records []types.CommentRecord
}

// newEntry creates a queued entry. When collect is set every displayed
// record is kept for exporters.
func newEntry(item types.WorkItem, renderer *render.Renderer, out io.Writer, collect bool) *entry {
	e := &entry{item: item, status: types.StatusQueued}

	var opts []gate.Option
	if collect {
		opts = append(opts, gate.WithObserver(func(rec types.CommentRecord) {
			e.records = append(e.records, rec)
		}))
	}
	e.gate = gate.New(renderer, out, opts...)
	return e
}

func (e *entry) setStatus(status string) {
	e.mu.Lock()
	e.status = status
	e.mu.Unlock()
}

func (e *entry) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// registry is the ordered list of entries; its order is the display order.
type registry []*entry
