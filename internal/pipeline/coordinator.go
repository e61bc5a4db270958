// Package pipeline starts one fetcher per item concurrently and displays
// their output strictly in enumeration order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codebuildervaibhav/vodchat/internal/fetch"
	"github.com/codebuildervaibhav/vodchat/internal/render"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// ErrAborted is returned by Run when AbortOnError stopped the run early.
var ErrAborted = errors.New("run aborted")

// RunInfo describes one coordinator run
type RunInfo struct {
	ID        string
	StartedAt time.Time
	Filter    string
}

// ItemResult is what happened to one item
type ItemResult struct {
	Item    types.WorkItem
	Status  string
	Records int
	Matched int
	Skipped int
	Err     error
}

// Report summarises a run in display order
type Report struct {
	RunInfo
	Items []ItemResult
}

// Err joins every item error of the run
func (r Report) Err() error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			errs = append(errs, it.Err)
		}
	}
	return errors.Join(errs...)
}

// Exporter persists the displayed records of a finished item
type Exporter interface {
	Name() string
	Export(ctx context.Context, run RunInfo, res ItemResult, recs []types.CommentRecord) error
}

// Coordinator runs the fetch-and-display pipeline
type Coordinator struct {
	fetcher  *fetch.Fetcher
	renderer *render.Renderer
	out      io.Writer
	logger   *slog.Logger

	maxConcurrent int64
	itemTimeout   time.Duration
	abortOnError  bool
	filter        string
	exporters     []Exporter
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithMaxConcurrent caps how many fetchers talk to the network at once.
// Zero means no cap. Display order is unaffected.
func WithMaxConcurrent(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrent = int64(n)
		}
	}
}

// WithItemTimeout bounds how long a single item may fetch
func WithItemTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.itemTimeout = d
	}
}

// WithAbortOnError makes a transport error in one item stop the whole run
// once that item has been displayed.
func WithAbortOnError(abort bool) Option {
	return func(c *Coordinator) {
		c.abortOnError = abort
	}
}

// WithFilterDescription records the filter pattern in the run info
func WithFilterDescription(pattern string) Option {
	return func(c *Coordinator) {
		c.filter = pattern
	}
}

// WithExporters registers exporters called after each item is drained
func WithExporters(exporters ...Exporter) Option {
	return func(c *Coordinator) {
		c.exporters = append(c.exporters, exporters...)
	}
}

// New creates a coordinator writing to out
func New(fetcher *fetch.Fetcher, renderer *render.Renderer, out io.Writer, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Coordinator{
		fetcher:  fetcher,
		renderer: renderer,
		out:      out,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run fetches every item concurrently and displays them in order. Item
// transport errors are reported in the Report; the returned error is set
// only when the run itself stopped early (cancellation, abort, console
// write failure).
func (c *Coordinator) Run(ctx context.Context, items []types.WorkItem) (Report, error) {
	report := Report{RunInfo: RunInfo{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Filter:    c.filter,
	}}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var sem *semaphore.Weighted
	if c.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(c.maxConcurrent)
	}

	// Step 1: start every fetcher
	var workers errgroup.Group
	reg := make(registry, 0, len(items))
	for _, item := range items {
		e := newEntry(item, c.renderer, c.out, len(c.exporters) > 0)
		reg = append(reg, e)
		workers.Go(func() error {
			c.work(ctx, e, sem)
			return nil
		})
	}

	c.logger.Debug("fetchers started",
		slog.String("run_id", report.ID),
		slog.Int("items", len(reg)),
	)

	// Step 2: display in registry order
	runErr := c.display(ctx, cancel, reg, &report)

	cancel(runErr)
	_ = workers.Wait()
	return report, runErr
}

func (c *Coordinator) display(ctx context.Context, cancel context.CancelCauseFunc, reg registry, report *Report) error {
	for i, e := range reg {
		if _, err := io.WriteString(c.out, c.renderer.Header(e.item)+"\n"); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}

		if err := e.gate.Release(); err != nil {
			return err
		}
		waitErr := e.gate.Wait(ctx)
		select {
		case <-e.gate.Done():
		default:
			// still fetching: the run was cancelled underneath us
			c.skipRemaining(reg[i:], report, context.Cause(ctx))
			return context.Cause(ctx)
		}

		res := ItemResult{
			Item:    e.item,
			Status:  e.Status(),
			Records: e.stats.Records,
			Matched: e.stats.Matched,
			Skipped: e.stats.Skipped,
			Err:     waitErr,
		}
		report.Items = append(report.Items, res)
		c.export(ctx, report.RunInfo, res, e.records)

		if ctx.Err() != nil {
			c.skipRemaining(reg[i+1:], report, context.Cause(ctx))
			return context.Cause(ctx)
		}
		if waitErr == nil {
			continue
		}
		c.logger.Warn("item failed",
			slog.String("item", e.item.ID),
			slog.Int("displayed", e.gate.Written()),
			slog.Any("error", waitErr),
		)
		if c.abortOnError {
			err := fmt.Errorf("%w: %w", ErrAborted, waitErr)
			cancel(err)
			c.skipRemaining(reg[i+1:], report, err)
			return err
		}
	}
	return nil
}

func (c *Coordinator) skipRemaining(rest registry, report *Report, cause error) {
	for _, e := range rest {
		report.Items = append(report.Items, ItemResult{
			Item:   e.item,
			Status: types.StatusFailed,
			Err:    fmt.Errorf("item %s not displayed: %w", e.item.ID, cause),
		})
	}
}

// work runs one fetcher and always finishes its gate, even on panic.
func (c *Coordinator) work(ctx context.Context, e *entry, sem *semaphore.Weighted) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("fetcher panic",
				slog.String("item", e.item.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("fetcher panic: %v", r)
		}
		if err != nil {
			e.setStatus(types.StatusFailed)
		} else {
			e.setStatus(types.StatusCompleted)
		}
		e.gate.Finish(err)
	}()

	if sem != nil {
		if err = sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer sem.Release(1)
	}

	fctx := ctx
	if c.itemTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.itemTimeout)
		defer cancel()
	}

	e.setStatus(types.StatusFetching)
	e.stats, err = c.fetcher.Run(fctx, e.item, e.gate)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", c.itemTimeout, err)
	}
}

func (c *Coordinator) export(ctx context.Context, run RunInfo, res ItemResult, recs []types.CommentRecord) {
	for _, ex := range c.exporters {
		if err := ex.Export(ctx, run, res, recs); err != nil {
			c.logger.Warn("export failed",
				slog.String("exporter", ex.Name()),
				slog.String("item", res.Item.ID),
				slog.Any("error", err),
			)
		}
	}
}
