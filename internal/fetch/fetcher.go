// Package fetch drives a transcript source to exhaustion for one item,
// normalises and filters its records, and hands matches to the item's gate.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/codebuildervaibhav/vodchat/internal/filter"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// DefaultWindow is the segmented-source window length in seconds.
const DefaultWindow = 300

var (
	// ErrMalformedRecord marks a single record that lacks a required field.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrCursorRepeat is returned when a source hands back the cursor it was just given.
	ErrCursorRepeat = errors.New("source repeated cursor")
	// ErrUnsupportedSource is returned for sources that implement neither paging style.
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Source is implemented by every transcript source. A source must also
// implement PagedSource or SegmentedSource.
type Source interface {
	Name() string
}

// PagedSource returns batches addressed by an opaque cursor. The first call
// uses an empty cursor; a page with an empty Next ends the transcript.
type PagedSource interface {
	Source
	FetchPage(ctx context.Context, itemID, cursor string) (types.Page, error)
}

// SegmentedSource splits a transcript into segments, each read in fixed
// windows addressed by an offset in seconds from the segment start.
type SegmentedSource interface {
	Source
	Segments(ctx context.Context, itemID string) ([]types.Segment, error)
	FetchWindow(ctx context.Context, itemID string, seg types.Segment, offset uint32) ([]types.RawRecord, error)
}

// Sink receives filtered records in discovery order
type Sink interface {
	Submit(rec types.CommentRecord) error
}

// Stats counts what one Run saw
type Stats struct {
	Requests int
	Records  int
	Matched  int
	Skipped  int
}

// Fetcher retrieves one item's transcript. It is safe to share between
// goroutines; all per-item state lives on the stack of Run.
type Fetcher struct {
	source Source
	filter *filter.Filter
	window uint32
	logger *slog.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithWindow sets the segmented window length in seconds
func WithWindow(seconds uint32) Option {
	return func(f *Fetcher) {
		if seconds > 0 {
			f.window = seconds
		}
	}
}

// WithLogger sets the logger used for skipped records
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a fetcher for src
func New(src Source, flt *filter.Filter, opts ...Option) (*Fetcher, error) {
	switch src.(type) {
	case PagedSource, SegmentedSource:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}

	f := &Fetcher{
		source: src,
		filter: flt,
		window: DefaultWindow,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Source returns the source the fetcher reads from
func (f *Fetcher) Source() Source {
	return f.source
}

// Run fetches every record of item and submits the matches to sink in the
// order they are discovered. A transport error stops this item only and is
// returned together with the stats gathered so far.
func (f *Fetcher) Run(ctx context.Context, item types.WorkItem, sink Sink) (Stats, error) {
	var st Stats
	var err error

	switch src := f.source.(type) {
	case SegmentedSource:
		err = f.runSegmented(ctx, src, item, sink, &st)
	case PagedSource:
		err = f.runPaged(ctx, src, item, sink, &st)
	}
	if err != nil {
		return st, fmt.Errorf("%s item %s: %w", f.source.Name(), item.ID, err)
	}
	return st, nil
}

func (f *Fetcher) runPaged(ctx context.Context, src PagedSource, item types.WorkItem, sink Sink, st *Stats) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := src.FetchPage(ctx, item.ID, cursor)
		st.Requests++
		if err != nil {
			return fmt.Errorf("failed to fetch page: %w", err)
		}

		if err := f.emit(page.Records, 0, item, sink, st); err != nil {
			return err
		}

		if page.Next == "" {
			return nil
		}
		if page.Next == cursor {
			return fmt.Errorf("%w %q", ErrCursorRepeat, cursor)
		}
		cursor = page.Next
	}
}

func (f *Fetcher) runSegmented(ctx context.Context, src SegmentedSource, item types.WorkItem, sink Sink, st *Stats) error {
	segments, err := src.Segments(ctx, item.ID)
	st.Requests++
	if err != nil {
		return fmt.Errorf("failed to list segments: %w", err)
	}

	var base uint64
	for _, seg := range segments {
		for offset := uint64(0); offset <= uint64(seg.Duration); offset += uint64(f.window) {
			if err := ctx.Err(); err != nil {
				return err
			}

			raws, err := src.FetchWindow(ctx, item.ID, seg, uint32(offset))
			st.Requests++
			if err != nil {
				return fmt.Errorf("failed to fetch segment %s at %ds: %w", seg.Key, offset, err)
			}

			if err := f.emit(raws, base, item, sink, st); err != nil {
				return err
			}
		}
		base += uint64(seg.Duration)
	}
	return nil
}

func (f *Fetcher) emit(raws []types.RawRecord, base uint64, item types.WorkItem, sink Sink, st *Stats) error {
	for _, raw := range raws {
		st.Records++

		rec, err := Normalize(raw, base)
		if err != nil {
			st.Skipped++
			f.logger.Debug("skipping record",
				slog.String("item", item.ID),
				slog.Any("error", err),
			)
			continue
		}

		if !f.filter.Match(rec.Text) {
			continue
		}

		st.Matched++
		if err := sink.Submit(rec); err != nil {
			return err
		}
	}
	return nil
}

// Normalize converts a wire record into a CommentRecord whose timestamp is
// shifted by base seconds.
func Normalize(raw types.RawRecord, base uint64) (types.CommentRecord, error) {
	switch {
	case raw.Offset == nil:
		return types.CommentRecord{}, fmt.Errorf("%w: missing offset", ErrMalformedRecord)
	case raw.Author == nil:
		return types.CommentRecord{}, fmt.Errorf("%w: missing author", ErrMalformedRecord)
	case raw.Text == nil:
		return types.CommentRecord{}, fmt.Errorf("%w: missing text", ErrMalformedRecord)
	}

	offset := *raw.Offset
	if math.IsNaN(offset) || offset < 0 {
		offset = 0
	}

	ts := uint32(math.MaxUint32)
	if sum := float64(base) + math.Floor(offset); sum < math.MaxUint32 {
		ts = uint32(sum)
	}

	return types.CommentRecord{
		Timestamp: ts,
		Author:    *raw.Author,
		Text:      *raw.Text,
		Color:     raw.Color,
	}, nil
}
