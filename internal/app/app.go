// Package app turns a user request (platform, target, filter) into a
// pipeline run. The CLI and the HTTP handlers share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codebuildervaibhav/vodchat/internal/config"
	"github.com/codebuildervaibhav/vodchat/internal/fetch"
	"github.com/codebuildervaibhav/vodchat/internal/filter"
	"github.com/codebuildervaibhav/vodchat/internal/pipeline"
	"github.com/codebuildervaibhav/vodchat/internal/render"
	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/sources/afreeca"
	"github.com/codebuildervaibhav/vodchat/internal/sources/twitch"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// Target kinds
const (
	KindVOD     = "vod"
	KindChannel = "channel"
)

// ErrBadRequest marks requests that name an unknown platform or kind
var ErrBadRequest = errors.New("bad request")

// Target names what to read
type Target struct {
	Platform string `json:"platform"`
	Kind     string `json:"kind"`
	Value    string `json:"target"`
}

// App holds the sources shared by every run
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *http.Client
	gql       *twitch.GQL
	helix     *twitch.Helix
	afreeca   *afreeca.Chat
	loader    afreeca.PageLoader
	blogURL   string
	exporters []pipeline.Exporter
}

// Option configures an App
type Option func(*App)

// WithExporters adds exporters to every run
func WithExporters(exporters ...pipeline.Exporter) Option {
	return func(a *App) {
		a.exporters = append(a.exporters, exporters...)
	}
}

// WithTwitch replaces the Twitch clients
func WithTwitch(gql *twitch.GQL, helix *twitch.Helix) Option {
	return func(a *App) {
		a.gql = gql
		a.helix = helix
	}
}

// WithAfreeca replaces the AfreecaTV chat source, page loader and blog API root
func WithAfreeca(chat *afreeca.Chat, loader afreeca.PageLoader, blogURL string) Option {
	return func(a *App) {
		a.afreeca = chat
		a.loader = loader
		a.blogURL = blogURL
	}
}

// New wires the sources from cfg
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	client := sources.NewHTTPClient(cfg.Pipeline.RequestsPerSecond, 30*time.Second)

	a := &App{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		gql:     twitch.NewGQL(client, cfg.Twitch.GQLClientID),
		afreeca: afreeca.NewChat(client, afreeca.WithCookie(cfg.Afreeca.Cookie)),
	}

	if helix, err := twitch.NewHelix(client, cfg.Twitch.ClientID, cfg.Twitch.ClientSecret); err == nil {
		a.helix = helix
	} else {
		logger.Debug("helix disabled", slog.Any("error", err))
	}

	if cfg.Afreeca.UseBrowser {
		a.loader = afreeca.BrowserLoader{Settle: 2 * time.Second}
	} else {
		a.loader = afreeca.HTTPLoader{Client: client, Cookie: cfg.Afreeca.Cookie}
	}

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Client returns the shared rate-limited HTTP client
func (a *App) Client() *http.Client {
	return a.client
}

// GQL returns the Twitch GQL client
func (a *App) GQL() *twitch.GQL {
	return a.gql
}

// Job is a prepared run: the filter compiled and the items enumerated
type Job struct {
	Target  Target
	Items   []types.WorkItem
	Pattern string

	app     *App
	fetcher *fetch.Fetcher
}

// Prepare validates the filter before any network activity, then
// enumerates the items of target.
func (a *App) Prepare(ctx context.Context, target Target, pattern string) (*Job, error) {
	flt, err := filter.New(pattern)
	if err != nil {
		return nil, err
	}

	target.Platform = strings.ToLower(strings.TrimSpace(target.Platform))
	target.Kind = strings.ToLower(strings.TrimSpace(target.Kind))
	target.Value = strings.TrimSpace(target.Value)
	if target.Value == "" {
		return nil, fmt.Errorf("%w: empty target", ErrBadRequest)
	}

	var (
		src   fetch.Source
		items []types.WorkItem
		opts  = []fetch.Option{fetch.WithLogger(a.logger)}
	)
	switch target.Platform {
	case types.PlatformTwitch:
		src = a.gql
		items, err = a.twitchItems(ctx, target)
	case types.PlatformAfreeca, "afreeca":
		target.Platform = types.PlatformAfreeca
		src = a.afreeca
		opts = append(opts, fetch.WithWindow(uint32(a.cfg.Afreeca.WindowSeconds)))
		items, err = a.afreecaItems(ctx, target)
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", ErrBadRequest, target.Platform)
	}
	if err != nil {
		return nil, err
	}

	f, err := fetch.New(src, flt, opts...)
	if err != nil {
		return nil, err
	}

	a.logger.Info("job prepared",
		slog.String("platform", target.Platform),
		slog.String("kind", target.Kind),
		slog.String("target", target.Value),
		slog.Int("items", len(items)),
	)
	return &Job{Target: target, Items: items, Pattern: pattern, app: a, fetcher: f}, nil
}

func (a *App) twitchItems(ctx context.Context, target Target) ([]types.WorkItem, error) {
	switch target.Kind {
	case KindVOD:
		id := strings.TrimPrefix(target.Value, "v")
		if a.helix == nil {
			return []types.WorkItem{{ID: id, Title: "v" + id, Platform: types.PlatformTwitch}}, nil
		}
		item, err := a.helix.ResolveVOD(ctx, id)
		if err != nil {
			return nil, err
		}
		return []types.WorkItem{item}, nil
	case KindChannel:
		if a.helix == nil {
			return nil, fmt.Errorf("listing channel vods: %w", twitch.ErrNoCredentials)
		}
		return a.helix.ListVODs(ctx, target.Value)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadRequest, target.Kind)
	}
}

func (a *App) afreecaItems(ctx context.Context, target Target) ([]types.WorkItem, error) {
	switch target.Kind {
	case KindVOD:
		item, err := afreeca.Resolve(ctx, a.loader, target.Value)
		if err != nil {
			return nil, err
		}
		return []types.WorkItem{item}, nil
	case KindChannel:
		return afreeca.ListBlog(ctx, a.client, a.blogURL, target.Value)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrBadRequest, target.Kind)
	}
}

// RunOptions controls console output of one run
type RunOptions struct {
	Color    bool
	Renderer []render.Option
	Exports  bool
}

// Run displays every item of the job on out in enumeration order
func (j *Job) Run(ctx context.Context, out io.Writer, opts RunOptions) (pipeline.Report, error) {
	a := j.app
	popts := []pipeline.Option{
		pipeline.WithMaxConcurrent(a.cfg.Pipeline.MaxConcurrent),
		pipeline.WithItemTimeout(a.cfg.ItemTimeout()),
		pipeline.WithAbortOnError(a.cfg.Pipeline.AbortOnError),
		pipeline.WithFilterDescription(j.Pattern),
	}
	if opts.Exports {
		popts = append(popts, pipeline.WithExporters(a.exporters...))
	}

	r := render.New(out, opts.Color, opts.Renderer...)
	report, err := pipeline.New(j.fetcher, r, out, a.logger, popts...).Run(ctx, j.Items)

	a.logger.Info("run finished",
		slog.String("run_id", report.ID),
		slog.Int("items", len(report.Items)),
		slog.Any("error", errors.Join(err, report.Err())),
	)
	return report, err
}
