package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/filter"
	"github.com/codebuildervaibhav/vodchat/internal/sources/twitch"
	"github.com/codebuildervaibhav/vodchat/internal/sources/youtube"
	"github.com/codebuildervaibhav/vodchat/internal/storage"
)

// execTarget prints the transcript of every item of a platform target
func execTarget(platform, kind string) func(ctx context.Context, e *env, args []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		return e.runTarget(ctx, app.Target{Platform: platform, Kind: kind, Value: args[0]})
	}
}

func (e *env) runTarget(ctx context.Context, target app.Target) error {
	job, err := e.app.Prepare(ctx, target, e.opts.filter)
	if err != nil {
		if errors.Is(err, filter.ErrInvalidPattern) || errors.Is(err, app.ErrBadRequest) {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		return err
	}
	if len(job.Items) == 0 {
		fmt.Fprintln(e.stderr, "nothing to read: no items found")
		return nil
	}

	report, err := job.Run(ctx, e.stdout, app.RunOptions{Color: e.cfg.Output.Color, Exports: true})

	// Step 1: one line per item that did not complete
	for _, it := range report.Items {
		if it.Err != nil {
			fmt.Fprintf(e.stderr, "item %s (%s): %v\n", it.Item.ID, it.Status, it.Err)
		}
	}
	if err != nil {
		return err
	}
	return report.Err()
}

// execClips prints "[title] url" for every clip whose title matches
func execClips(ctx context.Context, e *env, args []string) error {
	flt, err := filter.New(e.opts.filter)
	if err != nil {
		return err
	}
	return e.app.GQL().Clips(ctx, args[0], func(c twitch.Clip) error {
		if !flt.Match(c.Title) {
			return nil
		}
		_, err := fmt.Fprintf(e.stdout, "[%s] %s\n", c.Title, c.URL)
		return err
	})
}

// execYouTube searches a channel's comments. The API does the matching, so
// the terms are plain words rather than a pattern.
func execYouTube(ctx context.Context, e *env, args []string) error {
	s, err := youtube.NewSearcher(ctx, e.cfg.YouTube.APIKey, e.opts.pages)
	if err != nil {
		return err
	}
	return e.searchYouTube(ctx, s, args[0], strings.Join(args[1:], " "))
}

func (e *env) searchYouTube(ctx context.Context, s *youtube.Searcher, channel, terms string) error {
	channelID, err := s.ChannelID(ctx, channel)
	if err != nil {
		return err
	}
	flt, err := filter.New(e.opts.filter)
	if err != nil {
		return err
	}
	return s.Search(ctx, channelID, terms, func(c youtube.Comment) error {
		if !flt.Match(c.Text) {
			return nil
		}
		_, err := fmt.Fprintf(e.stdout, "[%s] %s\n%s\n\n", c.Author, c.Text, c.Link)
		return err
	})
}

// execRuns lists the archived runs
func execRuns(ctx context.Context, e *env, _ []string) error {
	if e.archive == nil {
		return fmt.Errorf("%w: no archive configured (use --archive or archive.database)", errUsage)
	}
	runs, err := e.archive.ListRuns(ctx, e.opts.limit)
	if err != nil {
		return err
	}
	printRuns(e, runs)
	return nil
}

func printRuns(e *env, runs []storage.RunSummary) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "STARTED", "FILTER", "ITEMS", "MATCHED", "FAILED")
	for _, r := range runs {
		t.Row(r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Filter,
			strconv.Itoa(r.Items), strconv.Itoa(r.Matched), strconv.Itoa(r.Failed))
	}
	fmt.Fprintln(e.stdout, t.Render())
}

// execDriveAuth runs the Drive authorisation flow and caches the token
func execDriveAuth(ctx context.Context, e *env, _ []string) error {
	g := e.cfg.GoogleDrive
	_, err := storage.NewDriveClient(ctx, g.CredentialsFile, g.TokenFile, g.FolderName,
		&storage.Prompt{In: e.stdin, Out: e.stdout})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "token saved to %s\n", g.TokenFile)
	return nil
}
