// Package youtube searches the comments left across a channel's videos.
// YouTube comments carry no playback offset, so this is a standalone search
// rather than a transcript source.
package youtube

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
)

// ErrNoAPIKey is returned when no API key is configured
var ErrNoAPIKey = errors.New("youtube api key is required")

// Comment is one top-level comment that matched the search
type Comment struct {
	Author string `json:"author"`
	Text   string `json:"text"`
	Link   string `json:"link"`
}

// Searcher finds a channel and searches its comment threads
type Searcher struct {
	service *yt.Service
	pages   int
}

// NewSearcher creates a new Searcher. pages bounds how many result pages of
// 100 threads are read; values below one read a single page.
func NewSearcher(ctx context.Context, apiKey string, pages int, opts ...option.ClientOption) (*Searcher, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &Searcher{service: svc, pages: max(1, pages)}, nil
}

// ChannelID returns the id of the most relevant channel for query
func (s *Searcher) ChannelID(ctx context.Context, query string) (string, error) {
	resp, err := s.service.Search.List([]string{"snippet"}).
		Q(query).
		Type("channel").
		Order("relevance").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to search channel %q: %w", query, err)
	}
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.ChannelId != "" {
			return item.Id.ChannelId, nil
		}
	}
	return "", fmt.Errorf("channel %q: %w", query, sources.ErrNotFound)
}

// Search calls fn for every top-level comment on channelID's videos that
// the API matches against terms.
func (s *Searcher) Search(ctx context.Context, channelID, terms string, fn func(Comment) error) error {
	token := ""
	for page := 0; page < s.pages; page++ {
		call := s.service.CommentThreads.List([]string{"id", "snippet"}).
			AllThreadsRelatedToChannelId(channelID).
			SearchTerms(terms).
			Order("relevance").
			MaxResults(100).
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}

		resp, err := call.Do()
		if err != nil {
			return fmt.Errorf("failed to list comment threads: %w", err)
		}
		for _, th := range resp.Items {
			c, ok := topLevel(th)
			if !ok {
				continue
			}
			if err := fn(c); err != nil {
				return err
			}
		}

		if resp.NextPageToken == "" {
			return nil
		}
		token = resp.NextPageToken
	}
	return nil
}

func topLevel(th *yt.CommentThread) (Comment, bool) {
	if th.Snippet == nil || th.Snippet.TopLevelComment == nil || th.Snippet.TopLevelComment.Snippet == nil {
		return Comment{}, false
	}
	top := th.Snippet.TopLevelComment
	videoID := top.Snippet.VideoId
	if videoID == "" {
		videoID = th.Snippet.VideoId
	}
	return Comment{
		Author: top.Snippet.AuthorDisplayName,
		Text:   top.Snippet.TextOriginal,
		Link:   fmt.Sprintf("https://www.youtube.com/watch?v=%s&lc=%s", videoID, top.Id),
	}, true
}
