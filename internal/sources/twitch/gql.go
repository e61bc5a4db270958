// Package twitch reads VOD chat and clips from Twitch's GQL endpoint and
// enumerates VODs through the Helix API.
package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

const (
	// DefaultGQLClientID is the public client id the Twitch web player uses
	DefaultGQLClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
	// GQLEndpoint is the production GQL URL
	GQLEndpoint = "https://gql.twitch.tv/gql"

	commentsHash = "b70a3591ff0f4e0313d126c6a1502d79a1c02baebb288227c582044aa76adf6a"
	clipsHash    = "b73ad2bfaecfd30a9e6c28fada15bd97032c83ec77a0440766a56fe0bd632777"
)

// GQL talks to gql.twitch.tv. It implements fetch.PagedSource for VOD chat.
type GQL struct {
	client   *http.Client
	endpoint string
	clientID string
}

// GQLOption configures a GQL client
type GQLOption func(*GQL)

// WithEndpoint points the client at another GQL URL
func WithEndpoint(url string) GQLOption {
	return func(g *GQL) {
		g.endpoint = url
	}
}

// NewGQL creates a new GQL client. An empty clientID uses the web player's.
func NewGQL(client *http.Client, clientID string, opts ...GQLOption) *GQL {
	if clientID == "" {
		clientID = DefaultGQLClientID
	}
	g := &GQL{
		client:   client,
		endpoint: GQLEndpoint,
		clientID: clientID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements fetch.Source
func (g *GQL) Name() string {
	return types.PlatformTwitch
}

type persistedQuery struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
	Extensions    struct {
		PersistedQuery struct {
			Version    int    `json:"version"`
			SHA256Hash string `json:"sha256Hash"`
		} `json:"persistedQuery"`
	} `json:"extensions"`
}

type gqlError struct {
	Message string `json:"message"`
}

func (g *GQL) query(ctx context.Context, op, hash string, vars map[string]any, data any) error {
	q := persistedQuery{OperationName: op, Variables: vars}
	q.Extensions.PersistedQuery.Version = 1
	q.Extensions.PersistedQuery.SHA256Hash = hash

	payload, err := json.Marshal([]persistedQuery{q})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Client-Id", g.clientID)
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

	body, err := sources.Do(g.client, req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var resp []struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if len(resp) == 0 {
		return fmt.Errorf("%s: empty response", op)
	}
	if len(resp[0].Errors) > 0 {
		return fmt.Errorf("%s: %s", op, resp[0].Errors[0].Message)
	}
	if err := json.Unmarshal(resp[0].Data, data); err != nil {
		return fmt.Errorf("%s: failed to decode data: %w", op, err)
	}
	return nil
}

type commentNode struct {
	ContentOffsetSeconds *float64 `json:"contentOffsetSeconds"`
	Commenter            *struct {
		DisplayName string `json:"displayName"`
	} `json:"commenter"`
	Message *struct {
		Fragments []struct {
			Text string `json:"text"`
		} `json:"fragments"`
		UserColor string `json:"userColor"`
	} `json:"message"`
}

type commentsData struct {
	Video *struct {
		Comments *struct {
			Edges []struct {
				Cursor string      `json:"cursor"`
				Node   commentNode `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"comments"`
	} `json:"video"`
}

// FetchPage returns one batch of VOD comments. An empty cursor starts at
// offset zero.
func (g *GQL) FetchPage(ctx context.Context, vodID, cursor string) (types.Page, error) {
	vars := map[string]any{"videoID": vodID}
	if cursor == "" {
		vars["contentOffsetSeconds"] = 0
	} else {
		vars["cursor"] = cursor
	}

	var data commentsData
	if err := g.query(ctx, "VideoCommentsByOffsetOrCursor", commentsHash, vars, &data); err != nil {
		return types.Page{}, err
	}
	if data.Video == nil {
		return types.Page{}, fmt.Errorf("vod %s: %w", vodID, sources.ErrNotFound)
	}
	if data.Video.Comments == nil {
		return types.Page{}, nil
	}

	edges := data.Video.Comments.Edges
	page := types.Page{Records: make([]types.RawRecord, 0, len(edges))}
	for _, e := range edges {
		page.Records = append(page.Records, e.Node.raw())
	}
	if data.Video.Comments.PageInfo.HasNextPage && len(edges) > 0 {
		page.Next = edges[len(edges)-1].Cursor
	}
	return page, nil
}

func (n commentNode) raw() types.RawRecord {
	r := types.RawRecord{Offset: n.ContentOffsetSeconds}
	if n.Commenter != nil {
		name := n.Commenter.DisplayName
		r.Author = &name
	}
	if n.Message != nil {
		var b strings.Builder
		for _, f := range n.Message.Fragments {
			b.WriteString(f.Text)
		}
		text := b.String()
		r.Text = &text
		r.Color = n.Message.UserColor
	}
	return r
}

// Clip is one clip of a channel
type Clip struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type clipsData struct {
	User *struct {
		Clips *struct {
			Edges []struct {
				Cursor *string `json:"cursor"`
				Node   struct {
					Title string `json:"title"`
					URL   string `json:"url"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"clips"`
	} `json:"user"`
}

// Clips walks every clip of login and calls fn for each. Iteration stops
// when a page yields no new cursor or fn returns an error.
func (g *GQL) Clips(ctx context.Context, login string, fn func(Clip) error) error {
	cursor := ""
	for {
		vars := map[string]any{
			"login":    login,
			"limit":    100,
			"criteria": map[string]string{"filter": "ALL_TIME"},
		}
		if cursor != "" {
			vars["cursor"] = cursor
		}

		var data clipsData
		if err := g.query(ctx, "ClipsCards__User", clipsHash, vars, &data); err != nil {
			return err
		}
		if data.User == nil || data.User.Clips == nil {
			return fmt.Errorf("channel %s: %w", login, sources.ErrNotFound)
		}

		next := cursor
		for _, e := range data.User.Clips.Edges {
			if e.Cursor != nil && *e.Cursor != "" {
				next = *e.Cursor
			}
			if err := fn(Clip{Title: e.Node.Title, URL: e.Node.URL}); err != nil {
				return err
			}
		}
		if next == cursor {
			return nil
		}
		cursor = next
	}
}
