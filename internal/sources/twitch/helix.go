package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

const (
	// HelixURL is the production Helix API root
	HelixURL = "https://api.twitch.tv/helix"
	// TokenURL issues app access tokens
	TokenURL = "https://id.twitch.tv/oauth2/token"

	// maxVODs is the largest page Helix returns; channels list at most this many
	maxVODs = 100
)

// ErrNoCredentials is returned when Helix is used without a client id and secret
var ErrNoCredentials = errors.New("twitch client id and secret are required")

// Helix resolves VOD metadata with an app access token
type Helix struct {
	client   *http.Client
	baseURL  string
	clientID string
}

// HelixOption configures a Helix client
type HelixOption func(*helixConfig)

type helixConfig struct {
	baseURL  string
	tokenURL string
}

// WithHelixURLs overrides the API root and token endpoint
func WithHelixURLs(baseURL, tokenURL string) HelixOption {
	return func(c *helixConfig) {
		c.baseURL = baseURL
		c.tokenURL = tokenURL
	}
}

// NewHelix creates a Helix client. Tokens are fetched lazily through base,
// so they share its rate limit.
func NewHelix(base *http.Client, clientID, clientSecret string, opts ...HelixOption) (*Helix, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrNoCredentials
	}
	cfg := helixConfig{baseURL: HelixURL, tokenURL: TokenURL}
	for _, opt := range opts {
		opt(&cfg)
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     cfg.tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Helix{
		client:   cc.Client(ctx),
		baseURL:  cfg.baseURL,
		clientID: clientID,
	}, nil
}

type video struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type videosResponse struct {
	Data []video `json:"data"`
}

func (h *Helix) get(ctx context.Context, path string, query url.Values, v any) error {
	u := h.baseURL + path + "?" + query.Encode()
	return sources.GetJSON(ctx, h.client, u, http.Header{"Client-Id": {h.clientID}}, v)
}

// ResolveVOD looks up a single VOD by id
func (h *Helix) ResolveVOD(ctx context.Context, id string) (types.WorkItem, error) {
	var resp videosResponse
	if err := h.get(ctx, "/videos", url.Values{"id": {id}}, &resp); err != nil {
		return types.WorkItem{}, fmt.Errorf("failed to resolve vod %s: %w", id, err)
	}
	if len(resp.Data) == 0 {
		return types.WorkItem{}, fmt.Errorf("vod %s: %w", id, sources.ErrNotFound)
	}
	return resp.Data[0].item(), nil
}

// ListVODs returns the most recent VODs of a channel, newest first
func (h *Helix) ListVODs(ctx context.Context, login string) ([]types.WorkItem, error) {
	var users struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := h.get(ctx, "/users", url.Values{"login": {login}}, &users); err != nil {
		return nil, fmt.Errorf("failed to look up channel %s: %w", login, err)
	}
	if len(users.Data) == 0 {
		return nil, fmt.Errorf("channel %s: %w", login, sources.ErrNotFound)
	}

	var resp videosResponse
	query := url.Values{
		"user_id": {users.Data[0].ID},
		"first":   {fmt.Sprint(maxVODs)},
	}
	if err := h.get(ctx, "/videos", query, &resp); err != nil {
		return nil, fmt.Errorf("failed to list vods of %s: %w", login, err)
	}

	items := make([]types.WorkItem, 0, len(resp.Data))
	for _, v := range resp.Data {
		items = append(items, v.item())
	}
	return items, nil
}

func (v video) item() types.WorkItem {
	return types.WorkItem{ID: v.ID, Title: v.Title, Platform: types.PlatformTwitch}
}
