package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
)

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func decodeGQL(t *testing.T, r *http.Request) gqlRequest {
	t.Helper()
	var reqs []gqlRequest
	if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&reqs)) || !assert.Len(t, reqs, 1) {
		return gqlRequest{}
	}
	return reqs[0]
}

func TestFetchPageDecodesComments(t *testing.T) {
	var seen []gqlRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultGQLClientID, r.Header.Get("Client-Id"))
		req := decodeGQL(t, r)
		seen = append(seen, req)

		if _, ok := req.Variables["cursor"]; !ok {
			io.WriteString(w, `[{"data":{"video":{"comments":{"edges":[
				{"cursor":"c1","node":{"contentOffsetSeconds":12.5,"commenter":{"displayName":"alice"},
				 "message":{"fragments":[{"text":"hello "},{"text":"LUL"}],"userColor":"#FF0000"}}},
				{"cursor":"c2","node":{"contentOffsetSeconds":13,"commenter":null,
				 "message":{"fragments":[{"text":"ghost"}]}}}
			],"pageInfo":{"hasNextPage":true}}}}}]`)
			return
		}
		io.WriteString(w, `[{"data":{"video":{"comments":{"edges":[
			{"cursor":"c3","node":{"contentOffsetSeconds":20,"commenter":{"displayName":"bob"},"message":{"fragments":[{"text":"bye"}]}}}
		],"pageInfo":{"hasNextPage":false}}}}}]`)
	}))
	defer srv.Close()

	g := NewGQL(sources.NewHTTPClient(0, time.Second), "", WithEndpoint(srv.URL))

	page, err := g.FetchPage(context.Background(), "42", "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "c2", page.Next)

	first := page.Records[0]
	assert.Equal(t, 12.5, *first.Offset)
	assert.Equal(t, "alice", *first.Author)
	assert.Equal(t, "hello LUL", *first.Text)
	assert.Equal(t, "#FF0000", first.Color)
	assert.Nil(t, page.Records[1].Author)

	page, err = g.FetchPage(context.Background(), "42", page.Next)
	require.NoError(t, err)
	assert.Empty(t, page.Next)
	assert.Equal(t, "bye", *page.Records[0].Text)

	require.Len(t, seen, 2)
	assert.Equal(t, "VideoCommentsByOffsetOrCursor", seen[0].OperationName)
	assert.Equal(t, "42", seen[0].Variables["videoID"])
	assert.EqualValues(t, 0, seen[0].Variables["contentOffsetSeconds"])
	assert.Equal(t, "c2", seen[1].Variables["cursor"])
}

func TestFetchPageMissingVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"data":{"video":null}}]`)
	}))
	defer srv.Close()

	_, err := NewGQL(http.DefaultClient, "", WithEndpoint(srv.URL)).FetchPage(context.Background(), "1", "")
	assert.ErrorIs(t, err, sources.ErrNotFound)
}

func TestFetchPageGQLError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"errors":[{"message":"PersistedQueryNotFound"}]}]`)
	}))
	defer srv.Close()

	_, err := NewGQL(http.DefaultClient, "", WithEndpoint(srv.URL)).FetchPage(context.Background(), "1", "")
	assert.ErrorContains(t, err, "PersistedQueryNotFound")
}

func TestClipsFollowsCursor(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeGQL(t, r)
		assert.Equal(t, "ClipsCards__User", req.OperationName)
		calls++
		switch req.Variables["cursor"] {
		case nil:
			io.WriteString(w, `[{"data":{"user":{"clips":{"edges":[
				{"cursor":"p1","node":{"title":"First","url":"https://clips/1"}}]}}}}]`)
		case "p1":
			io.WriteString(w, `[{"data":{"user":{"clips":{"edges":[
				{"cursor":null,"node":{"title":"Second","url":"https://clips/2"}}]}}}}]`)
		default:
			t.Errorf("unexpected cursor %v", req.Variables["cursor"])
		}
	}))
	defer srv.Close()

	var titles []string
	err := NewGQL(http.DefaultClient, "", WithEndpoint(srv.URL)).Clips(context.Background(), "nasa", func(c Clip) error {
		titles = append(titles, c.Title)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second"}, titles)
	assert.Equal(t, 2, calls)
}

func TestClipsUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"data":{"user":null}}]`)
	}))
	defer srv.Close()

	err := NewGQL(http.DefaultClient, "", WithEndpoint(srv.URL)).Clips(context.Background(), "nobody", func(Clip) error { return nil })
	assert.ErrorIs(t, err, sources.ErrNotFound)
}

func helixServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/helix/videos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "cid", r.Header.Get("Client-Id"))
		q := r.URL.Query()
		switch {
		case q.Get("id") == "1":
			io.WriteString(w, `{"data":[{"id":"1","title":"Launch"}]}`)
		case q.Get("user_id") == "99":
			assert.Equal(t, "100", q.Get("first"))
			io.WriteString(w, `{"data":[{"id":"3","title":"Newest"},{"id":"2","title":"Older"}]}`)
		default:
			io.WriteString(w, `{"data":[]}`)
		}
	})
	mux.HandleFunc("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("login") == "nasa" {
			io.WriteString(w, `{"data":[{"id":"99"}]}`)
			return
		}
		io.WriteString(w, `{"data":[]}`)
	})
	return httptest.NewServer(mux)
}

func newHelix(t *testing.T, srv *httptest.Server) *Helix {
	t.Helper()
	h, err := NewHelix(sources.NewHTTPClient(0, time.Second), "cid", "secret",
		WithHelixURLs(srv.URL+"/helix", srv.URL+"/token"))
	require.NoError(t, err)
	return h
}

func TestHelixResolveVOD(t *testing.T) {
	srv := helixServer(t)
	defer srv.Close()
	h := newHelix(t, srv)

	item, err := h.ResolveVOD(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Launch", item.Title)
	assert.Equal(t, "twitch", item.Platform)

	_, err = h.ResolveVOD(context.Background(), "404")
	assert.ErrorIs(t, err, sources.ErrNotFound)
}

func TestHelixListVODs(t *testing.T) {
	srv := helixServer(t)
	defer srv.Close()
	h := newHelix(t, srv)

	items, err := h.ListVODs(context.Background(), "nasa")
	require.NoError(t, err)
	var ids []string
	for _, it := range items {
		ids = append(ids, fmt.Sprintf("%s:%s", it.ID, it.Title))
	}
	assert.Equal(t, []string{"3:Newest", "2:Older"}, ids)

	_, err = h.ListVODs(context.Background(), "ghost")
	assert.ErrorIs(t, err, sources.ErrNotFound)
}

func TestNewHelixNeedsCredentials(t *testing.T) {
	_, err := NewHelix(http.DefaultClient, "", "")
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.True(t, strings.Contains(err.Error(), "secret"))
}
