package afreeca

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/vodchat/internal/fetch"
	"github.com/codebuildervaibhav/vodchat/internal/filter"
	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

const videoInfo = `<?xml version="1.0" encoding="UTF-8"?>
<video>
  <track>
    <file duration="350" key="20240101_AAAA_1">https://vod/1.smil</file>
    <file duration="120" key="20240101_AAAA_2">https://vod/2.smil</file>
  </track>
</video>`

func chatXML(entries ...string) string {
	out := "<?xml version=\"1.0\" encoding=\"UTF-8\"?><root>"
	for _, e := range entries {
		out += e
	}
	return out + "</root>"
}

func chat(nick, msg, t string) string {
	return fmt.Sprintf("<chat><u>id</u><n><![CDATA[%s]]></n><m><![CDATA[%s]]></m><t>%s</t></chat>", nick, msg, t)
}

func afreecaServer(t *testing.T, calls *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "111", q.Get("nTitleNo"))
		assert.Equal(t, "222", q.Get("nStationNo"))
		assert.Equal(t, "333", q.Get("nBbsNo"))
		assert.Equal(t, "ticket", r.Header.Get("Cookie"))
		io.WriteString(w, videoInfo)
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		key, start := r.URL.Query().Get("rowKey"), r.URL.Query().Get("startTime")
		*calls = append(*calls, key+"@"+start)
		switch key + "@" + start {
		case "20240101_AAAA_1_c@0":
			io.WriteString(w, chatXML(chat("kim", "hello", "12.4"), chat("lee", "ㅋㅋㅋ", "200")))
		case "20240101_AAAA_1_c@300":
			io.WriteString(w, chatXML(chat("park", "late", "340.9")))
		case "20240101_AAAA_2_c@0":
			io.WriteString(w, chatXML(chat("kim", "second file", "5"), "<chat><n>no time</n><m>x</m></chat>"))
		}
	})
	return httptest.NewServer(mux)
}

func TestChatThroughFetcher(t *testing.T) {
	var calls []string
	srv := afreecaServer(t, &calls)
	defer srv.Close()

	src := NewChat(sources.NewHTTPClient(0, time.Second), WithURLs(srv.URL+"/info", srv.URL+"/chat"), WithCookie("ticket"))
	flt, err := filter.New("")
	require.NoError(t, err)
	f, err := fetch.New(src, flt)
	require.NoError(t, err)

	var got []types.CommentRecord
	st, err := f.Run(context.Background(), types.WorkItem{ID: "111:222:333"}, sinkFunc(func(r types.CommentRecord) error {
		got = append(got, r)
		return nil
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"20240101_AAAA_1_c@0", "20240101_AAAA_1_c@300", "20240101_AAAA_2_c@0"}, calls)
	assert.Equal(t, []types.CommentRecord{
		{Timestamp: 12, Author: "kim", Text: "hello"},
		{Timestamp: 200, Author: "lee", Text: "ㅋㅋㅋ"},
		{Timestamp: 340, Author: "park", Text: "late"},
		{Timestamp: 355, Author: "kim", Text: "second file"},
	}, got)
	assert.Equal(t, 1, st.Skipped)
}

type sinkFunc func(types.CommentRecord) error

func (f sinkFunc) Submit(r types.CommentRecord) error { return f(r) }

func TestSegmentsRejectsBadID(t *testing.T) {
	_, err := NewChat(http.DefaultClient).Segments(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, ErrBadItemID)
}

func TestParseWindowEmptyBody(t *testing.T) {
	recs, err := parseWindow([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestParseVideoID(t *testing.T) {
	id, err := ParseVideoID("1:2:3")
	require.NoError(t, err)
	assert.Equal(t, VideoID{TitleNo: "1", StationNo: "2", BbsNo: "3"}, id)
	assert.Equal(t, "1:2:3", id.String())

	for _, bad := range []string{"", "1:2", "1:x:3", "1:2:3:4"} {
		_, err := ParseVideoID(bad)
		assert.ErrorIs(t, err, ErrBadItemID, bad)
	}
}

const vodPage = `<html><head>
<title>fallback</title>
<meta property="og:title" content=" Friday stream ">
</head><body><script>var nStationNo = 22222222; var nBbsNo = 33333333;</script></body></html>`

func TestResolveReadsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, vodPage)
	}))
	defer srv.Close()

	loader := HTTPLoader{Client: http.DefaultClient}
	item, err := Resolve(context.Background(), loader, srv.URL+"/PLAYER/STATION/11111111")
	require.NoError(t, err)
	assert.Equal(t, types.WorkItem{ID: "11111111:22222222:33333333", Title: "Friday stream", Platform: "afreecatv"}, item)
}

func TestResolveRejectsOtherLinks(t *testing.T) {
	_, err := Resolve(context.Background(), HTTPLoader{Client: http.DefaultClient}, "https://example.com/watch")
	assert.ErrorIs(t, err, ErrBadLink)
}

func TestResolveMissingNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><title>gone</title></html>")
	}))
	defer srv.Close()

	_, err := Resolve(context.Background(), HTTPLoader{Client: http.DefaultClient}, srv.URL+"/PLAYER/STATION/1")
	assert.ErrorIs(t, err, sources.ErrNotFound)
}

func TestPageTitleFallsBackToTitleTag(t *testing.T) {
	assert.Equal(t, "plain", pageTitle([]byte("<html><head><title> plain </title></head></html>")))
}

func TestListBlogWalksAllPages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/someone/vods/all", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("per_page"))
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		fmt.Fprintf(w, `{"data":[{"title_no":%s1,"station_no":9,"bbs_no":8,"title_name":"vod %s"}],
			"meta":{"last_page":2,"total":2}}`, page, page)
	}))
	defer srv.Close()

	items, err := ListBlog(context.Background(), http.DefaultClient, srv.URL+"/api", "someone")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Equal(t, []types.WorkItem{
		{ID: "11:9:8", Title: "vod 1", Platform: "afreecatv"},
		{ID: "21:9:8", Title: "vod 2", Platform: "afreecatv"},
	}, items)
}
