// Package afreeca reads AfreecaTV VOD chat, which is split into segments
// (one per recorded file) and fetched in fixed windows of seconds.
package afreeca

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

const (
	// InfoURL lists the files of a VOD
	InfoURL = "https://stbbs.afreecatv.com/api/video/get_video_info.php"
	// ChatURL serves one window of chat
	ChatURL = "https://videoimg.afreecatv.com/php/ChatLoadSplit.php"
)

// ErrBadItemID is returned for ids not in titleNo:stationNo:bbsNo form
var ErrBadItemID = errors.New("afreeca item id must be titleNo:stationNo:bbsNo")

// VideoID addresses one AfreecaTV VOD
type VideoID struct {
	TitleNo   string
	StationNo string
	BbsNo     string
}

func (v VideoID) String() string {
	return v.TitleNo + ":" + v.StationNo + ":" + v.BbsNo
}

// ParseVideoID parses the item id produced by Resolve and ListBlog
func ParseVideoID(id string) (VideoID, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return VideoID{}, fmt.Errorf("%w: %q", ErrBadItemID, id)
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 64); err != nil {
			return VideoID{}, fmt.Errorf("%w: %q", ErrBadItemID, id)
		}
	}
	return VideoID{TitleNo: parts[0], StationNo: parts[1], BbsNo: parts[2]}, nil
}

// Chat implements fetch.SegmentedSource
type Chat struct {
	client  *http.Client
	infoURL string
	chatURL string
	cookie  string
}

// Option configures a Chat
type Option func(*Chat)

// WithURLs overrides the info and chat endpoints
func WithURLs(infoURL, chatURL string) Option {
	return func(c *Chat) {
		c.infoURL = infoURL
		c.chatURL = chatURL
	}
}

// WithCookie sends cookie with info requests, for age-restricted VODs
func WithCookie(cookie string) Option {
	return func(c *Chat) {
		c.cookie = cookie
	}
}

// NewChat creates a new AfreecaTV chat source
func NewChat(client *http.Client, opts ...Option) *Chat {
	c := &Chat{
		client:  client,
		infoURL: InfoURL,
		chatURL: ChatURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements fetch.Source
func (c *Chat) Name() string {
	return types.PlatformAfreeca
}

func (c *Chat) get(ctx context.Context, u string, cookie string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return sources.Do(c.client, req)
}

// Segments lists the recorded files of a VOD in playback order
func (c *Chat) Segments(ctx context.Context, itemID string) ([]types.Segment, error) {
	id, err := ParseVideoID(itemID)
	if err != nil {
		return nil, err
	}
	q := url.Values{
		"nStationNo": {id.StationNo},
		"nBbsNo":     {id.BbsNo},
		"nTitleNo":   {id.TitleNo},
	}
	body, err := c.get(ctx, c.infoURL+"?"+q.Encode(), c.cookie)
	if err != nil {
		return nil, err
	}
	return parseSegments(body)
}

// newDecoder accepts the non-UTF-8 encodings the upstream declares
func newDecoder(body []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// parseSegments collects every <file duration key> element, wherever it sits
func parseSegments(body []byte) ([]types.Segment, error) {
	dec := newDecoder(body)

	var segs []types.Segment
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse video info: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "file" {
			continue
		}

		var seg types.Segment
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "key":
				seg.Key = a.Value
			case "duration":
				d, err := strconv.ParseFloat(a.Value, 64)
				if err != nil || d < 0 {
					return nil, fmt.Errorf("bad file duration %q", a.Value)
				}
				seg.Duration = uint32(d)
			}
		}
		if seg.Key != "" {
			segs = append(segs, seg)
		}
	}
	return segs, nil
}

type chatWindow struct {
	Chats []struct {
		Nick    *string `xml:"n"`
		Message *string `xml:"m"`
		Time    *string `xml:"t"`
	} `xml:"chat"`
}

// FetchWindow returns the records of seg starting at offset seconds
func (c *Chat) FetchWindow(ctx context.Context, _ string, seg types.Segment, offset uint32) ([]types.RawRecord, error) {
	q := url.Values{
		"rowKey":    {seg.Key + "_c"},
		"startTime": {strconv.FormatUint(uint64(offset), 10)},
	}
	body, err := c.get(ctx, c.chatURL+"?"+q.Encode(), "")
	if err != nil {
		return nil, err
	}
	return parseWindow(body)
}

func parseWindow(body []byte) ([]types.RawRecord, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var w chatWindow
	if err := newDecoder(body).Decode(&w); err != nil {
		return nil, fmt.Errorf("failed to parse chat window: %w", err)
	}

	recs := make([]types.RawRecord, 0, len(w.Chats))
	for _, ch := range w.Chats {
		r := types.RawRecord{Author: ch.Nick, Text: ch.Message}
		if ch.Time != nil {
			if t, err := strconv.ParseFloat(strings.TrimSpace(*ch.Time), 64); err == nil {
				r.Offset = &t
			}
		}
		recs = append(recs, r)
	}
	return recs, nil
}
