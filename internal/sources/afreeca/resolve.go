package afreeca

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

var (
	titleNoPattern   = regexp.MustCompile(`(?i)(?:STATION|PLAYER)/(\d+)`)
	stationNoPattern = regexp.MustCompile(`nStationNo\D{0,3}(\d+)`)
	bbsNoPattern     = regexp.MustCompile(`nBbsNo\D{0,3}(\d+)`)
)

// ErrBadLink is returned for links that do not name a VOD
var ErrBadLink = errors.New("not an AfreecaTV VOD link")

// PageLoader returns the HTML of a VOD page
type PageLoader interface {
	Load(ctx context.Context, link string) ([]byte, error)
}

// HTTPLoader fetches the page with a plain GET
type HTTPLoader struct {
	Client *http.Client
	Cookie string
}

// Load implements PageLoader
func (l HTTPLoader) Load(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	if l.Cookie != "" {
		req.Header.Set("Cookie", l.Cookie)
	}
	return sources.Do(l.Client, req)
}

// BrowserLoader renders the page in headless Chrome, for pages that only
// carry the station number after their scripts have run.
type BrowserLoader struct {
	Settle time.Duration
}

// Load implements PageLoader
func (l BrowserLoader) Load(ctx context.Context, link string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var page string
	err := chromedp.Run(ctx,
		chromedp.Navigate(link),
		chromedp.WaitReady("body"),
		chromedp.Sleep(l.Settle),
		chromedp.Evaluate(`document.documentElement.outerHTML`, &page, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", link, err)
	}
	return []byte(page), nil
}

// Resolve turns a VOD link into a work item by reading the station and
// board numbers off the VOD page.
func Resolve(ctx context.Context, loader PageLoader, link string) (types.WorkItem, error) {
	m := titleNoPattern.FindStringSubmatch(link)
	if m == nil {
		return types.WorkItem{}, fmt.Errorf("%w: %s", ErrBadLink, link)
	}
	titleNo := m[1]

	page, err := loader.Load(ctx, link)
	if err != nil {
		return types.WorkItem{}, err
	}

	station := stationNoPattern.FindSubmatch(page)
	bbs := bbsNoPattern.FindSubmatch(page)
	if station == nil || bbs == nil {
		return types.WorkItem{}, fmt.Errorf("vod %s: station or board number missing from page: %w", titleNo, sources.ErrNotFound)
	}

	id := VideoID{TitleNo: titleNo, StationNo: string(station[1]), BbsNo: string(bbs[1])}
	title := pageTitle(page)
	if title == "" {
		title = titleNo
	}
	return types.WorkItem{ID: id.String(), Title: title, Platform: types.PlatformAfreeca}, nil
}

// pageTitle returns og:title, falling back to <title>
func pageTitle(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}

	var og, plain string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				if attr(n, "property") == "og:title" && og == "" {
					og = attr(n, "content")
				}
			case "title":
				if plain == "" && n.FirstChild != nil {
					plain = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if og != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(plain)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
