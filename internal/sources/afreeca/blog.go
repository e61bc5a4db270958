package afreeca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// BlogURL is the station API root
const BlogURL = "https://bjapi.afreecatv.com/api"

const perPage = 60

type blogPage struct {
	Data []struct {
		TitleNo   json.Number `json:"title_no"`
		StationNo json.Number `json:"station_no"`
		BbsNo     json.Number `json:"bbs_no"`
		TitleName string      `json:"title_name"`
	} `json:"data"`
	Meta struct {
		LastPage int `json:"last_page"`
		Total    int `json:"total"`
	} `json:"meta"`
}

// ListBlog enumerates every VOD of a station, in the order the API lists them
func ListBlog(ctx context.Context, client *http.Client, baseURL, user string) ([]types.WorkItem, error) {
	if baseURL == "" {
		baseURL = BlogURL
	}

	var items []types.WorkItem
	for page, last := 1, 1; page <= last; page++ {
		u := fmt.Sprintf("%s/%s/vods/all?%s", baseURL, url.PathEscape(user), url.Values{
			"page":     {fmt.Sprint(page)},
			"per_page": {fmt.Sprint(perPage)},
		}.Encode())

		var resp blogPage
		if err := sources.GetJSON(ctx, client, u, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list blog %s page %d: %w", user, page, err)
		}
		if page == 1 {
			last = resp.Meta.LastPage
			items = make([]types.WorkItem, 0, resp.Meta.Total)
		}

		for _, v := range resp.Data {
			id := VideoID{TitleNo: v.TitleNo.String(), StationNo: v.StationNo.String(), BbsNo: v.BbsNo.String()}
			title := v.TitleName
			if title == "" {
				title = id.TitleNo
			}
			items = append(items, types.WorkItem{ID: id.String(), Title: title, Platform: types.PlatformAfreeca})
		}
	}
	return items, nil
}
