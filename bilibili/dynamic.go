package bilibili

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// Dynamic item kinds as reported in the feed's "type" field.
const (
	KindForward  = "DYNAMIC_TYPE_FORWARD"
	KindVideo    = "DYNAMIC_TYPE_AV"
	KindArticle  = "DYNAMIC_TYPE_ARTICLE"
	KindDraw     = "DYNAMIC_TYPE_DRAW"
	KindWord     = "DYNAMIC_TYPE_WORD"
	KindLiveRcmd = "DYNAMIC_TYPE_LIVE_RCMD"
)

// FeedItem is one entry of the dynamic feed.
type FeedItem struct {
	ID              string          `json:"id"`
	AuthorUID       int64           `json:"author_uid"`
	AuthorName      string          `json:"author_name"`
	Kind            string          `json:"kind"`
	OriginAuthorUID int64           `json:"origin_author_uid,omitempty"` // reposts only
	VideoID         string          `json:"video_id,omitempty"`          // bvid, videos only
	PublishedAt     int64           `json:"published_at"`                // unix seconds
	Raw             json.RawMessage `json:"raw,omitempty"`
}

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

type rawAuthor struct {
	Mid   flexInt `json:"mid"`
	Name  string  `json:"name"`
	PubTS flexInt `json:"pub_ts"`
}

type rawModules struct {
	Author  rawAuthor `json:"module_author"`
	Dynamic struct {
		Major *struct {
			Archive *struct {
				BVID string `json:"bvid"`
			} `json:"archive"`
		} `json:"major"`
	} `json:"module_dynamic"`
}

type rawItem struct {
	IDStr   string     `json:"id_str"`
	Type    string     `json:"type"`
	Modules rawModules `json:"modules"`
	Orig    *struct {
		Modules rawModules `json:"modules"`
	} `json:"orig"`
}

func (r rawItem) toFeedItem(raw json.RawMessage) FeedItem {
	it := FeedItem{
		ID:          r.IDStr,
		AuthorUID:   int64(r.Modules.Author.Mid),
		AuthorName:  r.Modules.Author.Name,
		Kind:        r.Type,
		PublishedAt: int64(r.Modules.Author.PubTS),
		Raw:         raw,
	}
	if r.Orig != nil {
		it.OriginAuthorUID = int64(r.Orig.Modules.Author.Mid)
	}
	if m := r.Modules.Dynamic.Major; m != nil && m.Archive != nil {
		it.VideoID = m.Archive.BVID
	}
	return it
}

// RecentDynamics returns the newest page of the logged-in account's dynamic
// feed in platform order (newest first).
func (c *Client) RecentDynamics(ctx context.Context) ([]FeedItem, error) {
	q := url.Values{}
	q.Set("type", "all")
	q.Set("timezone_offset", "-480")
	var data struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := c.get(ctx, c.apiBase(), "/x/polymer/web-dynamic/v1/feed/all", q, &data); err != nil {
		return nil, err
	}
	out := make([]FeedItem, 0, len(data.Items))
	for _, raw := range data.Items {
		var r rawItem
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		if r.IDStr == "" {
			continue
		}
		out = append(out, r.toFeedItem(raw))
	}
	return out, nil
}
