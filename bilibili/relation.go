package bilibili

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// codeAlreadyFollowed is returned by relation/modify when the target is
// already followed; treated as success.
const codeAlreadyFollowed = 22014

// followingsPageSize is the maximum page size the following list accepts.
const followingsPageSize = 50

// Follow follows uid as the logged-in account.
func (c *Client) Follow(ctx context.Context, uid int64) error {
	if c.SESSDATA == "" || c.BiliJct == "" {
		return ErrNotLoggedIn
	}
	form := url.Values{}
	form.Set("fid", strconv.FormatInt(uid, 10))
	form.Set("act", "1")
	form.Set("re_src", "11")
	form.Set("csrf", c.BiliJct)
	const path = "/x/relation/modify"
	req, err := c.newRequest(ctx, http.MethodPost, c.apiBase()+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	err = c.do(req, path, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeAlreadyFollowed {
		return nil
	}
	return err
}

// Followings returns every uid followed by selfUID, walking all pages.
func (c *Client) Followings(ctx context.Context, selfUID int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{})
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("vmid", strconv.FormatInt(selfUID, 10))
		q.Set("pn", strconv.Itoa(page))
		q.Set("ps", strconv.Itoa(followingsPageSize))
		var data struct {
			List []struct {
				Mid flexInt `json:"mid"`
			} `json:"list"`
			Total int `json:"total"`
		}
		if err := c.get(ctx, c.apiBase(), "/x/relation/followings", q, &data); err != nil {
			return nil, err
		}
		for _, f := range data.List {
			out[int64(f.Mid)] = struct{}{}
		}
		if len(data.List) < followingsPageSize || len(out) >= data.Total {
			return out, nil
		}
	}
}
