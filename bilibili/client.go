// Package bilibili contains minimal helpers for the bilibili web APIs used by
// the watchers: the dynamic feed of the logged-in account, batched live room
// status, follow and the following list.
//
// Authentication uses the SESSDATA cookie of the account the service runs as;
// bili_jct doubles as the CSRF token for write calls.
package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultAPIBase  = "https://api.bilibili.com"
	defaultLiveBase = "https://api.live.bilibili.com"
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ErrNotLoggedIn is returned by write calls when no credentials are configured.
var ErrNotLoggedIn = errors.New("bilibili credentials not configured")

// Client talks to the bilibili web APIs.
type Client struct {
	SESSDATA   string
	BiliJct    string
	HTTPClient *http.Client

	// APIBase and LiveBase override the API hosts (tests).
	APIBase  string
	LiveBase string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *Client) apiBase() string {
	if c.APIBase != "" {
		return strings.TrimRight(c.APIBase, "/")
	}
	return defaultAPIBase
}

func (c *Client) liveBase() string {
	if c.LiveBase != "" {
		return strings.TrimRight(c.LiveBase, "/")
	}
	return defaultLiveBase
}

// APIError is a response envelope with a non-zero code.
type APIError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili %s: code=%d message=%s", e.Endpoint, e.Code, e.Message)
}

// StatusError is a non-200 HTTP response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bilibili %s: %s: %s", e.Endpoint, e.Status, e.Body)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://www.bilibili.com/")
	if c.SESSDATA != "" {
		req.AddCookie(&http.Cookie{Name: "SESSDATA", Value: c.SESSDATA})
	}
	if c.BiliJct != "" {
		req.AddCookie(&http.Cookie{Name: "bili_jct", Value: c.BiliJct})
	}
	return req, nil
}

// do executes req and decodes the envelope's data into out (when non-nil).
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("bilibili %s: decode: %w", endpoint, err)
	}
	if env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = env.Msg
		}
		return &APIError{Endpoint: endpoint, Code: env.Code, Message: msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("bilibili %s: decode data: %w", endpoint, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, base, path string, q url.Values, out any) error {
	u := base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, path, out)
}

// Self is the account the client is logged in as.
type Self struct {
	UID     int64  `json:"mid"`
	Name    string `json:"uname"`
	IsLogin bool   `json:"isLogin"`
}

// Self returns the logged-in account.
func (c *Client) Self(ctx context.Context) (Self, error) {
	var s Self
	if err := c.get(ctx, c.apiBase(), "/x/web-interface/nav", nil, &s); err != nil {
		return Self{}, err
	}
	if !s.IsLogin {
		return Self{}, ErrNotLoggedIn
	}
	return s, nil
}
