package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockBilibiliServer mocks the bilibili web and live APIs. Handlers are keyed
// by URL path; unknown paths return 404.
type MockBilibiliServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockBilibiliServer starts a mock server closed at test cleanup.
func NewMockBilibiliServer(t *testing.T) *MockBilibiliServer {
	t.Helper()
	m := &MockBilibiliServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		handler, ok := m.handlers[r.URL.Path]
		m.hits[r.URL.Path]++
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle installs h for path.
func (m *MockBilibiliServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Hits returns how many requests path received.
func (m *MockBilibiliServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// WriteEnvelope writes a {code, message, data} response.
func WriteEnvelope(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": "0", "data": data}) //nolint:errcheck // test mock response
}

// MockFeed serves items on the dynamic feed endpoint. Each item is
// {"id_str", "type", "mid"}; every call returns the page produced by next.
func (m *MockBilibiliServer) MockFeed(next func() []map[string]any) {
	m.Handle("/x/polymer/web-dynamic/v1/feed/all", func(w http.ResponseWriter, r *http.Request) {
		items := make([]map[string]any, 0)
		for _, it := range next() {
			items = append(items, map[string]any{
				"id_str": it["id_str"],
				"type":   it["type"],
				"modules": map[string]any{
					"module_author": map[string]any{"mid": it["mid"], "name": it["name"], "pub_ts": it["pub_ts"]},
				},
			})
		}
		WriteEnvelope(w, 0, map[string]any{"items": items})
	})
}

// MockLiveStatus serves the batched live status endpoint with the rooms
// produced by next, keyed by uid.
func (m *MockBilibiliServer) MockLiveStatus(next func() map[string]map[string]any) {
	m.Handle("/room/v1/Room/get_status_info_by_uids", func(w http.ResponseWriter, r *http.Request) {
		WriteEnvelope(w, 0, next())
	})
}

// MockSelf serves the nav endpoint for uid.
func (m *MockBilibiliServer) MockSelf(uid int64) {
	m.Handle("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
		WriteEnvelope(w, 0, map[string]any{"mid": uid, "uname": "self", "isLogin": true})
	})
}
