package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
)

type memSubjects struct {
	mu   sync.Mutex
	rows map[int64]subject.Subject
	err  error
}

func (m *memSubjects) Upsert(_ context.Context, s subject.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows[s.UID] = s
	return nil
}

func (m *memSubjects) Delete(_ context.Context, uid int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[uid]
	delete(m.rows, uid)
	return ok, m.err
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type fixedLen int

func (f fixedLen) Len() int { return int(f) }

func newDeps(t *testing.T) (Deps, *memSubjects, *livestatus.MemoryStore) {
	t.Helper()
	reg := subject.NewRegistry()
	store := livestatus.NewMemoryStore()
	subs := &memSubjects{rows: map[int64]subject.Subject{}}
	return Deps{
		Registry:    reg,
		Subjects:    subs,
		LiveStatus:  store,
		Pinger:      pinger{},
		FollowQueue: fixedLen(3),
		Auth:        AuthConfig{Token: "secret"},
	}, subs, store
}

func serve(t *testing.T, h http.Handler, method, target, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	deps, _, _ := newDeps(t)
	h := NewMux(context.Background(), deps)
	rr := serve(t, h, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing correlation id header")
	}

	deps.Pinger = pinger{err: errors.New("down")}
	rr = serve(t, NewMux(context.Background(), deps), http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy db: %d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	deps, _, _ := newDeps(t)
	h := NewMux(context.Background(), deps)

	rr := serve(t, h, http.MethodGet, "/readyz", "", nil)
	var resp map[string]string
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if rr.Code != http.StatusServiceUnavailable || resp["failed_check"] != "watch_set" {
		t.Fatalf("before load: %d %v", rr.Code, resp)
	}

	deps.Registry.Load(context.Background(), nil)
	rr = serve(t, h, http.MethodGet, "/readyz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("after load: %d %s", rr.Code, rr.Body.String())
	}
}

func TestStatus(t *testing.T) {
	deps, _, store := newDeps(t)
	ctx := context.Background()
	room := int64(100)
	deps.Registry.Load(ctx, []subject.Subject{
		{UID: 1, Name: "a", RoomID: &room, Events: subject.EventLiveOn},
		{UID: 2, Name: "b", Events: subject.EventDynamic},
	})
	_ = store.SetStatus(ctx, 1, true)
	_ = store.SetStartTime(ctx, 1, 1000)
	_ = store.SetStatus(ctx, 999, false) // not watched

	rr := serve(t, NewMux(ctx, deps), http.MethodGet, "/status", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got statusView
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Ready || got.Subjects != 2 || got.LiveEnabled != 1 || got.DynamicEnabled != 1 || got.FollowQueue != 3 {
		t.Errorf("status = %+v", got)
	}
	if len(got.Live) != 1 || !got.Live[0].Live || got.Live[0].Room != "100" || *got.Live[0].StartTime != 1000 {
		t.Errorf("live = %+v", got.Live)
	}
}

func TestAdminSubjects(t *testing.T) {
	deps, subs, _ := newDeps(t)
	ctx := context.Background()
	deps.Registry.Load(ctx, nil)
	h := NewMux(ctx, deps)
	auth := map[string]string{"X-Admin-Token": "secret"}

	if rr := serve(t, h, http.MethodGet, "/admin/subjects", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: %d", rr.Code)
	}

	rr := serve(t, h, http.MethodPost, "/admin/subjects", `{"uid":42,"name":"up","room_id":7,"events":"live_on,dynamic"}`, auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("post = %d %s", rr.Code, rr.Body.String())
	}
	s, ok := deps.Registry.Get(42)
	if !ok || !s.HasDynamicEvent() || !s.HasRoom() {
		t.Errorf("registry = %+v %v", s, ok)
	}
	if _, ok := subs.rows[42]; !ok {
		t.Error("subject not persisted")
	}

	rr = serve(t, h, http.MethodGet, "/admin/subjects", "", auth)
	var list []subjectRequest
	_ = json.NewDecoder(rr.Body).Decode(&list)
	if len(list) != 1 || list[0].Events != "live_on,dynamic" {
		t.Errorf("list = %+v", list)
	}

	for _, bad := range []string{`{"uid":0,"events":"dynamic"}`, `{"uid":5,"events":"nope"}`, `{"uid":5,"events":"live_on,dynamc"}`, `not json`, `{"uid":5,"events":"dynamic","extra":1}`} {
		if rr := serve(t, h, http.MethodPost, "/admin/subjects", bad, auth); rr.Code != http.StatusBadRequest {
			t.Errorf("post %s = %d", bad, rr.Code)
		}
	}

	if rr := serve(t, h, http.MethodDelete, "/admin/subjects?uid=42", "", auth); rr.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rr.Code)
	}
	if _, ok := deps.Registry.Get(42); ok {
		t.Error("subject still registered")
	}
	if rr := serve(t, h, http.MethodDelete, "/admin/subjects?uid=42", "", auth); rr.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rr.Code)
	}
	if rr := serve(t, h, http.MethodDelete, "/admin/subjects", "", auth); rr.Code != http.StatusBadRequest {
		t.Errorf("delete without uid = %d", rr.Code)
	}
	if rr := serve(t, h, http.MethodPut, "/admin/subjects", "", auth); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("put = %d", rr.Code)
	}
}

func TestAdminPersistFailureLeavesRegistry(t *testing.T) {
	deps, subs, _ := newDeps(t)
	subs.err = errors.New("db down")
	deps.Registry.Load(context.Background(), nil)
	rr := serve(t, NewMux(context.Background(), deps), http.MethodPost, "/admin/subjects", `{"uid":1,"events":"dynamic"}`, map[string]string{"X-Admin-Token": "secret"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rr.Code)
	}
	if deps.Registry.Len() != 0 {
		t.Error("registry changed despite persist failure")
	}
}

func TestAdminAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	tests := []struct {
		name string
		cfg  AuthConfig
		set  func(r *http.Request)
		want int
	}{
		{"disabled", AuthConfig{}, func(*http.Request) {}, http.StatusForbidden},
		{"token ok", AuthConfig{Token: "t"}, func(r *http.Request) { r.Header.Set("X-Admin-Token", "t") }, http.StatusOK},
		{"token bad", AuthConfig{Token: "t"}, func(r *http.Request) { r.Header.Set("X-Admin-Token", "x") }, http.StatusUnauthorized},
		{"basic ok", AuthConfig{Username: "u", Password: "p"}, func(r *http.Request) { r.SetBasicAuth("u", "p") }, http.StatusOK},
		{"basic bad", AuthConfig{Username: "u", Password: "p"}, func(r *http.Request) { r.SetBasicAuth("u", "x") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/subjects", nil)
			tt.set(req)
			rr := httptest.NewRecorder()
			adminAuth(ok, tt.cfg).ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("code = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := newIPRateLimiter(ctx, 2, time.Minute)
	now := time.Now()
	if !rl.allow("a", now) || !rl.allow("a", now) {
		t.Fatal("first two requests rejected")
	}
	if rl.allow("a", now) {
		t.Error("third request allowed")
	}
	if !rl.allow("b", now) {
		t.Error("other ip limited")
	}
	if !rl.allow("a", now.Add(2*time.Minute)) {
		t.Error("window did not slide")
	}
	rl.cleanup(now.Add(10 * time.Minute))
	if len(rl.visitors) != 0 {
		t.Errorf("visitors after cleanup = %d", len(rl.visitors))
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	if got := clientIP(r); got != "10.0.0.1" {
		t.Errorf("clientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	if got := clientIP(r); got != "1.2.3.4" {
		t.Errorf("forwarded clientIP = %q", got)
	}
}

func TestServeAndShutdown(t *testing.T) {
	deps, _, _ := newDeps(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, deps, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
