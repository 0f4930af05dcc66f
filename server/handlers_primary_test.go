package server

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/onnwee/starwatch/livestatus"
)

type fakePrimary struct {
	started, ended []int64
}

func (f *fakePrimary) LiveStarted(_ context.Context, uid, t int64) (livestatus.Transition, error) {
	if uid == 0 {
		return livestatus.TransitionNone, errors.New("uid 0 is not watched")
	}
	f.started = append(f.started, t)
	return livestatus.TransitionWentLive, nil
}

func (f *fakePrimary) LiveEnded(_ context.Context, uid, t int64) (livestatus.Transition, error) {
	f.ended = append(f.ended, t)
	return livestatus.TransitionWentOffline, nil
}

func TestAdminLiveEvents(t *testing.T) {
	deps, _, _ := newDeps(t)
	auth := map[string]string{"X-Admin-Token": "secret"}

	rr := serve(t, NewMux(context.Background(), deps), http.MethodPost, "/admin/live-events", `{"uid":1,"event":"start"}`, auth)
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("without hooks = %d", rr.Code)
	}

	fp := &fakePrimary{}
	deps.Primary = fp
	h := NewMux(context.Background(), deps)

	rr = serve(t, h, http.MethodPost, "/admin/live-events", `{"uid":1,"event":"start","time":1000}`, auth)
	if rr.Code != http.StatusOK || len(fp.started) != 1 || fp.started[0] != 1000 {
		t.Errorf("start = %d %s %v", rr.Code, rr.Body.String(), fp.started)
	}
	rr = serve(t, h, http.MethodPost, "/admin/live-events", `{"uid":1,"event":"start"}`, auth)
	if rr.Code != http.StatusOK || len(fp.started) != 2 || fp.started[1] != 0 {
		t.Errorf("start without time should pass 0 through, got %d %v", rr.Code, fp.started)
	}
	if rr := serve(t, h, http.MethodPost, "/admin/live-events", `{"uid":1,"event":"end"}`, auth); rr.Code != http.StatusBadRequest || len(fp.ended) != 0 {
		t.Errorf("end without time = %d %v", rr.Code, fp.ended)
	}
	rr = serve(t, h, http.MethodPost, "/admin/live-events", `{"uid":1,"event":"end","time":1500}`, auth)
	if rr.Code != http.StatusOK || len(fp.ended) != 1 || fp.ended[0] != 1500 {
		t.Errorf("end = %d %v", rr.Code, fp.ended)
	}
	if rr := serve(t, h, http.MethodPost, "/admin/live-events", `{"uid":1,"event":"pause"}`, auth); rr.Code != http.StatusBadRequest {
		t.Errorf("bad event = %d", rr.Code)
	}
	if rr := serve(t, h, http.MethodPost, "/admin/live-events", `{"uid":0,"event":"start"}`, auth); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unwatched = %d", rr.Code)
	}
	if rr := serve(t, h, http.MethodGet, "/admin/live-events", "", auth); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("get = %d", rr.Code)
	}
}
