package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/telemetry"
)

// PrimaryHooks receives live-room announcements from the external connector.
type PrimaryHooks interface {
	LiveStarted(ctx context.Context, uid, startTime int64) (livestatus.Transition, error)
	LiveEnded(ctx context.Context, uid, endTime int64) (livestatus.Transition, error)
}

type liveRoomEvent struct {
	UID   int64  `json:"uid"`
	Event string `json:"event"` // "start" or "end"
	// Time is epoch seconds. Required for "end"; for "start" it is only a
	// hint, the session start is read from the platform.
	Time int64 `json:"time"`
}

// HandleAdminLiveEvents accepts POSTed live-room announcements and feeds them
// to the primary channel hooks.
func (h *Handlers) HandleAdminLiveEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.deps.Primary == nil {
		writeError(w, http.StatusNotImplemented, "primary channel hooks not configured")
		return
	}
	var ev liveRoomEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	var (
		tr  livestatus.Transition
		err error
	)
	switch ev.Event {
	case "start":
		tr, err = h.deps.Primary.LiveStarted(r.Context(), ev.UID, ev.Time)
	case "end":
		if ev.Time <= 0 {
			writeError(w, http.StatusBadRequest, "time required for end events")
			return
		}
		tr, err = h.deps.Primary.LiveEnded(r.Context(), ev.UID, ev.Time)
	default:
		writeError(w, http.StatusBadRequest, `event must be "start" or "end"`)
		return
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("primary live event rejected",
			slog.String("component", "http_admin"), slog.Int64("uid", ev.UID), slog.Any("err", err))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transition": tr.String()})
}
