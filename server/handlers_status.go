package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

type liveStatusView struct {
	UID       int64  `json:"uid"`
	Name      string `json:"name"`
	Room      string `json:"room"`
	Live      bool   `json:"live"`
	StartTime *int64 `json:"start_time,omitempty"`
	EndTime   *int64 `json:"end_time,omitempty"`
}

type statusView struct {
	Ready          bool             `json:"ready"`
	Subjects       int              `json:"subjects"`
	LiveEnabled    int              `json:"live_enabled"`
	DynamicEnabled int              `json:"dynamic_enabled"`
	FollowQueue    int              `json:"follow_queue"`
	Live           []liveStatusView `json:"live"`
}

// HandleStatus reports the watch set size and the persisted live status of
// every watched subject.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reg := h.deps.Registry
	out := statusView{
		Ready:          reg.Ready(),
		Subjects:       reg.Len(),
		LiveEnabled:    len(reg.UIDs(subject.LiveEnabled)),
		DynamicEnabled: len(reg.UIDs(subject.DynamicEnabled)),
		Live:           []liveStatusView{},
	}
	if h.deps.FollowQueue != nil {
		out.FollowQueue = h.deps.FollowQueue.Len()
	}

	records, err := h.deps.LiveStatus.All(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("status: list live status", slog.String("component", "http"), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "live status unavailable")
		return
	}
	for _, rec := range records {
		s, ok := reg.Get(rec.UID)
		if !ok {
			continue
		}
		out.Live = append(out.Live, liveStatusView{
			UID:       rec.UID,
			Name:      s.Name,
			Room:      s.RoomString(),
			Live:      rec.Live,
			StartTime: rec.StartTime,
			EndTime:   rec.EndTime,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
