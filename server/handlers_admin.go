package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/starwatch/subject"
	"github.com/onnwee/starwatch/telemetry"
)

// subjectRequest is the admin wire form of a subject; Events is the comma
// separated list accepted by subject.ParseEventKinds.
type subjectRequest struct {
	UID    int64  `json:"uid"`
	Name   string `json:"name"`
	RoomID *int64 `json:"room_id,omitempty"`
	Events string `json:"events"`
}

func toRequest(s subject.Subject) subjectRequest {
	return subjectRequest{UID: s.UID, Name: s.Name, RoomID: s.RoomID, Events: s.Events.String()}
}

// HandleAdminSubjects lists (GET), upserts (POST) or removes (DELETE ?uid=)
// watched subjects. Writes go to the persistent store first, then to the
// registry, whose listeners refresh live status and queue follows.
func (h *Handlers) HandleAdminSubjects(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "http_admin"))
	switch r.Method {
	case http.MethodGet:
		subs := h.deps.Registry.List(nil)
		out := make([]subjectRequest, 0, len(subs))
		for _, s := range subs {
			out = append(out, toRequest(s))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req subjectRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
		if req.UID <= 0 {
			writeError(w, http.StatusBadRequest, "uid must be positive")
			return
		}
		kinds, err := subject.ParseEventKinds(req.Events)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s := subject.Subject{UID: req.UID, Name: req.Name, RoomID: req.RoomID, Events: kinds}
		if s.Events == 0 {
			writeError(w, http.StatusBadRequest, "events must name at least one of live_on, live_off, dynamic")
			return
		}
		if err := h.deps.Subjects.Upsert(r.Context(), s); err != nil {
			log.Error("upsert subject", slog.Int64("uid", s.UID), slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "persist failed")
			return
		}
		h.deps.Registry.Put(r.Context(), s)
		log.Info("subject saved", slog.Int64("uid", s.UID), slog.String("events", s.Events.String()))
		writeJSON(w, http.StatusOK, toRequest(s))

	case http.MethodDelete:
		uid, err := strconv.ParseInt(r.URL.Query().Get("uid"), 10, 64)
		if err != nil || uid <= 0 {
			writeError(w, http.StatusBadRequest, "uid query parameter required")
			return
		}
		existed, err := h.deps.Subjects.Delete(r.Context(), uid)
		if err != nil {
			log.Error("delete subject", slog.Int64("uid", uid), slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "delete failed")
			return
		}
		if !h.deps.Registry.Remove(r.Context(), uid) && !existed {
			writeError(w, http.StatusNotFound, "subject not found")
			return
		}
		log.Info("subject removed", slog.Int64("uid", uid))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
