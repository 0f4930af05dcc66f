// Package server exposes the HTTP API: health, readiness, metrics, status and
// admin management of the watch set. It injects correlation IDs into request
// contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/onnwee/starwatch/livestatus"
	"github.com/onnwee/starwatch/subject"
)

// SubjectStore persists admin edits to the watch set.
type SubjectStore interface {
	Upsert(ctx context.Context, s subject.Subject) error
	Delete(ctx context.Context, uid int64) (bool, error)
}

// Pinger reports backing store liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the handlers read from. Pinger, FollowQueue and
// Primary may be nil.
type Deps struct {
	Registry    *subject.Registry
	Subjects    SubjectStore
	LiveStatus  livestatus.Store
	Pinger      Pinger
	FollowQueue interface{ Len() int }
	Primary     PrimaryHooks
	Auth        AuthConfig
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
