package livestatus

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists live status records per (platform, uid). Implementations are
// constructed for a single platform namespace.
type Store interface {
	// Get returns the record for uid. found is false when no status was ever set.
	Get(ctx context.Context, uid int64) (rec Record, found bool, err error)
	SetStatus(ctx context.Context, uid int64, live bool) error
	SetStartTime(ctx context.Context, uid int64, t int64) error
	SetEndTime(ctx context.Context, uid int64, t int64) error
	DeleteEndTime(ctx context.Context, uid int64) error
	// Reset clears per-session data (start and end time) and keeps the status.
	Reset(ctx context.Context, uid int64) error
	// Apply runs ops for uid in order as one unit: either all of them take
	// effect or none do.
	Apply(ctx context.Context, uid int64, ops []Op) error
	// All lists every record, used for status reporting.
	All(ctx context.Context) ([]Record, error)
}

// ErrUnknownBackend is returned by ParseBackend for unrecognized names.
var ErrUnknownBackend = errors.New("unknown live status store backend")

// Backend names accepted by LIVE_STATUS_STORE.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// ParseBackend normalizes a backend name. Empty selects postgres.
func ParseBackend(s string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", BackendPostgres:
		return BackendPostgres, nil
	case BackendRedis, BackendMemory:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// ErrUnknownOp is returned by Store.Apply for an op kind it cannot execute.
var ErrUnknownOp = errors.New("unknown live status op")

func unknownOp(uid int64, k OpKind) error {
	return fmt.Errorf("%w: kind=%d uid=%d", ErrUnknownOp, int(k), uid)
}
