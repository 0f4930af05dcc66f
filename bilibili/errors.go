package bilibili

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrorClass buckets API failures for logging and metrics.
type ErrorClass int

const (
	// ErrorClassTransient covers network errors and 5xx responses.
	ErrorClassTransient ErrorClass = iota
	// ErrorClassRateLimited means the platform's risk control rejected the call.
	// Polling faster makes it worse.
	ErrorClassRateLimited
	// ErrorClassAuth means the session cookie is missing, expired or lacks rights.
	ErrorClassAuth
	// ErrorClassCanceled means the caller's context ended.
	ErrorClassCanceled
	// ErrorClassUnknown is anything else.
	ErrorClassUnknown
)

// String returns a label suitable for logs and metric labels.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassRateLimited:
		return "rate_limited"
	case ErrorClassAuth:
		return "auth"
	case ErrorClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Envelope codes with a known meaning.
const (
	codeNotLoggedIn   = -101
	codeCSRFFailed    = -111
	codeAccessDenied  = -403
	codeRiskControl   = -352
	codeRequestBanned = -412
	codeTooFrequent   = -509
	codeFollowLimit   = 22015
	codeFollowBlocked = 22003
)

// ClassifyError classifies err.
//
// Rate limited: envelope codes -352, -412, -509, HTTP 412/429.
// Auth: ErrNotLoggedIn, codes -101, -111, -403, HTTP 401/403.
// Transient: net.Error, reset or refused connections, EOF, HTTP 5xx.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassCanceled
	}
	if errors.Is(err, ErrNotLoggedIn) {
		return ErrorClassAuth
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeRiskControl, codeRequestBanned, codeTooFrequent, codeFollowLimit:
			return ErrorClassRateLimited
		case codeNotLoggedIn, codeCSRFFailed, codeAccessDenied, codeFollowBlocked:
			return ErrorClassAuth
		}
		return ErrorClassUnknown
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch c := statusErr.StatusCode; {
		case c == http.StatusPreconditionFailed, c == http.StatusTooManyRequests:
			return ErrorClassRateLimited
		case c == http.StatusUnauthorized, c == http.StatusForbidden:
			return ErrorClassAuth
		case c >= http.StatusInternalServerError:
			return ErrorClassTransient
		}
		return ErrorClassUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassTransient
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return ErrorClassTransient
	}
	return ErrorClassUnknown
}
