// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings. Clients branch on them
// rather than on messages. Service failures are classified by kind and
// mapped onto a status and code by statusOf.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "friend request already pending"
//	}
package handlers

import (
	"net/http"

	"github.com/tbourn/go-tawk-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeStaleEvent       = "stale_event"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusOf maps a service error onto an HTTP status and error code.
func statusOf(err error) (int, string) {
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest, ErrCodeBadRequest
	case services.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case services.KindConflict:
		return http.StatusConflict, ErrCodeConflict
	case services.KindStaleEvent:
		return http.StatusConflict, ErrCodeStaleEvent
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
