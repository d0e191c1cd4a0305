// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes provide
// clients with a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, forbidden, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., create_failed, download_failed) are reserved
//     for business logic errors that cannot be conveyed by status alone.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "payment_required",
//	  "message": "commission must be paid before download"
//	}
package handlers

const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeForbidden       = "forbidden"
	ErrCodeNotFound        = "not_found"
	ErrCodeConflict        = "conflict"
	ErrCodePaymentRequired = "payment_required"
	ErrCodePayloadTooLarge = "payload_too_large"
	ErrCodeRateLimited     = "too_many_requests"
	ErrCodeInternal        = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeStageFailed      = "stage_failed"
	ErrCodeReviewFailed     = "review_failed"
	ErrCodeDownloadFailed   = "download_failed"
	ErrCodeWebhookFailed    = "webhook_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
