// Package handlers implements the HTTP endpoints: the provider webhook
// (challenge handshake and message callbacks) and the tenant-scoped admin
// API.
//
// Admin errors use ErrorResponse with one of the codes below. Clients branch
// on the code, never on the message:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "tenant_not_found",
//	  "message": "tenant not found"
//	}
//
// The webhook endpoints keep the provider contract instead: plaintext
// challenge or "forbidden", and {"ok": true|false} for callbacks.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeTenantNotFound = "tenant_not_found"
	ErrCodeReadFailed     = "read_failed"
	ErrCodeClearFailed    = "clear_failed"
	ErrCodeListFailed     = "list_failed"
	ErrCodeLookupFailed   = "lookup_failed"
)
