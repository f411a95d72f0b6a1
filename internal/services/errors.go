// Package services implements the inbound message pipeline: ingestion of
// webhook payloads, the per-conversation processor, the response
// orchestrator, the order confirmation state machine and the admin queries.
//
// Service-level errors are returned for predictable cases so the HTTP layer
// can map them to statuses consistently.
package services

import "errors"

var (
	// ErrTenantNotFound indicates no tenant matches the given identity.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantInactive is returned for tenants with IsActive=false.
	ErrTenantInactive = errors.New("tenant inactive")

	// ErrInvalidPayload is returned for webhook bodies that cannot be
	// parsed or have no sender.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrEmptyCounterparty is returned by admin queries without a counterparty.
	ErrEmptyCounterparty = errors.New("counterparty is empty")
)
