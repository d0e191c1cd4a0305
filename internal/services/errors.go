// Package services defines the business logic for the commission lifecycle,
// chat messaging, and payment callbacks. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer. Methods wrap these sentinels with context via fmt.Errorf
// ("%w: detail"), so callers must match with errors.Is.
package services

import "errors"

var (
	// ErrValidation is returned for malformed or missing input: absent
	// title/description, unknown status or message type, self-commissioning,
	// a sender who is not a party to the commission, or an unresolvable
	// receiver.
	ErrValidation = errors.New("invalid input")

	// ErrForbidden is returned when the caller lacks the role an action
	// requires (only the creator may submit stages, only the customer may
	// review, only parties may download).
	ErrForbidden = errors.New("caller not allowed")

	// ErrConflict is returned when a state-machine guard fails: accepting a
	// commission that is no longer open (or losing the accept race), or
	// submitting a stage to a completed commission.
	ErrConflict = errors.New("state conflict")

	// ErrNotFound indicates the requested entity does not exist: missing
	// commission, missing message, a review with no stage submission to
	// verdict, or a download with no finished assets.
	ErrNotFound = errors.New("not found")

	// ErrPayloadTooLarge is returned when a stage image exceeds the
	// configured cap (10 MiB by default).
	ErrPayloadTooLarge = errors.New("image too large")

	// ErrPaymentRequired is returned when the customer attempts to download
	// finished work before the payment collaborator has reported success.
	ErrPaymentRequired = errors.New("payment required")
)
