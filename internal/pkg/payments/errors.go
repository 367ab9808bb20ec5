package payments

import "errors"

var (
	// ErrInvalidSignature is returned when webhook signature validation fails.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when a webhook payload cannot be parsed.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrMissingMetadata is returned when a checkout session carries no
	// account attribution; no entitlement can be granted without it and the
	// event must not be retried.
	ErrMissingMetadata = errors.New("checkout session missing account attribution")

	// ErrUnconfigured is returned when a required payments backend setting
	// (API key, webhook secret) is absent.
	ErrUnconfigured = errors.New("payments backend not configured")

	// ErrDBInsert and ErrDBUpdate mark transient datastore failures. They
	// abort the whole fulfillment so the event stays unledgered and gets
	// redelivered.
	ErrDBInsert = errors.New("datastore insert failed")
	ErrDBUpdate = errors.New("datastore update failed")
)
