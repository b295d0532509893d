package inventory

import "errors"

var (
	// ErrMalformedResponse is returned when the inventory service answers with a body that is not valid JSON.
	// It is treated as a transient failure and retried.
	ErrMalformedResponse = errors.New("malformed proxy service response")

	// ErrUnauthorized is returned when the inventory service rejects the configured credentials.
	// It is never retried.
	ErrUnauthorized = errors.New("proxy service rejected credentials")
)
