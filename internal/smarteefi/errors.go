package smarteefi

import "errors"

// Sentinel errors for Smarteefi cloud operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, smarteefi.ErrAuthFailed) {
//	    // Token revoked or wrong - do not retry, operator must fix config
//	}
var (
	// ErrAuthFailed indicates the API token was rejected by the cloud.
	// Retrying will not help; the operator must generate a new token.
	ErrAuthFailed = errors.New("smarteefi: authentication failed")

	// ErrRequestFailed indicates a transient failure talking to the cloud
	// (network error, timeout, 5xx). Safe to retry with backoff.
	ErrRequestFailed = errors.New("smarteefi: request failed")

	// ErrUnexpectedResponse indicates the cloud returned a payload the
	// client could not interpret.
	ErrUnexpectedResponse = errors.New("smarteefi: unexpected response")

	// ErrInvalidDeviceID indicates a device ID was not in serial:module:smap form.
	ErrInvalidDeviceID = errors.New("smarteefi: invalid device id")

	// ErrInvalidSpeed indicates a fan speed outside the 1-4 range.
	ErrInvalidSpeed = errors.New("smarteefi: invalid fan speed")

	// ErrInvalidIntensity indicates a light intensity outside the 0-100 range.
	ErrInvalidIntensity = errors.New("smarteefi: invalid intensity")
)
