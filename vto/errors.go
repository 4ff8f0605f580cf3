package vto

import "errors"

// Failure categories of the device control API. Every failure returned by
// the client wraps exactly one of these, so callers can classify with
// errors.Is without parsing messages.
var (
	// ErrNetwork covers unreachable devices, refused connections and timeouts.
	ErrNetwork = errors.New("device unreachable or timed out")
	// ErrAuth covers rejected vendor credentials.
	ErrAuth = errors.New("device authentication failed")
	// ErrProtocol covers non-2xx responses and malformed bodies.
	ErrProtocol = errors.New("unexpected device response")
	// ErrUnknown covers commands the device accepted but refused to execute.
	ErrUnknown = errors.New("device error")
)
