package flow

import "errors"

var (
	// ErrHostRequired indicates an empty host on a step that needs one.
	ErrHostRequired = errors.New("flow: host required")

	// ErrInvalidAddress indicates a host that is not an IP literal.
	// Hostnames are rejected without any network access.
	ErrInvalidAddress = errors.New("flow: host is not an ip address")

	// ErrUnknown wraps an unexpected validation failure. The original
	// cause is logged before it is folded into this sentinel.
	ErrUnknown = errors.New("flow: unknown error")

	// ErrLinkNotAllowed indicates a home-config link outside the
	// allow-listed prefix. Rejected before any fetch.
	ErrLinkNotAllowed = errors.New("flow: home link not allowed")

	// ErrSessionNotFound indicates an unknown or expired flow id.
	ErrSessionNotFound = errors.New("flow: session not found")

	// ErrInvalidStep indicates an event that does not fit the
	// session's current state.
	ErrInvalidStep = errors.New("flow: event not valid for current step")
)

// Form error keys shown to the user. "host" scoped errors re-present
// with the offending field marked; "base" scoped errors apply to the
// whole form.
const (
	errKeyHostRequired  = "host_required"
	errKeyNoIP          = "no_ip"
	errKeyCannotConnect = "cannot_connect"
	errKeyBulbTimeout   = "bulb_time_out"
	errKeyUnknown       = "unknown"
	errKeyInvalidLink   = "invalid_link"
)

// Abort reasons.
const (
	AbortNoDevicesFound    = "no_devices_found"
	AbortNoDeviceFound     = "no_device_found"
	AbortCannotConnect     = "cannot_connect"
	AbortAlreadyConfigured = "already_configured"
)
