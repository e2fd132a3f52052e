// Package naming derives human-readable device names from a bulb's
// capabilities, its MAC address, and (when present) the household
// structure document. Resolution is pure: no network access, no
// persistent state.
package naming
