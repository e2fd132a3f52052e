// Package flow implements the device binding flow: the state machine
// that takes a bulb from "seen on the network" or "address typed by a
// user" to a committed binding entry.
//
// A flow is a short-lived session advanced by events. Interactive
// failures re-present the form that caused them with field errors;
// failures on passive (hinted) flows abort the session. Committing is
// idempotent per MAC: a device that is already bound gets its host
// updated instead of a second entry.
package flow
