// Package identity manages committed binding entries and device identity.
//
// A bulb's MAC address is its stable identity; its IP address may change
// over time. This package owns:
//
//   - MAC normalisation (any common format to canonical lowercase hex)
//   - The persistent store of committed BindingEntry records, keyed by
//     normalised MAC, with at most one entry per physical device
//   - The atomic re-bind rule: committing an entry whose MAC is already
//     bound updates the existing entry's host instead of creating a
//     duplicate
//
// The Store serialises all writes through a single mutex on top of the
// SQLite repository, so concurrent flow invocations can never race two
// entries for the same MAC into existence.
package identity
