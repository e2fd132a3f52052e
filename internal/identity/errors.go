package identity

import "errors"

// Domain errors for the identity package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, identity.ErrEntryNotFound) {
//	    // handle not found case
//	}
var (
	// ErrEntryNotFound is returned when no entry exists for a unique ID.
	ErrEntryNotFound = errors.New("identity: entry not found")

	// ErrEntryExists is returned when creating an entry whose unique ID
	// is already committed.
	ErrEntryExists = errors.New("identity: entry already exists")

	// ErrInvalidMAC is returned when a MAC address cannot be normalised.
	ErrInvalidMAC = errors.New("identity: invalid MAC address")
)
