package identity

import "time"

// BindingEntry is a committed association between a validated device and
// its persisted configuration. This matches the binding_entries table in
// the initial schema migration.
type BindingEntry struct {
	// UniqueID is the normalised MAC address (lowercase hex, no separators).
	// At most one entry exists per UniqueID.
	UniqueID string `json:"unique_id"`

	// Host is the device's last known IP address. Updated in place when the
	// same device reappears at a new address.
	Host string `json:"host"`

	// Title is the resolved human-readable name.
	Title string `json:"title"`

	// HomeLink is the home-structure source shared across a household's
	// entries. Empty when no home config was ever imported.
	HomeLink string `json:"home_link,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the entry.
func (e *BindingEntry) Clone() *BindingEntry {
	if e == nil {
		return nil
	}
	cpy := *e
	return &cpy
}
