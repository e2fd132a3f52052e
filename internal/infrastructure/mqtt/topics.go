package mqtt

import "fmt"

// Topic prefixes for the wizbind MQTT surface.
//
// Scheme: wizbind/{category}/{subject}
const (
	// TopicPrefix is the base for all wizbind topics.
	TopicPrefix = "wizbind"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "wizbind/system"
)

// Topics provides builders for wizbind MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// DiscoveryHint returns the topic carrying passive discovery hints.
//
// Payload: {"ip_address": "...", "mac_address": "..."} — the same shape a
// DHCP snooper or out-of-band integration would deliver.
//
// Topic: wizbind/discovery/hint
func (Topics) DiscoveryHint() string {
	return fmt.Sprintf("%s/discovery/hint", TopicPrefix)
}

// BindingEvent returns the topic for binding lifecycle events
// (entry committed, flow aborted, scan completed).
//
// Topic: wizbind/binding/event
func (Topics) BindingEvent() string {
	return fmt.Sprintf("%s/binding/event", TopicPrefix)
}

// SystemStatus returns the service status topic (online/offline, LWT).
//
// Topic: wizbind/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
