// Package mqtt provides MQTT broker connectivity for the WiZ binding core.
//
// The binding core uses MQTT for two things:
//
//   - Ingesting passive discovery hints: a DHCP snooper or another
//     integration publishes {"ip_address", "mac_address"} JSON to
//     wizbind/discovery/hint, which starts a non-interactive binding flow.
//   - Publishing binding lifecycle events (entry committed, flow aborted,
//     scan completed) to wizbind/binding/event.
//
// The package wraps eclipse/paho.mqtt.golang with connection management,
// automatic reconnection with exponential backoff, subscription restoration,
// Last Will and Testament for offline detection, and panic-safe handlers.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.DiscoveryHint(), 1, hintHandler)
package mqtt
