package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteScanResult records the outcome of a discovery scan.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - broadcast: The broadcast target the scan probed
//   - found: Number of distinct devices that responded
//   - duration: How long the scan window ran
func (c *Client) WriteScanResult(broadcast string, found int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"discovery_scan",
		map[string]string{
			"broadcast": broadcast,
		},
		map[string]interface{}{
			"devices_found": found,
			"duration_ms":   duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteValidationResult records a validate-and-identify attempt against a bulb.
//
// Parameters:
//   - host: The target IP address
//   - outcome: "ok", "timeout", "cannot_connect", or "unknown"
//   - duration: Round-trip time of the attempt
func (c *Client) WriteValidationResult(host, outcome string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"bulb_validation",
		map[string]string{
			"outcome": outcome,
		},
		map[string]interface{}{
			"host":        host,
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBindingEvent records a binding flow outcome (commit, re-bind, abort).
//
// Parameters:
//   - event: "committed", "rebound", or "aborted"
//   - trigger: "user", "scan", "hint", or "rediscovery"
func (c *Client) WriteBindingEvent(event, trigger string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"binding_event",
		map[string]string{
			"event":   event,
			"trigger": trigger,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
