// Package influxdb provides an optional metrics sink for discovery and
// binding telemetry.
//
// When enabled in config, the binding core records discovery scan results,
// bulb validation outcomes, and binding lifecycle events as InfluxDB points.
// Writes are batched and non-blocking; a failed or disabled InfluxDB never
// affects the binding flow itself.
//
// # Usage
//
//	metrics, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    metrics = nil // run without telemetry
//	}
package influxdb
