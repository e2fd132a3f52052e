// Package wizlan implements the local UDP protocol spoken by WiZ smart
// bulbs. Bulbs listen on UDP port 38899 and exchange single-datagram
// JSON messages: a request carries a method name and parameters, the
// reply carries either a result object or an error.
//
// The package provides two entry points:
//
//   - Client dials a single bulb by address and queries its system and
//     model configuration (MAC address, module name, firmware).
//   - Scanner broadcasts a registration probe on the local network and
//     collects the bulbs that answer within a bounded window.
//
// Both are pure transport: they never touch persistent state.
package wizlan
