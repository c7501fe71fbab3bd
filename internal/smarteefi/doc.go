// Package smarteefi implements the Smarteefi cloud protocol.
//
// This package contains:
//   - The HTTP client for the vendor's Home Assistant API surface
//     (token validation, device enumeration, status reads, commands)
//   - The device model and serial:module:smap identifier parsing
//   - Status bitmask encoding/decoding for each entity kind
//   - A UDP listener for push status datagrams from local controllers
//
// # Status bitmasks
//
// The cloud reports one status word per device. Its interpretation depends
// on the entity kind:
//
//   - Switch: on when status is non-zero and shares a bit with the switch map
//   - Fan: bits 0x10/0x20/0x40 encode speeds 1-4 (0x30 is speed 3)
//   - Light: RGB packed in the top three bytes, brightness is max(R,G,B)
//   - Cover: open when status equals the switch map, closed otherwise
//
// Commands write the same bit layout back, so a command followed by a status
// read round-trips to the state that was set.
//
// # Error Handling
//
// Authentication failures are reported as ErrAuthFailed so callers can
// distinguish a revoked token (requires operator action) from transient
// network problems (retry with backoff).
package smarteefi
