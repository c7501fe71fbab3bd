// Package api provides the local HTTP REST API for the Smarteefi bridge.
//
// It exposes read access to the mirrored device registry, decoded entity
// state, and two operator actions: re-running device discovery and sending
// a command to an entity without going through MQTT. The surface is meant
// for diagnostics and automation scripts on the local network, not for
// exposure to the internet.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Mutating endpoints are protected by a static bearer token from the
// configuration. An empty token disables auth, intended for development
// only.
package api
