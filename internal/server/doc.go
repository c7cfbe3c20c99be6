// Package server implements the chat relay core: the session registry,
// presence broadcaster, message router, and the WebSocket connection gateway
// that drives them.
//
// The implementation is organized into specialized files, one per concern:
// configuration, origin policy, the wire protocol, session state, presence,
// routing, the hub run loop, client pumps, and HTTP plumbing.
package server
