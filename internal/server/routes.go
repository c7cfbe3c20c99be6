// Package server wires HTTP handlers into a ServeMux for the chat relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket endpoint, and the test page.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub))
	mux.HandleFunc("/test", NewTestPageHandler(hub.log))
	return mux
}
