// Package server wires HTTP handlers into a ServeMux for the relay's
// WebSocket bridge via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all bridge routes:
// health check, WebSocket endpoint, and test page.
func (b *Bridge) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", b.HealthHandler)
	mux.HandleFunc("/ws", b.WebSocketHandler)
	mux.HandleFunc("/test", b.TestPageHandler)
	return mux
}
