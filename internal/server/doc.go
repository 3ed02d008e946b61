// Package server implements the core of the Nexus Relay chat service.
//
// The implementation is organized into specialized files for the registry,
// broadcast bus, session handling, TCP relay, configuration, and the
// WebSocket bridge to keep the codebase maintainable and testable as the
// project grows.
package server
