// Package server wires and runs the application's HTTP transport server.
//
// It provides orchestration for the HTTP server lifecycle, including
// startup, OS signal handling, and graceful shutdown.
package server
