// Package http implements the HTTP transport layer of the application.
//
// The entire RPC surface is exposed through a single route, POST /api: the
// request body is an encoded envelope (see internal/rpc) and the response
// body is an encoded Result, always written with HTTP 200 regardless of
// whether the operation succeeded or failed at the application level.
// Cross-cutting concerns — panic recovery, request tracing, and access
// logging — are handled in this package before the body reaches the
// dispatcher.
package http
