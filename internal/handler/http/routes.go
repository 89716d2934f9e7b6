package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// contentType is the media type of both the request and response body on
// the /api route: a msgpack-encoded envelope in, a msgpack-encoded Result
// out.
const contentType = "application/msgpack"

// Init constructs and returns a fully configured [chi.Mux] router that
// serves the application's single RPC endpoint.
//
// # Global middleware
//
// Every request passes through the following middleware chain in order:
//   - [middleware.Recoverer] — catches panics in handlers, logs the stack
//     trace, and returns HTTP 500 to the client so the server stays alive.
//   - [Handler.withTraceID] — resolves or generates a trace ID and stores
//     an enriched logger in the request context for structured tracing.
//   - withLogging — emits a structured access-log entry (URI, method,
//     status, duration, response size) after each request completes.
//
// # Routes
//
//	POST /api — the RPC endpoint. The request body is an envelope (see
//	internal/rpc); the response body is an encoded Result. The response is
//	always written with HTTP 200, since every application-level outcome —
//	success or failure — is encoded inside the Result body, not the HTTP
//	status line.
//
// # Method-not-allowed behaviour
//
// [CheckHTTPMethod] is registered as the MethodNotAllowed handler. It
// overrides chi's default HTTP 405 response and returns HTTP 404 instead,
// preventing callers from discovering which HTTP methods are supported on
// a given route through error-code enumeration.
func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer, h.withTraceID, withLogging)

	router.Post("/api", h.serveRPC)

	// Replace chi's default 405 Method Not Allowed with 404 Not Found so that
	// callers cannot enumerate supported HTTP methods through error codes.
	router.MethodNotAllowed(CheckHTTPMethod(router))

	return router
}

// serveRPC reads the request body, hands it to the dispatcher, and writes
// the resulting Result bytes back to the caller with HTTP 200.
//
// A body the dispatcher cannot even decode still reaches this path: decode
// failures are reported inside the Result, not via an HTTP error status,
// per the package doc.
func (h *Handler) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out := h.dispatcher.Dispatch(r.Context(), body)

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
