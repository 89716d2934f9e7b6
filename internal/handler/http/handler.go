package http

import (
	"github.com/MKhiriev/cachou/internal/logger"
	"github.com/MKhiriev/cachou/internal/rpc"
)

// Handler is the root HTTP handler that wires together the route and
// middleware chain for the RPC API.
//
// It holds a reference to the request dispatcher and a structured logger
// so that the single route handler and every middleware can dispatch
// requests and emit consistent, context-enriched log entries.
//
// Handler is constructed once at application startup via [NewHandler] and
// its route is registered by [Handler.Init] in routes.go. It is not safe
// to copy a Handler after construction.
type Handler struct {
	// dispatcher decodes request envelopes, runs the registered handler for
	// their Kind inside a transaction, and produces the encoded Result the
	// route handler writes back to the caller.
	dispatcher *rpc.Dispatcher

	// logger is the structured logger used by the handler and all middleware
	// for request-scoped and diagnostic log output.
	logger *logger.Logger
}

// NewHandler constructs a [Handler] with the provided dispatcher and
// logger, and returns a pointer to the initialised instance.
//
// The logger is used immediately to emit a debug-level startup message and
// is stored for use by the route handler and middleware registered on this
// Handler.
//
// Parameters:
//   - dispatcher: the RPC dispatcher; must not be nil.
//   - logger: structured logger for request tracing and diagnostics; must not be nil.
func NewHandler(dispatcher *rpc.Dispatcher, logger *logger.Logger) *Handler {
	logger.Debug().Msg("http handler created")
	return &Handler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}
