// Package handler provides initialization logic for the inbound HTTP
// transport adapter. The package exposes a Handlers struct bundling the
// transport handler so it can be started uniformly by the application's
// main entrypoint.
package handler

import (
	"github.com/MKhiriev/cachou/internal/config"
	"github.com/MKhiriev/cachou/internal/handler/http"
	"github.com/MKhiriev/cachou/internal/logger"
	"github.com/MKhiriev/cachou/internal/rpc"
)

// Handlers groups all initialized inbound transport handlers. The main
// application uses this structure to start the appropriate servers based
// on configuration.
type Handlers struct {
	// HTTP contains the initialized HTTP handler if HTTP is enabled in the
	// configuration. If HTTP is disabled, this field remains nil.
	HTTP *http.Handler
}

// NewHandlers constructs the Handlers bundle from the provided dispatcher,
// server configuration, and logger.
//
// If cfg.HTTPAddress is empty, no transport can be served and NewHandlers
// returns errNoHandlersAreCreated so the application fails fast rather than
// starting with nothing listening.
func NewHandlers(dispatcher *rpc.Dispatcher, cfg config.Server, logger *logger.Logger) (*Handlers, error) {
	logger.Info().Msg("creating new handlers...")

	handlers := &Handlers{}

	if cfg.HTTPAddress != "" {
		handlers.HTTP = http.NewHandler(dispatcher, logger)
	}

	if handlers.HTTP == nil {
		return nil, errNoHandlersAreCreated
	}

	return handlers, nil
}
