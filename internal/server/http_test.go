package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MKhiriev/cachou/internal/config"
	"github.com/MKhiriev/cachou/internal/logger"
)

func TestNewHTTPServerAppliesConfig(t *testing.T) {
	cfg := config.Server{HTTPAddress: "127.0.0.1:0", RequestTimeout: 5 * time.Second}
	h := newHTTPServer(http.NewServeMux(), cfg, logger.Nop())

	assert.Equal(t, cfg.HTTPAddress, h.server.Addr)
	assert.Equal(t, cfg.RequestTimeout, h.server.ReadTimeout)
	assert.Equal(t, cfg.RequestTimeout, h.server.WriteTimeout)
}

func TestHTTPServerShutdownWithoutRunIsNoop(t *testing.T) {
	cfg := config.Server{HTTPAddress: "127.0.0.1:0"}
	h := newHTTPServer(http.NewServeMux(), cfg, logger.Nop())

	assert.NotPanics(t, h.Shutdown)
}
