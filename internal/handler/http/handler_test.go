package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/cachou/internal/logger"
	"github.com/MKhiriev/cachou/internal/rpc"
)

func TestNewHandlerStoresDependencies(t *testing.T) {
	dispatcher := rpc.NewDispatcher(nil)
	log := logger.Nop()

	h := NewHandler(dispatcher, log)

	require.NotNil(t, h)
	assert.Same(t, dispatcher, h.dispatcher)
	assert.Same(t, log, h.logger)
}
