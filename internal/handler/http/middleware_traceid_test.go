package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/cachou/internal/logger"
)

func newTestHandler() *Handler {
	return &Handler{logger: logger.Nop()}
}

func executeWithTraceID(h *Handler, incoming string) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw := h.withTraceID(next)
	req := httptest.NewRequest(http.MethodPost, "/api", nil)
	if incoming != "" {
		req.Header.Set(traceIDHeader, incoming)
	}

	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)
	return rr
}

func TestWithTraceIDReusesIncomingHeader(t *testing.T) {
	h := newTestHandler()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := h.withTraceID(next)

	req := httptest.NewRequest(http.MethodPost, "/api", nil)
	req.Header.Set(traceIDHeader, "caller-supplied-id")

	rr := httptest.NewRecorder()
	mw.ServeHTTP(rr, req)

	assert.Equal(t, "caller-supplied-id", rr.Header().Get(traceIDHeader))
}

func TestWithTraceIDGeneratesUUIDWhenAbsent(t *testing.T) {
	h := newTestHandler()
	rr := executeWithTraceID(h, "")

	got := rr.Header().Get(traceIDHeader)
	require.NotEmpty(t, got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}
