package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
	"github.com/MKhiriev/cachou/internal/logger"
	"github.com/MKhiriev/cachou/internal/rpc"
	"github.com/MKhiriev/cachou/internal/store"
)

type fakeTx struct{}

func (fakeTx) Queries() store.UserStore        { return nil }
func (fakeTx) Commit(_ context.Context) error   { return nil }
func (fakeTx) Rollback(_ context.Context) error { return nil }

type fakeBeginner struct{}

func (fakeBeginner) BeginTx(_ context.Context) (store.Tx, error) { return fakeTx{}, nil }

type echoRet struct {
	Echo string `msgpack:"echo"`
}

const testKind rpc.Kind = "test_echo"

func newTestRouter() http.Handler {
	dispatcher := rpc.NewDispatcher(fakeBeginner{})
	rpc.RegisterHandler(dispatcher, testKind, func(_ context.Context, _ store.UserStore, req echoRet) (echoRet, *apierr.Error) {
		return req, nil
	})

	h := NewHandler(dispatcher, logger.Nop())
	return h.Init()
}

func buildEnvelope(t *testing.T, kind rpc.Kind, payload any) []byte {
	t.Helper()
	raw, err := msgpack.Marshal(payload)
	require.NoError(t, err)

	wire := struct {
		Kind    rpc.Kind           `msgpack:"kind"`
		Payload msgpack.RawMessage `msgpack:"payload"`
	}{Kind: kind, Payload: raw}

	body, err := msgpack.Marshal(wire)
	require.NoError(t, err)
	return body
}

func TestServeRPCReturnsHTTP200OnSuccess(t *testing.T) {
	router := newTestRouter()
	body := buildEnvelope(t, testKind, echoRet{Echo: "hi"})

	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentType, rr.Header().Get("Content-Type"))

	var result rpc.Result[echoRet]
	require.NoError(t, msgpack.Unmarshal(rr.Body.Bytes(), &result))
	require.Nil(t, result.Err)
	assert.Equal(t, "hi", result.Value.Echo)
}

func TestServeRPCReturnsHTTP200OnUnknownKind(t *testing.T) {
	router := newTestRouter()
	body := buildEnvelope(t, rpc.Kind("does_not_exist"), echoRet{})

	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var result rpc.Result[rpc.Empty]
	require.NoError(t, msgpack.Unmarshal(rr.Body.Bytes(), &result))
	require.NotNil(t, result.Err)
	assert.Equal(t, apierr.KindServerSideError, result.Err.Kind())
}

func TestUnregisteredMethodReturns404(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
