// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
	"github.com/MKhiriev/cachou/internal/store"
)

type fakeTx struct {
	committed bool
	rolledBack bool
}

func (t *fakeTx) Queries() store.UserStore { return nil }
func (t *fakeTx) Commit(ctx context.Context) error { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeBeginner struct {
	lastTx *fakeTx
}

func (b *fakeBeginner) BeginTx(ctx context.Context) (store.Tx, error) {
	b.lastTx = &fakeTx{}
	return b.lastTx, nil
}

type greetRequest struct {
	Name string `msgpack:"name"`
}
type greetRet struct {
	Greeting string `msgpack:"greeting"`
}

func TestDispatcherCommitsOnSuccess(t *testing.T) {
	beginner := &fakeBeginner{}
	d := NewDispatcher(beginner)
	RegisterHandler(d, Kind("greet"), func(ctx context.Context, q store.UserStore, req greetRequest) (greetRet, *apierr.Error) {
		return greetRet{Greeting: "hello " + req.Name}, nil
	})

	body, err := encodeRequest(Kind("greet"), greetRequest{Name: "alice"})
	require.NoError(t, err)

	out := d.Dispatch(context.Background(), body)

	var result Result[greetRet]
	require.NoError(t, msgpack.Unmarshal(out, &result))
	assert.Nil(t, result.Err)
	assert.Equal(t, "hello alice", result.Value.Greeting)
	assert.True(t, beginner.lastTx.committed)
	assert.False(t, beginner.lastTx.rolledBack)
}

func TestDispatcherRollsBackOnError(t *testing.T) {
	beginner := &fakeBeginner{}
	d := NewDispatcher(beginner)
	RegisterHandler(d, Kind("greet"), func(ctx context.Context, q store.UserStore, req greetRequest) (greetRet, *apierr.Error) {
		return greetRet{}, apierr.New(apierr.KindUsernameConflict)
	})

	body, err := encodeRequest(Kind("greet"), greetRequest{Name: "alice"})
	require.NoError(t, err)

	out := d.Dispatch(context.Background(), body)

	var result Result[greetRet]
	require.NoError(t, msgpack.Unmarshal(out, &result))
	require.NotNil(t, result.Err)
	assert.Equal(t, apierr.KindUsernameConflict, result.Err.Kind())
	assert.True(t, beginner.lastTx.rolledBack)
	assert.False(t, beginner.lastTx.committed)
}

func TestDispatcherUnknownKind(t *testing.T) {
	d := NewDispatcher(&fakeBeginner{})

	body, err := encodeRequest(Kind("nonexistent"), greetRequest{Name: "x"})
	require.NoError(t, err)

	out := d.Dispatch(context.Background(), body)

	var result Result[Empty]
	require.NoError(t, msgpack.Unmarshal(out, &result))
	require.NotNil(t, result.Err)
	assert.Equal(t, apierr.KindServerSideError, result.Err.Kind())
}
