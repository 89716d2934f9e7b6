// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestErrorIsMatchesByKindOnly(t *testing.T) {
	a := New(KindUsernameConflict)
	b := New(KindUsernameConflict)
	assert.True(t, errors.Is(a, b))

	c := New(KindUsernameNotFound)
	assert.False(t, errors.Is(a, c))
}

func TestServerSideErrorMessageNotSerialized(t *testing.T) {
	e := NewServerSideError(errors.New("connection to postgres leaked credentials: foo"))

	encoded, err := msgpack.Marshal(e)
	require.NoError(t, err)

	var decoded Error
	require.NoError(t, msgpack.Unmarshal(encoded, &decoded))

	assert.Equal(t, KindServerSideError, decoded.Kind())
	assert.NotContains(t, decoded.Error(), "postgres")
	assert.True(t, errors.Is(&decoded, New(KindServerSideError)))
}

func TestClientSideErrorMessagePreservedLocally(t *testing.T) {
	e := NewClientSideError(errors.New("local keychain unavailable"))
	assert.Contains(t, e.Error(), "local keychain unavailable")
}
