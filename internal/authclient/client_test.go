// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package authclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/sealedbox"
	"github.com/MKhiriev/cachou/models"
)

// This file exercises only the pieces of authclient that do not require a
// live bytemare/opaque exchange with a server: local state transitions,
// the recovery-username derivation, and the session-token sealed-box
// round trip. The PAKE-dependent operations (Signup, Login, credential and
// master-key rotation) require a real server-side counterpart to drive
// end to end and are not exercised by these unit tests.

func TestTakeLoggedInZeroesAndReturnsPrevious(t *testing.T) {
	c := &Client{User: UserLoggedIn{MasterKey: models.MasterKey{1, 2, 3}}}

	prev, ok := c.TakeLoggedIn()
	require.True(t, ok)
	assert.Equal(t, models.MasterKey{1, 2, 3}, prev.MasterKey)
	assert.Equal(t, UserNone{}, c.User)

	_, ok = c.TakeLoggedIn()
	assert.False(t, ok)
}

func TestDeriveRecoveryUsernameIsDeterministic(t *testing.T) {
	password := []byte("0123456789abcdef")
	u1 := deriveRecoveryUsername(password)
	u2 := deriveRecoveryUsername(password)
	assert.True(t, u1.Equal(u2))
	assert.Len(t, u1, 16)

	other := deriveRecoveryUsername([]byte("fedcba9876543210"))
	assert.False(t, u1.Equal(other))
}

func TestDecodeTokenReadsUnverifiedClearance(t *testing.T) {
	var key sealedbox.Key
	for i := range key {
		key[i] = byte(i + 1)
	}
	token := models.SessionToken{
		UserID:  models.UserID{9},
		Version: 7,
		State:   models.NewStateLoggedIn(1000, true, false),
	}
	box, err := sealedbox.SealAuthOnly(key, token)
	require.NoError(t, err)
	data, err := msgpack.Marshal(box)
	require.NoError(t, err)

	decoded, err := decodeToken(data)
	require.NoError(t, err)
	assert.Equal(t, token.UserID, decoded.UserID)
	assert.Equal(t, uint64(7), decoded.Version)
}

func TestSetUserPrivateDataRequiresLoggedIn(t *testing.T) {
	c := &Client{User: UserNone{}}
	apiErr := c.SetUserPrivateData(nil, models.PrivateData{})
	require.NotNil(t, apiErr)
}

func TestSetTotpRequiresLoggedIn(t *testing.T) {
	c := &Client{User: UserNone{}}
	apiErr := c.SetTotp(nil, nil)
	require.NotNil(t, apiErr)
}

func TestLogoutResetsState(t *testing.T) {
	c := &Client{User: UserLoggedIn{}}
	c.Logout()
	assert.Equal(t, UserNone{}, c.User)
}
