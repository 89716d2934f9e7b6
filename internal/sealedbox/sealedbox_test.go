// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sealedbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) Key {
	t.Helper()
	var k Key
	for i := range k {
		k[i] = byte(i + 1)
	}
	return k
}

func TestSecretBoxRoundTrip(t *testing.T) {
	key := randomKey(t)

	box, err := Seal(key, "sekrit payload")
	require.NoError(t, err)

	got, err := box.Unseal(key)
	require.NoError(t, err)
	assert.Equal(t, "sekrit payload", got)
}

func TestSecretBoxWrongKeyFails(t *testing.T) {
	key := randomKey(t)
	var other Key
	other[0] = 0xFF

	box, err := Seal(key, 42)
	require.NoError(t, err)

	_, err = box.Unseal(other)
	assert.ErrorIs(t, err, ErrSealBroken)
}

func TestSecretBoxWireRoundTrip(t *testing.T) {
	key := randomKey(t)
	box, err := Seal(key, []byte("hello"))
	require.NoError(t, err)

	encoded, err := box.MarshalMsgpack()
	require.NoError(t, err)

	var decoded SecretBox[[]byte]
	require.NoError(t, decoded.UnmarshalMsgpack(encoded))

	got, err := decoded.Unseal(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestAuthBoxVerifiesAssociatedData(t *testing.T) {
	key := randomKey(t)

	box, err := SealAuth[string, int](key, "confidential", 7)
	require.NoError(t, err)

	ad, err := box.GetUnverifiedAssociatedData()
	require.NoError(t, err)
	assert.Equal(t, 7, ad)

	value, err := box.GetVerified(key)
	require.NoError(t, err)
	assert.Equal(t, "confidential", value)
}

func TestAuthBoxTamperedAssociatedDataFailsVerification(t *testing.T) {
	key := randomKey(t)

	box, err := SealAuth[string, int](key, "confidential", 7)
	require.NoError(t, err)

	encoded, err := box.MarshalMsgpack()
	require.NoError(t, err)

	var decoded AuthBox[string, int]
	require.NoError(t, decoded.UnmarshalMsgpack(encoded))
	decoded.associatedData = []byte{0x01}

	_, err = decoded.GetVerified(key)
	assert.ErrorIs(t, err, ErrSealBroken)
}
