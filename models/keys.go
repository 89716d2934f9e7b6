// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"crypto/rand"
	"fmt"
)

// keyLength is the size, in bytes, of every symmetric key in the system:
// MasterKey, ExportKey, and the server's AuthBox/SecretBox sealing key.
const keyLength = 32

// MasterKey is the 32-byte symmetric key that seals a user's PrivateData.
// It is generated at signup and replaced wholesale at rotation; it never
// leaves client memory in plaintext.
type MasterKey [keyLength]byte

// GenerateMasterKey draws a fresh MasterKey from the OS CSPRNG.
func GenerateMasterKey() (MasterKey, error) {
	var k MasterKey
	if _, err := rand.Read(k[:]); err != nil {
		return MasterKey{}, fmt.Errorf("generate master key: %w", err)
	}
	return k, nil
}

// Bytes returns the key as a plain byte slice.
func (k MasterKey) Bytes() []byte { return k[:] }

// ExportKey is the 32-byte secret the PAKE adapter derives from the user's
// password. It wraps (and is wrapped by) the MasterKey; it is never
// persisted server-side.
type ExportKey [keyLength]byte

// Bytes returns the key as a plain byte slice.
func (k ExportKey) Bytes() []byte { return k[:] }

// ExportKeyFromSlice builds an ExportKey from raw bytes, truncating or
// zero-padding at the end as needed so any PAKE implementation's native export-key
// length can be adapted to the fixed 32-byte convention used everywhere
// else in this package (spec: "export_key is truncated to 32 bytes").
func ExportKeyFromSlice(b []byte) ExportKey {
	var k ExportKey
	n := copy(k[:], b)
	_ = n
	return k
}

// UserID is the 32 random bytes that identify a user record server-side.
type UserID [keyLength]byte

// GenerateUserID draws a fresh UserID from the OS CSPRNG.
func GenerateUserID() (UserID, error) {
	var id UserID
	if _, err := rand.Read(id[:]); err != nil {
		return UserID{}, fmt.Errorf("generate user id: %w", err)
	}
	return id, nil
}

// Bytes returns the identifier as a plain byte slice, e.g. for use as a
// database key.
func (id UserID) Bytes() []byte { return id[:] }
