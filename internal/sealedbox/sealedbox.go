// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package sealedbox implements the two sealed-box flavors used to store and
// transmit secrets in this system: a plaintext-channel box (SecretBox) whose
// entire contents are confidential, and an associated-data box (AuthBox)
// that authenticates a public tag alongside an encrypted payload.
//
// Both are thin, generically-typed wrappers around a single AEAD primitive
// (XChaCha20-Poly1305) and a self-describing wire codec (msgpack). The type
// parameter is a compile-time witness of what is sealed inside: a
// SecretBox[MasterKey] and a SecretBox[PrivateData] share an implementation
// but can never be assigned to one another or to the wrong field.
package sealedbox

import (
	"crypto/rand"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length, in bytes, of every sealing key in this package.
const KeySize = chacha20poly1305.KeySize

// Key is the symmetric key used to seal and unseal boxes. Callers normally
// hold this as a models.MasterKey or models.ExportKey and convert it with
// Key(k); sealedbox does not know or care which.
type Key [KeySize]byte

// sealed is the wire representation shared by both box flavors: a random
// nonce and the AEAD ciphertext (which, for an AuthBox, also authenticates
// the associated data without encrypting it).
type sealed struct {
	Nonce      []byte `msgpack:"nonce"`
	Ciphertext []byte `msgpack:"ciphertext"`
}

func newAEAD(key Key) (chacha20poly1305.AEAD, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("sealedbox: build aead: %w", err)
	}
	return aead, nil
}

func seal(key Key, plaintext, associatedData []byte) (sealed, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return sealed{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return sealed{}, fmt.Errorf("sealedbox: draw nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, associatedData)
	return sealed{Nonce: nonce, Ciphertext: ct}, nil
}

func open(key Key, box sealed, associatedData []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, box.Nonce, box.Ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealBroken, err)
	}
	return pt, nil
}

// Unit is the empty plaintext channel used by an AuthBox: the box proves
// integrity of its associated data alone, with nothing confidential to say
// beyond that.
type Unit struct{}

// SealAuthOnly builds an AuthBox whose plaintext channel is empty and
// whose associated-data channel is ad — the shape the session token takes.
func SealAuthOnly[A any](key Key, ad A) (AuthBox[Unit, A], error) {
	return SealAuth[Unit, A](key, Unit{}, ad)
}

// SecretBox seals a value of type C entirely: nothing about it, not even its
// length in any meaningful sense, is readable without the key. Use this for
// anything that must stay fully confidential at rest (MasterKey, ExportKey,
// PrivateData).
type SecretBox[C any] struct {
	inner sealed
}

// Seal encrypts value under key and returns a new SecretBox holding it.
func Seal[C any](key Key, value C) (SecretBox[C], error) {
	plaintext, err := msgpack.Marshal(value)
	if err != nil {
		return SecretBox[C]{}, fmt.Errorf("sealedbox: encode plaintext: %w", err)
	}
	s, err := seal(key, plaintext, nil)
	if err != nil {
		return SecretBox[C]{}, err
	}
	return SecretBox[C]{inner: s}, nil
}

// Unseal decrypts the box and decodes its contents into a C. It returns
// ErrSealBroken if key is wrong or the ciphertext has been tampered with.
func (b SecretBox[C]) Unseal(key Key) (C, error) {
	var zero C
	plaintext, err := open(key, b.inner, nil)
	if err != nil {
		return zero, err
	}
	var value C
	if err := msgpack.Unmarshal(plaintext, &value); err != nil {
		return zero, fmt.Errorf("sealedbox: decode plaintext: %w", err)
	}
	return value, nil
}

// MarshalMsgpack implements msgpack.CustomEncoder so a SecretBox can be
// embedded directly in any struct that is itself msgpack-encoded (e.g. a
// UserRecord or an RPC payload).
func (b SecretBox[C]) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(b.inner)
}

// UnmarshalMsgpack implements msgpack.CustomDecoder.
func (b *SecretBox[C]) UnmarshalMsgpack(data []byte) error {
	return msgpack.Unmarshal(data, &b.inner)
}

// AuthBox seals a confidential payload of type C while additionally
// authenticating a public, unencrypted tag of type A. The tag travels in
// the clear and can be inspected without the key (GetUnverifiedAssociatedData);
// it is only proven genuine once the box is opened with the correct key
// (GetVerified), which re-checks the AEAD tag against both the ciphertext
// and the associated data together.
//
// This is used where a caller must route or branch on a public value (e.g.
// "which credential slot is this for") before it is able to open the
// corresponding secret.
type AuthBox[C, A any] struct {
	inner          sealed
	associatedData []byte
}

// SealAuth encrypts value and authenticates associatedData alongside it.
func SealAuth[C, A any](key Key, value C, associatedData A) (AuthBox[C, A], error) {
	plaintext, err := msgpack.Marshal(value)
	if err != nil {
		return AuthBox[C, A]{}, fmt.Errorf("sealedbox: encode plaintext: %w", err)
	}
	ad, err := msgpack.Marshal(associatedData)
	if err != nil {
		return AuthBox[C, A]{}, fmt.Errorf("sealedbox: encode associated data: %w", err)
	}
	s, err := seal(key, plaintext, ad)
	if err != nil {
		return AuthBox[C, A]{}, err
	}
	return AuthBox[C, A]{inner: s, associatedData: ad}, nil
}

// GetUnverifiedAssociatedData decodes and returns the public tag without
// checking the AEAD tag. Callers must treat the result as untrusted input
// until GetVerified has been called successfully with the matching key.
func (b AuthBox[C, A]) GetUnverifiedAssociatedData() (A, error) {
	var a A
	if err := msgpack.Unmarshal(b.associatedData, &a); err != nil {
		var zero A
		return zero, fmt.Errorf("sealedbox: decode associated data: %w", err)
	}
	return a, nil
}

// GetVerified decrypts the box under key, confirming that both the sealed
// value and the associated data are authentic and untampered, and returns
// the decoded value.
func (b AuthBox[C, A]) GetVerified(key Key) (C, error) {
	var zero C
	plaintext, err := open(key, b.inner, b.associatedData)
	if err != nil {
		return zero, err
	}
	var value C
	if err := msgpack.Unmarshal(plaintext, &value); err != nil {
		return zero, fmt.Errorf("sealedbox: decode plaintext: %w", err)
	}
	return value, nil
}

// GetVerifiedAssociatedData decrypts the box under key to confirm the
// associated data is authentic, then decodes and returns it. Use this
// (rather than GetVerified) when, as with a session token, the
// confidential channel C is Unit and the associated data A is the value
// actually being authenticated.
func (b AuthBox[C, A]) GetVerifiedAssociatedData(key Key) (A, error) {
	var zero A
	if _, err := open(key, b.inner, b.associatedData); err != nil {
		return zero, err
	}
	return b.GetUnverifiedAssociatedData()
}

// MarshalMsgpack implements msgpack.CustomEncoder.
func (b AuthBox[C, A]) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal(wireAuthBox{Inner: b.inner, AssociatedData: b.associatedData})
}

// UnmarshalMsgpack implements msgpack.CustomDecoder.
func (b *AuthBox[C, A]) UnmarshalMsgpack(data []byte) error {
	var w wireAuthBox
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return err
	}
	b.inner = w.Inner
	b.associatedData = w.AssociatedData
	return nil
}

type wireAuthBox struct {
	Inner          sealed `msgpack:"inner"`
	AssociatedData []byte `msgpack:"ad"`
}
