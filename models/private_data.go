// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// PrivateData is the user's cleartext private payload. At minimum it holds
// an Ed25519 signing key; it is sealed with the MasterKey and never
// persisted or transmitted in plaintext.
//
// PrivateData is deliberately a plain struct (not a generic/phantom type):
// it is always the C (confidentiality) channel of exactly one sealed box,
// sealedbox.SecretBox[PrivateData], so no type-witness confusion is
// possible at its own call sites.
type PrivateData struct {
	// IdentityPublicKey is the public half of the user's Ed25519 signing
	// key pair.
	IdentityPublicKey ed25519.PublicKey `msgpack:"identity_public_key"`
	// IdentityPrivateKey is the private half. It never leaves the client.
	IdentityPrivateKey ed25519.PrivateKey `msgpack:"identity_private_key"`
}

// GeneratePrivateData creates a fresh PrivateData record with a new Ed25519
// signing key pair. Called once per signup.
func GeneratePrivateData() (PrivateData, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PrivateData{}, fmt.Errorf("generate identity keypair: %w", err)
	}
	return PrivateData{IdentityPublicKey: pub, IdentityPrivateKey: priv}, nil
}
