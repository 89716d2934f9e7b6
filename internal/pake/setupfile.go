// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package pake

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// NewSetup draws a fresh server Setup for a new deployment. It is the
// entry point the admin CLI uses, so that nothing outside this package
// needs to construct an *opaque.Configuration of its own; the keypair and
// OPRF seed it generates are valid for both credential slots, which differ
// only in key-stretching function (see configurationFor).
func NewSetup() (Setup, error) {
	return GenerateSetup(primaryConfiguration())
}

// SaveSetup persists setup to path as msgpack-encoded bytes, creating it if
// necessary and truncating any previous contents. The file is created with
// permissions readable only by its owner, since it is long-term secret
// material: ServerPrivateKey and OprfSeed both let a holder impersonate
// this server in every future OPAQUE exchange.
func SaveSetup(path string, setup Setup) error {
	data, err := msgpack.Marshal(setup)
	if err != nil {
		return fmt.Errorf("pake: encode setup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("pake: write setup file %q: %w", path, err)
	}
	return nil
}

// LoadSetup reads a Setup previously written by [SaveSetup] from path.
func LoadSetup(path string) (Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Setup{}, fmt.Errorf("pake: read setup file %q: %w", path, err)
	}
	var setup Setup
	if err := msgpack.Unmarshal(data, &setup); err != nil {
		return Setup{}, fmt.Errorf("pake: decode setup file %q: %w", path, err)
	}
	return setup, nil
}
