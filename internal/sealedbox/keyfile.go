// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sealedbox

import (
	"crypto/rand"
	"fmt"
	"os"
)

// GenerateKey draws a fresh random Key suitable for writing to disk via
// [SaveKey].
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("sealedbox: draw key: %w", err)
	}
	return k, nil
}

// SaveKey writes key's raw bytes to path, creating it if necessary and
// truncating any previous contents. The file is created with permissions
// readable only by its owner, since it is long-term secret material.
func SaveKey(path string, key Key) error {
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return fmt.Errorf("sealedbox: write key file %q: %w", path, err)
	}
	return nil
}

// LoadKey reads a Key previously written by [SaveKey] from path.
func LoadKey(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, fmt.Errorf("sealedbox: read key file %q: %w", path, err)
	}
	if len(data) != KeySize {
		return Key{}, fmt.Errorf("sealedbox: key file %q: want %d bytes, got %d", path, KeySize, len(data))
	}
	var k Key
	copy(k[:], data)
	return k, nil
}
