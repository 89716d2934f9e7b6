// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "bytes"

// Username is an opaque account identifier. It is a distinct nominal type
// rather than a bare []byte so that a Username can never be passed where a
// MasterKey, ExportKey, or other byte handle is expected — the compiler
// catches the mix-up instead of a reviewer.
//
// Equality is byte-exact; Username carries no normalization (case folding,
// trimming, …) of its own.
type Username []byte

// Equal reports whether u and other hold identical bytes.
func (u Username) Equal(other Username) bool {
	return bytes.Equal(u, other)
}

// String returns the username decoded as UTF-8 text for logging and display.
// It implements fmt.Stringer.
func (u Username) String() string {
	return string(u)
}
