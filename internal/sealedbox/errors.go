// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package sealedbox

import "errors"

// ErrSealBroken is returned by Unseal/GetVerified when the AEAD tag does not
// verify: wrong key, corrupted ciphertext, or tampered associated data.
var ErrSealBroken = errors.New("sealedbox: seal verification failed")
