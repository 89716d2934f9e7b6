// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "github.com/MKhiriev/cachou/internal/sealedbox"

// UserRecord is the full server-side row for one account. It is the unit of
// persistence in internal/store and the unit of transactional update in
// internal/authserver: every handler that mutates a UserRecord reads it,
// changes exactly the fields its operation owns, bumps Version, and writes
// the whole thing back inside one DB transaction.
type UserRecord struct {
	// UserID is drawn once at signup and never changes.
	UserID UserID `msgpack:"user_id"`

	// Version increases by exactly one on every credential, master-key, or
	// TOTP change. A SessionToken carries the Version it was issued under;
	// any handler that requires LoggedIn or Uber clearance rejects a token
	// whose Version no longer matches the record's, forcing re-login after
	// a credential change invalidates outstanding sessions.
	Version uint64 `msgpack:"version"`

	// SecretPrivateData seals the account's PrivateData under the
	// MasterKey. Server handlers never unseal it; they only store and
	// return it verbatim.
	SecretPrivateData sealedbox.SecretBox[PrivateData] `msgpack:"secret_private_data"`

	// Primary is the user-chosen username/password credential slot.
	Primary Credentials `msgpack:"primary"`

	// Recovery is the random recovery-key credential slot, always present.
	Recovery Credentials `msgpack:"recovery"`

	// Totp, when non-nil, makes LoginFinish issue a NeedSecondFactor token
	// instead of a LoggedIn one. No operation accepts a one-time code, so
	// such a token does not reach LoggedIn clearance.
	Totp *TotpDescriptor `msgpack:"totp"`
}
