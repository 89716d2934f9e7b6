// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import "github.com/MKhiriev/cachou/internal/sealedbox"

// Credentials is the server-side record backing one password slot — either
// a user's primary password or their recovery key. The two slots share this
// exact shape; what distinguishes them is only which PAKE server identifier
// registered OpaquePassword (see internal/pake).
type Credentials struct {
	// Username identifies this credential slot. For the primary slot it is
	// chosen by the account holder; for the recovery slot it is derived
	// deterministically from the recovery password itself.
	Username Username `msgpack:"username"`

	// OpaquePassword is the PAKE registration record produced by
	// RegistrationFinish. It is opaque to everything except internal/pake.
	OpaquePassword []byte `msgpack:"opaque_password"`

	// SecretMasterKey seals the account's MasterKey under the ExportKey
	// this same password derives. Every successful login recovers the
	// MasterKey by unsealing this box with the freshly-derived ExportKey.
	SecretMasterKey sealedbox.SecretBox[MasterKey] `msgpack:"secret_master_key"`

	// SecretExportKey seals this slot's own ExportKey under the
	// MasterKey. It exists solely so master-key rotation can re-seal both
	// credential slots without asking the user to re-authenticate: the
	// rotating client already holds the MasterKey, unseals each
	// SecretExportKey in turn, and reseals a fresh MasterKey under each.
	SecretExportKey sealedbox.SecretBox[ExportKey] `msgpack:"secret_export_key"`
}
