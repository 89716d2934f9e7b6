// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package rpc

import "github.com/MKhiriev/cachou/models"

// Kind discriminates the ten request payloads that make up the closed RPC
// union. It is the only thing the client and server agree on before either
// side knows how to decode Payload.
type Kind string

const (
	KindAddUser             Kind = "add_user"
	KindNewCredentials      Kind = "new_credentials"
	KindUpdateCredentials   Kind = "update_credentials"
	KindLoginStart          Kind = "login_start"
	KindLoginFinish         Kind = "login_finish"
	KindGetUserPrivateData  Kind = "get_user_private_data"
	KindSetUserPrivateData  Kind = "set_user_private_data"
	KindGetExportKeys       Kind = "get_export_keys"
	KindRotateMasterKey     Kind = "rotate_master_key"
	KindSetTotp             Kind = "set_totp"
)

// Empty is the Ret type of operations that carry no response payload
// beyond success itself.
type Empty struct{}

// CredentialSubmission is the wire shape a client submits to register or
// replace one credential slot: the finalized PAKE registration, the
// username it is filed under, and the resulting MasterKey/ExportKey seals.
// It appears in both AddUserRequest (twice, primary and recovery) and
// UpdateCredentialsRequest (once, for whichever slot is being replaced).
type CredentialSubmission struct {
	SealedServerState []byte        `msgpack:"sealed_server_state"`
	OpaqueMsg         []byte        `msgpack:"opaque_msg"`
	Username          models.Username `msgpack:"username"`
	SealedMasterKey   []byte        `msgpack:"sealed_master_key"`
	SealedExportKey   []byte        `msgpack:"sealed_export_key"`
}

// AddUserRequest atomically creates a new account: both credential slots
// and the sealed private data are submitted together.
type AddUserRequest struct {
	Primary           CredentialSubmission `msgpack:"primary"`
	Recovery          CredentialSubmission `msgpack:"recovery"`
	SealedPrivateData []byte               `msgpack:"sealed_private_data"`
}

// AddUserRet carries the freshly minted, fully logged-in session token.
type AddUserRet struct {
	SealedSessionToken []byte `msgpack:"sealed_session_token"`
}

// NewCredentialsRequest starts server-side PAKE registration for a single
// credential slot. Recovery selects which of the two fixed PAKE
// identifiers (and, with it, which key-stretching function) governs this
// registration; it is echoed back inside SealedServerState, and AddUser and
// UpdateCredentials reject a CredentialSubmission whose sealed slot differs
// from the slot it is submitted for.
type NewCredentialsRequest struct {
	Recovery  bool   `msgpack:"recovery"`
	OpaqueMsg []byte `msgpack:"opaque_msg"`
}

// NewCredentialsRet carries the server's registration response message and
// its intermediate state, sealed so the server itself need not remember it
// between requests.
type NewCredentialsRet struct {
	SealedServerState []byte `msgpack:"sealed_server_state"`
	OpaqueMsg         []byte `msgpack:"opaque_msg"`
}

// UpdateCredentialsRequest replaces one credential slot on an existing
// account. It requires Uber clearance.
type UpdateCredentialsRequest struct {
	Recovery           bool                 `msgpack:"recovery"`
	Credentials        CredentialSubmission `msgpack:"credentials"`
	SealedSessionToken []byte               `msgpack:"sealed_session_token"`
}

// LoginStartRequest begins a PAKE login against one of the two credential
// slots.
type LoginStartRequest struct {
	Recovery  bool            `msgpack:"recovery"`
	Username  models.Username `msgpack:"username"`
	OpaqueMsg []byte          `msgpack:"opaque_msg"`
}

// LoginStartRet carries the server's login response message and its
// sealed intermediate state.
type LoginStartRet struct {
	SealedServerState []byte `msgpack:"sealed_server_state"`
	OpaqueMsg         []byte `msgpack:"opaque_msg"`
}

// LoginFinishRequest completes a login. UberClearance requests that the
// issued session token, if it reaches LoggedIn at all, start with uber
// elevation already granted.
type LoginFinishRequest struct {
	SealedServerState []byte `msgpack:"sealed_server_state"`
	OpaqueMsg         []byte `msgpack:"opaque_msg"`
	UberClearance     bool   `msgpack:"uber_clearance"`
}

// LoginFinishRet carries the issued session token and the sealed MasterKey
// of the slot the login ran against, which the client needs to unseal
// PrivateData.
type LoginFinishRet struct {
	SealedSessionToken []byte `msgpack:"sealed_session_token"`
	SealedMasterKey    []byte `msgpack:"sealed_master_key"`
}

// GetUserPrivateDataRequest fetches the account's sealed PrivateData. It
// requires LoggedIn clearance.
type GetUserPrivateDataRequest struct {
	SealedSessionToken []byte `msgpack:"sealed_session_token"`
}

// GetUserPrivateDataRet carries the sealed payload, opaque to the server.
type GetUserPrivateDataRet struct {
	SealedPrivateData []byte `msgpack:"sealed_private_data"`
}

// SetUserPrivateDataRequest replaces the account's sealed PrivateData. It
// requires LoggedIn clearance.
type SetUserPrivateDataRequest struct {
	SealedSessionToken []byte `msgpack:"sealed_session_token"`
	SealedPrivateData  []byte `msgpack:"sealed_private_data"`
}

// GetExportKeysRequest fetches both credential slots' sealed ExportKeys,
// the first step of master-key rotation. It requires Uber clearance.
type GetExportKeysRequest struct {
	SealedSessionToken []byte `msgpack:"sealed_session_token"`
}

// GetExportKeysRet carries both slots' sealed ExportKeys, each still
// sealed under the MasterKey that is about to be replaced.
type GetExportKeysRet struct {
	SealedExportKeyPrimary  []byte `msgpack:"sealed_export_key_primary"`
	SealedExportKeyRecovery []byte `msgpack:"sealed_export_key_recovery"`
}

// RotateMasterKeyRequest submits a fresh MasterKey, resealed into every
// field it touches, in one atomic call. It requires Uber clearance.
type RotateMasterKeyRequest struct {
	SealedSessionToken      []byte `msgpack:"sealed_session_token"`
	SealedMasterKeyPrimary  []byte `msgpack:"sealed_master_key_primary"`
	SealedMasterKeyRecovery []byte `msgpack:"sealed_master_key_recovery"`
	SealedExportKeyPrimary  []byte `msgpack:"sealed_export_key_primary"`
	SealedExportKeyRecovery []byte `msgpack:"sealed_export_key_recovery"`
	SealedPrivateData       []byte `msgpack:"sealed_private_data"`
}

// SetTotpRequest installs or removes TOTP second-factor enforcement on the
// account. A nil Totp removes it. It requires Uber clearance.
type SetTotpRequest struct {
	SealedSessionToken []byte                 `msgpack:"sealed_session_token"`
	Totp               *models.TotpDescriptor `msgpack:"totp"`
}
