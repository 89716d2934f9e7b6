// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package authserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
	"github.com/MKhiriev/cachou/internal/pake"
	"github.com/MKhiriev/cachou/internal/rpc"
	"github.com/MKhiriev/cachou/internal/sealedbox"
	"github.com/MKhiriev/cachou/internal/session"
	"github.com/MKhiriev/cachou/internal/store"
	"github.com/MKhiriev/cachou/internal/totp"
	"github.com/MKhiriev/cachou/models"
)

// validateTotp is SetTotp's only use of internal/totp: it confirms a new
// descriptor is well-formed by requiring its URI form round-trips. There
// is deliberately no RPC operation that verifies a login-time code against
// an installed descriptor — NeedSecondFactor is a terminal clearance in
// this system, matching the upstream client/server pair this was adapted
// from, which never calls its own totp verification helper either.
func validateTotp(d *models.TotpDescriptor) error {
	if d == nil {
		return nil
	}
	switch d.Digits {
	case 6, 8:
	default:
		return fmt.Errorf("authserver: totp digits must be 6 or 8")
	}
	switch d.Algo {
	case models.TotpAlgoSHA1, models.TotpAlgoSHA256, models.TotpAlgoSHA512:
	default:
		return fmt.Errorf("authserver: unsupported totp algorithm %q", d.Algo)
	}
	if _, err := totp.ParseURI(totp.BuildURI(*d)); err != nil {
		return fmt.Errorf("authserver: totp descriptor does not round-trip: %w", err)
	}
	return nil
}

func identifierFor(recovery bool) pake.Identifier {
	if recovery {
		return pake.IdentifierRecovery
	}
	return pake.IdentifierPrimary
}

func serverErr(err error) *apierr.Error { return apierr.NewServerSideError(err) }

func decodeSecretBox[C any](data []byte, box *sealedbox.SecretBox[C]) error {
	if err := msgpack.Unmarshal(data, box); err != nil {
		return fmt.Errorf("authserver: decode sealed value: %w", err)
	}
	return nil
}

func encodeSecretBox[C any](box sealedbox.SecretBox[C]) ([]byte, error) {
	data, err := msgpack.Marshal(box)
	if err != nil {
		return nil, fmt.Errorf("authserver: encode sealed value: %w", err)
	}
	return data, nil
}

// NewCredentials begins server-side PAKE registration for one credential
// slot. It requires no session token: it is used both at signup, before
// any account exists, and before UpdateCredentials against an
// already-authenticated account, which carries its own token on a
// separate request.
func (s *State) NewCredentials(ctx context.Context, _ store.UserStore, req rpc.NewCredentialsRequest) (rpc.NewCredentialsRet, *apierr.Error) {
	id := identifierFor(req.Recovery)
	msg, err := pake.ServerRegistrationStart(id, s.PakeSetup, req.OpaqueMsg, []byte("registration"))
	if err != nil {
		return rpc.NewCredentialsRet{}, serverErr(fmt.Errorf("authserver: registration start: %w", err))
	}
	sealedState, err := s.sealRegistrationState(req.Recovery)
	if err != nil {
		return rpc.NewCredentialsRet{}, serverErr(err)
	}
	return rpc.NewCredentialsRet{SealedServerState: sealedState, OpaqueMsg: msg}, nil
}

// finishCredentialSubmission validates and finalizes one CredentialSubmission
// into a models.Credentials record, rejecting it if its sealed server
// state does not agree with recovery.
func (s *State) finishCredentialSubmission(sub rpc.CredentialSubmission, recovery bool) (models.Credentials, *apierr.Error) {
	marker, err := s.unsealRegistrationState(sub.SealedServerState)
	if err != nil {
		return models.Credentials{}, serverErr(err)
	}
	if marker.SlotIsRecovery != recovery {
		return models.Credentials{}, serverErr(errors.New("authserver: registration state slot mismatch"))
	}

	record, err := pake.ServerRegistrationFinish(identifierFor(recovery), sub.OpaqueMsg)
	if err != nil {
		return models.Credentials{}, serverErr(fmt.Errorf("authserver: registration finish: %w", err))
	}

	var masterKeyBox sealedbox.SecretBox[models.MasterKey]
	if err := decodeSecretBox(sub.SealedMasterKey, &masterKeyBox); err != nil {
		return models.Credentials{}, serverErr(err)
	}
	var exportKeyBox sealedbox.SecretBox[models.ExportKey]
	if err := decodeSecretBox(sub.SealedExportKey, &exportKeyBox); err != nil {
		return models.Credentials{}, serverErr(err)
	}

	return models.Credentials{
		Username:        sub.Username,
		OpaquePassword:  record,
		SecretMasterKey: masterKeyBox,
		SecretExportKey: exportKeyBox,
	}, nil
}

// AddUser atomically creates a new account from two finished PAKE
// registrations and the sealed private data, enforcing username
// uniqueness across both slots, and returns a freshly minted, fully
// logged-in session token.
func (s *State) AddUser(ctx context.Context, q store.UserStore, req rpc.AddUserRequest) (rpc.AddUserRet, *apierr.Error) {
	primary, apiErr := s.finishCredentialSubmission(req.Primary, false)
	if apiErr != nil {
		return rpc.AddUserRet{}, apiErr
	}
	recovery, apiErr := s.finishCredentialSubmission(req.Recovery, true)
	if apiErr != nil {
		return rpc.AddUserRet{}, apiErr
	}

	userID, err := models.GenerateUserID()
	if err != nil {
		return rpc.AddUserRet{}, serverErr(err)
	}

	var privateData sealedbox.SecretBox[models.PrivateData]
	if err := decodeSecretBox(req.SealedPrivateData, &privateData); err != nil {
		return rpc.AddUserRet{}, serverErr(err)
	}

	record := models.UserRecord{
		UserID:            userID,
		Version:           0,
		SecretPrivateData: privateData,
		Primary:           primary,
		Recovery:          recovery,
	}

	if err := q.Insert(ctx, record); err != nil {
		if errors.Is(err, store.ErrUsernameConflict) {
			return rpc.AddUserRet{}, apierr.New(apierr.KindUsernameConflict)
		}
		return rpc.AddUserRet{}, serverErr(fmt.Errorf("authserver: insert user: %w", err))
	}

	token := models.SessionToken{
		UserID:  userID,
		Version: record.Version,
		State:   models.NewStateLoggedIn(s.now().Unix(), true, false),
	}
	sealedToken, err := s.sealSessionToken(token)
	if err != nil {
		return rpc.AddUserRet{}, serverErr(err)
	}
	return rpc.AddUserRet{SealedSessionToken: sealedToken}, nil
}

// UpdateCredentials replaces one credential slot on an already-registered
// account. It requires Uber clearance and bumps the record's Version,
// which invalidates every other outstanding session token for this
// account.
func (s *State) UpdateCredentials(ctx context.Context, q store.UserStore, req rpc.UpdateCredentialsRequest) (rpc.Empty, *apierr.Error) {
	token, apiErr := s.unsealSessionToken(req.SealedSessionToken, session.ClearanceUber)
	if apiErr != nil {
		return rpc.Empty{}, apiErr
	}

	record, err := q.GetByUserID(ctx, token.UserID)
	if err != nil {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if record.Version != token.Version {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}

	creds, apiErr := s.finishCredentialSubmission(req.Credentials, req.Recovery)
	if apiErr != nil {
		return rpc.Empty{}, apiErr
	}
	if req.Recovery {
		record.Recovery = creds
	} else {
		record.Primary = creds
	}
	record.Version++

	if err := q.Update(ctx, record, token.Version); err != nil {
		if errors.Is(err, store.ErrUsernameConflict) {
			return rpc.Empty{}, apierr.New(apierr.KindUsernameConflict)
		}
		if errors.Is(err, store.ErrVersionConflict) {
			return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
		}
		return rpc.Empty{}, serverErr(fmt.Errorf("authserver: update credentials: %w", err))
	}
	return rpc.Empty{}, nil
}

// LoginStart begins a PAKE login against one credential slot. The
// account's opaque_password record for that slot is looked up by
// username; an unknown username is reported as KindUsernameNotFound
// rather than silently failing the PAKE exchange, matching this system's
// choice not to hide account existence from login attempts.
func (s *State) LoginStart(ctx context.Context, q store.UserStore, req rpc.LoginStartRequest) (rpc.LoginStartRet, *apierr.Error) {
	record, err := q.GetByUsername(ctx, req.Recovery, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return rpc.LoginStartRet{}, apierr.New(apierr.KindUsernameNotFound)
		}
		return rpc.LoginStartRet{}, serverErr(fmt.Errorf("authserver: lookup user: %w", err))
	}

	creds := record.Primary
	if req.Recovery {
		creds = record.Recovery
	}

	pakeState, msg, err := pake.ServerLoginStart(identifierFor(req.Recovery), s.PakeSetup, creds.OpaquePassword, req.OpaqueMsg, []byte(req.Username))
	if err != nil {
		return rpc.LoginStartRet{}, serverErr(fmt.Errorf("authserver: login start: %w", err))
	}

	sealedState, err := s.sealLoginState(req.Recovery, req.Username, pakeState)
	if err != nil {
		return rpc.LoginStartRet{}, serverErr(err)
	}
	return rpc.LoginStartRet{SealedServerState: sealedState, OpaqueMsg: msg}, nil
}

// LoginFinish completes a login started by LoginStart. On success it
// issues a session token: LoggedIn directly if the account has no TOTP
// configured, NeedSecondFactor otherwise, and the account's sealed
// MasterKey so the client can unseal PrivateData once it has recovered
// a decrypting ExportKey from this same slot's submitted password.
func (s *State) LoginFinish(ctx context.Context, q store.UserStore, req rpc.LoginFinishRequest) (rpc.LoginFinishRet, *apierr.Error) {
	login, err := s.unsealLoginState(req.SealedServerState)
	if err != nil {
		return rpc.LoginFinishRet{}, serverErr(err)
	}

	if err := pake.ServerLoginFinish(login.Pake, req.OpaqueMsg); err != nil {
		if errors.Is(err, pake.ErrInvalidPassword) {
			return rpc.LoginFinishRet{}, apierr.New(apierr.KindInvalidPassword)
		}
		return rpc.LoginFinishRet{}, serverErr(fmt.Errorf("authserver: login finish: %w", err))
	}

	record, err := q.GetByUsername(ctx, login.Recovery, login.Username)
	if err != nil {
		return rpc.LoginFinishRet{}, serverErr(fmt.Errorf("authserver: lookup user after login: %w", err))
	}

	creds := record.Primary
	if login.Recovery {
		creds = record.Recovery
	}

	now := s.now().Unix()
	var token models.SessionToken
	if record.Totp != nil {
		token = models.SessionToken{UserID: record.UserID, Version: record.Version, State: models.NewStateNeedSecondFactor(now)}
	} else {
		token = models.SessionToken{UserID: record.UserID, Version: record.Version, State: models.NewStateLoggedIn(now, true, req.UberClearance)}
	}

	sealedToken, err := s.sealSessionToken(token)
	if err != nil {
		return rpc.LoginFinishRet{}, serverErr(err)
	}

	sealedMasterKey, err := encodeSecretBox(creds.SecretMasterKey)
	if err != nil {
		return rpc.LoginFinishRet{}, serverErr(err)
	}

	return rpc.LoginFinishRet{SealedSessionToken: sealedToken, SealedMasterKey: sealedMasterKey}, nil
}


// GetUserPrivateData returns the account's sealed PrivateData verbatim.
// It requires LoggedIn clearance.
func (s *State) GetUserPrivateData(ctx context.Context, q store.UserStore, req rpc.GetUserPrivateDataRequest) (rpc.GetUserPrivateDataRet, *apierr.Error) {
	token, apiErr := s.unsealSessionToken(req.SealedSessionToken, session.ClearanceLoggedIn)
	if apiErr != nil {
		return rpc.GetUserPrivateDataRet{}, apiErr
	}
	record, err := q.GetByUserID(ctx, token.UserID)
	if err != nil {
		return rpc.GetUserPrivateDataRet{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if record.Version != token.Version {
		return rpc.GetUserPrivateDataRet{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	data, err := encodeSecretBox(record.SecretPrivateData)
	if err != nil {
		return rpc.GetUserPrivateDataRet{}, serverErr(err)
	}
	return rpc.GetUserPrivateDataRet{SealedPrivateData: data}, nil
}

// SetUserPrivateData replaces the account's sealed PrivateData. It
// requires LoggedIn clearance and bumps Version.
func (s *State) SetUserPrivateData(ctx context.Context, q store.UserStore, req rpc.SetUserPrivateDataRequest) (rpc.Empty, *apierr.Error) {
	token, apiErr := s.unsealSessionToken(req.SealedSessionToken, session.ClearanceLoggedIn)
	if apiErr != nil {
		return rpc.Empty{}, apiErr
	}
	record, err := q.GetByUserID(ctx, token.UserID)
	if err != nil {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if record.Version != token.Version {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}

	var privateData sealedbox.SecretBox[models.PrivateData]
	if err := decodeSecretBox(req.SealedPrivateData, &privateData); err != nil {
		return rpc.Empty{}, serverErr(err)
	}
	record.SecretPrivateData = privateData
	record.Version++

	if err := q.Update(ctx, record, token.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
		}
		return rpc.Empty{}, serverErr(fmt.Errorf("authserver: update private data: %w", err))
	}
	return rpc.Empty{}, nil
}

// GetExportKeys returns both credential slots' sealed ExportKeys, the
// first step of master-key rotation: the client unseals each with the
// MasterKey it already holds, then re-seals a freshly generated one under
// every field RotateMasterKey replaces. It requires Uber clearance.
func (s *State) GetExportKeys(ctx context.Context, q store.UserStore, req rpc.GetExportKeysRequest) (rpc.GetExportKeysRet, *apierr.Error) {
	token, apiErr := s.unsealSessionToken(req.SealedSessionToken, session.ClearanceUber)
	if apiErr != nil {
		return rpc.GetExportKeysRet{}, apiErr
	}
	record, err := q.GetByUserID(ctx, token.UserID)
	if err != nil {
		return rpc.GetExportKeysRet{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if record.Version != token.Version {
		return rpc.GetExportKeysRet{}, apierr.New(apierr.KindInvalidSessionToken)
	}

	primary, err := encodeSecretBox(record.Primary.SecretExportKey)
	if err != nil {
		return rpc.GetExportKeysRet{}, serverErr(err)
	}
	recovery, err := encodeSecretBox(record.Recovery.SecretExportKey)
	if err != nil {
		return rpc.GetExportKeysRet{}, serverErr(err)
	}
	return rpc.GetExportKeysRet{SealedExportKeyPrimary: primary, SealedExportKeyRecovery: recovery}, nil
}

// RotateMasterKey atomically replaces the account's MasterKey: the fresh
// key's seal under every slot's ExportKey, each slot's re-sealed
// ExportKey under the new MasterKey, and PrivateData re-sealed under it,
// all in one Version bump. It requires Uber clearance. A partial failure
// here must never reach storage, which is why this whole operation runs
// inside the dispatcher's single transaction.
func (s *State) RotateMasterKey(ctx context.Context, q store.UserStore, req rpc.RotateMasterKeyRequest) (rpc.Empty, *apierr.Error) {
	token, apiErr := s.unsealSessionToken(req.SealedSessionToken, session.ClearanceUber)
	if apiErr != nil {
		return rpc.Empty{}, apiErr
	}
	record, err := q.GetByUserID(ctx, token.UserID)
	if err != nil {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if record.Version != token.Version {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}

	var masterKeyPrimary, masterKeyRecovery sealedbox.SecretBox[models.MasterKey]
	if err := decodeSecretBox(req.SealedMasterKeyPrimary, &masterKeyPrimary); err != nil {
		return rpc.Empty{}, serverErr(err)
	}
	if err := decodeSecretBox(req.SealedMasterKeyRecovery, &masterKeyRecovery); err != nil {
		return rpc.Empty{}, serverErr(err)
	}
	var exportKeyPrimary, exportKeyRecovery sealedbox.SecretBox[models.ExportKey]
	if err := decodeSecretBox(req.SealedExportKeyPrimary, &exportKeyPrimary); err != nil {
		return rpc.Empty{}, serverErr(err)
	}
	if err := decodeSecretBox(req.SealedExportKeyRecovery, &exportKeyRecovery); err != nil {
		return rpc.Empty{}, serverErr(err)
	}
	var privateData sealedbox.SecretBox[models.PrivateData]
	if err := decodeSecretBox(req.SealedPrivateData, &privateData); err != nil {
		return rpc.Empty{}, serverErr(err)
	}

	record.Primary.SecretMasterKey = masterKeyPrimary
	record.Primary.SecretExportKey = exportKeyPrimary
	record.Recovery.SecretMasterKey = masterKeyRecovery
	record.Recovery.SecretExportKey = exportKeyRecovery
	record.SecretPrivateData = privateData
	record.Version++

	if err := q.Update(ctx, record, token.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
		}
		return rpc.Empty{}, serverErr(fmt.Errorf("authserver: rotate master key: %w", err))
	}
	return rpc.Empty{}, nil
}

// SetTotp installs or removes TOTP second-factor enforcement on the
// account. It requires Uber clearance and bumps Version, so every other
// outstanding session (which could otherwise bypass the newly required
// second factor) is invalidated.
func (s *State) SetTotp(ctx context.Context, q store.UserStore, req rpc.SetTotpRequest) (rpc.Empty, *apierr.Error) {
	token, apiErr := s.unsealSessionToken(req.SealedSessionToken, session.ClearanceUber)
	if apiErr != nil {
		return rpc.Empty{}, apiErr
	}
	record, err := q.GetByUserID(ctx, token.UserID)
	if err != nil {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if record.Version != token.Version {
		return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
	}

	// The closed error taxonomy has no dedicated "bad request" kind, so a
	// malformed descriptor is reported the same way any other uncategorized
	// server-rejected input is: ServerSideError.
	if err := validateTotp(req.Totp); err != nil {
		return rpc.Empty{}, serverErr(err)
	}

	record.Totp = req.Totp
	record.Version++

	if err := q.Update(ctx, record, token.Version); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return rpc.Empty{}, apierr.New(apierr.KindInvalidSessionToken)
		}
		return rpc.Empty{}, serverErr(fmt.Errorf("authserver: set totp: %w", err))
	}
	return rpc.Empty{}, nil
}
