// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package authserver implements the server side of every RPC operation:
// registration, credential rotation, login, private-data storage, and TOTP
// management. Each exported method on State is registered directly with
// internal/rpc.RegisterHandler and so must not retain ctx or its store
// argument beyond return.
package authserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
	"github.com/MKhiriev/cachou/internal/pake"
	"github.com/MKhiriev/cachou/internal/sealedbox"
	"github.com/MKhiriev/cachou/internal/session"
	"github.com/MKhiriev/cachou/models"
)

// State is the process-global, read-only-after-startup data every handler
// needs: the token-sealing key, the OPAQUE server setup, and the
// configured session-token durations. It holds no database handle — the
// dispatcher supplies a request-scoped store.UserStore per call.
type State struct {
	SecretKey  sealedbox.Key
	PakeSetup  pake.Setup
	Durations  session.Durations
	Clock      func() time.Time
}

func (s *State) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// registrationStateMarker is sealed as NewCredentialsRet's server state.
// OPAQUE registration is fully stateless on the server — RegistrationFinish
// needs nothing from RegistrationStart — so this exists only to keep the
// wire shape symmetric with LoginStart/LoginFinish, which do carry real
// state.
type registrationStateMarker struct {
	SlotIsRecovery bool `msgpack:"slot_is_recovery"`
}

func (s *State) sealRegistrationState(recovery bool) ([]byte, error) {
	box, err := sealedbox.Seal(s.SecretKey, registrationStateMarker{SlotIsRecovery: recovery})
	if err != nil {
		return nil, fmt.Errorf("authserver: seal registration state: %w", err)
	}
	return msgpack.Marshal(box)
}

func (s *State) unsealRegistrationState(data []byte) (registrationStateMarker, error) {
	var box sealedbox.SecretBox[registrationStateMarker]
	if err := msgpack.Unmarshal(data, &box); err != nil {
		return registrationStateMarker{}, fmt.Errorf("authserver: decode registration state: %w", err)
	}
	marker, err := box.Unseal(s.SecretKey)
	if err != nil {
		return registrationStateMarker{}, fmt.Errorf("authserver: unseal registration state: %w", err)
	}
	return marker, nil
}

// loginStateEnvelope is what ServerLoginState is sealed as and round-tripped
// through the client between LoginStart and LoginFinish. Username travels
// alongside the PAKE state itself so LoginFinish can look the account back
// up without asking the client to repeat it (and without the server
// keeping any per-flow memory of its own).
type loginStateEnvelope struct {
	Recovery bool   `msgpack:"recovery"`
	Username []byte `msgpack:"username"`
	State    []byte `msgpack:"state"`
}

func (s *State) sealLoginState(recovery bool, username models.Username, pakeState pake.ServerLoginState) ([]byte, error) {
	raw, err := pakeState.Bytes()
	if err != nil {
		return nil, fmt.Errorf("authserver: serialize pake login state: %w", err)
	}
	box, err := sealedbox.Seal(s.SecretKey, loginStateEnvelope{Recovery: recovery, Username: username, State: raw})
	if err != nil {
		return nil, fmt.Errorf("authserver: seal login state: %w", err)
	}
	return msgpack.Marshal(box)
}

// loginState is the decoded, reconstructed form unsealLoginState returns:
// which slot this login targets, the account's username in that slot, and
// the live pake.ServerLoginState ready for ServerLoginFinish.
type loginState struct {
	Recovery bool
	Username models.Username
	Pake     pake.ServerLoginState
}

func (s *State) unsealLoginState(data []byte) (loginState, error) {
	var box sealedbox.SecretBox[loginStateEnvelope]
	if err := msgpack.Unmarshal(data, &box); err != nil {
		return loginState{}, fmt.Errorf("authserver: decode login state: %w", err)
	}
	env, err := box.Unseal(s.SecretKey)
	if err != nil {
		return loginState{}, fmt.Errorf("authserver: unseal login state: %w", err)
	}
	id := pake.IdentifierPrimary
	if env.Recovery {
		id = pake.IdentifierRecovery
	}
	pakeState, err := pake.ServerLoginStateFromBytes(id, env.State)
	if err != nil {
		return loginState{}, err
	}
	return loginState{Recovery: env.Recovery, Username: models.Username(env.Username), Pake: pakeState}, nil
}

// sealSessionToken seals token as the AuthBox[Unit, SessionToken] shape
// models.SessionToken documents: the token itself travels as the
// authenticated associated data, with nothing confidential in the
// plaintext channel, so a client can read its own clearance locally
// without holding the sealing key.
func (s *State) sealSessionToken(token models.SessionToken) ([]byte, error) {
	box, err := sealedbox.SealAuthOnly(s.SecretKey, token)
	if err != nil {
		return nil, fmt.Errorf("authserver: seal session token: %w", err)
	}
	return msgpack.Marshal(box)
}

// unsealSessionToken decodes and verifies a sealed session token, then
// refreshes and validates it against required before returning it. A token
// whose timestamp lies too far in the future (session.ErrClockSkew) is
// reported as apierr.KindServerSideError. On any other failure it returns
// apierr.KindInvalidSessionToken, never a more specific error: a caller
// cannot distinguish "missing", "tampered", "expired", and "insufficient
// clearance" from one another over the wire.
func (s *State) unsealSessionToken(data []byte, required session.Clearance) (models.SessionToken, *apierr.Error) {
	var box sealedbox.AuthBox[sealedbox.Unit, models.SessionToken]
	if err := msgpack.Unmarshal(data, &box); err != nil {
		return models.SessionToken{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	token, err := box.GetVerifiedAssociatedData(s.SecretKey)
	if err != nil {
		return models.SessionToken{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if err := s.Durations.Refresh(&token, s.now()); err != nil {
		if errors.Is(err, session.ErrClockSkew) {
			return models.SessionToken{}, serverErr(err)
		}
		return models.SessionToken{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	if !session.Validate(&token, required) {
		return models.SessionToken{}, apierr.New(apierr.KindInvalidSessionToken)
	}
	return token, nil
}
