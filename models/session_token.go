// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// SessionToken is the in-memory, wire-transmitted record of a client's
// clearance. It is always carried as a
// sealedbox.AuthBox[sealedbox.Unit, SessionToken] (see
// internal/authserver): the plaintext channel is empty, and the token itself
// is the associated-data channel, so a client can read its own clearance
// locally (AuthBox.GetUnverifiedAssociatedData) while only the server,
// holding the sealing key, can mint or re-verify one.
type SessionToken struct {
	// UserID names the account this token was issued for.
	UserID UserID `msgpack:"user_id"`
	// Version must match the current UserRecord.Version; a credential or
	// master-key change bumps Version and so invalidates every
	// outstanding token for that account.
	Version uint64 `msgpack:"version"`
	// State holds exactly one of Invalid, NeedSecondFactor, or LoggedIn.
	State SessionState `msgpack:"state"`
}

// SessionState is the closed set of clearance states a SessionToken can be
// in. Only types declared in this package implement it: StateInvalid,
// StateNeedSecondFactor (built by NewStateNeedSecondFactor), and
// StateLoggedIn (built by NewStateLoggedIn).
type SessionState interface {
	sessionState()
}

// StateInvalid is the zero, unauthenticated state. Every request requiring
// any clearance above none rejects it.
type StateInvalid struct{}

func (StateInvalid) sessionState() {}

// StateNeedSecondFactor is issued after a successful PAKE login, instead of
// StateLoggedIn, for accounts with TOTP configured. No operation moves a
// token from this state to StateLoggedIn; it only expires or is replaced by
// a new login.
type StateNeedSecondFactor struct {
	// Timestamp is the login time this state was entered at.
	Timestamp int64 `msgpack:"timestamp"`
}

func (StateNeedSecondFactor) sessionState() {}

// NewStateNeedSecondFactor builds a fresh StateNeedSecondFactor stamped at ts.
func NewStateNeedSecondFactor(ts int64) StateNeedSecondFactor {
	return StateNeedSecondFactor{Timestamp: ts}
}

// StateLoggedIn is the fully-authenticated state. AutoLogout and Uber, when
// non-nil, are second-offsets from Timestamp marking the most recent client
// activity and the most recent uber elevation respectively.
type StateLoggedIn struct {
	Timestamp  int64   `msgpack:"timestamp"`
	AutoLogout *uint32 `msgpack:"auto_logout,omitempty"`
	Uber       *uint32 `msgpack:"uber,omitempty"`
}

func (StateLoggedIn) sessionState() {}

// NewStateLoggedIn builds a fresh StateLoggedIn stamped at ts. autoLogout
// indicates whether idle tracking is enabled for this login; uber indicates
// whether uber clearance was granted immediately (offset 0).
func NewStateLoggedIn(ts int64, autoLogout, uber bool) StateLoggedIn {
	s := StateLoggedIn{Timestamp: ts}
	if autoLogout {
		zero := uint32(0)
		s.AutoLogout = &zero
	}
	if uber {
		zero := uint32(0)
		s.Uber = &zero
	}
	return s
}

// stateKind is the wire discriminant for SessionState, since msgpack has no
// native concept of a Go interface.
type stateKind string

const (
	stateKindInvalid          stateKind = "invalid"
	stateKindNeedSecondFactor stateKind = "need_second_factor"
	stateKindLoggedIn         stateKind = "logged_in"
)

// wireSessionToken is SessionToken's on-the-wire shape: State flattened into
// a discriminant plus the union of all variants' fields.
type wireSessionToken struct {
	UserID     UserID    `msgpack:"user_id"`
	Version    uint64    `msgpack:"version"`
	Kind       stateKind `msgpack:"kind"`
	Timestamp  int64     `msgpack:"timestamp,omitempty"`
	AutoLogout *uint32   `msgpack:"auto_logout,omitempty"`
	Uber       *uint32   `msgpack:"uber,omitempty"`
}

// MarshalMsgpack implements msgpack.CustomEncoder.
func (t SessionToken) MarshalMsgpack() ([]byte, error) {
	w := wireSessionToken{UserID: t.UserID, Version: t.Version}
	switch s := t.State.(type) {
	case nil, StateInvalid:
		w.Kind = stateKindInvalid
	case StateNeedSecondFactor:
		w.Kind = stateKindNeedSecondFactor
		w.Timestamp = s.Timestamp
	case StateLoggedIn:
		w.Kind = stateKindLoggedIn
		w.Timestamp = s.Timestamp
		w.AutoLogout = s.AutoLogout
		w.Uber = s.Uber
	default:
		return nil, fmt.Errorf("models: unknown SessionState %T", s)
	}
	return msgpack.Marshal(w)
}

// UnmarshalMsgpack implements msgpack.CustomDecoder.
func (t *SessionToken) UnmarshalMsgpack(data []byte) error {
	var w wireSessionToken
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return err
	}
	t.UserID = w.UserID
	t.Version = w.Version
	switch w.Kind {
	case stateKindInvalid, "":
		t.State = StateInvalid{}
	case stateKindNeedSecondFactor:
		t.State = StateNeedSecondFactor{Timestamp: w.Timestamp}
	case stateKindLoggedIn:
		t.State = StateLoggedIn{Timestamp: w.Timestamp, AutoLogout: w.AutoLogout, Uber: w.Uber}
	default:
		return fmt.Errorf("models: unknown session state kind %q", w.Kind)
	}
	return nil
}
