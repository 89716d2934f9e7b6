// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package apierr defines the closed error taxonomy that crosses the wire
// between client and server. Every internal/rpc.Result[T] carries either a
// T or one of these kinds — nothing else is ever serialized as an RPC
// failure.
package apierr

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the discriminant of the closed error union.
type Kind string

const (
	// KindInvalidSessionToken covers a token that is missing, fails AEAD
	// verification, carries insufficient clearance for the operation, or
	// whose Version no longer matches the user record.
	KindInvalidSessionToken Kind = "invalid_session_token"
	// KindUsernameConflict is returned when a registration names a
	// username already occupied in the same slot (primary or recovery)
	// of another account.
	KindUsernameConflict Kind = "username_conflict"
	// KindUsernameNotFound is returned when a login names a username
	// that matches no account's primary or recovery slot.
	KindUsernameNotFound Kind = "username_not_found"
	// KindInvalidPassword is returned when a PAKE login finishes but the
	// password itself was wrong, distinguishing this case from a
	// transport or server failure for the client's UI.
	KindInvalidPassword Kind = "invalid_password"
	// KindServerSideError covers every failure the server considers its
	// own fault (storage errors, crypto invariant violations, clock
	// skew). Its payload is never serialized: the wire form carries only
	// the kind, never the underlying message, so internal details never
	// leak to a client.
	KindServerSideError Kind = "server_side_error"
	// KindClientSideError covers failures detected entirely on the
	// client (e.g. malformed local state) and is never constructed from
	// a server response; it exists so client and server code can share
	// one Error type end to end.
	KindClientSideError Kind = "client_side_error"
)

// Error is the single type returned from every fallible operation in this
// system that can also cross the wire. Construct one with the New*
// functions rather than a struct literal, so KindServerSideError always
// goes through message redaction.
type Error struct {
	kind    Kind
	message string
}

// Kind reports which taxonomy entry this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.message == "" {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Is lets errors.Is match two *Error values by Kind alone, so callers can
// write errors.Is(err, apierr.New(apierr.KindUsernameConflict)) without
// caring about message text.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// New builds an Error of the given kind with an empty message. Used for
// the fixed-vocabulary kinds that carry no further detail across the wire.
func New(kind Kind) *Error {
	return &Error{kind: kind}
}

// NewServerSideError wraps an internal failure for server-side logging.
// The message is never included in the wire encoding (see MarshalMsgpack);
// it exists purely for the server's own logs.
func NewServerSideError(cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{kind: KindServerSideError, message: msg}
}

// NewClientSideError wraps a purely local failure. Never sent to the
// server and never received from it.
func NewClientSideError(cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{kind: KindClientSideError, message: msg}
}

// wireError is Error's on-the-wire shape. ServerSideError's message is
// deliberately dropped here regardless of what the in-process Error holds.
type wireError struct {
	Kind    Kind   `msgpack:"kind"`
	Message string `msgpack:"message,omitempty"`
}

// MarshalMsgpack implements msgpack.CustomEncoder.
func (e Error) MarshalMsgpack() ([]byte, error) {
	w := wireError{Kind: e.kind}
	if e.kind != KindServerSideError {
		w.Message = e.message
	}
	return msgpack.Marshal(w)
}

// UnmarshalMsgpack implements msgpack.CustomDecoder.
func (e *Error) UnmarshalMsgpack(data []byte) error {
	var w wireError
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return err
	}
	e.kind = w.Kind
	e.message = w.Message
	return nil
}
