// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package rpc implements the closed, tagged-union RPC envelope that
// carries every request between client and server: encoding, the
// bounded-retry client transport, and the server-side transactional
// dispatcher. Nothing outside this package (and internal/authclient,
// internal/authserver, which supply the actual operation logic) needs to
// know the wire format.
package rpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
)

// envelope is the outer wire shape every request takes: a discriminant
// plus the raw encoded bytes of whichever *Request struct Kind names.
// Payload is decoded only once the caller knows Kind, which is how one
// closed union covers ten unrelated Go struct types without reflection
// tricks or a custom interface per operation.
type envelope struct {
	Kind    Kind            `msgpack:"kind"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// encodeRequest builds the wire bytes for a single RPC call.
func encodeRequest[Req any](kind Kind, req Req) ([]byte, error) {
	payload, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode %s payload: %w", kind, err)
	}
	return msgpack.Marshal(envelope{Kind: kind, Payload: payload})
}

// decodeEnvelope splits the wire bytes of an incoming request into its kind
// and still-encoded payload, ready for dispatch.
func decodeEnvelope(data []byte) (Kind, msgpack.RawMessage, error) {
	var e envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return "", nil, fmt.Errorf("rpc: decode envelope: %w", err)
	}
	return e.Kind, e.Payload, nil
}

// Result is the wire shape of every RPC response: either the operation's
// Ret value, or an apierr.Error, never both and never neither.
type Result[Ret any] struct {
	Value Ret
	Err   *apierr.Error
}

// Ok builds a successful Result.
func Ok[Ret any](value Ret) Result[Ret] {
	return Result[Ret]{Value: value}
}

// Fail builds a failed Result.
func Fail[Ret any](err *apierr.Error) Result[Ret] {
	return Result[Ret]{Err: err}
}

type wireResult[Ret any] struct {
	Ok  *Ret         `msgpack:"ok,omitempty"`
	Err *apierr.Error `msgpack:"err,omitempty"`
}

// MarshalMsgpack implements msgpack.CustomEncoder.
func (r Result[Ret]) MarshalMsgpack() ([]byte, error) {
	w := wireResult[Ret]{}
	if r.Err != nil {
		w.Err = r.Err
	} else {
		w.Ok = &r.Value
	}
	return msgpack.Marshal(w)
}

// UnmarshalMsgpack implements msgpack.CustomDecoder.
func (r *Result[Ret]) UnmarshalMsgpack(data []byte) error {
	var w wireResult[Ret]
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Err != nil {
		r.Err = w.Err
		return nil
	}
	if w.Ok != nil {
		r.Value = *w.Ok
	}
	return nil
}
