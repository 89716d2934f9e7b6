// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package rpc

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
	"github.com/MKhiriev/cachou/internal/store"
)

// operationFunc is the type-erased form every registered handler is
// reduced to: decode the still-raw payload, run it inside a transaction,
// and return the still-raw, already-enveloped Result bytes.
type operationFunc func(ctx context.Context, payload msgpack.RawMessage) ([]byte, error)

// Dispatcher decodes an incoming envelope, looks up the handler registered
// for its Kind, and runs it inside a transaction obtained from db: the
// transaction commits if the handler returns a nil *apierr.Error and rolls
// back otherwise, so a partially-applied mutation never reaches storage.
type Dispatcher struct {
	db       store.Beginner
	handlers map[Kind]operationFunc
}

// NewDispatcher builds an empty Dispatcher bound to db. Callers register
// every Kind with RegisterHandler before serving any request.
func NewDispatcher(db store.Beginner) *Dispatcher {
	return &Dispatcher{db: db, handlers: make(map[Kind]operationFunc)}
}

// HandlerFunc is the shape of business logic for one operation: given the
// request-scoped UserStore and the decoded request, produce a Ret or an
// apierr.Error. It must not retain q or ctx past return.
type HandlerFunc[Req any, Ret any] func(ctx context.Context, q store.UserStore, req Req) (Ret, *apierr.Error)

// RegisterHandler wires fn as the implementation of kind. It is a
// package-level function rather than a Dispatcher method because Go does
// not allow a method to introduce type parameters beyond its receiver's.
func RegisterHandler[Req any, Ret any](d *Dispatcher, kind Kind, fn HandlerFunc[Req, Ret]) {
	d.handlers[kind] = func(ctx context.Context, payload msgpack.RawMessage) ([]byte, error) {
		var req Req
		if err := msgpack.Unmarshal(payload, &req); err != nil {
			return msgpack.Marshal(Fail[Ret](apierr.NewServerSideError(fmt.Errorf("rpc: decode %s request: %w", kind, err))))
		}

		tx, err := d.db.BeginTx(ctx)
		if err != nil {
			return msgpack.Marshal(Fail[Ret](apierr.NewServerSideError(fmt.Errorf("rpc: begin tx for %s: %w", kind, err))))
		}

		ret, apiErr := fn(ctx, tx.Queries(), req)
		logInvocation(ctx, kind, apiErr)
		if apiErr != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				zerolog.Ctx(ctx).Error().Err(rbErr).Str("kind", string(kind)).Msg("rollback failed")
			}
			return msgpack.Marshal(Fail[Ret](apiErr))
		}

		if err := tx.Commit(ctx); err != nil {
			commitErr := apierr.NewServerSideError(fmt.Errorf("rpc: commit %s: %w", kind, err))
			return msgpack.Marshal(Fail[Ret](commitErr))
		}

		return msgpack.Marshal(Ok(ret))
	}
}

// logInvocation logs the outcome of one handler call at a severity that
// mirrors the result: ServerSideError and ClientSideError are the server's
// own fault or an impossible-on-the-wire state, so they log at error;
// every other outcome, success included, logs at info.
func logInvocation(ctx context.Context, kind Kind, apiErr *apierr.Error) {
	log := zerolog.Ctx(ctx)
	event := log.Info()
	if apiErr != nil {
		if k := apiErr.Kind(); k == apierr.KindServerSideError || k == apierr.KindClientSideError {
			event = log.Error().Err(apiErr)
		}
	}
	event.Str("kind", string(kind)).Msg("rpc handler invoked")
}

// Dispatch decodes body as an envelope and runs the handler registered for
// its Kind, returning the already-encoded Result bytes to write back to
// the client. An unregistered Kind is reported as a server-side error
// rather than a panic: the envelope decoded fine, so this is a deployment
// mismatch, not a malformed request.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) []byte {
	kind, payload, err := decodeEnvelope(body)
	if err != nil {
		out, _ := msgpack.Marshal(Fail[Empty](apierr.NewServerSideError(err)))
		return out
	}

	handler, ok := d.handlers[kind]
	if !ok {
		out, _ := msgpack.Marshal(Fail[Empty](apierr.NewServerSideError(fmt.Errorf("rpc: no handler registered for kind %q", kind))))
		return out
	}

	out, err := handler(ctx, payload)
	if err != nil {
		out, _ = msgpack.Marshal(Fail[Empty](apierr.NewServerSideError(err)))
	}
	return out
}
