// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package store defines the persistence contract for user records and
// its Postgres implementation. Every RPC handler runs inside one Tx that
// internal/rpc's dispatcher begins before calling the handler, whether or
// not the handler touches the store, and commits or rolls back around the
// handler call, never held across a suspension point outside that one
// request.
package store

import (
	"context"
	"errors"

	"github.com/MKhiriev/cachou/models"
)

// ErrUsernameConflict is returned by Insert or Update when the submitted
// username already occupies the same slot (primary or recovery) of another
// account. A primary username equal to another account's recovery username,
// or the reverse, is not detected.
var ErrUsernameConflict = errors.New("store: username already in use")

// ErrUserNotFound is returned when a lookup by UserID or username matches
// no account.
var ErrUserNotFound = errors.New("store: user not found")

// ErrVersionConflict is returned by Update when the caller's expected
// version no longer matches the stored record, meaning a concurrent
// transaction won the race for this account.
var ErrVersionConflict = errors.New("store: version conflict")

// UserStore is the set of operations a request handler needs against the
// user table, scoped to whatever transaction it was obtained from.
type UserStore interface {
	// GetByUsername finds the account whose primary or recovery slot
	// (selected by recovery) carries username.
	GetByUsername(ctx context.Context, recovery bool, username models.Username) (models.UserRecord, error)
	// GetByUserID finds the account by its UserID.
	GetByUserID(ctx context.Context, id models.UserID) (models.UserRecord, error)
	// Insert creates a brand-new account. record.Version must be 0.
	Insert(ctx context.Context, record models.UserRecord) error
	// Update replaces an existing account's row, enforcing that the
	// stored version still equals expectedVersion before writing
	// record (whose Version must be expectedVersion+1).
	Update(ctx context.Context, record models.UserRecord, expectedVersion uint64) error
}

// Tx is one database transaction scoped to a single RPC request.
type Tx interface {
	// Queries returns the UserStore bound to this transaction.
	Queries() UserStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts transactions. internal/rpc.Dispatcher depends only on
// this, never on a concrete driver.
type Beginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}
