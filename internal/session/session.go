// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package session implements the sliding-window clearance state machine
// that governs models.SessionToken: refreshing a token against the current
// time, validating it against a required clearance, and granting uber
// elevation.
package session

import (
	"errors"
	"time"

	"github.com/MKhiriev/cachou/models"
)

// Clearance is the ordered trust level a SessionToken can be validated
// against. The zero value, ClearanceInvalid, is the least-privileged.
type Clearance int

const (
	ClearanceInvalid Clearance = iota
	ClearanceNeedSecondFactor
	ClearanceLoggedIn
	ClearanceUber
)

// ErrClockSkew is returned by Refresh when a token's embedded timestamp is
// further in the future than the allowed skew tolerance — a condition that
// can only mean the sealing key or clock has been compromised or
// misconfigured, never an ordinary expiry.
var ErrClockSkew = errors.New("session: token timestamp exceeds allowed clock skew")

// maxClockSkew bounds how far a token's timestamp may sit ahead of the
// refreshing server's clock before it is treated as a server-side integrity
// violation rather than ordinary replica clock drift.
const maxClockSkew = 5 * time.Second

// Durations configures the four sliding windows that govern a token's
// lifetime. All four are independent: shortening OneFactor does not affect
// Logged, and so on.
type Durations struct {
	// OneFactor bounds how long a NeedSecondFactor state survives without
	// a successful second factor.
	OneFactor time.Duration
	// Logged bounds the total lifetime of a LoggedIn state from its
	// Timestamp, regardless of activity.
	Logged time.Duration
	// AutoLogout bounds how long a LoggedIn state may go without an
	// authenticated request before it is treated as idle and expired.
	AutoLogout time.Duration
	// Uber bounds how long the Uber elevation survives from its own
	// offset, independent of the Logged window.
	Uber time.Duration
}

// Refresh advances token's state to reflect the passage of time up to now,
// following the exact table:
//
//   - NeedSecondFactor{ts}: expires to Invalid once ts+OneFactor <= now;
//     otherwise the state is left completely unchanged (this does not
//     extend the window — a NeedSecondFactor state has no activity signal
//     of its own to refresh against).
//   - LoggedIn{ts, autoLogout, uber}: expires to Invalid once ts+Logged <=
//     now, or once an enabled autoLogout offset shows idle time beyond
//     AutoLogout. Otherwise autoLogout's offset (if enabled) is updated to
//     now-ts to record this request as activity, and uber is dropped once
//     its own window (ts+uberOffset+Uber) has elapsed.
//
// Refresh first clamps now against the token's embedded timestamp: a
// timestamp more than 5 seconds ahead of now is rejected as ErrClockSkew;
// otherwise now is raised to max(now, ts) so a token minted by a clock
// slightly ahead of this server never produces a negative offset.
func (d Durations) Refresh(token *models.SessionToken, now time.Time) error {
	switch s := token.State.(type) {
	case nil, models.StateInvalid:
		return nil

	case models.StateNeedSecondFactor:
		ts, err := clampNow(s.Timestamp, now)
		if err != nil {
			return err
		}
		if notBefore(s.Timestamp, d.OneFactor, ts) {
			token.State = models.StateInvalid{}
			return nil
		}
		// Deliberately left unchanged on success: NeedSecondFactor carries
		// no activity offset to extend.
		return nil

	case models.StateLoggedIn:
		ts, err := clampNow(s.Timestamp, now)
		if err != nil {
			return err
		}
		if notBefore(s.Timestamp, d.Logged, ts) {
			token.State = models.StateInvalid{}
			return nil
		}
		if s.AutoLogout != nil {
			idleSince := s.Timestamp + int64(*s.AutoLogout)
			if notBefore(idleSince, d.AutoLogout, ts) {
				token.State = models.StateInvalid{}
				return nil
			}
			offset := uint32(ts.Unix() - s.Timestamp)
			s.AutoLogout = &offset
		}
		if s.Uber != nil {
			uberSince := s.Timestamp + int64(*s.Uber)
			if notBefore(uberSince, d.Uber, ts) {
				s.Uber = nil
			}
		}
		token.State = s
		return nil

	default:
		return nil
	}
}

// clampNow validates the clock-skew bound and returns now raised to at
// least ts.
func clampNow(ts int64, now time.Time) (time.Time, error) {
	if ts > now.Add(maxClockSkew).Unix() {
		return time.Time{}, ErrClockSkew
	}
	if ts > now.Unix() {
		return time.Unix(ts, 0), nil
	}
	return now, nil
}

// notBefore reports whether since+window has already elapsed as of now,
// i.e. whether the window anchored at since has expired.
func notBefore(since int64, window time.Duration, now time.Time) bool {
	return since+int64(window/time.Second) <= now.Unix()
}

// Validate reports whether token's current state satisfies the required
// clearance. It does not call Refresh; callers must refresh first.
func Validate(token *models.SessionToken, required Clearance) bool {
	switch s := token.State.(type) {
	case models.StateInvalid, nil:
		return false
	case models.StateNeedSecondFactor:
		return required == ClearanceNeedSecondFactor
	case models.StateLoggedIn:
		switch required {
		case ClearanceNeedSecondFactor, ClearanceLoggedIn:
			return true
		case ClearanceUber:
			return s.Uber != nil
		default:
			return false
		}
	default:
		return false
	}
}

// AddUber grants uber elevation to a LoggedIn token by setting its Uber
// offset to zero (i.e. "just now"). It is a no-op on any other state.
func AddUber(token *models.SessionToken) {
	s, ok := token.State.(models.StateLoggedIn)
	if !ok {
		return
	}
	zero := uint32(0)
	s.Uber = &zero
	token.State = s
}
