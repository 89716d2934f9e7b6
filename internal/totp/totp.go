// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package totp implements RFC 6238 (TOTP) and RFC 4226 (HOTP) code
// verification, plus parsing of the Google Authenticator otpauth://totp/
// Key URI format used to provision a models.TotpDescriptor.
//
// There is no third-party TOTP library in this project's dependency stack;
// the algorithm is a few dozen lines of stdlib hashing and the upstream
// system this one is modeled on hand-rolls it too, so this package does the
// same rather than pull in a dependency for it.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"time"

	"github.com/MKhiriev/cachou/models"
)

// ErrInvalidURI is returned by ParseURI when uri is not a well-formed
// otpauth://totp/ Key URI.
var ErrInvalidURI = errors.New("totp: not a valid otpauth://totp/ URI")

// ErrInvalidCode is returned by Verify when code matches neither the
// current nor the immediately preceding time step.
var ErrInvalidCode = errors.New("totp: code does not match")

const (
	defaultDigits = 6
	defaultAlgo   = models.TotpAlgoSHA1
	defaultPeriod = 30
)

// ParseURI parses an otpauth://totp/<label>?secret=<base32>&digits=<6|8>
// &algorithm=<SHA1|SHA256|SHA512>&period=<seconds> URI into a
// models.TotpDescriptor, applying the spec's defaults (digits=6,
// algorithm=SHA1, period=30) for any omitted query parameter.
func ParseURI(uri string) (models.TotpDescriptor, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return models.TotpDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		return models.TotpDescriptor{}, ErrInvalidURI
	}

	q := u.Query()

	secretStr := q.Get("secret")
	if secretStr == "" {
		return models.TotpDescriptor{}, fmt.Errorf("%w: missing 'secret'", ErrInvalidURI)
	}
	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretStr)
	if err != nil {
		return models.TotpDescriptor{}, fmt.Errorf("%w: bad 'secret': %v", ErrInvalidURI, err)
	}

	digits := defaultDigits
	if d := q.Get("digits"); d != "" {
		digits, err = strconv.Atoi(d)
		if err != nil {
			return models.TotpDescriptor{}, fmt.Errorf("%w: bad 'digits': %v", ErrInvalidURI, err)
		}
	}
	if digits != 6 && digits != 8 {
		return models.TotpDescriptor{}, fmt.Errorf("%w: 'digits' must be 6 or 8", ErrInvalidURI)
	}

	algo := defaultAlgo
	if a := q.Get("algorithm"); a != "" {
		algo = models.TotpAlgo(a)
	}
	switch algo {
	case models.TotpAlgoSHA1, models.TotpAlgoSHA256, models.TotpAlgoSHA512:
	default:
		return models.TotpDescriptor{}, fmt.Errorf("%w: invalid 'algorithm'", ErrInvalidURI)
	}

	period := uint32(defaultPeriod)
	if p := q.Get("period"); p != "" {
		parsed, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return models.TotpDescriptor{}, fmt.Errorf("%w: bad 'period': %v", ErrInvalidURI, err)
		}
		period = uint32(parsed)
	}

	return models.TotpDescriptor{
		Secret: secret,
		Digits: uint8(digits),
		Algo:   algo,
		Period: period,
	}, nil
}

// BuildURI renders d as the otpauth://totp/ Key URI ParseURI accepts. It
// exists so a descriptor submitted as structured fields (rather than a
// URI string) can still be validated by the same round-trip ParseURI
// performs on a provisioning link.
func BuildURI(d models.TotpDescriptor) string {
	q := url.Values{}
	q.Set("secret", base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(d.Secret))
	q.Set("digits", strconv.Itoa(int(d.Digits)))
	q.Set("algorithm", string(d.Algo))
	q.Set("period", strconv.FormatUint(uint64(d.Period), 10))
	u := url.URL{Scheme: "otpauth", Host: "totp", Path: "/account", RawQuery: q.Encode()}
	return u.String()
}

func newHash(algo models.TotpAlgo) (func() hash.Hash, error) {
	switch algo {
	case models.TotpAlgoSHA1:
		return sha1.New, nil
	case models.TotpAlgoSHA256:
		return sha256.New, nil
	case models.TotpAlgoSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("totp: unknown algorithm %q", algo)
	}
}

// hotp computes the RFC 4226 HOTP code for secret at counter, truncated to
// digits decimal digits.
func hotp(secret []byte, digits uint8, counter uint64, newHash func() hash.Hash) (string, error) {
	mac := hmac.New(newHash, secret)
	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)
	if _, err := mac.Write(counterBytes[:]); err != nil {
		return "", fmt.Errorf("totp: hmac write: %w", err)
	}
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF

	mod := uint32(1)
	for i := uint8(0); i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, truncated%mod), nil
}

// Verify checks code against the TOTP derived from descriptor at now,
// accepting either the current time-step counter or the immediately
// preceding one to tolerate modest clock drift between client and server.
func Verify(descriptor models.TotpDescriptor, code string, now time.Time) error {
	newHash, err := newHash(descriptor.Algo)
	if err != nil {
		return err
	}
	if descriptor.Period == 0 {
		return fmt.Errorf("totp: zero period")
	}

	counter := uint64(now.Unix()) / uint64(descriptor.Period)

	start := uint64(0)
	if counter > 0 {
		start = counter - 1
	}
	for c := start; c <= counter; c++ {
		candidate, err := hotp(descriptor.Secret, descriptor.Digits, c, newHash)
		if err != nil {
			return err
		}
		if candidate == code {
			return nil
		}
	}
	return ErrInvalidCode
}
