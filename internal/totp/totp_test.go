// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package totp

import (
	"encoding/base32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/cachou/models"
)

func TestParseURIAppliesDefaults(t *testing.T) {
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("12345678901234567890"))
	d, err := ParseURI("otpauth://totp/acme:alice?secret=" + secret)
	require.NoError(t, err)

	assert.Equal(t, uint8(6), d.Digits)
	assert.Equal(t, models.TotpAlgoSHA1, d.Algo)
	assert.Equal(t, uint32(30), d.Period)
}

func TestParseURIRejectsBadDigits(t *testing.T) {
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("12345678901234567890"))
	_, err := ParseURI("otpauth://totp/acme:alice?secret=" + secret + "&digits=7")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

func TestParseURIRejectsWrongScheme(t *testing.T) {
	_, err := ParseURI("https://totp/acme:alice?secret=AAAA")
	assert.ErrorIs(t, err, ErrInvalidURI)
}

// RFC 6238 Appendix B test vector for SHA1, 8 digits, 30s period, secret
// "12345678901234567890".
func TestVerifyRFC6238SHA1Vector(t *testing.T) {
	descriptor := models.TotpDescriptor{
		Secret: []byte("12345678901234567890"),
		Digits: 8,
		Algo:   models.TotpAlgoSHA1,
		Period: 30,
	}

	// T=59 -> counter 1 -> expected code "94287082"
	now := time.Unix(59, 0)
	require.NoError(t, Verify(descriptor, "94287082", now))
}

func TestVerifyAcceptsOneStepOldWindow(t *testing.T) {
	descriptor := models.TotpDescriptor{
		Secret: []byte("12345678901234567890"),
		Digits: 8,
		Algo:   models.TotpAlgoSHA1,
		Period: 30,
	}

	// The code for counter 1 (T=59) should still verify one period later.
	now := time.Unix(59+30, 0)
	require.NoError(t, Verify(descriptor, "94287082", now))
}

func TestVerifyRejectsStaleCode(t *testing.T) {
	descriptor := models.TotpDescriptor{
		Secret: []byte("12345678901234567890"),
		Digits: 8,
		Algo:   models.TotpAlgoSHA1,
		Period: 30,
	}

	now := time.Unix(59+60, 0)
	assert.ErrorIs(t, Verify(descriptor, "94287082", now), ErrInvalidCode)
}
