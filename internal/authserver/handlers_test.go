// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package authserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/cachou/internal/apierr"
	"github.com/MKhiriev/cachou/internal/rpc"
	"github.com/MKhiriev/cachou/internal/sealedbox"
	"github.com/MKhiriev/cachou/internal/session"
	"github.com/MKhiriev/cachou/internal/store"
	"github.com/MKhiriev/cachou/models"
)

// fakeStore is a minimal in-memory store.UserStore keyed by UserID, enough
// to drive the handlers that never touch PAKE directly.
type fakeStore struct {
	byID map[models.UserID]models.UserRecord
}

func newFakeStore(records ...models.UserRecord) *fakeStore {
	s := &fakeStore{byID: make(map[models.UserID]models.UserRecord)}
	for _, r := range records {
		s.byID[r.UserID] = r
	}
	return s
}

func (s *fakeStore) GetByUsername(ctx context.Context, recovery bool, username models.Username) (models.UserRecord, error) {
	for _, r := range s.byID {
		slot := r.Primary
		if recovery {
			slot = r.Recovery
		}
		if slot.Username.Equal(username) {
			return r, nil
		}
	}
	return models.UserRecord{}, store.ErrUserNotFound
}

func (s *fakeStore) GetByUserID(ctx context.Context, id models.UserID) (models.UserRecord, error) {
	r, ok := s.byID[id]
	if !ok {
		return models.UserRecord{}, store.ErrUserNotFound
	}
	return r, nil
}

func (s *fakeStore) Insert(ctx context.Context, record models.UserRecord) error {
	if record.Version != 0 {
		return store.ErrVersionConflict
	}
	s.byID[record.UserID] = record
	return nil
}

func (s *fakeStore) Update(ctx context.Context, record models.UserRecord, expectedVersion uint64) error {
	existing, ok := s.byID[record.UserID]
	if !ok || existing.Version != expectedVersion || record.Version != expectedVersion+1 {
		return store.ErrVersionConflict
	}
	s.byID[record.UserID] = record
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testDurations() session.Durations {
	return session.Durations{
		OneFactor:  2 * time.Minute,
		Logged:     time.Hour,
		AutoLogout: 15 * time.Minute,
		Uber:       5 * time.Minute,
	}
}

func sampleUserRecord(t *testing.T, key sealedbox.Key) models.UserRecord {
	t.Helper()
	masterKey, err := models.GenerateMasterKey()
	require.NoError(t, err)
	exportKeyPrimary := models.ExportKeyFromSlice([]byte("primary-export-key-32-bytes-long"))
	exportKeyRecovery := models.ExportKeyFromSlice([]byte("recovery-export-key-32-bytes-lon"))
	privateData, err := models.GeneratePrivateData()
	require.NoError(t, err)
	userID, err := models.GenerateUserID()
	require.NoError(t, err)

	secretMasterKeyPrimary, err := sealedbox.Seal(key, masterKey)
	require.NoError(t, err)
	secretMasterKeyRecovery, err := sealedbox.Seal(key, masterKey)
	require.NoError(t, err)
	secretExportKeyPrimary, err := sealedbox.Seal(key, exportKeyPrimary)
	require.NoError(t, err)
	secretExportKeyRecovery, err := sealedbox.Seal(key, exportKeyRecovery)
	require.NoError(t, err)
	secretPrivateData, err := sealedbox.Seal(key, privateData)
	require.NoError(t, err)

	return models.UserRecord{
		UserID:            userID,
		Version:           3,
		SecretPrivateData: secretPrivateData,
		Primary: models.Credentials{
			Username:        models.Username("alice"),
			OpaquePassword:  []byte("opaque-record-primary"),
			SecretMasterKey: secretMasterKeyPrimary,
			SecretExportKey: secretExportKeyPrimary,
		},
		Recovery: models.Credentials{
			Username:        models.Username("rec-alice"),
			OpaquePassword:  []byte("opaque-record-recovery"),
			SecretMasterKey: secretMasterKeyRecovery,
			SecretExportKey: secretExportKeyRecovery,
		},
	}
}

func newTestState(now time.Time) (*State, sealedbox.Key) {
	var key sealedbox.Key
	for i := range key {
		key[i] = byte(i + 1)
	}
	return &State{SecretKey: key, Durations: testDurations(), Clock: fixedClock(now)}, key
}

func sealedTokenFor(t *testing.T, s *State, record models.UserRecord, uber bool) []byte {
	t.Helper()
	token := models.SessionToken{
		UserID:  record.UserID,
		Version: record.Version,
		State:   models.NewStateLoggedIn(s.now().Unix(), true, uber),
	}
	data, err := s.sealSessionToken(token)
	require.NoError(t, err)
	return data
}

func TestGetUserPrivateDataReturnsSealedDataForLoggedIn(t *testing.T) {
	now := time.Now()
	s, key := newTestState(now)
	record := sampleUserRecord(t, key)
	fs := newFakeStore(record)

	sealedToken := sealedTokenFor(t, s, record, false)
	ret, apiErr := s.GetUserPrivateData(context.Background(), fs, rpc.GetUserPrivateDataRequest{SealedSessionToken: sealedToken})
	require.Nil(t, apiErr)
	require.NotEmpty(t, ret.SealedPrivateData)

	var box sealedbox.SecretBox[models.PrivateData]
	require.NoError(t, decodeSecretBox(ret.SealedPrivateData, &box))
	data, err := box.Unseal(key)
	require.NoError(t, err)
	assert.NotEmpty(t, data.IdentityPublicKey)
}

func TestGetUserPrivateDataRejectsStaleVersion(t *testing.T) {
	now := time.Now()
	s, key := newTestState(now)
	record := sampleUserRecord(t, key)
	fs := newFakeStore(record)

	token := models.SessionToken{UserID: record.UserID, Version: record.Version + 1, State: models.NewStateLoggedIn(now.Unix(), true, false)}
	sealedToken, err := s.sealSessionToken(token)
	require.NoError(t, err)

	_, apiErr := s.GetUserPrivateData(context.Background(), fs, rpc.GetUserPrivateDataRequest{SealedSessionToken: sealedToken})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierr.KindInvalidSessionToken, apiErr.Kind())
}

func TestSetUserPrivateDataBumpsVersion(t *testing.T) {
	now := time.Now()
	s, key := newTestState(now)
	record := sampleUserRecord(t, key)
	fs := newFakeStore(record)
	sealedToken := sealedTokenFor(t, s, record, false)

	privateData, err := models.GeneratePrivateData()
	require.NoError(t, err)
	sealedPrivateData, err := sealedbox.Seal(key, privateData)
	require.NoError(t, err)
	encoded, err := encodeSecretBox(sealedPrivateData)
	require.NoError(t, err)

	_, apiErr := s.SetUserPrivateData(context.Background(), fs, rpc.SetUserPrivateDataRequest{
		SealedSessionToken: sealedToken,
		SealedPrivateData:  encoded,
	})
	require.Nil(t, apiErr)

	updated, err := fs.GetByUserID(context.Background(), record.UserID)
	require.NoError(t, err)
	assert.Equal(t, record.Version+1, updated.Version)
}

func TestGetExportKeysRequiresUber(t *testing.T) {
	now := time.Now()
	s, key := newTestState(now)
	record := sampleUserRecord(t, key)
	fs := newFakeStore(record)

	loggedInOnly := sealedTokenFor(t, s, record, false)
	_, apiErr := s.GetExportKeys(context.Background(), fs, rpc.GetExportKeysRequest{SealedSessionToken: loggedInOnly})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierr.KindInvalidSessionToken, apiErr.Kind())

	uber := sealedTokenFor(t, s, record, true)
	ret, apiErr := s.GetExportKeys(context.Background(), fs, rpc.GetExportKeysRequest{SealedSessionToken: uber})
	require.Nil(t, apiErr)
	assert.NotEmpty(t, ret.SealedExportKeyPrimary)
	assert.NotEmpty(t, ret.SealedExportKeyRecovery)
}

func TestRotateMasterKeyReplacesAllFields(t *testing.T) {
	now := time.Now()
	s, key := newTestState(now)
	record := sampleUserRecord(t, key)
	fs := newFakeStore(record)
	sealedToken := sealedTokenFor(t, s, record, true)

	newMasterKey, err := models.GenerateMasterKey()
	require.NoError(t, err)
	exportKeyPrimary := models.ExportKeyFromSlice([]byte("primary-export-key-32-bytes-long"))
	exportKeyRecovery := models.ExportKeyFromSlice([]byte("recovery-export-key-32-bytes-lon"))
	privateData, err := models.GeneratePrivateData()
	require.NoError(t, err)

	sealUnderExportKey := func(ek models.ExportKey, v models.MasterKey) []byte {
		box, err := sealedbox.Seal(sealedbox.Key(ek), v)
		require.NoError(t, err)
		out, err := encodeSecretBox(box)
		require.NoError(t, err)
		return out
	}
	sealUnderMasterKey := func(mk models.MasterKey, v models.ExportKey) []byte {
		box, err := sealedbox.Seal(sealedbox.Key(mk), v)
		require.NoError(t, err)
		out, err := encodeSecretBox(box)
		require.NoError(t, err)
		return out
	}
	sealPrivate := func(mk models.MasterKey, v models.PrivateData) []byte {
		box, err := sealedbox.Seal(sealedbox.Key(mk), v)
		require.NoError(t, err)
		out, err := encodeSecretBox(box)
		require.NoError(t, err)
		return out
	}

	req := rpc.RotateMasterKeyRequest{
		SealedSessionToken:      sealedToken,
		SealedMasterKeyPrimary:  sealUnderExportKey(exportKeyPrimary, newMasterKey),
		SealedMasterKeyRecovery: sealUnderExportKey(exportKeyRecovery, newMasterKey),
		SealedExportKeyPrimary:  sealUnderMasterKey(newMasterKey, exportKeyPrimary),
		SealedExportKeyRecovery: sealUnderMasterKey(newMasterKey, exportKeyRecovery),
		SealedPrivateData:       sealPrivate(newMasterKey, privateData),
	}

	_, apiErr := s.RotateMasterKey(context.Background(), fs, req)
	require.Nil(t, apiErr)

	updated, err := fs.GetByUserID(context.Background(), record.UserID)
	require.NoError(t, err)
	assert.Equal(t, record.Version+1, updated.Version)

	masterPrimary, err := updated.Primary.SecretMasterKey.Unseal(sealedbox.Key(exportKeyPrimary))
	require.NoError(t, err)
	assert.Equal(t, newMasterKey, masterPrimary)
	masterRecovery, err := updated.Recovery.SecretMasterKey.Unseal(sealedbox.Key(exportKeyRecovery))
	require.NoError(t, err)
	assert.Equal(t, newMasterKey, masterRecovery)
	gotExportPrimary, err := updated.Primary.SecretExportKey.Unseal(sealedbox.Key(newMasterKey))
	require.NoError(t, err)
	assert.Equal(t, exportKeyPrimary, gotExportPrimary)
	gotExportRecovery, err := updated.Recovery.SecretExportKey.Unseal(sealedbox.Key(newMasterKey))
	require.NoError(t, err)
	assert.Equal(t, exportKeyRecovery, gotExportRecovery)
	gotPrivate, err := updated.SecretPrivateData.Unseal(sealedbox.Key(newMasterKey))
	require.NoError(t, err)
	assert.Equal(t, privateData, gotPrivate)
}

func TestSetTotpRejectsBadDigits(t *testing.T) {
	now := time.Now()
	s, key := newTestState(now)
	record := sampleUserRecord(t, key)
	fs := newFakeStore(record)
	sealedToken := sealedTokenFor(t, s, record, true)

	bad := &models.TotpDescriptor{Secret: []byte("12345678901234567890"), Digits: 7, Algo: models.TotpAlgoSHA1, Period: 30}
	_, apiErr := s.SetTotp(context.Background(), fs, rpc.SetTotpRequest{SealedSessionToken: sealedToken, Totp: bad})
	require.NotNil(t, apiErr)
	assert.Equal(t, apierr.KindServerSideError, apiErr.Kind())
}

func TestSetTotpAcceptsValidDescriptorAndBumpsVersion(t *testing.T) {
	now := time.Now()
	s, key := newTestState(now)
	record := sampleUserRecord(t, key)
	fs := newFakeStore(record)
	sealedToken := sealedTokenFor(t, s, record, true)

	good := &models.TotpDescriptor{Secret: []byte("12345678901234567890"), Digits: 6, Algo: models.TotpAlgoSHA1, Period: 30}
	_, apiErr := s.SetTotp(context.Background(), fs, rpc.SetTotpRequest{SealedSessionToken: sealedToken, Totp: good})
	require.Nil(t, apiErr)

	updated, err := fs.GetByUserID(context.Background(), record.UserID)
	require.NoError(t, err)
	require.NotNil(t, updated.Totp)
	assert.Equal(t, record.Version+1, updated.Version)
}
