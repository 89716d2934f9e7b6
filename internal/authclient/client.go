// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package authclient implements the client side of every RPC operation:
// the PAKE exchanges, the sealing/unsealing of every box the server never
// gets to open, and the UserState this client holds between calls.
//
// Client is not goroutine-safe for concurrent calls on the same instance,
// matching the single-owner discipline of the system it is modeled on: a
// rotation operation takes ownership of the logged-in state for the
// duration of its round trip, and two concurrent callers would race over
// that ownership.
package authclient

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
	"github.com/MKhiriev/cachou/internal/pake"
	"github.com/MKhiriev/cachou/internal/rpc"
	"github.com/MKhiriev/cachou/internal/sealedbox"
	"github.com/MKhiriev/cachou/models"
)

// recoveryPasswordLength is the size, in bytes, of the random recovery
// password generated at Signup and re-derived at LoginRecovery.
const recoveryPasswordLength = 16

// UserState is the closed set of authentication states a Client can be
// in. Only this package constructs values of it, so a caller can switch
// over the concrete variants exhaustively without worrying about a type
// appearing from outside the package.
type UserState interface {
	userState()
}

// UserNone is the initial, unauthenticated state.
type UserNone struct{}

func (UserNone) userState() {}

// UserNeedSecondFactor is held after a successful first-factor login on an
// account with TOTP configured. Token is the opaque, server-sealed session
// token wire bytes; this package never needs to unseal it (only the server
// holds the sealing key), only to read its own clearance out of it.
type UserNeedSecondFactor struct {
	Token []byte
}

func (UserNeedSecondFactor) userState() {}

// UserLoggedIn is the fully-authenticated state: the MasterKey and
// PrivateData recovered at login, plus the session token to present on
// every subsequent call.
type UserLoggedIn struct {
	MasterKey   models.MasterKey
	PrivateData models.PrivateData
	Token       []byte
}

func (UserLoggedIn) userState() {}

// Client holds the RPC transport and the single authentication state a
// caller is in. Use New to construct one.
type Client struct {
	transport *rpc.Client
	User      UserState
}

// New builds a Client in the UserNone state, talking to the server through
// transport.
func New(transport *rpc.Client) *Client {
	return &Client{transport: transport, User: UserNone{}}
}

// TakeLoggedIn zeroes c.User to UserNone and returns the previous
// UserLoggedIn value, the Go equivalent of the Rust "extract by move"
// idiom this package's rotation operations rely on: a rotation takes
// ownership of the logged-in state before its RPC round trip so that a
// failure partway through can never leave both the old and new state
// simultaneously valid in memory.
func (c *Client) TakeLoggedIn() (UserLoggedIn, bool) {
	prev, ok := c.User.(UserLoggedIn)
	c.User = UserNone{}
	return prev, ok
}

func clientErr(err error) *apierr.Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*apierr.Error); ok {
		return apiErr
	}
	return apierr.NewClientSideError(err)
}

func deriveRecoveryUsername(recoveryPassword []byte) models.Username {
	sum := sha256.Sum256(recoveryPassword)
	return models.Username(sum[:16])
}

func encodeBox[C any](box sealedbox.SecretBox[C]) ([]byte, error) {
	return msgpack.Marshal(box)
}

func sealBox[C any](key sealedbox.Key, value C) ([]byte, error) {
	box, err := sealedbox.Seal(key, value)
	if err != nil {
		return nil, err
	}
	return encodeBox(box)
}

func unsealBox[C any](key sealedbox.Key, data []byte) (C, error) {
	var zero C
	var box sealedbox.SecretBox[C]
	if err := msgpack.Unmarshal(data, &box); err != nil {
		return zero, fmt.Errorf("authclient: decode sealed box: %w", err)
	}
	return box.Unseal(key)
}

// decodeToken decodes the server-opaque session-token wire bytes to read
// the public, unverified clearance state out of it. It never proves
// authenticity — only the server, holding the sealing key, can do that —
// it exists purely so this client can decide locally whether it needs a
// second factor or is done.
func decodeToken(data []byte) (models.SessionToken, error) {
	var box sealedbox.AuthBox[sealedbox.Unit, models.SessionToken]
	if err := msgpack.Unmarshal(data, &box); err != nil {
		return models.SessionToken{}, fmt.Errorf("authclient: decode session token: %w", err)
	}
	return box.GetUnverifiedAssociatedData()
}

// registerCredentials runs one full PAKE registration round trip for
// slot id (NewCredentials, then RegistrationFinish locally, then one
// CredentialSubmission), sealing masterKey under the freshly-derived
// ExportKey and the ExportKey under masterKey in turn, exactly the shape
// RotateMasterKey later needs to unwind.
func registerCredentials(ctx context.Context, c *Client, id pake.Identifier, username models.Username, password []byte, masterKey models.MasterKey) (rpc.CredentialSubmission, error) {
	state, msg1, err := pake.ClientRegistrationStart(id, password)
	if err != nil {
		return rpc.CredentialSubmission{}, fmt.Errorf("authclient: registration start: %w", err)
	}

	ret, err := rpc.Call[rpc.NewCredentialsRequest, rpc.NewCredentialsRet](ctx, c.transport, rpc.KindNewCredentials, rpc.NewCredentialsRequest{
		Recovery:  id == pake.IdentifierRecovery,
		OpaqueMsg: msg1,
	})
	if err != nil {
		return rpc.CredentialSubmission{}, err
	}

	msg3, exportKeyRaw, err := pake.ClientRegistrationFinish(state, ret.OpaqueMsg, username, id)
	if err != nil {
		return rpc.CredentialSubmission{}, fmt.Errorf("authclient: registration finish: %w", err)
	}
	exportKey := models.ExportKeyFromSlice(exportKeyRaw)

	sealedMasterKey, err := sealBox(sealedbox.Key(exportKey), masterKey)
	if err != nil {
		return rpc.CredentialSubmission{}, err
	}
	sealedExportKey, err := sealBox(sealedbox.Key(masterKey), exportKey)
	if err != nil {
		return rpc.CredentialSubmission{}, err
	}

	return rpc.CredentialSubmission{
		SealedServerState: ret.SealedServerState,
		OpaqueMsg:         msg3,
		Username:          username,
		SealedMasterKey:   sealedMasterKey,
		SealedExportKey:   sealedExportKey,
	}, nil
}

// Signup creates a brand-new account: a fresh MasterKey and PrivateData, a
// user-chosen primary username/password, and a freshly generated recovery
// credential. On success c.User becomes UserLoggedIn and the returned
// string is the Base58-encoded recovery password the caller must show the
// user exactly once.
func (c *Client) Signup(ctx context.Context, username models.Username, password []byte) (string, *apierr.Error) {
	masterKey, err := models.GenerateMasterKey()
	if err != nil {
		return "", clientErr(err)
	}
	privateData, err := models.GeneratePrivateData()
	if err != nil {
		return "", clientErr(err)
	}

	recoveryPassword := make([]byte, recoveryPasswordLength)
	if _, err := rand.Read(recoveryPassword); err != nil {
		return "", clientErr(fmt.Errorf("authclient: draw recovery password: %w", err))
	}
	recoveryUsername := deriveRecoveryUsername(recoveryPassword)

	primarySub, err := registerCredentials(ctx, c, pake.IdentifierPrimary, username, password, masterKey)
	if err != nil {
		return "", clientErr(err)
	}
	recoverySub, err := registerCredentials(ctx, c, pake.IdentifierRecovery, recoveryUsername, recoveryPassword, masterKey)
	if err != nil {
		return "", clientErr(err)
	}

	sealedPrivateData, err := sealBox(sealedbox.Key(masterKey), privateData)
	if err != nil {
		return "", clientErr(err)
	}

	ret, err := rpc.Call[rpc.AddUserRequest, rpc.AddUserRet](ctx, c.transport, rpc.KindAddUser, rpc.AddUserRequest{
		Primary:           primarySub,
		Recovery:          recoverySub,
		SealedPrivateData: sealedPrivateData,
	})
	if err != nil {
		return "", clientErr(err)
	}

	c.User = UserLoggedIn{MasterKey: masterKey, PrivateData: privateData, Token: ret.SealedSessionToken}
	return base58.Encode(recoveryPassword), nil
}

func (c *Client) loginAgainst(ctx context.Context, id pake.Identifier, username models.Username, password []byte, uber bool) error {
	state, msg1, err := pake.ClientLoginStart(id, password)
	if err != nil {
		return fmt.Errorf("authclient: login start: %w", err)
	}

	start, err := rpc.Call[rpc.LoginStartRequest, rpc.LoginStartRet](ctx, c.transport, rpc.KindLoginStart, rpc.LoginStartRequest{
		Recovery:  id == pake.IdentifierRecovery,
		Username:  username,
		OpaqueMsg: msg1,
	})
	if err != nil {
		return err
	}

	msg3, exportKeyRaw, err := pake.ClientLoginFinish(state, start.OpaqueMsg, username, id)
	if err != nil {
		if errors.Is(err, pake.ErrInvalidPassword) {
			return apierr.New(apierr.KindInvalidPassword)
		}
		return fmt.Errorf("%w", err)
	}
	exportKey := models.ExportKeyFromSlice(exportKeyRaw)

	finish, err := rpc.Call[rpc.LoginFinishRequest, rpc.LoginFinishRet](ctx, c.transport, rpc.KindLoginFinish, rpc.LoginFinishRequest{
		SealedServerState: start.SealedServerState,
		OpaqueMsg:         msg3,
		UberClearance:     uber,
	})
	if err != nil {
		return err
	}

	token, err := decodeToken(finish.SealedSessionToken)
	if err != nil {
		return err
	}

	if _, ok := token.State.(models.StateNeedSecondFactor); ok {
		c.User = UserNeedSecondFactor{Token: finish.SealedSessionToken}
		return nil
	}

	masterKey, err := unsealBox[models.MasterKey](sealedbox.Key(exportKey), finish.SealedMasterKey)
	if err != nil {
		return fmt.Errorf("authclient: unseal master key: %w", err)
	}

	privateData, apiErr := c.getPrivateData(ctx, finish.SealedSessionToken, masterKey)
	if apiErr != nil {
		return apiErr
	}

	c.User = UserLoggedIn{MasterKey: masterKey, PrivateData: privateData, Token: finish.SealedSessionToken}
	return nil
}

// Login authenticates the primary username/password slot. uber requests
// that, absent a second factor, the issued session start with uber
// elevation already granted.
func (c *Client) Login(ctx context.Context, username models.Username, password []byte, uber bool) *apierr.Error {
	if err := c.loginAgainst(ctx, pake.IdentifierPrimary, username, password, uber); err != nil {
		return clientErr(err)
	}
	return nil
}

// LoginRecovery decodes a Base58 recovery password, derives its username
// deterministically, and otherwise behaves exactly like Login against the
// recovery slot.
func (c *Client) LoginRecovery(ctx context.Context, recoveryKey string, uber bool) *apierr.Error {
	recoveryPassword, err := base58.Decode(recoveryKey)
	if err != nil {
		return apierr.NewClientSideError(fmt.Errorf("authclient: decode recovery key: %w", err))
	}
	username := deriveRecoveryUsername(recoveryPassword)
	if err := c.loginAgainst(ctx, pake.IdentifierRecovery, username, recoveryPassword, uber); err != nil {
		return clientErr(err)
	}
	return nil
}

func (c *Client) getPrivateData(ctx context.Context, token []byte, masterKey models.MasterKey) (models.PrivateData, *apierr.Error) {
	ret, err := rpc.Call[rpc.GetUserPrivateDataRequest, rpc.GetUserPrivateDataRet](ctx, c.transport, rpc.KindGetUserPrivateData, rpc.GetUserPrivateDataRequest{
		SealedSessionToken: token,
	})
	if err != nil {
		return models.PrivateData{}, clientErr(err)
	}
	data, uErr := unsealBox[models.PrivateData](sealedbox.Key(masterKey), ret.SealedPrivateData)
	if uErr != nil {
		return models.PrivateData{}, apierr.NewClientSideError(fmt.Errorf("authclient: unseal private data: %w", uErr))
	}
	return data, nil
}

// SetUserPrivateData replaces the logged-in user's PrivateData in both
// local state and on the server.
func (c *Client) SetUserPrivateData(ctx context.Context, privateData models.PrivateData) *apierr.Error {
	loggedIn, ok := c.User.(UserLoggedIn)
	if !ok {
		return apierr.New(apierr.KindInvalidSessionToken)
	}

	sealed, err := sealBox(sealedbox.Key(loggedIn.MasterKey), privateData)
	if err != nil {
		return clientErr(err)
	}

	_, callErr := rpc.Call[rpc.SetUserPrivateDataRequest, rpc.Empty](ctx, c.transport, rpc.KindSetUserPrivateData, rpc.SetUserPrivateDataRequest{
		SealedSessionToken: loggedIn.Token,
		SealedPrivateData:  sealed,
	})
	if callErr != nil {
		return clientErr(callErr)
	}

	loggedIn.PrivateData = privateData
	c.User = loggedIn
	return nil
}

// rotateCredentials replaces one credential slot. It requires Uber
// clearance, matching UpdateCredentialsRequest's requirement. The client
// takes ownership of the logged-in state up front (TakeLoggedIn); on any
// failure where the server's commit outcome is not known for certain, it
// leaves c.User at UserNone rather than guessing the old state is still
// good, per this package's rotation discipline.
func (c *Client) rotateCredentials(ctx context.Context, id pake.Identifier, username models.Username, password []byte) *apierr.Error {
	loggedIn, ok := c.TakeLoggedIn()
	if !ok {
		return apierr.New(apierr.KindInvalidSessionToken)
	}

	sub, err := registerCredentials(ctx, c, id, username, password, loggedIn.MasterKey)
	if err != nil {
		return clientErr(err)
	}

	_, callErr := rpc.Call[rpc.UpdateCredentialsRequest, rpc.Empty](ctx, c.transport, rpc.KindUpdateCredentials, rpc.UpdateCredentialsRequest{
		Recovery:           id == pake.IdentifierRecovery,
		Credentials:        sub,
		SealedSessionToken: loggedIn.Token,
	})
	if callErr != nil {
		return clientErr(callErr)
	}

	c.User = loggedIn
	return nil
}

// SetUsernamePassword replaces the primary credential slot. Requires Uber.
func (c *Client) SetUsernamePassword(ctx context.Context, username models.Username, password []byte) *apierr.Error {
	return c.rotateCredentials(ctx, pake.IdentifierPrimary, username, password)
}

// ChangeRecoveryKey generates a fresh recovery password and submits it as
// the recovery credential slot, returning the new Base58-encoded key.
// Requires Uber.
func (c *Client) ChangeRecoveryKey(ctx context.Context) (string, *apierr.Error) {
	recoveryPassword := make([]byte, recoveryPasswordLength)
	if _, err := rand.Read(recoveryPassword); err != nil {
		return "", clientErr(fmt.Errorf("authclient: draw recovery password: %w", err))
	}
	username := deriveRecoveryUsername(recoveryPassword)
	if apiErr := c.rotateCredentials(ctx, pake.IdentifierRecovery, username, recoveryPassword); apiErr != nil {
		return "", apiErr
	}
	return base58.Encode(recoveryPassword), nil
}

// RotateMasterKey replaces the MasterKey wholesale: it fetches both
// slots' ExportKey-sealed boxes, unseals them under the current
// MasterKey, draws a fresh MasterKey, and reseals everything — both
// SecretMasterKeys, both SecretExportKeys, and PrivateData — under it in
// one atomic call. Requires Uber; follows the same take-then-restore
// discipline as rotateCredentials.
func (c *Client) RotateMasterKey(ctx context.Context) *apierr.Error {
	loggedIn, ok := c.TakeLoggedIn()
	if !ok {
		return apierr.New(apierr.KindInvalidSessionToken)
	}

	exportKeys, err := rpc.Call[rpc.GetExportKeysRequest, rpc.GetExportKeysRet](ctx, c.transport, rpc.KindGetExportKeys, rpc.GetExportKeysRequest{
		SealedSessionToken: loggedIn.Token,
	})
	if err != nil {
		return clientErr(err)
	}

	exportKeyPrimary, err := unsealBox[models.ExportKey](sealedbox.Key(loggedIn.MasterKey), exportKeys.SealedExportKeyPrimary)
	if err != nil {
		return clientErr(fmt.Errorf("authclient: unseal primary export key: %w", err))
	}
	exportKeyRecovery, err := unsealBox[models.ExportKey](sealedbox.Key(loggedIn.MasterKey), exportKeys.SealedExportKeyRecovery)
	if err != nil {
		return clientErr(fmt.Errorf("authclient: unseal recovery export key: %w", err))
	}

	newMasterKey, err := models.GenerateMasterKey()
	if err != nil {
		return clientErr(err)
	}

	sealedMasterPrimary, err := sealBox(sealedbox.Key(exportKeyPrimary), newMasterKey)
	if err != nil {
		return clientErr(err)
	}
	sealedMasterRecovery, err := sealBox(sealedbox.Key(exportKeyRecovery), newMasterKey)
	if err != nil {
		return clientErr(err)
	}
	sealedExportPrimary, err := sealBox(sealedbox.Key(newMasterKey), exportKeyPrimary)
	if err != nil {
		return clientErr(err)
	}
	sealedExportRecovery, err := sealBox(sealedbox.Key(newMasterKey), exportKeyRecovery)
	if err != nil {
		return clientErr(err)
	}
	sealedPrivateData, err := sealBox(sealedbox.Key(newMasterKey), loggedIn.PrivateData)
	if err != nil {
		return clientErr(err)
	}

	_, callErr := rpc.Call[rpc.RotateMasterKeyRequest, rpc.Empty](ctx, c.transport, rpc.KindRotateMasterKey, rpc.RotateMasterKeyRequest{
		SealedSessionToken:      loggedIn.Token,
		SealedMasterKeyPrimary:  sealedMasterPrimary,
		SealedMasterKeyRecovery: sealedMasterRecovery,
		SealedExportKeyPrimary:  sealedExportPrimary,
		SealedExportKeyRecovery: sealedExportRecovery,
		SealedPrivateData:       sealedPrivateData,
	})
	if callErr != nil {
		return clientErr(callErr)
	}

	loggedIn.MasterKey = newMasterKey
	c.User = loggedIn
	return nil
}

// SetTotp installs descriptor as the account's second-factor requirement,
// or removes second-factor enforcement entirely when descriptor is nil
// (UnsetTotp). Requires Uber.
func (c *Client) SetTotp(ctx context.Context, descriptor *models.TotpDescriptor) *apierr.Error {
	loggedIn, ok := c.User.(UserLoggedIn)
	if !ok {
		return apierr.New(apierr.KindInvalidSessionToken)
	}

	_, err := rpc.Call[rpc.SetTotpRequest, rpc.Empty](ctx, c.transport, rpc.KindSetTotp, rpc.SetTotpRequest{
		SealedSessionToken: loggedIn.Token,
		Totp:               descriptor,
	})
	if err != nil {
		return clientErr(err)
	}
	return nil
}

// UnsetTotp removes second-factor enforcement from the account. Requires
// Uber.
func (c *Client) UnsetTotp(ctx context.Context) *apierr.Error {
	return c.SetTotp(ctx, nil)
}

// Logout discards all local authentication state. It makes no RPC call:
// the server holds no per-session state to tear down, only the sealed
// token the client is about to forget.
func (c *Client) Logout() {
	c.User = UserNone{}
}
