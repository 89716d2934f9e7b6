// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package pake adapts github.com/bytemare/opaque's OPAQUE implementation to
// the eight stateless operations this system's client and server auth
// handlers need. Everything downstream of this package works exclusively
// in terms of these eight functions and the two fixed Identifiers below —
// no other package imports bytemare/opaque directly, so a mismatch between
// this adapter and the library's exact surface stays contained to this one
// file.
package pake

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/bytemare/opaque"
	"github.com/bytemare/opaque/message"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidPassword is returned by ClientLoginFinish and ServerLoginFinish
// when a login fails specifically because the submitted password does not
// match the registered one, as opposed to a transport or protocol error.
var ErrInvalidPassword = errors.New("pake: invalid password")

// Identifier is a 32-byte value that domain-separates a registration or
// login flow so a message exchanged for one credential slot can never be
// replayed against the other.
type Identifier [32]byte

// Bytes returns id as a plain byte slice.
func (id Identifier) Bytes() []byte { return id[:] }

var (
	// IdentifierPrimary domain-separates the user-chosen username/password
	// credential slot.
	IdentifierPrimary = Identifier{'c', 'a', 'c', 'h', 'o', 'u', '-', 'p', 'r', 'i', 'm', 'a', 'r', 'y'}
	// IdentifierRecovery domain-separates the randomly-generated recovery
	// credential slot.
	IdentifierRecovery = Identifier{'c', 'a', 'c', 'h', 'o', 'u', '-', 'r', 'e', 'c', 'o', 'v', 'e', 'r', 'y'}
)

// argon2idStretch derives a 32-byte Argon2id key from a password and salt.
// Nothing in this package calls it: primaryConfiguration selects the OPAQUE
// library's own Argon2id KSF for the primary flow, and recoveryConfiguration
// selects the identity KSF, since the recovery "password" is already a
// 128-bit uniform random string and gains nothing from further stretching.
//
// Parameters follow OWASP's current minimum recommendation for an
// interactive login path: one pass, 64 MiB, four lanes.
func argon2idStretch(password, salt []byte) []byte {
	const (
		time    = 1
		memory  = 64 * 1024
		threads = 4
		keyLen  = 32
	)
	return argon2.IDKey(password, salt, time, memory, threads, keyLen)
}

// Setup is the server's long-term OPAQUE key material: an asymmetric
// keypair and an OPRF seed, both generated once by the admin CLI and read
// at startup.
type Setup struct {
	ServerPrivateKey []byte
	ServerPublicKey  []byte
	OprfSeed         []byte
}

// GenerateSetup draws a fresh server setup for a new deployment.
func GenerateSetup(conf *opaque.Configuration) (Setup, error) {
	sk, pk, err := conf.KeyGen()
	if err != nil {
		return Setup{}, fmt.Errorf("pake: server keygen: %w", err)
	}
	seed := make([]byte, conf.Hash.Size())
	if _, err := rand.Read(seed); err != nil {
		return Setup{}, fmt.Errorf("pake: draw oprf seed: %w", err)
	}
	return Setup{ServerPrivateKey: sk, ServerPublicKey: pk, OprfSeed: seed}, nil
}

// primaryConfiguration is the OPAQUE configuration used for the primary
// credential slot, with Argon2id as the key-stretching function.
func primaryConfiguration() *opaque.Configuration {
	conf := opaque.DefaultConfiguration()
	conf.KSF = opaque.Argon2id
	return conf
}

// recoveryConfiguration is used for the recovery credential slot: no
// key-stretching function, since the recovery password is already
// uniformly random.
func recoveryConfiguration() *opaque.Configuration {
	conf := opaque.DefaultConfiguration()
	conf.KSF = opaque.Identity
	return conf
}

func configurationFor(id Identifier) *opaque.Configuration {
	if id == IdentifierRecovery {
		return recoveryConfiguration()
	}
	return primaryConfiguration()
}

// ClientRegistrationState is the opaque intermediate value a client holds
// between ClientRegistrationStart and ClientRegistrationFinish. Callers
// treat it as an inert blob.
type ClientRegistrationState struct {
	client *opaque.Client
}

// ClientRegistrationStart begins registration of password under slot id,
// returning local state and the first protocol message to send the server.
func ClientRegistrationStart(id Identifier, password []byte) (ClientRegistrationState, []byte, error) {
	client, err := configurationFor(id).Client()
	if err != nil {
		return ClientRegistrationState{}, nil, fmt.Errorf("pake: build client: %w", err)
	}
	req := client.RegistrationInit(password)
	return ClientRegistrationState{client: client}, req.Serialize(), nil
}

// ServerRegistrationStart processes a client's registration request and
// returns the server's response message. setup is the server's long-term
// key material; username identifies the credential record being created.
func ServerRegistrationStart(id Identifier, setup Setup, msg1 []byte, username []byte) ([]byte, error) {
	conf := configurationFor(id)
	server, err := conf.Server()
	if err != nil {
		return nil, fmt.Errorf("pake: build server: %w", err)
	}
	req, err := conf.RegistrationRequestDeserializer().Deserialize(msg1)
	if err != nil {
		return nil, fmt.Errorf("pake: decode registration request: %w", err)
	}
	resp, err := server.RegistrationResponse(req.(*message.RegistrationRequest), setup.ServerPublicKey, username, setup.OprfSeed)
	if err != nil {
		return nil, fmt.Errorf("pake: server registration response: %w", err)
	}
	return resp.Serialize(), nil
}

// ClientRegistrationFinish completes registration started by
// ClientRegistrationStart, given the server's response. It returns the
// final message to submit to the server and the ExportKey derived from the
// password; the caller seals MasterKey under this key.
func ClientRegistrationFinish(state ClientRegistrationState, msg2 []byte, username []byte, serverID Identifier) ([]byte, []byte, error) {
	client := state.client
	resp, err := client.Deserialize.RegistrationResponse(msg2)
	if err != nil {
		return nil, nil, fmt.Errorf("pake: decode registration response: %w", err)
	}
	record, exportKey, err := client.RegistrationFinalize(resp, opaque.ClientRegistrationFinalizeOptions{
		ClientIdentity: username,
		ServerIdentity: serverID.Bytes(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pake: registration finalize: %w", err)
	}
	return record.Serialize(), exportKey, nil
}

// ServerRegistrationFinish decodes a client's final registration message
// into the opaque password record persisted for this credential slot.
func ServerRegistrationFinish(id Identifier, msg3 []byte) ([]byte, error) {
	conf := configurationFor(id)
	record, err := conf.RegistrationRecordDeserializer().Deserialize(msg3)
	if err != nil {
		return nil, fmt.Errorf("pake: decode registration record: %w", err)
	}
	return record.Serialize(), nil
}

// ClientLoginState is the opaque intermediate value a client holds between
// ClientLoginStart and ClientLoginFinish.
type ClientLoginState struct {
	client *opaque.Client
}

// ClientLoginStart begins a login attempt, returning local state and the
// first protocol message to send the server.
func ClientLoginStart(id Identifier, password []byte) (ClientLoginState, []byte, error) {
	client, err := configurationFor(id).Client()
	if err != nil {
		return ClientLoginState{}, nil, fmt.Errorf("pake: build client: %w", err)
	}
	ke1 := client.LoginInit(password)
	return ClientLoginState{client: client}, ke1.Serialize(), nil
}

// ServerLoginState is the opaque intermediate value a server holds between
// ServerLoginStart and ServerLoginFinish: the ephemeral AKE secrets the
// server generated in LoginInit, needed again to verify the client's final
// MAC in LoginFinish. Unlike registration, which needs no server-side
// state at all, login cannot be made stateless: the server must remember
// what it randomly chose.
//
// This is round-tripped through the client inside a sealed login-state
// envelope (see authserver), never held in server memory between requests, per the
// "no server-side per-flow storage" design.
type ServerLoginState struct {
	id     Identifier
	server *opaque.Server
}

// Bytes serializes state for sealing. This is the single highest-risk call
// in this adapter: it assumes *opaque.Server exposes a full mid-protocol
// serialization of its AKE secrets, which this package's isolation is
// specifically meant to contain if the assumption is wrong.
func (s ServerLoginState) Bytes() ([]byte, error) {
	return s.server.Serialize()
}

// ServerLoginStateFromBytes reconstructs a ServerLoginState previously
// produced by Bytes, for the same credential slot id.
func ServerLoginStateFromBytes(id Identifier, data []byte) (ServerLoginState, error) {
	server, err := configurationFor(id).Server()
	if err != nil {
		return ServerLoginState{}, fmt.Errorf("pake: build server: %w", err)
	}
	if err := server.Deserialize(data); err != nil {
		return ServerLoginState{}, fmt.Errorf("pake: decode server login state: %w", err)
	}
	return ServerLoginState{id: id, server: server}, nil
}

// ServerLoginStart processes a client's login request against the stored
// opaquePassword record and returns local state and the server's response.
func ServerLoginStart(id Identifier, setup Setup, opaquePassword []byte, msg1 []byte, username []byte) (ServerLoginState, []byte, error) {
	conf := configurationFor(id)
	server, err := conf.Server()
	if err != nil {
		return ServerLoginState{}, nil, fmt.Errorf("pake: build server: %w", err)
	}
	ke1, err := conf.Ke1Deserializer().Deserialize(msg1)
	if err != nil {
		return ServerLoginState{}, nil, fmt.Errorf("pake: decode ke1: %w", err)
	}
	record, err := conf.RegistrationRecordDeserializer().Deserialize(opaquePassword)
	if err != nil {
		return ServerLoginState{}, nil, fmt.Errorf("pake: decode stored record: %w", err)
	}
	ke2, err := server.LoginInit(ke1.(*message.KE1), setup.ServerPrivateKey, setup.ServerPublicKey, record, username, setup.OprfSeed)
	if err != nil {
		return ServerLoginState{}, nil, fmt.Errorf("pake: server login init: %w", err)
	}
	return ServerLoginState{id: id, server: server}, ke2.Serialize(), nil
}

// ClientLoginFinish completes a login started by ClientLoginStart, given
// the server's response. It returns the final message to submit to the
// server and the ExportKey derived from the password. A wrong password
// surfaces as ErrInvalidPassword.
func ClientLoginFinish(state ClientLoginState, msg2 []byte, username []byte, serverID Identifier) ([]byte, []byte, error) {
	client := state.client
	ke2, err := client.Deserialize.KE2(msg2)
	if err != nil {
		return nil, nil, fmt.Errorf("pake: decode ke2: %w", err)
	}
	ke3, exportKey, err := client.LoginFinish(ke2, opaque.ClientLoginFinishOptions{
		ClientIdentity: username,
		ServerIdentity: serverID.Bytes(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return ke3.Serialize(), exportKey, nil
}

// ServerLoginFinish verifies the client's final login message against
// state. A failure here means the client did not hold the matching
// password and is reported as ErrInvalidPassword.
func ServerLoginFinish(state ServerLoginState, msg3 []byte) error {
	conf := configurationFor(state.id)
	ke3, err := conf.Ke3Deserializer().Deserialize(msg3)
	if err != nil {
		return fmt.Errorf("pake: decode ke3: %w", err)
	}
	if err := state.server.LoginFinish(ke3.(*message.KE3)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return nil
}
