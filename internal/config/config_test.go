// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigBuilderInitialState(t *testing.T) {
	b := newConfigBuilder()
	require.NotNil(t, b)
	assert.NoError(t, b.err)
	assert.Empty(t, b.configs)
}

func TestBuildMergesMultipleConfigs(t *testing.T) {
	b := newConfigBuilder()
	b.configs = append(b.configs,
		&StructuredConfig{App: App{Version: "1.0.0"}},
		&StructuredConfig{App: App{SecretKeyPath: "/k"}},
	)
	b.configs = append(b.configs,
		&StructuredConfig{
			Storage: Storage{DB: DB{DSN: "postgres://x"}},
			Server:  Server{HTTPAddress: "0.0.0.0:8080"},
			App: App{
				OpaqueSetupPath:              "/s",
				SessionOneFactorDurationSec:  60,
				SessionLoggedDurationSec:     3600,
				SessionAutoLogoutDurationSec: 900,
				SessionUberDurationSec:       300,
			},
		},
	)

	cfg, err := b.build()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", cfg.App.Version)
	assert.Equal(t, "/k", cfg.App.SecretKeyPath)
	assert.Equal(t, "/s", cfg.App.OpaqueSetupPath)
	assert.Equal(t, "postgres://x", cfg.Storage.DB.DSN)
}

func TestBuildPropagatesBuilderError(t *testing.T) {
	b := newConfigBuilder()
	b.err = assert.AnError

	cfg, err := b.build()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWithEnvReadsEnvVars(t *testing.T) {
	t.Setenv("APP_VERSION", "env-version")
	t.Setenv("APP_SECRET_KEY_PATH", "/env/key")

	b := newConfigBuilder()
	b.withEnv()

	require.Len(t, b.configs, 1)
	assert.Equal(t, "env-version", b.configs[0].App.Version)
	assert.Equal(t, "/env/key", b.configs[0].App.SecretKeyPath)
}

func TestValidateRejectsMissingDSN(t *testing.T) {
	cfg := &StructuredConfig{
		Server: Server{HTTPAddress: "0.0.0.0:8080"},
		App: App{
			SecretKeyPath: "/k", OpaqueSetupPath: "/s",
			SessionOneFactorDurationSec: 1, SessionLoggedDurationSec: 1,
			SessionAutoLogoutDurationSec: 1, SessionUberDurationSec: 1,
		},
	}
	assert.ErrorIs(t, cfg.validate(), ErrInvalidStorageConfigs)
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := &StructuredConfig{
		Storage: Storage{DB: DB{DSN: "postgres://x"}},
		Server:  Server{HTTPAddress: "0.0.0.0:8080"},
		App: App{
			SecretKeyPath: "/k", OpaqueSetupPath: "/s",
			SessionOneFactorDurationSec: 60, SessionLoggedDurationSec: 3600,
			SessionAutoLogoutDurationSec: 900, SessionUberDurationSec: 300,
		},
	}
	assert.NoError(t, cfg.validate())
}

func TestSessionDurationsConvertsSeconds(t *testing.T) {
	a := App{
		SessionOneFactorDurationSec:  60,
		SessionLoggedDurationSec:     3600,
		SessionAutoLogoutDurationSec: 900,
		SessionUberDurationSec:       300,
	}
	oneFactor, logged, autoLogout, uber := a.SessionDurations()
	assert.Equal(t, time.Minute, oneFactor)
	assert.Equal(t, time.Hour, logged)
	assert.Equal(t, 15*time.Minute, autoLogout)
	assert.Equal(t, 5*time.Minute, uber)
}
