// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

// validate checks that the final merged [StructuredConfig] satisfies the
// invariants the server cannot start without.
func (cfg *StructuredConfig) validate() error {
	if cfg.Storage.DB.DSN == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Server.HTTPAddress == "" {
		return ErrInvalidServerConfigs
	}

	if cfg.App.SecretKeyPath == "" || cfg.App.OpaqueSetupPath == "" {
		return ErrInvalidAppConfigs
	}

	if cfg.App.SessionOneFactorDurationSec == 0 || cfg.App.SessionLoggedDurationSec == 0 ||
		cfg.App.SessionAutoLogoutDurationSec == 0 || cfg.App.SessionUberDurationSec == 0 {
		return ErrInvalidAppConfigs
	}

	return nil
}
