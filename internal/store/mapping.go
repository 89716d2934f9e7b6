// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/models"
)

// columnNames is the fixed column order every query and scan in this file
// agrees on; splitColumns, recordColumns, and recordColumnsMap must all
// stay in lockstep with it.
var columnNames = []string{
	"user_id", "username_primary", "username_recovery", "version",
	"opaque_password_primary", "opaque_password_recovery",
	"secret_master_key_primary", "secret_master_key_recovery",
	"secret_export_key_primary", "secret_export_key_recovery",
	"secret_private_data", "totp",
}

func splitColumns() []string {
	out := make([]string, len(columnNames))
	copy(out, columnNames)
	return out
}

// scanRecord reads one row shaped like columnNames into a UserRecord.
func scanRecord(row rowScanner) (models.UserRecord, error) {
	var (
		userID                                                             []byte
		usernamePrimary, usernameRecovery                                  []byte
		version                                                            int64
		opaquePrimary, opaqueRecovery                                      []byte
		secretMasterKeyPrimary, secretMasterKeyRecovery                    []byte
		secretExportKeyPrimary, secretExportKeyRecovery                    []byte
		secretPrivateData                                                  []byte
		totp                                                               sql.NullString
	)

	err := row.Scan(&userID, &usernamePrimary, &usernameRecovery, &version,
		&opaquePrimary, &opaqueRecovery,
		&secretMasterKeyPrimary, &secretMasterKeyRecovery,
		&secretExportKeyPrimary, &secretExportKeyRecovery,
		&secretPrivateData, &totp)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRecord{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserRecord{}, fmt.Errorf("store: scan: %w", err)
	}

	record := models.UserRecord{Version: uint64(version)}
	copy(record.UserID[:], userID)

	record.Primary.Username = models.Username(usernamePrimary)
	record.Primary.OpaquePassword = opaquePrimary
	if err := msgpack.Unmarshal(secretMasterKeyPrimary, &record.Primary.SecretMasterKey); err != nil {
		return models.UserRecord{}, fmt.Errorf("store: decode secret_master_key_primary: %w", err)
	}
	if err := msgpack.Unmarshal(secretExportKeyPrimary, &record.Primary.SecretExportKey); err != nil {
		return models.UserRecord{}, fmt.Errorf("store: decode secret_export_key_primary: %w", err)
	}

	record.Recovery.Username = models.Username(usernameRecovery)
	record.Recovery.OpaquePassword = opaqueRecovery
	if err := msgpack.Unmarshal(secretMasterKeyRecovery, &record.Recovery.SecretMasterKey); err != nil {
		return models.UserRecord{}, fmt.Errorf("store: decode secret_master_key_recovery: %w", err)
	}
	if err := msgpack.Unmarshal(secretExportKeyRecovery, &record.Recovery.SecretExportKey); err != nil {
		return models.UserRecord{}, fmt.Errorf("store: decode secret_export_key_recovery: %w", err)
	}

	if err := msgpack.Unmarshal(secretPrivateData, &record.SecretPrivateData); err != nil {
		return models.UserRecord{}, fmt.Errorf("store: decode secret_private_data: %w", err)
	}

	if totp.Valid {
		var descriptor models.TotpDescriptor
		if err := msgpack.Unmarshal([]byte(totp.String), &descriptor); err != nil {
			return models.UserRecord{}, fmt.Errorf("store: decode totp: %w", err)
		}
		record.Totp = &descriptor
	}

	return record, nil
}

// recordColumns returns record's values in columnNames order, for an
// INSERT ... VALUES.
func recordColumns(record models.UserRecord) ([]any, error) {
	m, err := recordColumnsMapIncludingKeys(record)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(columnNames))
	for i, name := range columnNames {
		out[i] = m[name]
	}
	return out, nil
}

// recordColumnsMap returns record's mutable columns (everything but
// user_id) keyed by column name, for an UPDATE ... SET.
func recordColumnsMap(record models.UserRecord) (map[string]any, error) {
	m, err := recordColumnsMapIncludingKeys(record)
	if err != nil {
		return nil, err
	}
	delete(m, "user_id")
	return m, nil
}

func recordColumnsMapIncludingKeys(record models.UserRecord) (map[string]any, error) {
	secretMasterKeyPrimary, err := msgpack.Marshal(record.Primary.SecretMasterKey)
	if err != nil {
		return nil, fmt.Errorf("store: encode secret_master_key_primary: %w", err)
	}
	secretExportKeyPrimary, err := msgpack.Marshal(record.Primary.SecretExportKey)
	if err != nil {
		return nil, fmt.Errorf("store: encode secret_export_key_primary: %w", err)
	}
	secretMasterKeyRecovery, err := msgpack.Marshal(record.Recovery.SecretMasterKey)
	if err != nil {
		return nil, fmt.Errorf("store: encode secret_master_key_recovery: %w", err)
	}
	secretExportKeyRecovery, err := msgpack.Marshal(record.Recovery.SecretExportKey)
	if err != nil {
		return nil, fmt.Errorf("store: encode secret_export_key_recovery: %w", err)
	}
	secretPrivateData, err := msgpack.Marshal(record.SecretPrivateData)
	if err != nil {
		return nil, fmt.Errorf("store: encode secret_private_data: %w", err)
	}

	var totp any
	if record.Totp != nil {
		encoded, err := msgpack.Marshal(record.Totp)
		if err != nil {
			return nil, fmt.Errorf("store: encode totp: %w", err)
		}
		totp = encoded
	}

	return map[string]any{
		"user_id":                    record.UserID.Bytes(),
		"username_primary":           []byte(record.Primary.Username),
		"username_recovery":          []byte(record.Recovery.Username),
		"version":                    int64(record.Version),
		"opaque_password_primary":   record.Primary.OpaquePassword,
		"opaque_password_recovery":  record.Recovery.OpaquePassword,
		"secret_master_key_primary":  secretMasterKeyPrimary,
		"secret_master_key_recovery": secretMasterKeyRecovery,
		"secret_export_key_primary":  secretExportKeyPrimary,
		"secret_export_key_recovery": secretExportKeyRecovery,
		"secret_private_data":        secretPrivateData,
		"totp":                       totp,
	}, nil
}
