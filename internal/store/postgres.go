// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MKhiriev/cachou/internal/logger"
	"github.com/MKhiriev/cachou/migrations"
	"github.com/MKhiriev/cachou/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DB is the PostgreSQL-backed store.Beginner. It opens connections through
// the pgx stdlib driver, matching this project's logging and connection
// lifecycle conventions for every other SQL-backed component.
type DB struct {
	*sql.DB
	logger *logger.Logger
}

// NewConnectPostgres opens a PostgreSQL connection pool at dsn and verifies
// reachability with a ping before returning.
func NewConnectPostgres(ctx context.Context, dsn string, log *logger.Logger) (*DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open connection: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(4)

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	log.Debug().Msg("connected to database successfully")

	if err := migrations.Migrate(conn); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	log.Debug().Msg("schema migrations applied")

	return &DB{DB: conn, logger: log}, nil
}

// BeginTx implements store.Beginner.
func (db *DB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

// sqlTx is the database/sql-backed store.Tx.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Queries() UserStore           { return &queries{exec: t.tx} }
func (t *sqlTx) Commit(ctx context.Context) error { return t.tx.Commit() }
func (t *sqlTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanRecord serve both GetByUsername/GetByUserID.
type rowScanner interface {
	Scan(dest ...any) error
}

// queries is the transaction-scoped store.UserStore implementation.
type queries struct {
	exec *sql.Tx
}

const userColumns = `user_id, username_primary, username_recovery, version,
	opaque_password_primary, opaque_password_recovery,
	secret_master_key_primary, secret_master_key_recovery,
	secret_export_key_primary, secret_export_key_recovery,
	secret_private_data, totp`

func (q *queries) GetByUsername(ctx context.Context, recovery bool, username models.Username) (models.UserRecord, error) {
	column := "username_primary"
	if recovery {
		column = "username_recovery"
	}
	sqlStr, args, err := psql.Select(splitColumns()...).
		From("users").
		Where(sq.Eq{column: []byte(username)}).
		ToSql()
	if err != nil {
		return models.UserRecord{}, fmt.Errorf("store: build query: %w", err)
	}
	row := q.exec.QueryRowContext(ctx, sqlStr, args...)
	return scanRecord(row)
}

func (q *queries) GetByUserID(ctx context.Context, id models.UserID) (models.UserRecord, error) {
	sqlStr, args, err := psql.Select(splitColumns()...).
		From("users").
		Where(sq.Eq{"user_id": id.Bytes()}).
		ToSql()
	if err != nil {
		return models.UserRecord{}, fmt.Errorf("store: build query: %w", err)
	}
	row := q.exec.QueryRowContext(ctx, sqlStr, args...)
	return scanRecord(row)
}

func (q *queries) Insert(ctx context.Context, record models.UserRecord) error {
	if record.Version != 0 {
		return fmt.Errorf("store: insert requires version 0, got %d", record.Version)
	}
	cols, err := recordColumns(record)
	if err != nil {
		return err
	}
	builder := psql.Insert("users").Columns(splitColumns()...).Values(cols...)
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("store: build insert: %w", err)
	}
	_, err = q.exec.ExecContext(ctx, sqlStr, args...)
	if code(err) == pgerrcode.UniqueViolation {
		return ErrUsernameConflict
	}
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (q *queries) Update(ctx context.Context, record models.UserRecord, expectedVersion uint64) error {
	if record.Version != expectedVersion+1 {
		return fmt.Errorf("store: update requires version %d, got %d", expectedVersion+1, record.Version)
	}
	cols, err := recordColumnsMap(record)
	if err != nil {
		return err
	}
	sqlStr, args, err := psql.Update("users").
		SetMap(cols).
		Where(sq.Eq{"user_id": record.UserID.Bytes(), "version": expectedVersion}).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build update: %w", err)
	}
	res, err := q.exec.ExecContext(ctx, sqlStr, args...)
	if code(err) == pgerrcode.UniqueViolation {
		return ErrUsernameConflict
	}
	if err != nil {
		return fmt.Errorf("store: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
