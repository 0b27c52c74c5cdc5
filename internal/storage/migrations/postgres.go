package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgHistoryDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER     PRIMARY KEY,
    name        TEXT        NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresDB is satisfied by *pgxpool.Pool and the postgres store's Pool.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ApplyPostgres runs the embedded Postgres files not yet recorded in
// schema_migrations and returns the ones it ran. Each file commits together
// with its history row.
func ApplyPostgres(ctx context.Context, db PostgresDB) ([]Migration, error) {
	all, err := Load(embedded, "postgres")
	if err != nil {
		return nil, err
	}
	return applyPostgres(ctx, db, all)
}

func applyPostgres(ctx context.Context, db PostgresDB, all []Migration) ([]Migration, error) {
	if _, err := db.Exec(ctx, pgHistoryDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := postgresApplied(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []Migration
	for _, m := range Pending(all, done) {
		if err := postgresApplyOne(ctx, db, m); err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}
		ran = append(ran, m)
	}
	return ran, nil
}

func postgresApplied(ctx context.Context, db PostgresDB) (map[int]bool, error) {
	rows, err := db.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

func postgresApplyOne(ctx context.Context, db PostgresDB, m Migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// No arguments: pgx sends the file over the simple protocol, which
	// accepts several statements at once.
	if strings.TrimSpace(m.SQL) != "" {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		m.Version, m.Name,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
