package migrations

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const chHistoryDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     UInt32,
    name        String,
    applied_at  DateTime64(3, 'UTC')
) ENGINE = MergeTree()
ORDER BY version`

// ClickhouseConn is satisfied by driver.Conn and the clickhouse store's Conn.
// The database named in the DSN must already exist.
type ClickhouseConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
}

// ApplyClickhouse runs the embedded ClickHouse files not yet recorded in
// schema_migrations and returns the ones it ran. ClickHouse has no
// transactions, so a file that fails halfway is retried whole on the next
// run; its statements use IF NOT EXISTS.
func ApplyClickhouse(ctx context.Context, conn ClickhouseConn) ([]Migration, error) {
	all, err := Load(embedded, "clickhouse")
	if err != nil {
		return nil, err
	}
	return applyClickhouse(ctx, conn, all)
}

func applyClickhouse(ctx context.Context, conn ClickhouseConn, all []Migration) ([]Migration, error) {
	if err := conn.Exec(ctx, chHistoryDDL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := clickhouseApplied(ctx, conn)
	if err != nil {
		return nil, err
	}

	var ran []Migration
	for _, m := range Pending(all, done) {
		for _, stmt := range Statements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return ran, fmt.Errorf("apply migration %s: %w", m.Name, err)
			}
		}
		if err := conn.Exec(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			uint32(m.Version), m.Name, time.Now().UTC(),
		); err != nil {
			return ran, fmt.Errorf("record migration %s: %w", m.Name, err)
		}
		ran = append(ran, m)
	}
	return ran, nil
}

func clickhouseApplied(ctx context.Context, conn ClickhouseConn) (map[int]bool, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v uint32
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[int(v)] = true
	}
	return done, rows.Err()
}
