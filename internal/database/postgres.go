package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"ramallah-time/internal/access"
)

// DB is a raw Postgres connection used by maintenance tools.
type DB struct {
	conn *sql.DB
}

func NewDB(host, port, user, password, dbname, sslmode string) (*DB, error) {
	if sslmode == "" {
		sslmode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// NewDBFromConn wraps an open connection.
func NewDBFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// MigrationReport summarizes a secret migration pass.
type MigrationReport struct {
	Scanned       int
	AlreadyHashed int
	Rehashed      int
	Failed        int
}

// MigrateOwnerSecrets replaces every stored owner secret that is not yet a
// digest with its digest. Rows are updated only if the value is unchanged
// since it was read. With dryRun nothing is written.
func (db *DB) MigrateOwnerSecrets(ctx context.Context, hasher access.Hasher, dryRun bool) (*MigrationReport, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, owner_password
		FROM places
		WHERE owner_password IS NOT NULL AND owner_password <> ''
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan owner secrets: %w", err)
	}

	type pending struct {
		id    int64
		value string
	}
	var todo []pending
	report := &MigrationReport{}
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to read owner secret row: %w", err)
		}
		report.Scanned++
		if hasher.LooksHashed(p.value) {
			report.AlreadyHashed++
			continue
		}
		todo = append(todo, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate owner secrets: %w", err)
	}
	rows.Close()

	for _, p := range todo {
		digest, err := hasher.Hash(p.value)
		if err != nil {
			log.Printf("Migrate: place %d: cannot hash stored secret: %v", p.id, err)
			report.Failed++
			continue
		}
		if dryRun {
			report.Rehashed++
			continue
		}
		res, err := db.conn.ExecContext(ctx,
			`UPDATE places SET owner_password = $1 WHERE id = $2 AND owner_password = $3`,
			digest, p.id, p.value)
		if err != nil {
			log.Printf("Migrate: place %d: update failed: %v", p.id, err)
			report.Failed++
			continue
		}
		if n, _ := res.RowsAffected(); n == 0 {
			log.Printf("Migrate: place %d: secret changed during migration, skipped", p.id)
			continue
		}
		report.Rehashed++
	}
	return report, nil
}
