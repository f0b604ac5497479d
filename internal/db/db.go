package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the Postgres or SQLite database named by dsn.
func Open(dsn string) (*sql.DB, Dialect, error) {
	dialect, target, err := ParseDSN(dsn)
	if err != nil {
		return nil, 0, err
	}
	if dialect == SQLite {
		db, err := sql.Open("sqlite", target)
		if err != nil {
			return nil, 0, err
		}
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
		return db, SQLite, nil
	}
	db, err := sql.Open("pgx", target)
	if err != nil {
		return nil, 0, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, Postgres, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

const (
	schemaPostgres = `
CREATE TABLE IF NOT EXISTS signage_datasets (
  id          BIGSERIAL PRIMARY KEY,
  station     TEXT NOT NULL,
  version     TEXT NOT NULL,
  imported_at TIMESTAMPTZ NOT NULL,
  payload     TEXT NOT NULL
)`
	schemaSQLite = `
CREATE TABLE IF NOT EXISTS signage_datasets (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  station     TEXT NOT NULL,
  version     TEXT NOT NULL,
  imported_at TEXT NOT NULL,
  payload     TEXT NOT NULL
)`
)

// EnsureSchema creates the signage_datasets table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	q := schemaPostgres
	if dialect == SQLite {
		q = schemaSQLite
	}
	if _, err := db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create signage_datasets: %w", err)
	}
	return nil
}

// sqliteTime keeps imported_at lexically sortable in SQLite's TEXT column.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// InsertDataset records a new dataset version for station.
func InsertDataset(ctx context.Context, db *sql.DB, dialect Dialect, station, version string, importedAt time.Time, payload []byte) error {
	var err error
	if dialect == SQLite {
		_, err = db.ExecContext(ctx,
			`INSERT INTO signage_datasets (station, version, imported_at, payload) VALUES (?, ?, ?, ?)`,
			station, version, importedAt.UTC().Format(sqliteTime), string(payload))
	} else {
		_, err = db.ExecContext(ctx,
			`INSERT INTO signage_datasets (station, version, imported_at, payload) VALUES ($1, $2, $3, $4)`,
			station, version, importedAt, string(payload))
	}
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}
