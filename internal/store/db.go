package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DB wraps sql.DB opened through the dialect's driver.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB opens a connection pool and verifies it with a ping bounded by ctx.
func NewDB(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	db, err := sql.Open(dialect.driver(), dsn)
	if err != nil {
		return nil, err
	}
	if dialect == SQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db, Dialect: dialect}, db.PingContext(ctx)
}

// Backend returns the record-store view of the database.
func (d *DB) Backend() *SQL {
	return NewSQL(d.Client, d.Dialect)
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
