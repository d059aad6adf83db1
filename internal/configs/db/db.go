// Package db builds the sqlx handle for the durable store. Both the
// embedded SQLite driver and the Postgres driver are registered; the
// DSN decides which one a deployment uses.
package db

import (
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers itself as "sqlite"; teach sqlx its bindvar.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Opt applies a setting to the sqlx.DB.
type Opt func(*sqlx.DB)

// New connects to the database and applies the given options.
func New(driver string, dsn string, opts ...Opt) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// WithMaxOpenConns sets the maximum number of open connections to the
// first positive value.
func WithMaxOpenConns(opts ...int) Opt {
	return func(db *sqlx.DB) {
		for _, opt := range opts {
			if opt > 0 {
				db.SetMaxOpenConns(opt)
				break
			}
		}
	}
}

// WithMaxIdleConns sets the maximum number of idle connections to the
// first positive value.
func WithMaxIdleConns(opts ...int) Opt {
	return func(db *sqlx.DB) {
		for _, opt := range opts {
			if opt > 0 {
				db.SetMaxIdleConns(opt)
				break
			}
		}
	}
}

// WithConnMaxLifetime sets the maximum connection lifetime to the first
// non-zero value.
func WithConnMaxLifetime(opts ...time.Duration) Opt {
	return func(db *sqlx.DB) {
		for _, opt := range opts {
			if opt != 0 {
				db.SetConnMaxLifetime(opt)
				break
			}
		}
	}
}
