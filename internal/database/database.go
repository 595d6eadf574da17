package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

type DB struct {
	log     zerolog.Logger
	handler *sql.DB
	ctx     context.Context
	cancel  func()

	Driver string
	DSN    string

	squirrel sq.StatementBuilderType
}

func NewDB(cfg *domain.Config, log logger.Logger) (*DB, error) {
	db := &DB{
		log: log.With().Str("module", "database").Logger(),
	}
	db.ctx, db.cancel = context.WithCancel(context.Background())

	switch cfg.Database.Type {
	case "sqlite":
		db.Driver = "sqlite"
		db.DSN = dataSourceName(cfg.ConfigPath, "weibodr-sync.db")
		db.squirrel = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case "postgres", "postgresql":
		if cfg.Database.Postgres.Host == "" || cfg.Database.Postgres.Port == 0 || cfg.Database.Postgres.Database == "" {
			return nil, errors.New("postgres configuration is incomplete")
		}
		db.Driver = "postgres"
		db.DSN = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Postgres.Host, cfg.Database.Postgres.Port, cfg.Database.Postgres.User,
			cfg.Database.Postgres.Pass, cfg.Database.Postgres.Database, cfg.Database.Postgres.SslMode)
		db.squirrel = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, errors.Errorf("unsupported database type: %v", cfg.Database.Type)
	}

	return db, nil
}

func (db *DB) Open() error {
	if db.DSN == "" {
		return errors.New("database DSN is required but not configured")
	}

	handler, err := sql.Open(db.Driver, db.DSN)
	if err != nil {
		db.log.Error().Err(err).Str("driver", db.Driver).Msg("could not open database connection")
		return errors.Wrap(err, "could not open database connection")
	}
	db.handler = handler

	if db.Driver == "sqlite" {
		// a sync operation is a short burst of serialized writes; one
		// connection keeps sqlite locking out of the picture
		db.handler.SetMaxOpenConns(1)
		if _, err := db.handler.Exec("PRAGMA journal_mode = WAL"); err != nil {
			return errors.Wrap(err, "could not enable WAL mode")
		}
		if _, err := db.handler.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return errors.Wrap(err, "could not enable foreign keys")
		}
	}

	if err := db.handler.PingContext(db.ctx); err != nil {
		return errors.Wrap(err, "database ping failed")
	}

	if err := db.migrate(); err != nil {
		db.log.Error().Err(err).Msg("could not run database migrations")
		return errors.Wrap(err, "could not run database migrations")
	}

	db.log.Info().Str("driver", db.Driver).Msg("database connection established")

	return nil
}

func (db *DB) Close() error {
	db.cancel()

	if db.handler != nil {
		return db.handler.Close()
	}
	return nil
}

func (db *DB) Ping() error {
	if db.handler == nil {
		return errors.New("database handler is not initialized")
	}
	if err := db.handler.PingContext(db.ctx); err != nil {
		db.log.Warn().Err(err).Msg("database ping failed")
		return errors.Wrap(err, "database ping failed")
	}
	return nil
}

func (db *DB) migrate() error {
	schema := sqliteSchema
	if db.Driver == "postgres" {
		schema = postgresSchema
	}

	tx, err := db.handler.Begin()
	if err != nil {
		return errors.Wrap(err, "could not begin migration transaction")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return errors.Wrap(err, "could not apply schema")
	}

	return tx.Commit()
}

// dataSourceName resolves the sqlite file path inside the config directory.
func dataSourceName(configPath string, name string) string {
	if configPath == "" || configPath == "." {
		return name
	}
	return filepath.Join(configPath, name)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS connection_profile
(
    id         TEXT PRIMARY KEY,
    name       TEXT    NOT NULL,
    url        TEXT    NOT NULL,
    username   TEXT    NOT NULL,
    secret     TEXT    NOT NULL,
    remote_dir TEXT    NOT NULL DEFAULT '',
    active     INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS upload_history
(
    id        TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    payload   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_history_timestamp ON upload_history (timestamp);

CREATE TABLE IF NOT EXISTS settings
(
    key        TEXT PRIMARY KEY,
    value      TEXT    NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_status
(
    class        TEXT PRIMARY KEY,
    attempted_at INTEGER NOT NULL,
    result       TEXT    NOT NULL,
    error_code   TEXT    NOT NULL DEFAULT '',
    error_detail TEXT    NOT NULL DEFAULT ''
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS connection_profile
(
    id         TEXT PRIMARY KEY,
    name       TEXT   NOT NULL,
    url        TEXT   NOT NULL,
    username   TEXT   NOT NULL,
    secret     TEXT   NOT NULL,
    remote_dir TEXT   NOT NULL DEFAULT '',
    active     INT    NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS upload_history
(
    id        TEXT PRIMARY KEY,
    timestamp BIGINT NOT NULL,
    payload   TEXT   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_history_timestamp ON upload_history (timestamp);

CREATE TABLE IF NOT EXISTS settings
(
    key        TEXT PRIMARY KEY,
    value      TEXT   NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_status
(
    class        TEXT PRIMARY KEY,
    attempted_at BIGINT NOT NULL,
    result       TEXT   NOT NULL,
    error_code   TEXT   NOT NULL DEFAULT '',
    error_detail TEXT   NOT NULL DEFAULT ''
);
`
