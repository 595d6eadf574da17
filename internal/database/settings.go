package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func NewSettingsRepo(log logger.Logger, db *DB) domain.SettingsRepo {
	return &SettingsRepo{
		log: log.With().Str("repo", "settings").Logger(),
		db:  db,
	}
}

type SettingsRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (*domain.ConfigSnapshot, error) {
	query, args, err := r.db.squirrel.
		Select("value").
		From("settings").
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	var value string
	if err := r.db.handler.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// absent is not an error
			return nil, nil
		}
		return nil, errors.Wrap(err, "error reading settings")
	}

	var snapshot domain.ConfigSnapshot
	if err := json.Unmarshal([]byte(value), &snapshot); err != nil {
		return nil, errors.Wrap(err, "error decoding stored snapshot")
	}

	return &snapshot, nil
}

func (r *SettingsRepo) Set(ctx context.Context, key string, snapshot *domain.ConfigSnapshot) error {
	value, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "error encoding snapshot")
	}

	now := time.Now().Unix()

	updateQuery, updateArgs, err := r.db.squirrel.
		Update("settings").
		Set("value", string(value)).
		Set("updated_at", now).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := r.db.handler.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return errors.Wrap(err, "error updating settings")
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	insertQuery, insertArgs, err := r.db.squirrel.
		Insert("settings").
		Columns("key", "value", "updated_at").
		Values(key, string(value), now).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if _, err := r.db.handler.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		return errors.Wrap(err, "error inserting settings")
	}

	return nil
}
