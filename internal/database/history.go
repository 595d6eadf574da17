package database

import (
	"context"
	"encoding/json"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func NewHistoryRepo(log logger.Logger, db *DB) domain.HistoryRepo {
	return &HistoryRepo{
		log: log.With().Str("repo", "history").Logger(),
		db:  db,
	}
}

type HistoryRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *HistoryRepo) Count(ctx context.Context) (int, error) {
	query, args, err := r.db.squirrel.
		Select("COUNT(*)").
		From("upload_history").
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "error building query")
	}

	var count int
	if err := r.db.handler.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "error counting history records")
	}

	return count, nil
}

func (r *HistoryRepo) All(ctx context.Context) ([]domain.HistoryRecord, error) {
	query, args, err := r.db.squirrel.
		Select("payload").
		From("upload_history").
		OrderBy("timestamp DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	records := make([]domain.HistoryRecord, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "error scanning history record")
		}

		var record domain.HistoryRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			return nil, errors.Wrap(err, "error decoding history record payload")
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// ImportMerge inserts records with unknown ids and updates records whose id
// already exists. Only newly inserted records count toward the return value.
func (r *HistoryRepo) ImportMerge(ctx context.Context, records []domain.HistoryRecord) (int, error) {
	tx, err := r.db.handler.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "error beginning transaction")
	}
	defer tx.Rollback()

	inserted := 0
	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return 0, errors.Wrap(err, "error encoding history record")
		}

		updateQuery, updateArgs, err := r.db.squirrel.
			Update("upload_history").
			Set("timestamp", record.Timestamp).
			Set("payload", string(payload)).
			Where(sq.Eq{"id": record.ID}).
			ToSql()
		if err != nil {
			return 0, errors.Wrap(err, "error building query")
		}

		result, err := tx.ExecContext(ctx, updateQuery, updateArgs...)
		if err != nil {
			return 0, errors.Wrap(err, "error updating history record")
		}

		if affected, err := result.RowsAffected(); err == nil && affected > 0 {
			continue
		}

		insertQuery, insertArgs, err := r.db.squirrel.
			Insert("upload_history").
			Columns("id", "timestamp", "payload").
			Values(record.ID, record.Timestamp, string(payload)).
			ToSql()
		if err != nil {
			return 0, errors.Wrap(err, "error building query")
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return 0, errors.Wrap(err, "error inserting history record")
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "error committing transaction")
	}

	r.log.Debug().Int("total", len(records)).Int("inserted", inserted).Msg("history import merged")
	return inserted, nil
}

func (r *HistoryRepo) ImportReplace(ctx context.Context, records []domain.HistoryRecord) error {
	tx, err := r.db.handler.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}
	defer tx.Rollback()

	deleteQuery, deleteArgs, err := r.db.squirrel.Delete("upload_history").ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return errors.Wrap(err, "error clearing history")
	}

	for _, record := range records {
		payload, err := json.Marshal(record)
		if err != nil {
			return errors.Wrap(err, "error encoding history record")
		}

		insertQuery, insertArgs, err := r.db.squirrel.
			Insert("upload_history").
			Columns("id", "timestamp", "payload").
			Values(record.ID, record.Timestamp, string(payload)).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "error building query")
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return errors.Wrap(err, "error inserting history record")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing transaction")
	}

	r.log.Debug().Int("count", len(records)).Msg("history replaced")
	return nil
}
