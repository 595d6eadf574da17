package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func NewSyncStatusRepo(log logger.Logger, db *DB) domain.SyncStatusRepo {
	return &SyncStatusRepo{
		log: log.With().Str("repo", "sync_status").Logger(),
		db:  db,
	}
}

type SyncStatusRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncStatusRepo) Get(ctx context.Context, class domain.DataClass) (*domain.SyncStatusRecord, error) {
	query, args, err := r.db.squirrel.
		Select("class", "attempted_at", "result", "error_code", "error_detail").
		From("sync_status").
		Where(sq.Eq{"class": string(class)}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	row := r.db.handler.QueryRowContext(ctx, query, args...)
	record, err := scanStatus(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// nothing recorded yet
			return &domain.SyncStatusRecord{Class: class, Result: domain.SyncResultNever}, nil
		}
		return nil, errors.Wrap(err, "error scanning sync status")
	}

	return record, nil
}

func (r *SyncStatusRepo) List(ctx context.Context) ([]domain.SyncStatusRecord, error) {
	query, args, err := r.db.squirrel.
		Select("class", "attempted_at", "result", "error_code", "error_detail").
		From("sync_status").
		OrderBy("class ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	records := make([]domain.SyncStatusRecord, 0)
	for rows.Next() {
		record, err := scanStatus(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning sync status")
		}
		records = append(records, *record)
	}

	return records, rows.Err()
}

func (r *SyncStatusRepo) Upsert(ctx context.Context, record domain.SyncStatusRecord) error {
	updateQuery, updateArgs, err := r.db.squirrel.
		Update("sync_status").
		Set("attempted_at", record.AttemptedAt.Unix()).
		Set("result", string(record.Result)).
		Set("error_code", record.ErrorCode).
		Set("error_detail", record.ErrorDetail).
		Where(sq.Eq{"class": string(record.Class)}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := r.db.handler.ExecContext(ctx, updateQuery, updateArgs...)
	if err != nil {
		return errors.Wrap(err, "error updating sync status")
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	insertQuery, insertArgs, err := r.db.squirrel.
		Insert("sync_status").
		Columns("class", "attempted_at", "result", "error_code", "error_detail").
		Values(string(record.Class), record.AttemptedAt.Unix(), string(record.Result), record.ErrorCode, record.ErrorDetail).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if _, err := r.db.handler.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
		return errors.Wrap(err, "error inserting sync status")
	}

	return nil
}

func scanStatus(row rowScanner) (*domain.SyncStatusRecord, error) {
	var record domain.SyncStatusRecord
	var class, result string
	var attemptedAt int64

	if err := row.Scan(&class, &attemptedAt, &result, &record.ErrorCode, &record.ErrorDetail); err != nil {
		return nil, err
	}

	record.Class = domain.DataClass(class)
	record.Result = domain.SyncResult(result)
	record.AttemptedAt = time.Unix(attemptedAt, 0)

	return &record, nil
}
