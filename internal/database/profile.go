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

func NewProfileRepo(log logger.Logger, db *DB) domain.ProfileRepo {
	return &ProfileRepo{
		log: log.With().Str("repo", "profile").Logger(),
		db:  db,
	}
}

type ProfileRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *ProfileRepo) Store(ctx context.Context, profile *domain.ConnectionProfile) error {
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	queryBuilder := r.db.squirrel.
		Insert("connection_profile").
		Columns("id", "name", "url", "username", "secret", "remote_dir", "active", "created_at", "updated_at").
		Values(profile.ID, profile.Name, profile.URL, profile.Username, profile.Secret, profile.RemoteDir, boolToInt(profile.Active), now.Unix(), now.Unix())

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing query")
	}

	r.log.Debug().Str("id", profile.ID).Msg("profile stored")
	return nil
}

func (r *ProfileRepo) Update(ctx context.Context, profile *domain.ConnectionProfile) error {
	profile.UpdatedAt = time.Now()

	queryBuilder := r.db.squirrel.
		Update("connection_profile").
		Set("name", profile.Name).
		Set("url", profile.URL).
		Set("username", profile.Username).
		Set("secret", profile.Secret).
		Set("remote_dir", profile.RemoteDir).
		Set("updated_at", profile.UpdatedAt.Unix()).
		Where(sq.Eq{"id": profile.ID})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "error executing query")
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return errors.Errorf("profile not found: %s", profile.ID)
	}

	return nil
}

func (r *ProfileRepo) Delete(ctx context.Context, id string) error {
	queryBuilder := r.db.squirrel.
		Delete("connection_profile").
		Where(sq.Eq{"id": id})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "error executing query")
	}

	r.log.Debug().Str("id", id).Msg("profile deleted")
	return nil
}

func (r *ProfileRepo) FindByID(ctx context.Context, id string) (*domain.ConnectionProfile, error) {
	queryBuilder := r.profileSelect().Where(sq.Eq{"id": id})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	row := r.db.handler.QueryRowContext(ctx, query, args...)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Errorf("profile not found: %s", id)
		}
		return nil, errors.Wrap(err, "error scanning profile")
	}

	return profile, nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]domain.ConnectionProfile, error) {
	queryBuilder := r.profileSelect().OrderBy("created_at ASC")

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error executing query")
	}
	defer rows.Close()

	profiles := make([]domain.ConnectionProfile, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning profile")
		}
		profiles = append(profiles, *profile)
	}

	return profiles, rows.Err()
}

func (r *ProfileRepo) Active(ctx context.Context) (*domain.ConnectionProfile, error) {
	queryBuilder := r.profileSelect().Where(sq.Eq{"active": 1})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "error building query")
	}

	row := r.db.handler.QueryRowContext(ctx, query, args...)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// no active profile is a valid state, not an error
			return nil, nil
		}
		return nil, errors.Wrap(err, "error scanning profile")
	}

	return profile, nil
}

func (r *ProfileRepo) SetActive(ctx context.Context, id string) error {
	tx, err := r.db.handler.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}
	defer tx.Rollback()

	clearQuery, clearArgs, err := r.db.squirrel.
		Update("connection_profile").
		Set("active", 0).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}
	if _, err := tx.ExecContext(ctx, clearQuery, clearArgs...); err != nil {
		return errors.Wrap(err, "error clearing active flags")
	}

	setQuery, setArgs, err := r.db.squirrel.
		Update("connection_profile").
		Set("active", 1).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}

	result, err := tx.ExecContext(ctx, setQuery, setArgs...)
	if err != nil {
		return errors.Wrap(err, "error setting active flag")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return errors.Errorf("profile not found: %s", id)
	}

	return tx.Commit()
}

func (r *ProfileRepo) ReplaceAll(ctx context.Context, profiles []domain.ConnectionProfile, activeID string) error {
	tx, err := r.db.handler.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error beginning transaction")
	}
	defer tx.Rollback()

	deleteQuery, deleteArgs, err := r.db.squirrel.Delete("connection_profile").ToSql()
	if err != nil {
		return errors.Wrap(err, "error building query")
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return errors.Wrap(err, "error clearing profiles")
	}

	now := time.Now().Unix()
	for _, profile := range profiles {
		active := 0
		if profile.ID == activeID {
			active = 1
		}

		insertQuery, insertArgs, err := r.db.squirrel.
			Insert("connection_profile").
			Columns("id", "name", "url", "username", "secret", "remote_dir", "active", "created_at", "updated_at").
			Values(profile.ID, profile.Name, profile.URL, profile.Username, profile.Secret, profile.RemoteDir, active, now, now).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "error building query")
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return errors.Wrap(err, "error inserting profile")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing transaction")
	}

	r.log.Debug().Int("count", len(profiles)).Msg("profile set replaced")
	return nil
}

func (r *ProfileRepo) profileSelect() sq.SelectBuilder {
	return r.db.squirrel.
		Select("id", "name", "url", "username", "secret", "remote_dir", "active", "created_at", "updated_at").
		From("connection_profile")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*domain.ConnectionProfile, error) {
	var profile domain.ConnectionProfile
	var active int64
	var createdAt, updatedAt int64

	if err := row.Scan(&profile.ID, &profile.Name, &profile.URL, &profile.Username,
		&profile.Secret, &profile.RemoteDir, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	profile.Active = active != 0
	profile.CreatedAt = time.Unix(createdAt, 0)
	profile.UpdatedAt = time.Unix(updatedAt, 0)

	return &profile, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
