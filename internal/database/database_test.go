package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	cfg := &domain.Config{
		ConfigPath: t.TempDir(),
		Database:   domain.DatabaseConfig{Type: "sqlite"},
	}

	db, err := NewDB(cfg, logger.Mock())
	require.NoError(t, err)
	require.NoError(t, db.Open())

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestNewDB_UnsupportedType(t *testing.T) {
	cfg := &domain.Config{Database: domain.DatabaseConfig{Type: "oracle"}}
	_, err := NewDB(cfg, logger.Mock())
	assert.Error(t, err)
}

func TestProfileRepo_CRUD(t *testing.T) {
	db := testDB(t)
	repo := NewProfileRepo(logger.Mock(), db)
	ctx := context.Background()

	profile := &domain.ConnectionProfile{
		ID:        "p1",
		Name:      "jianguoyun",
		URL:       "https://dav.example.com/dav/",
		Username:  "me@example.com",
		Secret:    "ciphertext",
		RemoteDir: "backup/weibodr",
	}
	require.NoError(t, repo.Store(ctx, profile))

	found, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "jianguoyun", found.Name)
	assert.Equal(t, "ciphertext", found.Secret)
	assert.False(t, found.Active)

	found.Name = "renamed"
	require.NoError(t, repo.Update(ctx, found))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Name)

	require.NoError(t, repo.Delete(ctx, "p1"))
	_, err = repo.FindByID(ctx, "p1")
	assert.Error(t, err)
}

func TestProfileRepo_SetActive_Exclusive(t *testing.T) {
	db := testDB(t)
	repo := NewProfileRepo(logger.Mock(), db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, &domain.ConnectionProfile{ID: "a", Name: "a", URL: "https://a", Username: "u", Secret: "s"}))
	require.NoError(t, repo.Store(ctx, &domain.ConnectionProfile{ID: "b", Name: "b", URL: "https://b", Username: "u", Secret: "s"}))

	active, err := repo.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, active, "no profile should be active initially")

	require.NoError(t, repo.SetActive(ctx, "a"))
	require.NoError(t, repo.SetActive(ctx, "b"))

	active, err = repo.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "b", active.ID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	activeCount := 0
	for _, p := range list {
		if p.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)

	assert.Error(t, repo.SetActive(ctx, "missing"))
}

func TestProfileRepo_ReplaceAll(t *testing.T) {
	db := testDB(t)
	repo := NewProfileRepo(logger.Mock(), db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, &domain.ConnectionProfile{ID: "old", Name: "old", URL: "https://old", Username: "u", Secret: "s"}))

	replacement := []domain.ConnectionProfile{
		{ID: "x", Name: "x", URL: "https://x", Username: "u", Secret: "s"},
		{ID: "y", Name: "y", URL: "https://y", Username: "u", Secret: "s"},
	}
	require.NoError(t, repo.ReplaceAll(ctx, replacement, "y"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	active, err := repo.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "y", active.ID)
}

func TestHistoryRepo_ImportMerge(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepo(logger.Mock(), db)
	ctx := context.Background()

	records := []domain.HistoryRecord{
		{ID: "a", Timestamp: 10, Extra: map[string]json.RawMessage{"fileName": json.RawMessage(`"a.png"`)}},
		{ID: "b", Timestamp: 20},
	}

	inserted, err := repo.ImportMerge(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// merging again with one updated and one new record
	inserted, err = repo.ImportMerge(ctx, []domain.HistoryRecord{
		{ID: "a", Timestamp: 15},
		{ID: "c", Timestamp: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// ordered by timestamp descending
	assert.Equal(t, "b", all[0].ID)
	assert.Equal(t, "a", all[1].ID)
	assert.Equal(t, int64(15), all[1].Timestamp)
	assert.Equal(t, "c", all[2].ID)
}

func TestHistoryRepo_PayloadRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepo(logger.Mock(), db)
	ctx := context.Background()

	record := domain.HistoryRecord{
		ID:        "r1",
		Timestamp: 1700000000000,
		Extra: map[string]json.RawMessage{
			"fileName": json.RawMessage(`"shot.png"`),
			"results":  json.RawMessage(`[{"service":"weibo","ok":true}]`),
		},
	}

	_, err := repo.ImportMerge(ctx, []domain.HistoryRecord{record})
	require.NoError(t, err)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.JSONEq(t, `"shot.png"`, string(all[0].Extra["fileName"]))
	assert.JSONEq(t, `[{"service":"weibo","ok":true}]`, string(all[0].Extra["results"]))
}

func TestHistoryRepo_ImportReplace(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepo(logger.Mock(), db)
	ctx := context.Background()

	_, err := repo.ImportMerge(ctx, []domain.HistoryRecord{{ID: "a", Timestamp: 1}, {ID: "b", Timestamp: 2}})
	require.NoError(t, err)

	require.NoError(t, repo.ImportReplace(ctx, []domain.HistoryRecord{{ID: "z", Timestamp: 9}}))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "z", all[0].ID)
}

func TestSettingsRepo_GetSet(t *testing.T) {
	db := testDB(t)
	repo := NewSettingsRepo(logger.Mock(), db)
	ctx := context.Background()

	snapshot, err := repo.Get(ctx, domain.SettingsKeyApp)
	require.NoError(t, err)
	assert.Nil(t, snapshot, "absent settings should return nil, not an error")

	stored := &domain.ConfigSnapshot{
		ActiveProfileID: "p1",
		AutoSync:        domain.AutoSyncSettings{Enabled: true, IntervalMinutes: 30},
		Extra: map[string]json.RawMessage{
			"services": json.RawMessage(`{"weibo":{"cookie":"x"}}`),
		},
	}
	require.NoError(t, repo.Set(ctx, domain.SettingsKeyApp, stored))

	loaded, err := repo.Get(ctx, domain.SettingsKeyApp)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "p1", loaded.ActiveProfileID)
	assert.Equal(t, 30, loaded.AutoSync.IntervalMinutes)
	assert.JSONEq(t, `{"weibo":{"cookie":"x"}}`, string(loaded.Extra["services"]))

	// overwrite existing key
	stored.AutoSync.IntervalMinutes = 60
	require.NoError(t, repo.Set(ctx, domain.SettingsKeyApp, stored))
	loaded, err = repo.Get(ctx, domain.SettingsKeyApp)
	require.NoError(t, err)
	assert.Equal(t, 60, loaded.AutoSync.IntervalMinutes)
}

func TestSyncStatusRepo_Upsert(t *testing.T) {
	db := testDB(t)
	repo := NewSyncStatusRepo(logger.Mock(), db)
	ctx := context.Background()

	record, err := repo.Get(ctx, domain.DataClassConfig)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResultNever, record.Result)

	now := time.Now()
	require.NoError(t, repo.Upsert(ctx, domain.SyncStatusRecord{
		Class:       domain.DataClassConfig,
		AttemptedAt: now,
		Result:      domain.SyncResultFailed,
		ErrorCode:   "unauthorized",
		ErrorDetail: "401 from remote",
	}))

	record, err = repo.Get(ctx, domain.DataClassConfig)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResultFailed, record.Result)
	assert.Equal(t, "unauthorized", record.ErrorCode)

	require.NoError(t, repo.Upsert(ctx, domain.SyncStatusRecord{
		Class:       domain.DataClassConfig,
		AttemptedAt: now.Add(time.Minute),
		Result:      domain.SyncResultSuccess,
	}))

	record, err = repo.Get(ctx, domain.DataClassConfig)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResultSuccess, record.Result)
	assert.Empty(t, record.ErrorCode)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
