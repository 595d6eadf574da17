package profile

import (
	"context"
	"testing"

	"github.com/joeyliu6/weibodr-sync/internal/database"
	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"
	"github.com/joeyliu6/weibodr-sync/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (Service, domain.ProfileRepo, vault.Vault) {
	t.Helper()

	log := logger.Mock()
	cfg := &domain.Config{ConfigPath: t.TempDir()}
	cfg.Database.Type = "sqlite"
	cfg.Vault.KeyPath = cfg.ConfigPath + "/vault.key"

	db, err := database.NewDB(cfg, log)
	require.NoError(t, err)
	require.NoError(t, db.Open())
	t.Cleanup(func() { _ = db.Close() })

	v, err := vault.New(log, cfg.Vault)
	require.NoError(t, err)

	repo := database.NewProfileRepo(log, db)
	return NewService(log, repo, v), repo, v
}

func TestService_CreateEncryptsSecret(t *testing.T) {
	t.Parallel()

	svc, repo, v := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.ConnectionProfile{
		Name:     "nas",
		URL:      "https://dav.example.com/remote.php/dav",
		Username: "joey",
		Secret:   "hunter2",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Empty(t, created.Secret)

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", stored.Secret)

	plain, err := v.Decrypt(stored.Secret)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestService_CreateValidates(t *testing.T) {
	t.Parallel()

	svc, _, _ := testService(t)

	_, err := svc.Create(context.Background(), domain.ConnectionProfile{Name: "nope", URL: "https://dav.example.com"})
	assert.Error(t, err)
}

func TestService_ListRedactsSecrets(t *testing.T) {
	t.Parallel()

	svc, _, _ := testService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.ConnectionProfile{URL: "https://a.example.com", Username: "u", Secret: "s"})
	require.NoError(t, err)

	profiles, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Empty(t, profiles[0].Secret)
	assert.Equal(t, "https://a.example.com", profiles[0].Name) // name defaults to url
}

func TestService_UpdateKeepsSecretWhenBlank(t *testing.T) {
	t.Parallel()

	svc, repo, v := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.ConnectionProfile{URL: "https://a.example.com", Username: "u", Secret: "original"})
	require.NoError(t, err)

	update := *created
	update.Name = "renamed"
	update.Secret = ""
	require.NoError(t, svc.Update(ctx, update))

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)

	plain, err := v.Decrypt(stored.Secret)
	require.NoError(t, err)
	assert.Equal(t, "original", plain)
}

func TestService_ActiveDecrypts(t *testing.T) {
	t.Parallel()

	svc, _, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.ConnectionProfile{URL: "https://a.example.com", Username: "u", Secret: "topsecret"})
	require.NoError(t, err)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, svc.SetActive(ctx, created.ID))

	active, err = svc.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "topsecret", active.Secret)
}

func TestService_ActiveUndecryptableSecret(t *testing.T) {
	t.Parallel()

	svc, repo, _ := testService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.ConnectionProfile{URL: "https://a.example.com", Username: "u", Secret: "s"})
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(ctx, created.ID))

	// simulate a snapshot imported from a machine with a different key
	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	stored.Secret = "bm90LXJlYWwtY2lwaGVydGV4dA=="
	require.NoError(t, repo.Update(ctx, stored))

	_, err = svc.Active(ctx)
	require.Error(t, err)

	var syncErr *domain.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, domain.ErrorClassFormat, syncErr.Class)
}

func TestService_ReplaceFromSnapshot(t *testing.T) {
	t.Parallel()

	svc, _, _ := testService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.ConnectionProfile{URL: "https://old.example.com", Username: "u", Secret: "s"})
	require.NoError(t, err)

	snapshot := &domain.ConfigSnapshot{
		Profiles: []domain.ConnectionProfile{
			{ID: "p1", Name: "one", URL: "https://one.example.com", Username: "u", Secret: "ciphertext-1"},
			{ID: "p2", Name: "two", URL: "https://two.example.com", Username: "u", Secret: "ciphertext-2"},
		},
		ActiveProfileID: "p2",
	}
	require.NoError(t, svc.ReplaceFromSnapshot(ctx, snapshot))

	profiles, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	exported, activeID, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", activeID)

	secrets := map[string]string{}
	for _, p := range exported {
		secrets[p.ID] = p.Secret
	}
	assert.Equal(t, "ciphertext-1", secrets["p1"])
	assert.Equal(t, "ciphertext-2", secrets["p2"])
}
