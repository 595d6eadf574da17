package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/profile"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProfileService struct {
	profile.Service

	createFn func(ctx context.Context, p domain.ConnectionProfile) (*domain.ConnectionProfile, error)
	testFn   func(ctx context.Context, id string) error
	activeFn func(ctx context.Context, id string) error
}

func (s *stubProfileService) Create(ctx context.Context, p domain.ConnectionProfile) (*domain.ConnectionProfile, error) {
	return s.createFn(ctx, p)
}

func (s *stubProfileService) TestConnection(ctx context.Context, id string) error {
	return s.testFn(ctx, id)
}

func (s *stubProfileService) SetActive(ctx context.Context, id string) error {
	return s.activeFn(ctx, id)
}

func profileRouter(svc profileService) *chi.Mux {
	router := chi.NewRouter()
	newProfileHandler(encoder{}, svc).Routes(router)
	return router
}

func TestProfileHandler_Create(t *testing.T) {
	svc := &stubProfileService{
		createFn: func(_ context.Context, p domain.ConnectionProfile) (*domain.ConnectionProfile, error) {
			assert.Equal(t, "hunter2", p.Secret)
			created := p
			created.ID = "new-id"
			created.Secret = ""
			return &created, nil
		},
	}

	rr := postJSON(t, profileRouter(svc), "/", map[string]string{
		"name":     "nas",
		"url":      "https://dav.example.com",
		"username": "joey",
		"secret":   "hunter2",
	})

	assert.Equal(t, http.StatusCreated, rr.Code)

	var created domain.ConnectionProfile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "new-id", created.ID)
	assert.Empty(t, created.Secret)
}

func TestProfileHandler_ActivateMissing(t *testing.T) {
	svc := &stubProfileService{
		activeFn: func(_ context.Context, id string) error {
			assert.Equal(t, "nope", id)
			return domain.NewSyncError(domain.ErrorClassNotFound, "profile-missing", nil)
		},
	}

	rr := postJSON(t, profileRouter(svc), "/nope/activate", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestProfileHandler_TestConnectionMessages(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
	}{
		{"success", nil, "connection successful"},
		{"auth", domain.NewSyncError(domain.ErrorClassAuth, "unauthorized", nil), "authentication failed, check the username and password"},
		{"missing", domain.NewSyncError(domain.ErrorClassNotFound, "remote-dir-missing", nil), "the remote path does not exist, check the URL and directory"},
		{"network", domain.NewSyncError(domain.ErrorClassTransport, "timeout", nil), "could not reach the server, check the URL and your network"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubProfileService{
				testFn: func(context.Context, string) error { return tc.err },
			}

			rr := postJSON(t, profileRouter(svc), "/p1/test", nil)
			require.Equal(t, http.StatusOK, rr.Code)

			var res connectionTestResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
			assert.Equal(t, tc.err == nil, res.Success)
			assert.Equal(t, tc.message, res.Message)
		})
	}
}
