package profile

import (
	"context"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"
	"github.com/joeyliu6/weibodr-sync/internal/vault"
	"github.com/joeyliu6/weibodr-sync/internal/webdav"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Service is the registry of remote connection profiles. Secrets cross this
// boundary in plaintext exactly twice: on the way in (Create/Update, encrypted
// before persistence) and on the way out (Active/Decrypted, for immediate use).
type Service interface {
	List(ctx context.Context) ([]domain.ConnectionProfile, error)
	Create(ctx context.Context, profile domain.ConnectionProfile) (*domain.ConnectionProfile, error)
	Update(ctx context.Context, profile domain.ConnectionProfile) error
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string) error
	// Active returns the active profile with its secret decrypted, or nil
	// when no profile is active. A profile whose secret cannot be decrypted
	// is unusable and reported as an error, not silently skipped.
	Active(ctx context.Context) (*domain.ConnectionProfile, error)
	// TestConnection probes the remote endpoint of the given profile.
	TestConnection(ctx context.Context, id string) error
	// Export returns the stored profile set with ciphertext secrets, for
	// embedding into a config snapshot.
	Export(ctx context.Context) ([]domain.ConnectionProfile, string, error)
	// ReplaceFromSnapshot swaps the registry contents for the snapshot's
	// profile set. Snapshot secrets are already ciphertext and are stored
	// verbatim.
	ReplaceFromSnapshot(ctx context.Context, snapshot *domain.ConfigSnapshot) error
}

type service struct {
	log       zerolog.Logger
	baseLog   logger.Logger
	repo      domain.ProfileRepo
	vault     vault.Vault
	newClient func(log logger.Logger, profile domain.ConnectionProfile) webdav.Client
}

func NewService(log logger.Logger, repo domain.ProfileRepo, v vault.Vault) Service {
	return &service{
		log:       log.With().Str("module", "profile").Logger(),
		baseLog:   log,
		repo:      repo,
		vault:     v,
		newClient: webdav.NewClient,
	}
}

func (s *service) List(ctx context.Context) ([]domain.ConnectionProfile, error) {
	profiles, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	// secrets stay out of listings entirely
	for i := range profiles {
		profiles[i].Secret = ""
	}
	return profiles, nil
}

func (s *service) Create(ctx context.Context, profile domain.ConnectionProfile) (*domain.ConnectionProfile, error) {
	if profile.URL == "" || profile.Username == "" || profile.Secret == "" {
		return nil, errors.New("url, username and password are required")
	}
	if profile.Name == "" {
		profile.Name = profile.URL
	}

	ciphertext, err := s.vault.Encrypt(profile.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "could not encrypt secret")
	}
	profile.Secret = ciphertext
	profile.ID = uuid.NewString()

	if err := s.repo.Store(ctx, &profile); err != nil {
		return nil, err
	}

	s.log.Info().Str("id", profile.ID).Str("name", profile.Name).Msg("profile created")

	profile.Secret = ""
	return &profile, nil
}

func (s *service) Update(ctx context.Context, profile domain.ConnectionProfile) error {
	stored, err := s.repo.FindByID(ctx, profile.ID)
	if err != nil {
		return err
	}

	if profile.Secret != "" {
		ciphertext, err := s.vault.Encrypt(profile.Secret)
		if err != nil {
			return errors.Wrap(err, "could not encrypt secret")
		}
		profile.Secret = ciphertext
	} else {
		// an empty secret on update means "keep the stored one"
		profile.Secret = stored.Secret
	}

	return s.repo.Update(ctx, &profile)
}

func (s *service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *service) SetActive(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("id", id).Msg("active profile switched")
	return nil
}

func (s *service) Active(ctx context.Context) (*domain.ConnectionProfile, error) {
	stored, err := s.repo.Active(ctx)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	plain, err := s.vault.Decrypt(stored.Secret)
	if err != nil {
		s.log.Error().Err(err).Str("id", stored.ID).Msg("could not decrypt profile secret, credentials must be re-entered")
		return nil, err
	}
	stored.Secret = plain

	return stored, nil
}

func (s *service) TestConnection(ctx context.Context, id string) error {
	stored, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	plain, err := s.vault.Decrypt(stored.Secret)
	if err != nil {
		return err
	}
	stored.Secret = plain

	return s.newClient(s.baseLog, *stored).Test(ctx)
}

func (s *service) Export(ctx context.Context) ([]domain.ConnectionProfile, string, error) {
	profiles, err := s.repo.List(ctx)
	if err != nil {
		return nil, "", err
	}

	activeID := ""
	for _, p := range profiles {
		if p.Active {
			activeID = p.ID
		}
	}
	return profiles, activeID, nil
}

func (s *service) ReplaceFromSnapshot(ctx context.Context, snapshot *domain.ConfigSnapshot) error {
	if err := s.repo.ReplaceAll(ctx, snapshot.Profiles, snapshot.ActiveProfileID); err != nil {
		return err
	}
	s.log.Warn().Int("count", len(snapshot.Profiles)).Msg("profile set replaced from remote snapshot")
	return nil
}
