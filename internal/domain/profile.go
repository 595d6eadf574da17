package domain

import (
	"context"
	"time"
)

// ConnectionProfile describes one remote WebDAV endpoint. The secret is
// ciphertext everywhere outside an in-memory profile that was explicitly
// decrypted for use; it is never written to disk in plaintext.
type ConnectionProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Username  string    `json:"username"`
	Secret    string    `json:"secret"`
	RemoteDir string    `json:"remoteDir"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type ProfileRepo interface {
	Store(ctx context.Context, profile *ConnectionProfile) error
	Update(ctx context.Context, profile *ConnectionProfile) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*ConnectionProfile, error)
	List(ctx context.Context) ([]ConnectionProfile, error)
	// Active returns the currently active profile, or nil if none is active.
	Active(ctx context.Context) (*ConnectionProfile, error)
	// SetActive marks the given profile active and clears the flag on every
	// other profile in the same transaction.
	SetActive(ctx context.Context, id string) error
	// ReplaceAll swaps the whole profile set, used by the config overwrite
	// strategy when a remote snapshot carries its own profiles.
	ReplaceAll(ctx context.Context, profiles []ConnectionProfile, activeID string) error
}
