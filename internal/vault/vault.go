package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/joeyliu6/weibodr-sync/internal/domain"
	"github.com/joeyliu6/weibodr-sync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
)

const (
	keySize   = 32
	nonceSize = 12
	saltSize  = 16
)

// Vault encrypts connection secrets for at-rest storage with AES-256-GCM.
// The nonce is prepended to the ciphertext and the whole blob is base64.
type Vault interface {
	Encrypt(plain string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type vault struct {
	log zerolog.Logger
	key []byte
}

// New loads or creates the encryption key. With a master passphrase the key
// is derived via argon2id over a salt stored next to the key path; otherwise
// a random key is generated on first use and kept in the key file.
func New(log logger.Logger, cfg domain.VaultConfig) (Vault, error) {
	v := &vault{
		log: log.With().Str("module", "vault").Logger(),
	}

	var err error
	if cfg.MasterPassphrase != "" {
		v.key, err = deriveKey(cfg)
	} else {
		v.key, err = loadOrCreateKey(cfg.KeyPath)
	}
	if err != nil {
		return nil, err
	}

	return v, nil
}

func (v *vault) Encrypt(plain string) (string, error) {
	aesgcm, err := v.cipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "could not generate nonce")
	}

	sealed := aesgcm.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", domain.NewSyncError(domain.ErrorClassFormat, "invalid-ciphertext",
			errors.Wrap(err, "ciphertext is not valid base64"))
	}
	if len(raw) < nonceSize {
		return "", domain.NewSyncError(domain.ErrorClassFormat, "invalid-ciphertext",
			errors.New("ciphertext shorter than nonce"))
	}

	aesgcm, err := v.cipher()
	if err != nil {
		return "", err
	}

	plain, err := aesgcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", domain.NewSyncError(domain.ErrorClassFormat, "decrypt-failed",
			errors.Wrap(err, "could not decrypt secret"))
	}

	return string(plain), nil
}

func (v *vault) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, errors.Wrap(err, "could not create cipher")
	}
	return cipher.NewGCM(block)
}

func loadOrCreateKey(keyPath string) ([]byte, error) {
	if raw, err := os.ReadFile(keyPath); err == nil {
		key, decodeErr := base64.StdEncoding.DecodeString(string(raw))
		if decodeErr != nil || len(key) != keySize {
			return nil, errors.Errorf("key file %s is corrupt", keyPath)
		}
		return key, nil
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "could not generate encryption key")
	}

	if dir := filepath.Dir(keyPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrap(err, "could not create key directory")
		}
	}
	if err := os.WriteFile(keyPath, []byte(base64.StdEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, errors.Wrap(err, "could not write key file")
	}

	return key, nil
}

func deriveKey(cfg domain.VaultConfig) ([]byte, error) {
	saltPath := cfg.KeyPath + ".salt"

	var salt []byte
	if raw, err := os.ReadFile(saltPath); err == nil {
		salt, err = base64.StdEncoding.DecodeString(string(raw))
		if err != nil || len(salt) != saltSize {
			return nil, errors.Errorf("salt file %s is corrupt", saltPath)
		}
	} else {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, errors.Wrap(err, "could not generate salt")
		}
		if dir := filepath.Dir(saltPath); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return nil, errors.Wrap(err, "could not create key directory")
			}
		}
		if err := os.WriteFile(saltPath, []byte(base64.StdEncoding.EncodeToString(salt)), 0600); err != nil {
			return nil, errors.Wrap(err, "could not write salt file")
		}
	}

	return argon2.IDKey([]byte(cfg.MasterPassphrase), salt, 1, 64*1024, 4, keySize), nil
}
