// Key service - per-provider credential storage and the active-provider set
package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/prismchat/prismchat/pkg/event"
	"github.com/prismchat/prismchat/pkg/models"
	"github.com/prismchat/prismchat/pkg/utils"
)

// Credentials are obfuscated at rest with a fixed passphrase embedded in the
// binary. This is deliberately NOT a security boundary: anyone with the file
// and the source can recover the secret. It only keeps keys out of casual
// plain-text reads.
const keyPassphrase = "local-secret"

const (
	keyDirName    = ".prismchat/keys"
	pbkdf2Iters   = 4096
	pbkdf2KeyLen  = 32
	pbkdf2SaltLen = 16
)

// KeyService owns provider credentials and the live active-provider set.
// A provider can only become active through SetCredential or LoadCredentials
// finding a secret; ToggleActive flips the flag without touching storage.
type KeyService struct {
	mu     sync.RWMutex
	keys   map[models.Provider]string
	active models.ActiveSet
	logger *slog.Logger
}

// NewKeyService creates an empty registry. LoadCredentials is the designated
// initialization entry point and must run before the first read.
func NewKeyService() *KeyService {
	return &KeyService{
		keys:   make(map[models.Provider]string),
		active: make(models.ActiveSet),
		logger: utils.GetLogger(),
	}
}

// SetCredential stores a secret for a provider and marks it active.
// An empty secret is a no-op, not an error.
func (s *KeyService) SetCredential(p models.Provider, secret string) error {
	if secret == "" {
		return nil
	}

	blob, err := encryptSecret(secret)
	if err != nil {
		return fmt.Errorf("encrypt credential for %s: %w", p, err)
	}
	if err := writeKeyFile(p, blob); err != nil {
		return fmt.Errorf("store credential for %s: %w", p, err)
	}

	s.mu.Lock()
	s.keys[p] = secret
	s.active[p] = true
	s.mu.Unlock()

	event.Emit(event.KeysChangedEvent{Provider: string(p)})
	return nil
}

// ToggleActive sets a provider's active flag. It never touches credential
// storage; the orchestrator independently refuses providers without a secret.
func (s *KeyService) ToggleActive(p models.Provider, active bool) {
	s.mu.Lock()
	s.active[p] = active
	s.mu.Unlock()

	event.Emit(event.KeysChangedEvent{Provider: string(p)})
}

// LoadCredentials reads and decodes the stored secret for every known
// provider. Providers with a decodable non-empty secret become present and
// active; all others become absent and inactive. Idempotent; safe to call
// both at bootstrap and again when a view mounts.
func (s *KeyService) LoadCredentials() {
	keys := make(map[models.Provider]string, len(models.AllProviders))
	active := make(models.ActiveSet, len(models.AllProviders))

	for _, p := range models.AllProviders {
		active[p] = false
		blob, err := readKeyFile(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("Failed to read stored credential", "provider", p, "error", err)
			}
			continue
		}
		secret, err := decryptSecret(blob)
		if err != nil {
			s.logger.Warn("Failed to decode stored credential", "provider", p, "error", err)
			continue
		}
		if secret == "" {
			continue
		}
		keys[p] = secret
		active[p] = true
	}

	s.mu.Lock()
	s.keys = keys
	s.active = active
	s.mu.Unlock()
}

// HasCredential reports whether a non-empty secret is loaded for p.
func (s *KeyService) HasCredential(p models.Provider) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[p] != ""
}

// Credential returns the loaded secret for p ("" if absent).
func (s *KeyService) Credential(p models.Provider) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[p]
}

// IsActive reports the live active flag for p.
func (s *KeyService) IsActive(p models.Provider) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[p]
}

// ActiveSet returns a snapshot of the live active-provider set.
func (s *KeyService) ActiveSet() models.ActiveSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Clone()
}

// RestoreActiveSet replaces the live active set, e.g. when a session with its
// own provider snapshot is selected.
func (s *KeyService) RestoreActiveSet(set models.ActiveSet) {
	s.mu.Lock()
	s.active = set.Clone()
	s.mu.Unlock()

	event.Emit(event.KeysChangedEvent{})
}

// ProviderInfos describes every provider for the settings UI, with the
// credential masked for display.
func (s *KeyService) ProviderInfos() []models.ProviderInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]models.ProviderInfo, 0, len(models.AllProviders))
	for _, p := range models.AllProviders {
		secret := s.keys[p]
		infos = append(infos, models.ProviderInfo{
			Provider:   p,
			Name:       p.DisplayName(),
			Model:      p.ModelID(),
			Configured: secret != "",
			Active:     s.active[p],
			MaskedKey:  utils.MaskSensitiveString(secret),
		})
	}
	return infos
}

// ========== At-rest encoding ==========

func keyFilePath(p models.Provider) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get user home dir: %w", err)
	}
	return filepath.Join(home, keyDirName, "key-"+string(p)), nil
}

func writeKeyFile(p models.Provider, blob string) error {
	path, err := keyFilePath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(blob), 0o600)
}

func readKeyFile(p models.Provider) (string, error) {
	path, err := keyFilePath(p)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encryptSecret produces base64(salt | nonce | ciphertext) using AES-256-GCM
// with a PBKDF2-derived key.
func encryptSecret(secret string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	gcm, err := newGCM(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(secret), nil)
	raw := append(append(salt, nonce...), sealed...)
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decryptSecret(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", err
	}
	if len(raw) < pbkdf2SaltLen {
		return "", errors.New("credential blob too short")
	}

	salt := raw[:pbkdf2SaltLen]
	gcm, err := newGCM(salt)
	if err != nil {
		return "", err
	}
	rest := raw[pbkdf2SaltLen:]
	if len(rest) < gcm.NonceSize() {
		return "", errors.New("credential blob too short")
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func newGCM(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(keyPassphrase), salt, pbkdf2Iters, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
