package client

import (
	"errors"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/menta2k/cover-studio/internal/logging"
)

// KeyringService is the keyring service name API keys are stored under.
const KeyringService = "cover-studio"

// APIKeyEnv overrides keyring lookups when set.
const APIKeyEnv = "COVER_STUDIO_API_KEY"

// Credentials resolves API keys per backend. The environment variable
// wins over the keyring.
type Credentials struct {
	Service string
}

// NewCredentials returns a resolver for the default keyring service.
func NewCredentials() *Credentials {
	return &Credentials{Service: KeyringService}
}

// APIKey returns the key stored for backend, or "" when none is known.
func (c *Credentials) APIKey(backend string) string {
	if v := strings.TrimSpace(os.Getenv(APIKeyEnv)); v != "" {
		return v
	}
	key, err := keyring.Get(c.service(), backend)
	if err != nil {
		// first run has nothing stored
		if !errors.Is(err, keyring.ErrNotFound) {
			logging.Printf("failed to retrieve %s API key from keyring: %v", backend, err)
		}
		return ""
	}
	return key
}

// SetAPIKey stores a key for backend. An empty key deletes it.
func (c *Credentials) SetAPIKey(backend, key string) error {
	if key == "" {
		err := keyring.Delete(c.service(), backend)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return keyring.Set(c.service(), backend, key)
}

// Require returns the key for backend or a NeedsCredential error.
func (c *Credentials) Require(op, backend string) (string, error) {
	key := c.APIKey(backend)
	if key == "" {
		return "", NewError(NeedsCredential, op, errors.New("no API key configured for "+backend))
	}
	return key, nil
}

func (c *Credentials) service() string {
	if c == nil || c.Service == "" {
		return KeyringService
	}
	return c.Service
}
