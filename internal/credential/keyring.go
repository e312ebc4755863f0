package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/99designs/keyring"
)

const (
	serviceName = "mailbrief"

	// APIKeyName is the keyring entry holding the Anthropic API key.
	APIKeyName = "anthropic_api_key"

	// APIKeyEnv overrides the keyring when set.
	APIKeyEnv = "ANTHROPIC_API_KEY"
)

// ErrNotFound is returned when no credential is configured.
var ErrNotFound = errors.New("credential not found")

// openKeyring returns a configured keyring instance.
var openKeyring = func() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailbrief/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailbrief-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// APIKey returns the service API key from the environment, falling back
// to the system keyring.
func APIKey() (string, error) {
	if v := strings.TrimSpace(os.Getenv(APIKeyEnv)); v != "" {
		return v, nil
	}

	key, err := Get(APIKeyName)
	if err != nil {
		return "", fmt.Errorf("no API key in $%s or keyring: %w", APIKeyEnv, err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("keyring entry %q is empty: %w", APIKeyName, ErrNotFound)
	}
	return key, nil
}
