package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Keychain holds slotbot's secrets under service "slotbot": the OpenRouter
// API key, the Google service account JSON and the generated API token.
// darwin uses the login Keychain; elsewhere they live in a 0600 secrets.json.
type Keychain struct{}

func NewKeychain() Keychain { return Keychain{} }

func (Keychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (Keychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// SecretStore is the secret store GetAPIToken works against.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// GetAPIToken returns the bearer token that protects the calendar and
// interaction endpoints, generating and storing one on first use.
func GetAPIToken(s SecretStore) (string, error) {
	if tok, err := s.Get(secretService, "api_token"); err == nil && tok != "" {
		return tok, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := s.Set(secretService, "api_token", tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
