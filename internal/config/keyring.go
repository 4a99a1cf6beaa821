package config

import (
	"log/slog"

	"github.com/zalando/go-keyring"
)

// keychainService is the service name this server registers its secrets
// under in the OS keychain (macOS Keychain, Windows Credential Manager,
// Linux Secret Service).
const keychainService = "codeintel-server"

// Secret names the credentials the server may read from the keychain.
// Each maps to one keychain item; environment variables always win over
// keychain values (see applyEnvOverrides).
type Secret string

const (
	SecretOpenAIKey        Secret = "openai-api-key"
	SecretNeo4jPassword    Secret = "neo4j-password"
	SecretPostgresPassword Secret = "postgres-password"
)

// Keychain reads and writes this server's secrets in the OS keychain.
type Keychain struct {
	logger *slog.Logger
}

// OpenKeychain returns a keychain handle. It never fails; availability is
// probed lazily since headless hosts (CI, containers) have no secret
// service and every caller must fall back to environment variables there.
func OpenKeychain() *Keychain {
	return &Keychain{logger: slog.Default().With("component", "keychain")}
}

// Available probes whether a secret service is reachable by writing and
// removing a sentinel item.
func (k *Keychain) Available() bool {
	const probe = "availability-probe"
	if err := keyring.Set(keychainService, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(keychainService, probe)
	return true
}

// Get reads one secret. Returns ("", nil) when the item is not stored so
// callers can chain on to the next credential source.
func (k *Keychain) Get(name Secret) (string, error) {
	value, err := keyring.Get(keychainService, string(name))
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		k.logger.Debug("keychain read failed", "item", string(name), "error", err)
		return "", err
	}
	return value, nil
}

// Set stores one secret.
func (k *Keychain) Set(name Secret, value string) error {
	if err := keyring.Set(keychainService, string(name), value); err != nil {
		return err
	}
	k.logger.Info("secret saved to keychain", "item", string(name))
	return nil
}

// Delete removes one secret. Deleting an absent item is not an error.
func (k *Keychain) Delete(name Secret) error {
	err := keyring.Delete(keychainService, string(name))
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

// fillFromKeychain populates any secret still empty after file and
// environment loading. Keychain is the lowest-priority source on purpose:
// an operator exporting NEO4J_PASSWORD must always win.
func fillFromKeychain(cfg *Config) {
	kc := OpenKeychain()
	if !kc.Available() {
		return
	}
	if cfg.API.OpenAIKey == "" {
		if v, err := kc.Get(SecretOpenAIKey); err == nil && v != "" {
			cfg.API.OpenAIKey = v
		}
	}
	if cfg.Neo4j.Password == "" {
		if v, err := kc.Get(SecretNeo4jPassword); err == nil && v != "" {
			cfg.Neo4j.Password = v
		}
	}
	if cfg.Storage.PostgresPassword == "" {
		if v, err := kc.Get(SecretPostgresPassword); err == nil && v != "" {
			cfg.Storage.PostgresPassword = v
		}
	}
}

// MaskSecret renders a secret for logs: first four and last two characters
// only.
func MaskSecret(value string) string {
	if value == "" {
		return "(not set)"
	}
	if len(value) < 8 {
		return "***"
	}
	return value[:4] + "..." + value[len(value)-2:]
}
