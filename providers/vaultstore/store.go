// Package vaultstore keeps settings documents in the KV v2 secrets engine of
// HashiCorp Vault, for settings that hold credentials.
package vaultstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/classify"
	"github.com/hengadev/classify/settings"
)

const (
	DefaultMount  = "secret"
	DefaultPrefix = "classify"
)

// Config locates the documents inside Vault.
type Config struct {
	// Mount is the path the KV v2 engine is enabled at. Defaults to
	// DefaultMount.
	Mount string
	// Prefix is prepended to every settings name. Defaults to
	// DefaultPrefix.
	Prefix string
}

func (c Config) withDefaults() Config {
	if c.Mount == "" {
		c.Mount = DefaultMount
	}
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	c.Mount = strings.Trim(c.Mount, "/")
	c.Prefix = strings.Trim(c.Prefix, "/")
	return c
}

// Store implements settings.Store on Vault KV v2. Each document is one
// secret whose "value" key holds the document in base64; Vault keeps the
// previous versions.
type Store struct {
	client *api.Client
	cfg    Config
}

var _ settings.Store = (*Store)(nil)

// New creates a Store with a client configured from the environment (see
// createVaultClient).
//
// The KV v2 engine must be enabled in Vault before use:
//
//	vault secrets enable -path=secret kv-v2
func New(cfg Config) (*Store, error) {
	client, err := createVaultClient()
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg)
}

// NewWithClient creates a Store using an existing client.
func NewWithClient(client *api.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, classify.NewInvalidConfigurationError("vault client cannot be nil")
	}
	return &Store{client: client, cfg: cfg.withDefaults()}, nil
}

func (s *Store) Kind() string { return "vault" }

// DataPath returns the KV v2 path of a settings name.
//
// Path format: "{mount}/data/{prefix}/{name}"
func (s *Store) DataPath(name string) string {
	return path.Join(s.cfg.Mount, "data", s.cfg.Prefix, name)
}

func (s *Store) metadataPath(name string) string {
	return path.Join(s.cfg.Mount, "metadata", s.cfg.Prefix, name)
}

func (s *Store) Load(ctx context.Context, name string) ([]byte, error) {
	p := s.DataPath(name)
	secret, err := s.client.Logical().ReadWithContext(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings from Vault at %s: %w", p, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, settings.NewNotFoundError(name)
	}

	// KV v2 wraps the actual data in a "data" key, null once deleted
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, settings.NewNotFoundError(name)
	}
	encoded, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: settings value missing at %s", classify.ErrInvalidFormat, p)
	}
	doc, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode settings at %s: %v", classify.ErrInvalidFormat, p, err)
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, name string, data []byte) error {
	p := s.DataPath(name)
	_, err := s.client.Logical().WriteWithContext(ctx, p, map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write settings to Vault at %s: %w", p, err)
	}
	return nil
}

// Delete removes the secret with all its versions.
func (s *Store) Delete(ctx context.Context, name string) error {
	p := s.metadataPath(name)
	if _, err := s.client.Logical().DeleteWithContext(ctx, p); err != nil {
		return fmt.Errorf("failed to delete settings from Vault at %s: %w", p, err)
	}
	return nil
}
