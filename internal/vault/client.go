// Package vault reads exchange API credentials from HashiCorp Vault.
// With Vault disabled, credentials come from the environment instead so
// development setups need no Vault at all.
package vault

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection settings
type Config struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Address    string `json:"address" yaml:"address"`
	Token      string `json:"token" yaml:"token"`
	MountPath  string `json:"mount_path" yaml:"mount_path"`
	TLSEnabled bool   `json:"tls_enabled" yaml:"tls_enabled"`
	CACert     string `json:"ca_cert" yaml:"ca_cert"`
}

// Credentials is one exchange API key pair
type Credentials struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// Client wraps the Vault client with a read-through cache
type Client struct {
	client *api.Client
	cfg    Config

	mu    sync.RWMutex
	cache map[string]*Credentials
}

// NewClient creates the client. With Vault disabled the client serves
// credentials from UPBIT_ACCESS_KEY / UPBIT_SECRET_KEY style env vars.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{cfg: cfg, cache: make(map[string]*Credentials)}
	if !cfg.Enabled {
		return c, nil
	}
	if cfg.MountPath == "" {
		c.cfg.MountPath = "secret"
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("vault: configure tls: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("vault: create client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client
	return c, nil
}

func (c *Client) secretPath(name string) string {
	return fmt.Sprintf("%s/data/trading-bot/%s", c.cfg.MountPath, name)
}

// Credentials returns the key pair stored under name, e.g. "upbit" or
// "claude". Vault reads are cached for the process lifetime.
func (c *Client) Credentials(ctx context.Context, name string) (*Credentials, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	creds, err := c.fetch(ctx, name)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[name] = creds
	c.mu.Unlock()
	return creds, nil
}

func (c *Client) fetch(ctx context.Context, name string) (*Credentials, error) {
	if !c.cfg.Enabled {
		return credentialsFromEnv(name)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault: no credentials for %s", name)
	}
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("vault: unexpected secret format for %s", name)
	}

	creds := &Credentials{
		AccessKey: getString(data, "access_key"),
		SecretKey: getString(data, "secret_key"),
	}
	if creds.AccessKey == "" {
		return nil, fmt.Errorf("vault: empty access key for %s", name)
	}
	return creds, nil
}

// Store writes a key pair, used by setup tooling
func (c *Client) Store(ctx context.Context, name string, creds Credentials) error {
	if !c.cfg.Enabled {
		c.mu.Lock()
		c.cache[name] = &creds
		c.mu.Unlock()
		return nil
	}

	payload := map[string]any{
		"data": map[string]any{
			"access_key": creds.AccessKey,
			"secret_key": creds.SecretKey,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(name), payload); err != nil {
		return fmt.Errorf("vault: write %s: %w", name, err)
	}

	c.mu.Lock()
	c.cache[name] = &creds
	c.mu.Unlock()
	return nil
}

func credentialsFromEnv(name string) (*Credentials, error) {
	prefix := envPrefix(name)
	creds := &Credentials{
		AccessKey: os.Getenv(prefix + "_ACCESS_KEY"),
		SecretKey: os.Getenv(prefix + "_SECRET_KEY"),
	}
	if creds.AccessKey == "" {
		// Single-key services like LLM providers use _API_KEY.
		creds.AccessKey = os.Getenv(prefix + "_API_KEY")
	}
	if creds.AccessKey == "" {
		return nil, fmt.Errorf("vault: disabled and no %s_ACCESS_KEY or %s_API_KEY in environment", prefix, prefix)
	}
	return creds, nil
}

func envPrefix(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r-'a'+'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func getString(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
