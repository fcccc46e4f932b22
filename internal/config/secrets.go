package config

import (
	"context"
	"fmt"
	"os"
	"path"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// VaultConfig says where the assistant's secrets live in Vault. Secrets are
// read from the KV engine at <MountPath>/data/<SecretPath>/<name>.
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	AuthMethod string // token (default), kubernetes or approle
	MountPath  string
	SecretPath string // e.g. "jagent/production"
	Namespace  string
}

// SecretReader reads one KV secret relative to the configured base path.
type SecretReader interface {
	GetSecret(ctx context.Context, name string) (map[string]interface{}, error)
}

// VaultClient reads assistant secrets from a logged-in Vault client.
type VaultClient struct {
	client *vault.Client
	mount  string
	base   string
}

// vaultLogin authenticates client; it may fill cfg.Token first.
type vaultLogin func(client *vault.Client, cfg *VaultConfig) error

var vaultLogins = map[string]vaultLogin{
	"":           tokenLogin,
	"token":      tokenLogin,
	"kubernetes": kubernetesLogin,
	"approle":    appRoleLogin,
}

// NewVaultClient connects and logs in to Vault.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}
	login, ok := vaultLogins[cfg.AuthMethod]
	if !ok {
		return nil, fmt.Errorf("unsupported Vault auth method: %s", cfg.AuthMethod)
	}

	settings := vault.DefaultConfig()
	settings.Address = cfg.Address
	client, err := vault.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	if err := login(client, &cfg); err != nil {
		return nil, err
	}

	vc := &VaultClient{client: client, mount: cfg.MountPath, base: cfg.SecretPath}
	if vc.mount == "" {
		vc.mount = "secret"
	}

	log.Info().
		Str("address", cfg.Address).
		Str("auth_method", cfg.AuthMethod).
		Str("secrets", path.Join(vc.mount, vc.base)).
		Msg("Connected to Vault")
	return vc, nil
}

// GetSecret reads the secret called name below the base path. KV v2 nests
// values under "data"; KV v1 does not.
func (vc *VaultClient) GetSecret(ctx context.Context, name string) (map[string]interface{}, error) {
	p := path.Join(vc.mount, "data", vc.base, name)

	secret, err := vc.client.Logical().ReadWithContext(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", p, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", p)
	}
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		return nested, nil
	}
	return secret.Data, nil
}

// secretBinding maps a key of the secret at path onto a config field.
type secretBinding struct {
	path  string
	key   string
	field func(*Config) *string
}

var secretBindings = []secretBinding{
	{"llm", "api_key", func(c *Config) *string { return &c.LLM.APIKey }},
	{"market", "alphavantage_api_key", func(c *Config) *string { return &c.Market.AlphaVantageAPIKey }},
	{"market", "finnhub_api_key", func(c *Config) *string { return &c.Market.FinnhubAPIKey }},
	{"webhook", "secret", func(c *Config) *string { return &c.Webhook.Secret }},
	{"telegram", "bot_token", func(c *Config) *string { return &c.Telegram.BotToken }},
	{"database", "url", func(c *Config) *string { return &c.Database.URL }},
}

// LoadSecretsFromVault overlays Vault secrets on cfg. It is a no-op when
// Vault is disabled.
func LoadSecretsFromVault(ctx context.Context, cfg *Config, vaultCfg VaultConfig) error {
	if !vaultCfg.Enabled {
		log.Debug().Msg("Vault disabled; secrets come from the environment")
		return nil
	}

	client, err := NewVaultClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	n := ApplySecrets(ctx, client, cfg)
	log.Info().Int("loaded", n).Msg("Secrets loaded from Vault")
	return nil
}

// ApplySecrets copies every non-empty bound secret into cfg and returns how
// many were set. A path that cannot be read keeps the current values.
func ApplySecrets(ctx context.Context, r SecretReader, cfg *Config) int {
	cache := make(map[string]map[string]interface{})
	failed := make(map[string]bool)
	n := 0

	for _, b := range secretBindings {
		if failed[b.path] {
			continue
		}
		data, ok := cache[b.path]
		if !ok {
			var err error
			data, err = r.GetSecret(ctx, b.path)
			if err != nil {
				log.Warn().Err(err).Str("path", b.path).Msg("Failed to load secrets from Vault")
				failed[b.path] = true
				continue
			}
			cache[b.path] = data
		}

		if v, ok := data[b.key].(string); ok && v != "" {
			*b.field(cfg) = v
			n++
			log.Debug().Str("path", b.path).Str("key", b.key).Msg("Secret applied")
		}
	}
	return n
}

func tokenLogin(client *vault.Client, cfg *VaultConfig) error {
	if cfg.Token == "" {
		cfg.Token = os.Getenv("VAULT_TOKEN")
	}
	if cfg.Token == "" {
		return fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(cfg.Token)
	return nil
}

func kubernetesLogin(client *vault.Client, _ *VaultConfig) error {
	jwt, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/token")
	if err != nil {
		return fmt.Errorf("kubernetes authentication failed: reading service account token: %w", err)
	}
	return writeLogin(client, "auth/kubernetes/login", map[string]interface{}{
		"jwt":  string(jwt),
		"role": envOr("VAULT_K8S_ROLE", "jagent"),
	})
}

func appRoleLogin(client *vault.Client, _ *VaultConfig) error {
	roleID, secretID := os.Getenv("VAULT_ROLE_ID"), os.Getenv("VAULT_SECRET_ID")
	if roleID == "" || secretID == "" {
		return fmt.Errorf("AppRole authentication needs VAULT_ROLE_ID and VAULT_SECRET_ID")
	}
	return writeLogin(client, "auth/approle/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
}

// writeLogin posts credentials to a login endpoint and adopts the token.
func writeLogin(client *vault.Client, endpoint string, creds map[string]interface{}) error {
	secret, err := client.Logical().Write(endpoint, creds)
	if err != nil {
		return fmt.Errorf("vault login at %s: %w", endpoint, err)
	}
	if secret == nil || secret.Auth == nil {
		return fmt.Errorf("vault login at %s returned no token", endpoint)
	}
	client.SetToken(secret.Auth.ClientToken)
	log.Info().Str("endpoint", endpoint).Msg("Logged in to Vault")
	return nil
}

// GetVaultConfigFromEnv reads VAULT_* variables. Vault stays off unless
// VAULT_ENABLED=true.
func GetVaultConfigFromEnv() VaultConfig {
	if os.Getenv("VAULT_ENABLED") != "true" {
		return VaultConfig{}
	}
	return VaultConfig{
		Enabled:    true,
		Address:    envOr("VAULT_ADDR", "http://localhost:8200"),
		Token:      os.Getenv("VAULT_TOKEN"),
		AuthMethod: envOr("VAULT_AUTH_METHOD", "token"),
		MountPath:  envOr("VAULT_MOUNT_PATH", "secret"),
		SecretPath: envOr("VAULT_SECRET_PATH", "jagent/production"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
