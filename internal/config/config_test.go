package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test. Viper treats empty variables as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for key, legacy := range legacyEnv {
		t.Setenv(legacy, "")
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), "")
	}
	t.Setenv("JAGENT_APP_ENVIRONMENT", "")
}

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App:    AppConfig{Name: "jagent", Environment: "development", LogLevel: "info", LogFormat: "console"},
		LLM:    LLMConfig{Model: "gpt-4o-mini", Temperature: 0.1, Timeout: time.Minute},
		Agent:  AgentConfig{MaxSteps: 4, DefaultUser: "Jack Alltrades"},
		Market: MarketConfig{RiskFreeRate: 0.0425, CacheTTLHours: 1, HistoryMonths: 6},
		Fraud:  FraudConfig{OddHours: []int{0, 1, 2, 3, 4}, LargeAmountThreshold: 5000},
		API:    APIConfig{Port: 8080},
		Metrics: MetricsConfig{
			Port:    9100,
			Enabled: true,
		},
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", cfg.LLM.Endpoint)
	assert.Equal(t, 4, cfg.Agent.MaxSteps)
	assert.Equal(t, "Jack Alltrades", cfg.Agent.DefaultUser)
	assert.True(t, cfg.Agent.FinalSuffix)
	assert.InDelta(t, 0.0425, cfg.Market.RiskFreeRate, 1e-9)
	assert.Equal(t, time.Hour, cfg.Market.CacheTTL())
	assert.Equal(t, 10*time.Second, cfg.Market.HTTPTimeout)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, cfg.Fraud.OddHours)
	assert.InDelta(t, 5000, cfg.Fraud.LargeAmountThreshold, 1e-9)
	assert.True(t, cfg.Failsafe.Strict)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.API.GetAPIAddr())
	assert.Equal(t, 9100, cfg.Metrics.Port)
	assert.Equal(t, time.Hour, cfg.Webhook.DedupeTTL)
	assert.Equal(t, ".data/finnhub_events.jsonl", cfg.Webhook.EventsPath)
	assert.Equal(t, "0 0 * * * *", cfg.Scheduler.CachePrune)
	assert.Equal(t, "0 */5 * * * *", cfg.Scheduler.DedupeSweep)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("JAGENT_LLM_MODEL", "gpt-4o")
	t.Setenv("OPENAI_MODEL", "ignored")
	t.Setenv("RISK_FREE_RATE", "0.05")
	t.Setenv("CACHE_TTL_HOURS", "0.5")
	t.Setenv("MAX_AGENT_STEPS", "6")
	t.Setenv("FAILSAFE_STRICT", "false")
	t.Setenv("FINNHUB_WEBHOOK_SECRET", "hook")
	t.Setenv("JAGENT_API_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-legacy", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model, "prefixed variable wins over legacy")
	assert.InDelta(t, 0.05, cfg.Market.RiskFreeRate, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.Market.CacheTTL())
	assert.Equal(t, 6, cfg.Agent.MaxSteps)
	assert.False(t, cfg.Failsafe.Strict)
	assert.Equal(t, "hook", cfg.Webhook.Secret)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "jagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  log_format: json
fraud:
  odd_hours: [1, 2]
  large_amount_threshold: 2500
failsafe:
  policy_file: configs/failsafe.yaml
agent:
  banned_phrases: ["moonshot"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.App.LogFormat)
	assert.Equal(t, []int{1, 2}, cfg.Fraud.OddHours)
	assert.InDelta(t, 2500, cfg.Fraud.LargeAmountThreshold, 1e-9)
	assert.Equal(t, "configs/failsafe.yaml", cfg.Failsafe.PolicyFile)
	assert.Equal(t, []string{"moonshot"}, cfg.Agent.BannedPhrases)
	assert.Equal(t, 4, cfg.Agent.MaxSteps, "defaults fill missing keys")
}

func TestLoad_InvalidFileValues(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "jagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  max_steps: 0\n"), 0o600))

	_, err := Load(path)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "agent.max_steps", verrs[0].Field)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad environment", func(c *Config) { c.App.Environment = "prod" }, "app.environment"},
		{"bad log level", func(c *Config) { c.App.LogLevel = "loud" }, "app.log_level"},
		{"bad log format", func(c *Config) { c.App.LogFormat = "xml" }, "app.log_format"},
		{"rate too high", func(c *Config) { c.Market.RiskFreeRate = 1 }, "market.risk_free_rate"},
		{"negative rate", func(c *Config) { c.Market.RiskFreeRate = -0.01 }, "market.risk_free_rate"},
		{"negative ttl", func(c *Config) { c.Market.CacheTTLHours = -1 }, "market.cache_ttl_hours"},
		{"zero ttl ok", func(c *Config) { c.Market.CacheTTLHours = 0 }, ""},
		{"steps too many", func(c *Config) { c.Agent.MaxSteps = 51 }, "agent.max_steps"},
		{"empty user", func(c *Config) { c.Agent.DefaultUser = " " }, "agent.default_user"},
		{"odd hour out of range", func(c *Config) { c.Fraud.OddHours = []int{24} }, "fraud.odd_hours"},
		{"zero threshold", func(c *Config) { c.Fraud.LargeAmountThreshold = 0 }, "fraud.large_amount_threshold"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"model required with key", func(c *Config) { c.LLM.APIKey, c.LLM.Model = "sk", "" }, "llm.model"},
		{"database scheme", func(c *Config) { c.Database.URL = "mysql://x" }, "database.url"},
		{"redis scheme", func(c *Config) { c.Redis.URL = "localhost:6379" }, "redis.url"},
		{"nats scheme", func(c *Config) { c.NATS.URL = "localhost:4222" }, "nats.url"},
		{"api port", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"port conflict", func(c *Config) { c.Metrics.Port = 8080 }, "metrics.port"},
		{"production needs database", func(c *Config) {
			c.App.Environment, c.App.LogFormat, c.Webhook.Secret = "production", "json", "a8f3k2m9q1"
		}, "database.url"},
		{"production placeholder secret", func(c *Config) {
			c.App.Environment, c.App.LogFormat = "production", "json"
			c.Database.URL = "postgres://db/jagent"
			c.Webhook.Secret = "changeme"
		}, "webhook.secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	assert.Empty(t, ValidationErrors{}.Error())

	msg := ValidationErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}.Error()
	assert.Contains(t, msg, "failed with 2 error(s)")
	assert.Contains(t, msg, "1. a: bad")
	assert.Contains(t, msg, "2. b: worse")
}

type fakeSecrets map[string]map[string]interface{}

func (f fakeSecrets) GetSecret(_ context.Context, path string) (map[string]interface{}, error) {
	data, ok := f[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestApplySecrets(t *testing.T) {
	cfg := getValidConfig()
	cfg.Webhook.Secret = "from-env"
	cfg.Telegram.BotToken = "tg-env"

	n := ApplySecrets(context.Background(), fakeSecrets{
		"llm":      {"api_key": "sk-vault"},
		"market":   {"alphavantage_api_key": "av", "finnhub_api_key": ""},
		"webhook":  {"secret": 42},
		"telegram": {"bot_token": "tg-vault"},
	}, cfg)

	assert.Equal(t, 3, n)
	assert.Equal(t, "sk-vault", cfg.LLM.APIKey)
	assert.Equal(t, "av", cfg.Market.AlphaVantageAPIKey)
	assert.Empty(t, cfg.Market.FinnhubAPIKey)
	assert.Equal(t, "from-env", cfg.Webhook.Secret, "non-string values are ignored")
	assert.Equal(t, "tg-vault", cfg.Telegram.BotToken)
	assert.Empty(t, cfg.Database.URL, "unreadable paths keep current values")
}

func TestLoadSecretsFromVault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/v1/secret/data/jagent/test/llm" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data": map[string]interface{}{"api_key": "sk-from-vault"},
			},
		})
	}))
	defer srv.Close()

	cfg := getValidConfig()
	err := LoadSecretsFromVault(context.Background(), cfg, VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "root",
		MountPath:  "secret",
		SecretPath: "jagent/test",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-from-vault", cfg.LLM.APIKey)
}

func TestLoadSecretsFromVault_Disabled(t *testing.T) {
	cfg := getValidConfig()
	require.NoError(t, LoadSecretsFromVault(context.Background(), cfg, VaultConfig{}))
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestNewVaultClient_Errors(t *testing.T) {
	_, err := NewVaultClient(VaultConfig{})
	assert.ErrorContains(t, err, "not enabled")

	t.Setenv("VAULT_TOKEN", "")
	_, err = NewVaultClient(VaultConfig{Enabled: true, Address: "http://127.0.0.1:1"})
	assert.ErrorContains(t, err, "VAULT_TOKEN")

	_, err = NewVaultClient(VaultConfig{Enabled: true, Address: "http://127.0.0.1:1", AuthMethod: "ldap"})
	assert.ErrorContains(t, err, "unsupported")

	t.Setenv("VAULT_ROLE_ID", "")
	_, err = NewVaultClient(VaultConfig{Enabled: true, Address: "http://127.0.0.1:1", AuthMethod: "approle"})
	assert.ErrorContains(t, err, "VAULT_ROLE_ID")
}

func TestGetVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "")
	assert.False(t, GetVaultConfigFromEnv().Enabled)

	t.Setenv("VAULT_ENABLED", "true")
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("VAULT_SECRET_PATH", "jagent/dev")
	vc := GetVaultConfigFromEnv()
	assert.True(t, vc.Enabled)
	assert.Equal(t, "http://localhost:8200", vc.Address)
	assert.Equal(t, "jagent/dev", vc.SecretPath)
}

func TestNewLogger_Formats(t *testing.T) {
	var out, errOut bytes.Buffer

	l := newLogger("json", &out, &errOut)
	l.Info().Str("component", "test").Msg("hello")
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "hello", rec["message"])
	assert.Contains(t, rec, "time")
	assert.Contains(t, rec, "caller")
	assert.Zero(t, errOut.Len())

	out.Reset()
	l = newLogger("console", &out, &errOut)
	l.Info().Msg("to stderr")
	assert.Zero(t, out.Len())
	assert.Contains(t, errOut.String(), "to stderr")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("JAGENT_DOTENV_PROBE=loaded\n"), 0o600))

	t.Setenv("JAGENT_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("JAGENT_DOTENV_PROBE"))

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	assert.Equal(t, "loaded", os.Getenv("JAGENT_DOTENV_PROBE"))
	assert.Equal(t, "0.3.0", GetVersion())
}
