package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnvFile(t *testing.T) string {
	return "--env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENDPOINT_URL", "https://example.test/score")
	t.Setenv("ENDPOINT_API_KEY", "k")

	cfg, err := Load([]string{noEnvFile(t)})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "8080" || cfg.Engine != EngineEndpoint || cfg.SessionBackend != BackendMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	p := cfg.Retry()
	if p.MaxAttempts != 3 || p.BaseDelay != 4*time.Second || p.MaxDelay != 10*time.Second || p.Timeout != 60*time.Second {
		t.Fatalf("retry = %+v", p)
	}
	ep := cfg.Endpoint()
	if ep.QuestionField != "question" || ep.AnswerField != "answer" || ep.APIKey != "k" {
		t.Fatalf("endpoint = %+v", ep)
	}
	if cfg.WrapWidth != 60 || cfg.MaxQuestionChars != 1000 || cfg.HistoryMaxTokens != 0 {
		t.Fatalf("sizes = %d %d %d", cfg.WrapWidth, cfg.MaxQuestionChars, cfg.HistoryMaxTokens)
	}
	if cfg.Auth().Enabled() {
		t.Fatal("login gate enabled without a client id")
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("ENGINE", "openai")
	t.Setenv("OPENAI_API_KEY", "sk")
	t.Setenv("RETRY_MAX_ATTEMPTS", "5")

	cfg, err := Load([]string{noEnvFile(t), "--engine=echo", "--oauth-scopes=openid,User.Read"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine != EngineEcho {
		t.Fatalf("engine = %s", cfg.Engine)
	}
	if cfg.RetryMaxAttempts != 5 {
		t.Fatalf("attempts = %d", cfg.RetryMaxAttempts)
	}
	if got := strings.Join(cfg.OAuthScopes, " "); got != "openid User.Read" {
		t.Fatalf("scopes = %q", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	body := "ENDPOINT_URL=https://from-file.test\nENDPOINT_API_KEY=file-key\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("ENDPOINT_URL")
		os.Unsetenv("ENDPOINT_API_KEY")
	})

	cfg, err := Load([]string{"--env-file", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EndpointURL != "https://from-file.test" || cfg.EndpointAPIKey != "file-key" {
		t.Fatalf("endpoint = %s %s", cfg.EndpointURL, cfg.EndpointAPIKey)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Engine:           EngineEndpoint,
			EndpointURL:      "https://x",
			EndpointAPIKey:   "k",
			SessionBackend:   BackendMemory,
			RetryMaxAttempts: 3,
			RetryBaseDelay:   4 * time.Second,
			RetryMaxDelay:    10 * time.Second,
			RequestTimeout:   time.Minute,
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"missing key", func(c *Config) { c.EndpointAPIKey = "" }, false},
		{"missing url", func(c *Config) { c.EndpointURL = "" }, false},
		{"echo needs nothing", func(c *Config) { c.Engine = EngineEcho; c.EndpointURL = "" }, true},
		{"zero attempts", func(c *Config) { c.RetryMaxAttempts = 0 }, false},
		{"base over max", func(c *Config) { c.RetryBaseDelay = time.Minute }, false},
		{"postgres without conn", func(c *Config) { c.SessionBackend = BackendPostgres }, false},
		{"negative wrap", func(c *Config) { c.WrapWidth = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
