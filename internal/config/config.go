// Package config loads runtime settings from flags, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/varsilias/askdesk/internal/auth"
	"github.com/varsilias/askdesk/internal/endpoint"
)

const (
	EngineEndpoint = "endpoint"
	EngineOpenAI   = "openai"
	EngineEcho     = "echo"

	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

type Config struct {
	Addr     string `name:"addr" env:"ADDR" default:"8080" help:"HTTP listen port."`
	LogLevel string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogJSON  bool   `name:"log-json" env:"LOG_JSON" help:"Log as JSON."`
	EnvFile  string `name:"env-file" default:".env" help:"Dotenv file loaded before parsing."`

	Engine string `name:"engine" env:"ENGINE" default:"endpoint" enum:"endpoint,openai,echo" help:"Answer backend."`

	EndpointURL         string `name:"endpoint-url" env:"ENDPOINT_URL" help:"Inference endpoint URL."`
	EndpointAPIKey      string `name:"endpoint-api-key" env:"ENDPOINT_API_KEY" help:"Bearer token for the inference endpoint."`
	EndpointQuestion    string `name:"endpoint-question-field" env:"ENDPOINT_QUESTION_FIELD" default:"question" help:"Request field carrying the question."`
	EndpointAnswer      string `name:"endpoint-answer-field" env:"ENDPOINT_ANSWER_FIELD" default:"answer" help:"Response field carrying the answer."`
	EndpointInsecureTLS bool   `name:"endpoint-insecure-tls" env:"ENDPOINT_INSECURE_TLS" help:"Skip TLS verification (self-signed deployments)."`

	RetryMaxAttempts int           `name:"retry-max-attempts" env:"RETRY_MAX_ATTEMPTS" default:"3" help:"Attempts per question."`
	RetryBaseDelay   time.Duration `name:"retry-base-delay" env:"RETRY_BASE_DELAY" default:"4s" help:"First backoff delay."`
	RetryMaxDelay    time.Duration `name:"retry-max-delay" env:"RETRY_MAX_DELAY" default:"10s" help:"Backoff ceiling."`
	RequestTimeout   time.Duration `name:"request-timeout" env:"REQUEST_TIMEOUT" default:"60s" help:"Timeout per attempt."`

	OpenAIBaseURL string `name:"openai-base-url" env:"OPENAI_BASE_URL" help:"OpenAI-compatible API base URL."`
	OpenAIAPIKey  string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"OpenAI API key."`
	OpenAIModel   string `name:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o-mini" help:"Chat completion model."`
	OpenAISysmsg  string `name:"openai-sysmsg" env:"OPENAI_SYSMSG" default:"You are a helpful assistant." help:"System message for the openai engine."`

	StartupWait         time.Duration `name:"startup-wait" env:"STARTUP_WAIT" default:"0s" help:"Wait this long for the model backend before serving, 0 skips the check."`
	StartupWaitInterval time.Duration `name:"startup-wait-interval" env:"STARTUP_WAIT_INTERVAL" default:"2s" help:"Check interval while waiting."`

	SessionBackend  string `name:"session-backend" env:"SESSION_BACKEND" default:"memory" enum:"memory,bolt,postgres" help:"Conversation history store."`
	SessionBoltPath string `name:"session-bolt-path" env:"SESSION_BOLT_PATH" default:"data/sessions.db" help:"bbolt file for the bolt backend."`
	PgConn          string `name:"pg-conn" env:"PG_CONN" help:"Postgres connection string for the postgres backend."`

	HistoryMaxTokens int `name:"history-max-tokens" env:"HISTORY_MAX_TOKENS" default:"0" help:"Token budget for history sent upstream, 0 for unlimited."`
	WrapWidth        int `name:"wrap-width" env:"WRAP_WIDTH" default:"60" help:"Wrap answers at this column, 0 disables."`
	MaxQuestionChars int `name:"max-question-chars" env:"MAX_QUESTION_CHARS" default:"1000" help:"Longest accepted question."`

	OAuthClientID     string   `name:"oauth-client-id" env:"OAUTH_CLIENT_ID" help:"Enables the login gate."`
	OAuthClientSecret string   `name:"oauth-client-secret" env:"OAUTH_CLIENT_SECRET"`
	OAuthTenantID     string   `name:"oauth-tenant-id" env:"OAUTH_TENANT_ID"`
	OAuthAuthURL      string   `name:"oauth-auth-url" env:"OAUTH_AUTH_URL"`
	OAuthTokenURL     string   `name:"oauth-token-url" env:"OAUTH_TOKEN_URL"`
	OAuthRedirectURL  string   `name:"oauth-redirect-url" env:"OAUTH_REDIRECT_URL" default:"http://localhost:8080/auth/callback"`
	OAuthScopes       []string `name:"oauth-scopes" env:"OAUTH_SCOPES" sep:"," help:"Comma separated scopes."`
}

// Load reads the dotenv file named by --env-file (if present) and then parses
// args against the environment. Values already in the environment win over
// the file.
func Load(args []string, opts ...kong.Option) (*Config, error) {
	if err := loadEnvFile(envFileArg(args)); err != nil {
		return nil, err
	}

	var cfg Config
	options := append([]kong.Option{
		kong.Name("askdesk"),
		kong.Description("Conversational front end for a hosted inference endpoint."),
	}, opts...)
	parser, err := kong.New(&cfg, options...)
	if err != nil {
		return nil, err
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func envFileArg(args []string) string {
	for i, a := range args {
		if a == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			return v
		}
	}
	return ".env"
}

func (c *Config) Validate() error {
	if c.Engine == EngineEndpoint {
		if c.EndpointURL == "" {
			return errors.New("config: ENDPOINT_URL is required for the endpoint engine")
		}
		if c.EndpointAPIKey == "" {
			return errors.New("config: ENDPOINT_API_KEY is required for the endpoint engine")
		}
	}
	if c.Engine == EngineOpenAI && c.OpenAIAPIKey == "" && c.OpenAIBaseURL == "" {
		return errors.New("config: OPENAI_API_KEY or OPENAI_BASE_URL is required for the openai engine")
	}
	if c.SessionBackend == BackendPostgres && c.PgConn == "" {
		return errors.New("config: PG_CONN is required for the postgres backend")
	}
	if c.HistoryMaxTokens < 0 || c.WrapWidth < 0 || c.MaxQuestionChars < 0 {
		return errors.New("config: sizes must not be negative")
	}
	if err := c.Retry().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) Retry() endpoint.RetryPolicy {
	return endpoint.RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
		Timeout:     c.RequestTimeout,
	}
}

func (c *Config) Endpoint() endpoint.Config {
	return endpoint.Config{
		URL:           c.EndpointURL,
		APIKey:        c.EndpointAPIKey,
		QuestionField: c.EndpointQuestion,
		AnswerField:   c.EndpointAnswer,
		InsecureTLS:   c.EndpointInsecureTLS,
		Retry:         c.Retry(),
	}
}

func (c *Config) Auth() auth.Config {
	return auth.Config{
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
		TenantID:     c.OAuthTenantID,
		AuthURL:      c.OAuthAuthURL,
		TokenURL:     c.OAuthTokenURL,
		RedirectURL:  c.OAuthRedirectURL,
		Scopes:       c.OAuthScopes,
	}
}
