// Package config loads service configuration from flags, the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"scour/internal/auth"
)

type Config struct {
	Env         string `long:"env" env:"APP_ENV" default:"development" description:"Deployment environment"`
	ListenAddr  string `long:"listen" env:"LISTEN_ADDR" default:":8080" description:"HTTP listen address"`
	Store       string `long:"store" env:"STORE" default:"postgres" choice:"postgres" choice:"memory" description:"Storage backend"`
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"PostgreSQL connection URL"`
	Migrate     bool   `long:"migrate" env:"MIGRATE" description:"Apply database migrations at startup"`
	RedisURL    string `long:"redis-url" env:"REDIS_URL" description:"Redis URL for quota counters; the main store is used when empty"`
	NATSURL     string `long:"nats-url" env:"NATS_URL" description:"NATS URL for incident and trend events; events are dropped when empty"`

	LLM struct {
		BaseURL string        `long:"base-url" env:"BASE_URL" default:"https://api.openai.com/v1" description:"Chat completions base URL"`
		APIKey  string        `long:"api-key" env:"API_KEY" description:"API key for the generative model"`
		Model   string        `long:"model" env:"MODEL" default:"gpt-4o-mini" description:"Model name"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"20s" description:"Generation call timeout"`
	} `group:"LLM" namespace:"llm" env-namespace:"LLM"`

	Search struct {
		Endpoint string        `long:"endpoint" env:"ENDPOINT" default:"https://api.search.brave.com/res/v1/web/search" description:"Web search endpoint"`
		APIKey   string        `long:"api-key" env:"API_KEY" description:"Web search subscription token"`
		Timeout  time.Duration `long:"timeout" env:"TIMEOUT" default:"8s" description:"Search call timeout"`
	} `group:"Search" namespace:"search" env-namespace:"SEARCH"`

	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"8s" description:"Page fetch timeout"`

	Scour struct {
		CallBudget    time.Duration `long:"call-budget" env:"CALL_BUDGET" default:"60s" description:"Default time budget of one advance call"`
		SourceTimeout time.Duration `long:"source-timeout" env:"SOURCE_TIMEOUT" default:"30s" description:"Default per-source timeout"`
		BatchSize     int           `long:"batch-size" env:"BATCH_SIZE" default:"3" description:"Default sources per batch"`
		DaysBack      int           `long:"days-back" env:"DAYS_BACK" default:"7" description:"Default recency window in days"`
	} `group:"Scour" namespace:"scour" env-namespace:"SCOUR"`

	Quota struct {
		Search   int64 `long:"search" env:"SEARCH" default:"200" description:"Search calls per user per day; 0 disables"`
		Generate int64 `long:"generate" env:"GENERATE" default:"100" description:"Generation calls per user per day; 0 disables"`
	} `group:"Quota" namespace:"quota" env-namespace:"QUOTA"`

	APITokens   string `long:"api-tokens" env:"API_TOKENS" description:"Bearer tokens as token:user pairs, comma separated"`
	AdminSecret string `long:"admin-secret" env:"ADMIN_SECRET" description:"Value of the X-Admin-Secret header that bypasses identity and quota"`

	Workers      int           `long:"workers" env:"SCOUR_WORKERS" default:"0" description:"Background job advancers; 0 leaves advancing to callers"`
	PollInterval time.Duration `long:"poll-interval" env:"SCOUR_POLL_INTERVAL" default:"15s" description:"How often workers look for running jobs"`
	TrendCron    string        `long:"trend-cron" env:"TREND_CRON" default:"@every 1h" description:"Schedule for creating trends from unmatched incidents; empty disables"`

	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"debug, info, warn or error"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"console" choice:"console" choice:"json" description:"Log output format"`
}

// Tokens returns the parsed bearer token table.
func (c Config) Tokens() map[string]string { return auth.ParseTokens(c.APITokens) }

// ErrHelp is returned when help output was requested.
var ErrHelp = errors.New("help requested")

// Load reads .env (if present), then parses args over the environment.
// Pass nil args to read the environment only.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return cfg, ErrHelp
		}
		return cfg, fmt.Errorf("parse configuration: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	if c.Store == "postgres" && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required unless STORE=memory")
	}
	if c.Workers < 0 {
		return errors.New("SCOUR_WORKERS must not be negative")
	}
	return nil
}
