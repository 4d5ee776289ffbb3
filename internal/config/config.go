package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "TWOOTER"

type Config struct {
	API           APIConfig           `envconfig:"API"`
	Bot           BotConfig           `envconfig:"BOT"`
	Team          TeamConfig          `envconfig:"TEAM"`
	Auth          AuthConfig          `envconfig:"AUTH"`
	Store         StoreConfig         `envconfig:"STORE"`
	Retry         RetryConfig         `envconfig:"RETRY"`
	LLM           LLMConfig           `envconfig:"LLM"`
	Crawler       CrawlerConfig       `envconfig:"CRAWLER"`
	Campaign      CampaignConfig      `envconfig:"CAMPAIGN"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	Log           LogConfig           `envconfig:"LOG"`
	AWS           AWSConfig           `envconfig:"AWS"`
}

type APIConfig struct {
	BaseURL string        `envconfig:"BASE_URL" default:"https://social.legitreal.com/api"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

type BotConfig struct {
	Username            string `envconfig:"USERNAME"`
	Password            string `envconfig:"PASSWORD"`
	Email               string `envconfig:"EMAIL"`
	DisplayName         string `envconfig:"DISPLAY_NAME"`
	PasswordFromSecrets bool   `envconfig:"PASSWORD_FROM_SECRETS" default:"false"`
}

type TeamConfig struct {
	BotKey      string `envconfig:"BOT_KEY"`
	InviteCode  string `envconfig:"INVITE_CODE"`
	Name        string `envconfig:"NAME"`
	Affiliation string `envconfig:"AFFILIATION"`
	MemberName  string `envconfig:"MEMBER_NAME"`
	MemberEmail string `envconfig:"MEMBER_EMAIL"`
}

// Login policies accepted by AuthConfig.LoginPolicy.
const (
	PolicyLoginFirst    = "login_first"
	PolicyRegisterFirst = "register_first"
)

type AuthConfig struct {
	LoginPolicy string `envconfig:"LOGIN_POLICY" default:"login_first"`
}

// Store backends accepted by StoreConfig.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

type StoreConfig struct {
	Backend        string        `envconfig:"BACKEND" default:"sqlite"`
	SQLitePath     string        `envconfig:"SQLITE_PATH" default:"./tokens.db"`
	RedisAddress   string        `envconfig:"REDIS_ADDRESS" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDatabase  int           `envconfig:"REDIS_DATABASE" default:"0"`
	RedisKeyPrefix string        `envconfig:"REDIS_KEY_PREFIX" default:"twooter:token:"`
	DynamoTable    string        `envconfig:"DYNAMODB_TABLE" default:"twooter-tokens"`
	PostgresURL    string        `envconfig:"POSTGRES_URL" default:""`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

type RetryConfig struct {
	MaxRetries   int           `envconfig:"MAX_RETRIES" default:"3"`
	PostBase     time.Duration `envconfig:"POST_BASE" default:"30s"`
	GenerateBase time.Duration `envconfig:"GENERATE_BASE" default:"5s"`
	ReadBase     time.Duration `envconfig:"READ_BASE" default:"5s"`
	Multiplier   float64       `envconfig:"MULTIPLIER" default:"2"`
	MaxDelay     time.Duration `envconfig:"MAX_DELAY" default:"2m"`
}

// LLM providers accepted by LLMConfig.Provider.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"
)

type LLMConfig struct {
	Provider   string `envconfig:"PROVIDER" default:"none"`
	Endpoint   string `envconfig:"ENDPOINT" default:""`
	APIKey     string `envconfig:"API_KEY" default:""`
	Model      string `envconfig:"MODEL" default:"gpt-4o-mini"`
	APIVersion string `envconfig:"API_VERSION" default:"2024-02-15-preview"`
	MaxChars   int    `envconfig:"MAX_CHARS" default:"255"`

	// SystemPrompt overrides the built-in persona prompt.
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" default:""`
}

type CrawlerConfig struct {
	SiteURL      string        `envconfig:"SITE_URL" default:""`
	MaxArticles  int           `envconfig:"MAX_ARTICLES" default:"5"`
	RequestDelay time.Duration `envconfig:"REQUEST_DELAY" default:"1s"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

type CampaignConfig struct {
	PostDelay       time.Duration `envconfig:"POST_DELAY" default:"15s"`
	EngagementDelay time.Duration `envconfig:"ENGAGEMENT_DELAY" default:"2s"`
	ThreadDelay     time.Duration `envconfig:"THREAD_DELAY" default:"2s"`
	MaxTags         int           `envconfig:"MAX_TAGS" default:"3"`
	PostsPerTag     int           `envconfig:"POSTS_PER_TAG" default:"3"`
	Interval        time.Duration `envconfig:"INTERVAL" default:"30m"`
	TrendingLimit   int           `envconfig:"TRENDING_LIMIT" default:"5"`
	ReplyToTrending bool          `envconfig:"REPLY_TO_TRENDING" default:"false"`
	Candidate       string        `envconfig:"CANDIDATE" default:""`
	Themes          []string      `envconfig:"THEMES" default:""`
	Hashtags        []string      `envconfig:"HASHTAGS" default:""`
	TagKeywords     []string      `envconfig:"TAG_KEYWORDS" default:""`

	// MentionHandle is searched as @handle; derived from Candidate when empty.
	MentionHandle string        `envconfig:"MENTION_HANDLE" default:""`
	MentionLimit  int           `envconfig:"MENTION_LIMIT" default:"100"`
	MaxMentions   int           `envconfig:"MAX_MENTIONS" default:"0"`
	MentionDelay  time.Duration `envconfig:"MENTION_DELAY" default:"15s"`

	AutoEngage AutoEngageConfig `envconfig:"AUTO_ENGAGE"`
}

// Auto-engagement actions.
const (
	ActionLike   = "like"
	ActionRepost = "repost"
	ActionReply  = "reply"
)

type AutoEngageConfig struct {
	Keywords          []string      `envconfig:"KEYWORDS" default:""`
	Actions           []string      `envconfig:"ACTIONS" default:"like"`
	SearchLimit       int           `envconfig:"SEARCH_LIMIT" default:"5"`
	PostsPerKeyword   int           `envconfig:"POSTS_PER_KEYWORD" default:"2"`
	ActionDelay       time.Duration `envconfig:"ACTION_DELAY" default:"2s"`
	MaxActionsPerHour int           `envconfig:"MAX_ACTIONS_PER_HOUR" default:"10"`
	CheckInterval     time.Duration `envconfig:"CHECK_INTERVAL" default:"60s"`
}

type ObservabilityConfig struct {
	StatusAddress  string  `envconfig:"STATUS_ADDRESS" default:":9090"`
	TracingEnabled bool    `envconfig:"TRACING_ENABLED" default:"false"`
	Exporter       string  `envconfig:"EXPORTER" default:"otlp"`
	OTLPEndpoint   string  `envconfig:"OTLP_ENDPOINT" default:"http://localhost:4318"`
	SampleRate     float64 `envconfig:"SAMPLE_RATE" default:"1.0"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

type AWSConfig struct {
	Region     string `envconfig:"REGION" default:"us-east-1"`
	Profile    string `envconfig:"PROFILE" default:""`
	SecretName string `envconfig:"SECRET_NAME" default:""`
}

// Load reads .env (when present) and the TWOOTER_* environment into a Config.
func Load() (*Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api base url: %q", cfg.API.BaseURL)
	}

	switch cfg.Auth.LoginPolicy {
	case PolicyLoginFirst, PolicyRegisterFirst:
	default:
		return fmt.Errorf("invalid login policy: %s", cfg.Auth.LoginPolicy)
	}

	switch cfg.Store.Backend {
	case BackendSQLite, BackendRedis, BackendDynamoDB, BackendPostgres:
	default:
		return fmt.Errorf("invalid store backend: %s", cfg.Store.Backend)
	}
	if cfg.Store.Backend == BackendPostgres && cfg.Store.PostgresURL == "" {
		return fmt.Errorf("postgres store requires a connection url")
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.PostBase <= 0 || cfg.Retry.GenerateBase <= 0 || cfg.Retry.ReadBase <= 0 {
		return fmt.Errorf("retry base delays must be positive")
	}
	if cfg.Retry.Multiplier < 1 {
		return fmt.Errorf("invalid retry multiplier: %f", cfg.Retry.Multiplier)
	}

	switch cfg.LLM.Provider {
	case ProviderNone, ProviderOpenAI, ProviderAzure, ProviderGemini:
	default:
		return fmt.Errorf("invalid llm provider: %s", cfg.LLM.Provider)
	}

	if err := cfg.Campaign.AutoEngage.Validate(); err != nil {
		return err
	}

	if cfg.Observability.SampleRate < 0 || cfg.Observability.SampleRate > 1 {
		return fmt.Errorf("invalid tracing sample rate: %f", cfg.Observability.SampleRate)
	}

	return nil
}

// Validate checks the action names and the hourly cap.
func (c AutoEngageConfig) Validate() error {
	for _, a := range c.Actions {
		switch a {
		case ActionLike, ActionRepost, ActionReply:
		default:
			return fmt.Errorf("invalid auto-engage action: %s", a)
		}
	}
	if c.MaxActionsPerHour <= 0 {
		return fmt.Errorf("invalid max actions per hour: %d", c.MaxActionsPerHour)
	}
	return nil
}
