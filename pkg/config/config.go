package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"google.golang.org/api/option"
)

type Config struct {
	App       AppConfig
	Store     StoreConfig
	GCP       GCPConfig
	Redis     RedisConfig
	PubSub    PubSubConfig
	VisitFeed VisitFeedConfig
	Stream    StreamConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validateBackend(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadVisitFeed reads only the app and visit feed sections, for tools that
// do not touch the document store.
func LoadVisitFeed() (AppConfig, VisitFeedConfig, error) {
	var cfg struct {
		App       AppConfig
		VisitFeed VisitFeedConfig
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return AppConfig{}, VisitFeedConfig{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg.App, cfg.VisitFeed, nil
}

type AppConfig struct {
	Env          string `envconfig:"VISITTRACKER_APP_ENV" required:"true"`
	Port         string `envconfig:"VISITTRACKER_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VISITTRACKER_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VISITTRACKER_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"VISITTRACKER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig selects the document store backing the visit repository.
type StoreConfig struct {
	Backend string `envconfig:"VISITTRACKER_STORE_BACKEND" default:"firestore"`
}

// Kind returns the normalized backend name.
func (s StoreConfig) Kind() string {
	kind := strings.ToLower(strings.TrimSpace(s.Backend))
	if kind == "" {
		return StoreBackendFirestore
	}
	return kind
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VISITTRACKER_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"VISITTRACKER_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VISITTRACKER_GOOGLE_APPLICATION_CREDENTIALS"`
	FirestoreDatabase      string `envconfig:"VISITTRACKER_FIRESTORE_DATABASE" default:"(default)"`
}

// ClientOptions returns the credential options shared by the Google clients.
// With neither value set the clients fall back to application default credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(g.ApplicationCredentials)}
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"VISITTRACKER_REDIS_URL"`
	Address      string        `envconfig:"VISITTRACKER_REDIS_ADDR"`
	Password     string        `envconfig:"VISITTRACKER_REDIS_PASSWORD"`
	DB           int           `envconfig:"VISITTRACKER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VISITTRACKER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VISITTRACKER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VISITTRACKER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VISITTRACKER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VISITTRACKER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PubSubConfig is optional; an empty topic disables visit event publishing.
type PubSubConfig struct {
	VisitEventsTopic string `envconfig:"VISITTRACKER_PUBSUB_VISIT_EVENTS_TOPIC"`
}

// Enabled reports whether a visit events topic is configured.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.VisitEventsTopic) != ""
}

type VisitFeedConfig struct {
	BaseURL      string        `envconfig:"VISITTRACKER_VISIT_FEED_BASE_URL" default:"https://example.com/"`
	Timeout      time.Duration `envconfig:"VISITTRACKER_VISIT_FEED_TIMEOUT" default:"15s"`
	LogBodyBytes int64         `envconfig:"VISITTRACKER_VISIT_FEED_LOG_BODY_BYTES" default:"262144"`
}

type StreamConfig struct {
	AllowedOrigins []string      `envconfig:"VISITTRACKER_STREAM_ALLOWED_ORIGINS"`
	PingInterval   time.Duration `envconfig:"VISITTRACKER_STREAM_PING_INTERVAL" default:"15s"`
}

// RateLimitConfig throttles visit writes per client IP. It is only enforced
// when the redis backend is selected.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"VISITTRACKER_RATE_LIMIT_WINDOW" default:"1m"`
	WriteLimit int           `envconfig:"VISITTRACKER_RATE_LIMIT_WRITES" default:"120"`
}

func (c *Config) validateBackend() error {
	switch c.Store.Kind() {
	case StoreBackendFirestore:
		if strings.TrimSpace(c.GCP.ProjectID) == "" {
			return fmt.Errorf("%s is required for the firestore backend", EnvGCPProjectID)
		}
	case StoreBackendRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("either %s or %s is required for the redis backend", EnvRedisURL, EnvRedisAddr)
		}
	case StoreBackendMemory:
		if c.App.IsProd() {
			return fmt.Errorf("the memory backend is not allowed in %s", AppEnvProd)
		}
	default:
		return fmt.Errorf("unsupported %s %q", EnvStoreBackend, c.Store.Backend)
	}
	if c.PubSub.Enabled() && strings.TrimSpace(c.GCP.ProjectID) == "" {
		return fmt.Errorf("%s is required when %s is set", EnvGCPProjectID, EnvPubSubVisitEventsTopic)
	}
	return nil
}
