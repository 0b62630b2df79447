package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Storage     StorageConfig             `json:"storage" yaml:"storage"`
	Speech      SpeechConfig              `json:"speech" yaml:"speech"`
	Auth        AuthConfig                `json:"auth" yaml:"auth"`
	Events      EventsConfig              `json:"events" yaml:"events"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address"`
	// CallbackHost is the public base URL the recognition service calls back on.
	CallbackHost      string `json:"callback_host" yaml:"callback_host"`
	LogLevel          string `json:"log_level" yaml:"log_level"`
	LogFormat         string `json:"log_format" yaml:"log_format" validate:"omitempty,oneof=text json"`
	MinWorkers        int    `json:"min_workers" yaml:"min_workers" validate:"gte=0"`
	MaxWorkers        int    `json:"max_workers" yaml:"max_workers" validate:"gte=0"`
	QueueSize         int    `json:"queue_size" yaml:"queue_size" validate:"gte=0"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout" yaml:"worker_idle_timeout"` // minutes
	ListingCacheTTL   int    `json:"listing_cache_ttl" yaml:"listing_cache_ttl"`     // seconds
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type StorageConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket" validate:"required"`
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `json:"session_token" yaml:"session_token"`
	// ACL is returned to uploaders as a prefilled field; clients drop it.
	ACL            string `json:"acl" yaml:"acl"`
	PresignExpiry  int    `json:"presign_expiry" yaml:"presign_expiry"` // seconds
	URLExpiry      int    `json:"url_expiry" yaml:"url_expiry"`         // seconds
	UsePathStyle   bool   `json:"use_path_style" yaml:"use_path_style"`
	RequestTimeout int    `json:"request_timeout" yaml:"request_timeout"` // seconds
}

type SpeechConfig struct {
	BaseURL    string   `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Username   string   `json:"username" yaml:"username"`
	Password   string   `json:"password" yaml:"password"`
	Params     []string `json:"params" yaml:"params"`
	FFmpegPath string   `json:"ffmpeg_path" yaml:"ffmpeg_path"`
}

type AuthConfig struct {
	AdminUsername string `json:"admin_username" yaml:"admin_username"`
	AdminPassword string `json:"admin_password" yaml:"admin_password"`
	TokenTTLHours int    `json:"token_ttl_hours" yaml:"token_ttl_hours" validate:"gte=0"`
}

type EventsConfig struct {
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
	SQSQueueURL   string `json:"sqs_queue_url" yaml:"sqs_queue_url" validate:"omitempty,url"`
}

const (
	DefaultSpeechURL     = "https://stream.watsonplatform.net/speech-to-text/api/v1/"
	defaultPresignExpiry = time.Hour
	defaultURLExpiry     = time.Hour
)

// Load reads configuration from the provided path (defaults to config.json).
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()

	for name, db := range cfg.Databases {
		if strings.HasPrefix(name, "sqlite") && db.DSN != "" && !isMemoryDSN(db.DSN) && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides secrets and deployment values from the environment.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Storage.Bucket, "S3_BUCKET")
	setFromEnv(&c.Storage.Region, "AWS_REGION")
	setFromEnv(&c.Storage.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setFromEnv(&c.Storage.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setFromEnv(&c.Storage.SessionToken, "AWS_SESSION_TOKEN")
	setFromEnv(&c.Speech.Username, "IBM_WATSON_USERNAME")
	setFromEnv(&c.Speech.Password, "IBM_WATSON_PASSWORD")
	setFromEnv(&c.Auth.AdminUsername, "HTTP_USER")
	setFromEnv(&c.Auth.AdminPassword, "HTTP_PASS")
	setFromEnv(&c.BasicConfig.CallbackHost, "CALLBACK_HOST")
	setFromEnv(&c.Events.WebhookSecret, "EVENTS_WEBHOOK_SECRET")
	setFromEnv(&c.Events.SQSQueueURL, "EVENTS_SQS_QUEUE_URL")
}

func (c *Config) applyDefaults() {
	if c.Speech.BaseURL == "" {
		c.Speech.BaseURL = DefaultSpeechURL
	}
	if len(c.Speech.Params) == 0 {
		c.Speech.Params = []string{
			"model=en-US_NarrowbandModel",
			"timestamps=true",
			"speaker_labels=true",
			"smart_formatting=true",
			"events=recognitions.completed_with_results",
		}
	}
	if c.Storage.ACL == "" {
		c.Storage.ACL = "public-read"
	}
	if c.BasicConfig.MaxWorkers == 0 {
		c.BasicConfig.MaxWorkers = 4
	}
	if c.BasicConfig.QueueSize == 0 {
		c.BasicConfig.QueueSize = 64
	}
}

// Validate checks the struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.BasicConfig.MinWorkers > c.BasicConfig.MaxWorkers {
		return fmt.Errorf("invalid config: min_workers %d exceeds max_workers %d", c.BasicConfig.MinWorkers, c.BasicConfig.MaxWorkers)
	}
	return nil
}

// PresignTTL is how long a presigned upload stays valid.
func (s StorageConfig) PresignTTL() time.Duration {
	if s.PresignExpiry <= 0 {
		return defaultPresignExpiry
	}
	return time.Duration(s.PresignExpiry) * time.Second
}

// URLTTL is how long presigned download URLs stay valid.
func (s StorageConfig) URLTTL() time.Duration {
	if s.URLExpiry <= 0 {
		return defaultURLExpiry
	}
	return time.Duration(s.URLExpiry) * time.Second
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// CacheTTL is how long bucket listings stay cached.
func (b BasicConfig) CacheTTL() time.Duration {
	return time.Duration(b.ListingCacheTTL) * time.Second
}

// IdleTimeout is how long a worker above the minimum waits before exiting.
func (b BasicConfig) IdleTimeout() time.Duration {
	return time.Duration(b.WorkerIdleTimeout) * time.Minute
}
