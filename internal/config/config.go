package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	developmentBaseURL = "http://localhost:8000"
	productionBaseURL  = "https://api.aiparati.pt"
)

type Config struct {
	Env      string `yaml:"env"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`

	AuthToken  string        `yaml:"auth_token"`
	JWTSecret  string        `yaml:"jwt_secret"`
	JWTSubject string        `yaml:"jwt_subject"`
	JWTTTL     time.Duration `yaml:"jwt_ttl"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	UploadTimeout  time.Duration `yaml:"upload_timeout"`

	RetryMax       int           `yaml:"retry_max"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	RetryFactor    float64       `yaml:"retry_factor"`
	BreakerEnabled bool          `yaml:"breaker_enabled"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxFailures int           `yaml:"poll_max_failures"`

	StatusCacheTTL time.Duration `yaml:"status_cache_ttl"`
	HealthCacheTTL time.Duration `yaml:"health_cache_ttl"`

	MaxUploadMB int  `yaml:"max_upload_mb"`
	PDFStrict   bool `yaml:"pdf_strict"`

	OfflineMaxRetries         int           `yaml:"offline_max_retries"`
	ConnectivityProbeInterval time.Duration `yaml:"connectivity_probe_interval"`
	ConnectivityStableSamples int           `yaml:"connectivity_stable_samples"`

	DownloadDir string `yaml:"download_dir"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	MinIOEndpoint  string `yaml:"minio_endpoint"`
	MinIOAccessKey string `yaml:"minio_access_key"`
	MinIOSecretKey string `yaml:"minio_secret_key"`
	MinIOBucket    string `yaml:"minio_bucket"`
	MinIOUseSSL    bool   `yaml:"minio_use_ssl"`

	NATSURL           string `yaml:"nats_url"`
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	PostgresDSN string `yaml:"postgres_dsn"`

	BridgePort           string        `yaml:"bridge_port"`
	BridgeRequireAuth    bool          `yaml:"bridge_require_auth"`
	BridgeRateLimitRPS   float64       `yaml:"bridge_rate_limit_rps"`
	BridgeRateLimitBurst int           `yaml:"bridge_rate_limit_burst"`
	BridgeMaxInFlight    int           `yaml:"bridge_max_in_flight"`
	BridgeQueueTimeout   time.Duration `yaml:"bridge_queue_timeout"`
}

func defaults() Config {
	return Config{
		Env:      EnvDevelopment,
		LogLevel: "info",

		JWTSubject: "autofund-client",
		JWTTTL:     15 * time.Minute,

		RequestTimeout: 30 * time.Second,
		UploadTimeout:  60 * time.Second,

		RetryMax:       3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  30 * time.Second,
		RetryFactor:    2,

		RateLimitBurst: 5,

		PollInterval:    2 * time.Second,
		PollMaxFailures: 5,

		StatusCacheTTL: 5 * time.Second,
		HealthCacheTTL: 60 * time.Second,

		MaxUploadMB: 10,

		OfflineMaxRetries:         3,
		ConnectivityProbeInterval: 5 * time.Second,
		ConnectivityStableSamples: 2,

		DownloadDir: "./downloads",

		MinIOBucket: "autofund-reports",

		NATSSubjectPrefix: "autofund.tasks",

		BridgePort:           "8090",
		BridgeRateLimitRPS:   20,
		BridgeRateLimitBurst: 40,
		BridgeMaxInFlight:    32,
		BridgeQueueTimeout:   250 * time.Millisecond,
	}
}

// Load reads, in increasing precedence: built-in defaults, the YAML file
// named by AUTOFUND_CONFIG_FILE, then environment variables (a .env file
// in the working directory is loaded into the environment first).
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()
	if path := os.Getenv("AUTOFUND_CONFIG_FILE"); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.Env = strings.ToLower(mustEnv("AUTOFUND_ENV", cfg.Env))
	cfg.BaseURL = mustEnv("AUTOFUND_BASE_URL", cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL(cfg.Env)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.LogLevel = mustEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.AuthToken = mustEnv("AUTOFUND_AUTH_TOKEN", cfg.AuthToken)
	cfg.JWTSecret = mustEnv("AUTOFUND_JWT_SECRET", cfg.JWTSecret)
	cfg.JWTSubject = mustEnv("AUTOFUND_JWT_SUBJECT", cfg.JWTSubject)
	cfg.JWTTTL = mustEnvDuration("AUTOFUND_JWT_TTL", cfg.JWTTTL)

	cfg.RequestTimeout = mustEnvDuration("AUTOFUND_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.UploadTimeout = mustEnvDuration("AUTOFUND_UPLOAD_TIMEOUT", cfg.UploadTimeout)

	cfg.RetryMax = mustEnvInt("AUTOFUND_RETRY_MAX", cfg.RetryMax)
	cfg.RetryBaseDelay = mustEnvDuration("AUTOFUND_RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RetryMaxDelay = mustEnvDuration("AUTOFUND_RETRY_MAX_DELAY", cfg.RetryMaxDelay)
	cfg.RetryFactor = mustEnvFloat("AUTOFUND_RETRY_FACTOR", cfg.RetryFactor)
	cfg.BreakerEnabled = mustEnvBool("AUTOFUND_BREAKER_ENABLED", cfg.BreakerEnabled)

	cfg.RateLimitRPS = mustEnvFloat("AUTOFUND_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = mustEnvInt("AUTOFUND_RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.PollInterval = mustEnvDuration("AUTOFUND_POLL_INTERVAL", cfg.PollInterval)
	cfg.PollMaxFailures = mustEnvInt("AUTOFUND_POLL_MAX_FAILURES", cfg.PollMaxFailures)

	cfg.StatusCacheTTL = mustEnvDuration("AUTOFUND_STATUS_CACHE_TTL", cfg.StatusCacheTTL)
	cfg.HealthCacheTTL = mustEnvDuration("AUTOFUND_HEALTH_CACHE_TTL", cfg.HealthCacheTTL)

	cfg.MaxUploadMB = mustEnvInt("AUTOFUND_MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.PDFStrict = mustEnvBool("AUTOFUND_PDF_STRICT", cfg.PDFStrict)

	cfg.OfflineMaxRetries = mustEnvInt("AUTOFUND_OFFLINE_MAX_RETRIES", cfg.OfflineMaxRetries)
	cfg.ConnectivityProbeInterval = mustEnvDuration("CONNECTIVITY_PROBE_INTERVAL", cfg.ConnectivityProbeInterval)
	cfg.ConnectivityStableSamples = mustEnvInt("CONNECTIVITY_STABLE_SAMPLES", cfg.ConnectivityStableSamples)

	cfg.DownloadDir = mustEnv("AUTOFUND_DOWNLOAD_DIR", cfg.DownloadDir)

	cfg.RedisAddr = mustEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = mustEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = mustEnvInt("REDIS_DB", cfg.RedisDB)

	cfg.MinIOEndpoint = mustEnv("MINIO_ENDPOINT", cfg.MinIOEndpoint)
	cfg.MinIOAccessKey = mustEnv("MINIO_ACCESS_KEY", cfg.MinIOAccessKey)
	cfg.MinIOSecretKey = mustEnv("MINIO_SECRET_KEY", cfg.MinIOSecretKey)
	cfg.MinIOBucket = mustEnv("MINIO_BUCKET", cfg.MinIOBucket)
	cfg.MinIOUseSSL = mustEnvBool("MINIO_USE_SSL", cfg.MinIOUseSSL)

	cfg.NATSURL = mustEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = mustEnv("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)

	cfg.PostgresDSN = mustEnv("POSTGRES_DSN", cfg.PostgresDSN)

	cfg.BridgePort = mustEnv("BRIDGE_PORT", cfg.BridgePort)
	cfg.BridgeRequireAuth = mustEnvBool("BRIDGE_REQUIRE_AUTH", cfg.BridgeRequireAuth)
	cfg.BridgeRateLimitRPS = mustEnvFloat("BRIDGE_RATE_LIMIT_RPS", cfg.BridgeRateLimitRPS)
	cfg.BridgeRateLimitBurst = mustEnvInt("BRIDGE_RATE_LIMIT_BURST", cfg.BridgeRateLimitBurst)
	cfg.BridgeMaxInFlight = mustEnvInt("BRIDGE_MAX_IN_FLIGHT", cfg.BridgeMaxInFlight)
	cfg.BridgeQueueTimeout = mustEnvDuration("BRIDGE_QUEUE_TIMEOUT", cfg.BridgeQueueTimeout)

	return cfg, nil
}

func DefaultBaseURL(env string) string {
	if env == EnvProduction {
		return productionBaseURL
	}
	return developmentBaseURL
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("1500ms") or plain seconds ("30").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
