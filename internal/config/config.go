// Package config loads the process-wide configuration once at startup.
//
// Values come from the environment, optionally seeded from a .env file in the
// working directory (godotenv never overrides variables that are already set).
// Load returns a plain struct; main passes it (or parts of it) by value into
// constructors, so request-handling code never reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the server.
type Config struct {
	Env      string
	Port     int
	LogLevel string
	DBPath   string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	Upload  UploadConfig
	Storage StorageConfig

	Responder ResponderConfig

	Redis     RedisConfig
	RateLimit RateLimitConfig

	CORSAllowedOrigin string

	// TrustProxyHeaders makes X-Forwarded-For / X-Real-IP the client address.
	// Enable it only behind a reverse proxy that overwrites those headers;
	// otherwise any caller can pick its own rate-limit key.
	TrustProxyHeaders bool
}

// UploadConfig is the attachment policy.
type UploadConfig struct {
	Dir               string
	MaxFiles          int
	MaxFileBytes      int64
	AllowedExtensions []string
}

// StorageConfig selects where attachment blobs are written.
// Backend is "disk" (default) or "s3".
type StorageConfig struct {
	Backend     string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// ResponderConfig selects the external responder.
// Kind is "mock", "http" or "gemini".
type ResponderConfig struct {
	Kind         string
	URL          string
	Timeout      time.Duration
	TokenURL     string
	ClientID     string
	ClientSecret string
	GeminiAPIKey string
	GeminiModel  string
}

// RedisConfig is optional; an empty Addr disables Redis-backed rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// ErrMissingJWTSecret is returned when JWT_SECRET is not configured. The server
// refuses to start rather than sign tokens with a guessable default key.
var ErrMissingJWTSecret = errors.New("config: JWT_SECRET is required")

// Load reads .env (if present) and the environment into a Config.
func Load() (Config, error) {
	// A missing .env file is normal in production; only a malformed one is an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function. Tests pass a map-backed
// lookup instead of touching the real environment.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Env:      e.str("APP_ENV", "dev"),
		Port:     e.integer("PORT", 5000),
		LogLevel: e.str("LOG_LEVEL", ""),
		DBPath:   e.str("DB_PATH", "data/clustify.db"),

		JWTSecret:  e.str("JWT_SECRET", ""),
		TokenTTL:   e.duration("TOKEN_TTL", 24*time.Hour),
		BcryptCost: e.integer("BCRYPT_COST", 12),

		Upload: UploadConfig{
			Dir:               e.str("UPLOAD_DIR", "uploads"),
			MaxFiles:          e.integer("UPLOAD_MAX_FILES", 10),
			MaxFileBytes:      int64(e.integer("UPLOAD_MAX_FILE_BYTES", 10*1024*1024)),
			AllowedExtensions: e.list("UPLOAD_ALLOWED_EXTENSIONS", []string{".txt", ".docker"}),
		},
		Storage: StorageConfig{
			Backend:     strings.ToLower(e.str("STORAGE_BACKEND", "disk")),
			S3Bucket:    e.str("S3_BUCKET", ""),
			S3Region:    e.str("S3_REGION", "us-east-1"),
			S3Endpoint:  e.str("S3_ENDPOINT", ""),
			S3AccessKey: e.str("S3_ACCESS_KEY", ""),
			S3SecretKey: e.str("S3_SECRET_KEY", ""),
		},
		Responder: ResponderConfig{
			Kind:         strings.ToLower(e.str("RESPONDER_KIND", "")),
			URL:          e.str("RESPONDER_URL", ""),
			Timeout:      e.duration("RESPONDER_TIMEOUT", 30*time.Second),
			TokenURL:     e.str("RESPONDER_TOKEN_URL", ""),
			ClientID:     e.str("RESPONDER_CLIENT_ID", ""),
			ClientSecret: e.str("RESPONDER_CLIENT_SECRET", ""),
			GeminiAPIKey: e.str("GEMINI_API_KEY", ""),
			GeminiModel:  e.str("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		},
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.integer("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Limit:  e.integer("AUTH_RATE_LIMIT", 10),
			Window: e.duration("AUTH_RATE_WINDOW", time.Minute),
		},
		CORSAllowedOrigin: e.str("CORS_ALLOWED_ORIGIN", "*"),
		TrustProxyHeaders: e.boolean("TRUST_PROXY_HEADERS", false),
	}

	if cfg.Responder.Kind == "" {
		cfg.Responder.Kind = "mock"
		if cfg.Responder.URL != "" {
			cfg.Responder.Kind = "http"
		}
	}

	if e.err != nil {
		return Config{}, e.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.Upload.MaxFiles <= 0 {
		return errors.New("config: UPLOAD_MAX_FILES must be positive")
	}
	if c.Upload.MaxFileBytes <= 0 {
		return errors.New("config: UPLOAD_MAX_FILE_BYTES must be positive")
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("config: UPLOAD_ALLOWED_EXTENSIONS must not be empty")
	}

	switch c.Storage.Backend {
	case "disk":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return errors.New("config: S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Responder.Kind {
	case "mock":
	case "http":
		if c.Responder.URL == "" {
			return errors.New("config: RESPONDER_URL is required when RESPONDER_KIND=http")
		}
	case "gemini":
		if c.Responder.GeminiAPIKey == "" {
			return errors.New("config: GEMINI_API_KEY is required when RESPONDER_KIND=gemini")
		}
	default:
		return fmt.Errorf("config: unknown RESPONDER_KIND %q", c.Responder.Kind)
	}

	return nil
}

// env wraps a lookup function and remembers the first parse error so Load
// can report it once instead of checking after every key.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("config: %s=%q is not an integer", key, v))
		return fallback
	}
	return n
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("config: %s=%q is not a duration", key, v))
		return fallback
	}
	return d
}

func (e *env) boolean(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("config: %s=%q is not a boolean", key, v))
		return fallback
	}
	return b
}

// list parses a comma-separated value. Extensions are normalised to ".ext".
func (e *env) list(key string, fallback []string) []string {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
