package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const devJWTSecret = "insecure-development-secret-change-me"

// Config holds all configuration values.
type Config struct {
	Env  string
	Addr string

	// Database
	DBDriver string
	DBDSN    string

	// Tokens
	JWTSecret            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	RequireVerifiedEmail bool

	// AI gateway
	AIBaseURL string
	AITimeout time.Duration
	// AITotalTimeout caps a scoring call across retries. Zero means
	// AITimeout * (AIMaxRetries + 1).
	AITotalTimeout time.Duration
	AIMaxRetries   uint64

	// SMTP
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// HTTP
	FrontendURL    string
	AllowedOrigins []string
	AuthRateLimit  int // requests per minute per client IP, 0 disables

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from a .env file if present, then the
// environment, then the optional YAML file at path. Keys in the YAML file
// are the environment variable names in lower case and win over the
// environment.
func Load(path string) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	overlay, err := readOverlay(path)
	if err != nil {
		return Config{}, err
	}
	src := source{overlay: overlay}

	cfg := Config{
		Env:  src.str("APP_ENV", "development"),
		Addr: src.str("ADDR", ":8080"),

		DBDriver: src.str("DB_DRIVER", "sqlite3"),
		DBDSN:    src.str("DB_DSN", "chatty.db"),

		JWTSecret:            src.str("JWT_SECRET", ""),
		AccessTokenTTL:       src.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:      src.duration("REFRESH_TOKEN_TTL", 24*time.Hour),
		VerificationTokenTTL: src.duration("VERIFICATION_TOKEN_TTL", 24*time.Hour),
		RequireVerifiedEmail: src.boolean("REQUIRE_VERIFIED_EMAIL", true),

		AIBaseURL:      src.str("AI_BASE_URL", ""),
		AITimeout:      src.duration("AI_TIMEOUT", 10*time.Second),
		AITotalTimeout: src.duration("AI_TOTAL_TIMEOUT", 0),
		AIMaxRetries:   uint64(src.integer("AI_MAX_RETRIES", 1)),

		SMTPHost:     src.str("SMTP_HOST", ""),
		SMTPPort:     src.str("SMTP_PORT", "587"),
		SMTPUsername: src.str("SMTP_USERNAME", ""),
		SMTPPassword: src.str("SMTP_PASSWORD", ""),
		SMTPFrom:     src.str("SMTP_FROM", "noreply@chatty.local"),

		FrontendURL:    strings.TrimRight(src.str("FRONTEND_URL", "http://localhost:3000"), "/"),
		AllowedOrigins: splitList(src.str("ALLOWED_ORIGINS", "http://localhost:3000")),
		AuthRateLimit:  src.integer("AUTH_RATE_LIMIT", 20),

		LogFile:  src.str("LOG_FILE", ""),
		LogLevel: parseLogLevel(src.str("LOG_LEVEL", "INFO")),
	}
	if err := errors.Join(src.errs...); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// VerifyURL is the frontend page that completes email verification.
func (c Config) VerifyURL() string {
	return c.FrontendURL + "/verify-email"
}

func (c Config) Validate() error {
	var errs []error
	if !c.IsDevelopment() && (len(c.JWTSecret) < 32 || c.JWTSecret == devJWTSecret) {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters outside development"))
	}
	if c.DBDriver != "sqlite3" && c.DBDriver != "postgres" {
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported", c.DBDriver))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.VerificationTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL"))
	}
	if c.AITimeout <= 0 {
		errs = append(errs, errors.New("AI_TIMEOUT must be positive"))
	}
	if c.AITotalTimeout < 0 {
		errs = append(errs, errors.New("AI_TOTAL_TIMEOUT must not be negative"))
	}
	return errors.Join(errs...)
}

func readOverlay(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	overlay := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		if list, ok := v.([]any); ok {
			parts := make([]string, len(list))
			for i, item := range list {
				parts[i] = fmt.Sprint(item)
			}
			overlay[strings.ToUpper(k)] = strings.Join(parts, ",")
			continue
		}
		overlay[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return overlay, nil
}

// source resolves keys against the YAML overlay and then the environment,
// collecting parse errors as it goes.
type source struct {
	overlay map[string]string
	errs    []error
}

func (s *source) lookup(key string) (string, bool) {
	if v, ok := s.overlay[key]; ok {
		return v, true
	}
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	return "", false
}

func (s *source) str(key, defaultVal string) string {
	if v, ok := s.lookup(key); ok {
		return v
	}
	return defaultVal
}

func (s *source) duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return d
}

func (s *source) integer(key string, defaultVal int) int {
	v, ok := s.lookup(key)
	if !ok {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		s.errs = append(s.errs, fmt.Errorf("%s: must be a non-negative integer, got %q", key, v))
		return defaultVal
	}
	return n
}

func (s *source) boolean(key string, defaultVal bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
