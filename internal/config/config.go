package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	DBDriver    string
	DBPath      string
	DatabaseURL string
	PGHost      string
	PGPort      int
	PGUser      string
	PGPassword  string
	PGDatabase  string
	PGSSLMode   string
	OutputDir   string

	Port               int
	LogLevel           string
	LogDevelopment     bool
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration

	InstructionBaseURL      string
	PieceImageBaseURL       string
	MissingPieceURL         string
	NotFoundInstructionsURL string

	ScraperTimeoutMs    int
	ScraperRateLimitRPS int
	ScraperUserAgent    string

	EnrichFailurePolicy  string
	EnrichMaxConcurrency int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "brickcat.db")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		PGHost:      getEnv("PGHOST", "localhost"),
		PGPort:      getEnvInt("PGPORT", 5432),
		PGUser:      getEnv("PGUSER", ""),
		PGPassword:  getEnv("PGPASSWORD", ""),
		PGDatabase:  getEnv("PGDATABASE", ""),
		PGSSLMode:   getEnv("PGSSLMODE", "require"),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		Port:               getEnvInt("PORT", 3000),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogDevelopment:     getEnvBool("LOG_DEVELOPMENT", false),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		InstructionBaseURL:      getEnv("INSTRUCTION_BASE_URL", "https://www.lego.com/service/building-instructions/"),
		PieceImageBaseURL:       getEnv("PIECE_IMAGE_BASE_URL", "https://www.lego.com/cdn/product-assets/element.img.photoreal.192x192/"),
		MissingPieceURL:         getEnv("MISSING_PIECE_URL", "https://www.lego.com/cdn/cs/set/assets/blt25ecf37f37849299/one_missing_brick.webp?format=webply&fit=bounds&quality=75&width=500&height=500&dpr=1"),
		NotFoundInstructionsURL: getEnv("NOT_FOUND_INSTRUCTIONS_URL", "https://www.lego.com/service/building-instructions/1"),

		ScraperTimeoutMs:    getEnvInt("SCRAPER_TIMEOUT_MS", 10000),
		ScraperRateLimitRPS: getEnvInt("SCRAPER_RATE_LIMIT_RPS", 10),
		ScraperUserAgent:    getEnv("SCRAPER_USER_AGENT", "brickcat/1.0"),

		EnrichFailurePolicy:  strings.ToLower(getEnv("ENRICH_FAILURE_POLICY", "fail-fast")),
		EnrichMaxConcurrency: getEnvInt("ENRICH_MAX_CONCURRENCY", 8),
	}

	if cfg.DBDriver != DriverSQLite && cfg.DBDriver != DriverPostgres {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// PostgresDSN prefers DATABASE_URL and falls back to the PG* variables.
func (c Config) PostgresDSN() (string, error) {
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return c.DatabaseURL, nil
	}
	if err := c.Require("PGDATABASE", c.PGDatabase); err != nil {
		return "", err
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PGUser, c.PGPassword),
		Host:   fmt.Sprintf("%s:%d", c.PGHost, c.PGPort),
		Path:   "/" + c.PGDatabase,
	}
	q := u.Query()
	q.Set("sslmode", c.PGSSLMode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c Config) ScraperTimeout() time.Duration {
	return time.Duration(c.ScraperTimeoutMs) * time.Millisecond
}

func (c Config) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
