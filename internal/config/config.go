package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP         HTTPConfig
	Backend      BackendConfig
	Credentials  CredentialConfig
	DatabaseURL  string
	Redis        RedisConfig
	AuditLogFile string
	LogLevel     string
	// StudentsNegativeIDsIncomplete marks negative ids in the students
	// listing as accounts without a student profile.
	StudentsNegativeIDsIncomplete bool
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type BackendConfig struct {
	URL string
	// Timeout of zero leaves requests to the transport default.
	Timeout time.Duration
}

type CredentialConfig struct {
	Store string
	File  string
	Scope string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            getEnv("HTTP_ADDR", ":8090"),
			ReadTimeout:     time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SEC", 10)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SEC", 15)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("HTTP_SHUTDOWN_TIMEOUT_SEC", 20)) * time.Second,
		},
		Backend: BackendConfig{
			URL:     getEnv("BACKEND_URL", "http://localhost:8080"),
			Timeout: time.Duration(getEnvInt("BACKEND_TIMEOUT_SEC", 0)) * time.Second,
		},
		Credentials: CredentialConfig{
			Store: strings.ToLower(getEnv("CREDENTIAL_STORE", StoreFile)),
			File:  getEnv("CREDENTIAL_FILE", "./data/credentials.json"),
			Scope: getEnv("CREDENTIAL_SCOPE", "default"),
		},
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "uniportal:session:"),
		},
		AuditLogFile:                  getEnv("AUDIT_LOG_FILE", "./data/audit.log"),
		LogLevel:                      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StudentsNegativeIDsIncomplete: getEnvBool("STUDENTS_NEGATIVE_IDS_INCOMPLETE", false),
	}

	if cfg.HTTP.Addr == "" {
		return Config{}, fmt.Errorf("HTTP_ADDR must not be empty")
	}
	u, err := url.Parse(cfg.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Config{}, fmt.Errorf("BACKEND_URL must be an absolute url, got %q", cfg.Backend.URL)
	}
	if cfg.Backend.Timeout < 0 {
		return Config{}, fmt.Errorf("BACKEND_TIMEOUT_SEC must be >= 0")
	}
	if cfg.Credentials.Scope == "" {
		return Config{}, fmt.Errorf("CREDENTIAL_SCOPE must not be empty")
	}
	switch cfg.Credentials.Store {
	case StoreFile:
		if cfg.Credentials.File == "" {
			return Config{}, fmt.Errorf("CREDENTIAL_FILE must not be empty")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when CREDENTIAL_STORE=postgres")
		}
	case StoreRedis:
		if cfg.Redis.Addr == "" {
			return Config{}, fmt.Errorf("REDIS_ADDR is required when CREDENTIAL_STORE=redis")
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("CREDENTIAL_STORE must be one of file, postgres, redis, memory; got %q", cfg.Credentials.Store)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", cfg.LogLevel)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
