package dto

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypePostgres = "postgres"
)

type Config struct {
	Port          int
	DatabaseType  string
	DatabaseURL   string
	BrokerURL     string
	JWTSecret     string
	CredentialTTL time.Duration
	CookieSecure  bool
	CORSOrigins   []string
	StaticDir     string
	LogLevel      string
	LogFormat     string
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("Could not load .env file: %v", err)
	}

	cfg := Config{
		DatabaseType: getenv("DATABASE_TYPE", DatabaseTypeSQLite),
		DatabaseURL:  getenv("DATABASE_URL", "pooly.db"),
		BrokerURL:    os.Getenv("BROKER_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		StaticDir:    os.Getenv("STATIC_DIR"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "text"),
	}

	port, err := strconv.Atoi(getenv("PORT", "3000"))
	if err != nil {
		return Config{}, errors.New("invalid PORT env variable")
	}
	cfg.Port = port

	cfg.CredentialTTL, err = time.ParseDuration(getenv("CREDENTIAL_TTL", "24h"))
	if err != nil {
		return Config{}, errors.New("invalid CREDENTIAL_TTL env variable")
	}

	cfg.CookieSecure, err = strconv.ParseBool(getenv("COOKIE_SECURE", "false"))
	if err != nil {
		return Config{}, errors.New("invalid COOKIE_SECURE env variable")
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.DatabaseType != DatabaseTypeSQLite && cfg.DatabaseType != DatabaseTypePostgres {
		return Config{}, errors.New("DATABASE_TYPE must be sqlite or postgres")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
