package config

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env             string
	LogLevel        string
	Port            string
	DBType          string
	DataDir         string
	MongoURI        string
	MongoDatabase   string
	PostgresDSN     string
	JWTSecret       string
	TokenTTL        time.Duration
	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration
}

var (
	cfg  *Config
	once sync.Once
)

// Load reads the process configuration once. A .env file in the working
// directory is applied first; real environment variables win over it.
func Load() *Config {
	once.Do(func() {
		_ = godotenv.Load()
		c, err := FromEnv()
		if err != nil {
			panic("Invalid config: " + err.Error())
		}
		cfg = c
	})
	return cfg
}

// FromEnv builds and validates a Config from the current environment.
func FromEnv() (*Config, error) {
	c := &Config{
		Env:             getEnv("APP_ENV", "production"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            getEnv("PORT", "8080"),
		DBType:          getEnv("STORAGE_BACKEND", "file"),
		DataDir:         getEnv("DATA_DIR", "data"),
		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "tracker"),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTL:        time.Hour,
		StoreTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
	var err error
	if c.TokenTTL, err = getDuration("TOKEN_TTL", c.TokenTTL); err != nil {
		return nil, err
	}
	if c.StoreTimeout, err = getDuration("STORE_TIMEOUT", c.StoreTimeout); err != nil {
		return nil, err
	}
	if c.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return nil, err
	}
	if c.JWTSecret == "" && c.Env == "development" {
		c.JWTSecret = "development-secret"
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.DBType {
	case "file", "memory":
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORAGE_BACKEND=mongo")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
		}
	default:
		return errors.New("STORAGE_BACKEND must be one of: file, memory, mongo, postgres")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required outside development")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New(key + " must be a duration such as 1h or 30m")
	}
	return d, nil
}
