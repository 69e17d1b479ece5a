// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/quatrix/rate-limit/internal/core/domain"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	RateLimiter RateLimiterConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port string `validate:"required,numeric"`
}

type StorageConfig struct {
	Type  string `validate:"oneof=redis memory"`
	Redis RedisConfig
}

type RedisConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	Password string
	DB       int `validate:"min=0"`
}

type RateLimiterConfig struct {
	Namespace string
	// Key vazio faz o middleware usar o padrão da rota.
	Key              string
	RuleExpr         string `validate:"required"`
	Rule             domain.Rule
	DisableLocks     bool
	LockTTL          time.Duration `validate:"gt=0"`
	LockPollInterval time.Duration `validate:"gt=0"`
	// LockTimeout negativo espera até o contexto da requisição acabar.
	LockTimeout time.Duration `validate:"ne=0"`
	Clock       string        `validate:"oneof=system store"`
	FailOpen    bool
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimiterConfig, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{Port: getEnv("SERVER_PORT", "8080")},
		Storage: StorageConfig{
			Type:  strings.ToLower(getEnv("STORAGE_TYPE", "redis")),
			Redis: redisConfig,
		},
		RateLimiter: rateLimiterConfig,
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate aplica as regras das tags e garante que a árvore de regras é válida.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if err := domain.Validate(c.RateLimiter.Rule); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_RULE: %w", err)
	}
	return nil
}

func buildRedisConfig() (RedisConfig, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port, err := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	return RedisConfig{
		Host:     host,
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	expr := getEnv("RATE_LIMIT_RULE", "ip:10/s")
	rule, err := domain.ParseRule(expr)
	if err != nil {
		return RateLimiterConfig{}, fmt.Errorf("invalid RATE_LIMIT_RULE: %w", err)
	}

	disableLocks, err := getBool("RATE_LIMIT_DISABLE_LOCKS", false)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	failOpen, err := getBool("RATE_LIMIT_FAIL_OPEN", false)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	lockTTL, err := getDuration("RATE_LIMIT_LOCK_TTL", 10*time.Second)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	lockPoll, err := getDuration("RATE_LIMIT_LOCK_POLL_INTERVAL", 100*time.Millisecond)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	lockTimeout, err := getDuration("RATE_LIMIT_LOCK_TIMEOUT", 5*time.Second)
	if err != nil {
		return RateLimiterConfig{}, err
	}

	return RateLimiterConfig{
		Namespace:        os.Getenv("RATE_LIMIT_NAMESPACE"),
		Key:              strings.TrimSpace(os.Getenv("RATE_LIMIT_KEY")),
		RuleExpr:         expr,
		Rule:             rule,
		DisableLocks:     disableLocks,
		LockTTL:          lockTTL,
		LockPollInterval: lockPoll,
		LockTimeout:      lockTimeout,
		Clock:            strings.ToLower(getEnv("RATE_LIMIT_CLOCK", "system")),
		FailOpen:         failOpen,
	}, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.TrimPrefix(e.Namespace(), "Config.")
		if e.Param() != "" {
			messages = append(messages, fmt.Sprintf("%s: failed %s=%s (got %v)", field, e.Tag(), e.Param(), e.Value()))
		} else {
			messages = append(messages, fmt.Sprintf("%s: failed %s", field, e.Tag()))
		}
	}
	return errors.New(strings.Join(messages, "; "))
}
