package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreDynamoDB = "dynamodb"
	StoreMemory   = "memory"
)

type Config struct {
	StoreBackend      string        `yaml:"store_backend"`
	TableName         string        `yaml:"table_name"`
	Region            string        `yaml:"region"`
	UserPoolID        string        `yaml:"cognito_user_pool_id"`
	AuthMode          string        `yaml:"auth_mode"`
	Port              string        `yaml:"port"`
	RedisAddr         string        `yaml:"redis_addr"`
	RedisChannel      string        `yaml:"redis_channel"`
	SessionBuffer     int           `yaml:"session_buffer"`
	FanoutConcurrency int           `yaml:"fanout_concurrency"`
	SSEHeartbeat      time.Duration `yaml:"sse_heartbeat"`
	LogLevel          string        `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		StoreBackend:      StoreDynamoDB,
		AuthMode:          "none",
		Port:              "8080",
		SessionBuffer:     32,
		FanoutConcurrency: 16,
		SSEHeartbeat:      15 * time.Second,
		LogLevel:          "info",
	}
}

// LoadConfig reads the optional YAML file named by CONFIG_FILE and then lets
// environment variables override it.
func LoadConfig() (Config, error) {
	return LoadConfigWith(os.LookupEnv)
}

func LoadConfigWith(lookup func(string) (string, bool)) (Config, error) {
	cfg := defaults()
	if path, ok := lookup("CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("STORE_BACKEND", &cfg.StoreBackend)
	str("TABLE_NAME", &cfg.TableName)
	str("AWS_REGION", &cfg.Region)
	str("COGNITO_USER_POOL_ID", &cfg.UserPoolID)
	str("AUTH_MODE", &cfg.AuthMode)
	str("PORT", &cfg.Port)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_CHANNEL", &cfg.RedisChannel)
	str("LOG_LEVEL", &cfg.LogLevel)

	var errs []error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	num("SESSION_BUFFER", &cfg.SessionBuffer)
	num("FANOUT_CONCURRENCY", &cfg.FanoutConcurrency)
	if v, ok := lookup("SSE_HEARTBEAT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("SSE_HEARTBEAT: %w", err))
		} else {
			cfg.SSEHeartbeat = d
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreDynamoDB:
		if c.TableName == "" || c.Region == "" {
			return errors.New("TABLE_NAME and AWS_REGION are required for the dynamodb store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unsupported store backend %q", c.StoreBackend)
	}
	switch c.AuthMode {
	case "none", "api_key":
	case "cognito":
		if c.UserPoolID == "" || c.Region == "" {
			return errors.New("COGNITO_USER_POOL_ID and AWS_REGION are required for cognito auth mode")
		}
	default:
		return fmt.Errorf("invalid auth mode %q", c.AuthMode)
	}
	if c.SessionBuffer <= 0 || c.FanoutConcurrency <= 0 {
		return errors.New("session buffer and fan-out concurrency must be positive")
	}
	return nil
}
