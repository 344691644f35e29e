// Package config loads runtime settings for the fmailer binaries from the
// environment, with .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration shared by the fmailer binaries.
type Config struct {
	App    AppConfig
	Client ClientConfig
	Queue  QueueConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// ClientConfig configures the embedded fmailer client.
type ClientConfig struct {
	Username     string
	Password     string
	BaseURL      string
	MaxWorkers   int
	FailSilently bool
}

// QueueConfig configures the Kafka ingest path of the worker binary.
type QueueConfig struct {
	Brokers       []string
	RequestTopic  string
	StatusTopic   string
	ConsumerGroup string
	MaxInflight   int
}

// Load reads the full worker configuration: client credentials plus the
// Kafka settings, which are required.
func Load() (*Config, error) {
	return load(true)
}

// LoadClient reads only what a standalone sender needs; the Kafka settings
// become optional.
func LoadClient() (*Config, error) {
	return load(false)
}

func load(requireQueue bool) (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Client.Username = ldr.getString("FMAILER_USERNAME", "", true)
	cfg.Client.Password = ldr.getString("FMAILER_PASSWORD", "", true)
	cfg.Client.BaseURL = ldr.getString("FMAILER_BASE_URL", "", false)
	cfg.Client.MaxWorkers = ldr.getInt("FMAILER_MAX_WORKERS", 5, false)
	cfg.Client.FailSilently = ldr.getBool("FMAILER_FAIL_SILENTLY", false, false)

	cfg.Queue.Brokers = ldr.getStringSlice("KAFKA_BROKERS", requireQueue)
	cfg.Queue.RequestTopic = ldr.getString("KAFKA_REQUEST_TOPIC", "", requireQueue)
	cfg.Queue.StatusTopic = ldr.getString("KAFKA_STATUS_TOPIC", "", requireQueue)
	cfg.Queue.ConsumerGroup = ldr.getString("KAFKA_CONSUMER_GROUP", "", requireQueue)
	cfg.Queue.MaxInflight = ldr.getInt("WORKER_MAX_INFLIGHT", 32, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

// lookup fetches a trimmed value. Unset and blank values are equivalent; a
// missing required key is recorded rather than failing fast so one pass
// reports every problem.
func (l *envLoader) lookup(key string, required bool) (string, bool) {
	val, ok := os.LookupEnv(key)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		if required {
			l.errs = append(l.errs, fmt.Sprintf("%s is required", key))
		}
		return "", false
	}
	return val, true
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := l.lookup(key, required); ok {
		return val
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def, required bool) bool {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw, ok := l.lookup(key, required)
	if !ok {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if required && len(out) == 0 {
		l.errs = append(l.errs, fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}
