package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/dlp"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/notify"
	"github.com/effaaykhan/cybersentinel-dlp-sub000/pkg/tracing"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig       `yaml:"server" json:"server"`
	Database DatabaseConfig     `yaml:"database" json:"database"`
	Kafka    notify.KafkaConfig `yaml:"kafka" json:"kafka"`
	Engine   dlp.ServiceConfig  `yaml:"engine" json:"engine"`
	Policies PolicyConfig       `yaml:"policies" json:"policies"`
	Logging  LoggingConfig      `yaml:"logging" json:"logging"`
	Tracing  tracing.Config     `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the Postgres persistence boundary. When
// disabled the engine runs with the in-memory store.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode" json:"ssl_mode"`
}

// DSN builds the Postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// PolicyConfig configures the policy repository and reload schedule.
type PolicyConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	// ReloadInterval re-runs the policy load on a schedule; zero disables
	// scheduled reloads (the admin endpoint still works).
	ReloadInterval time.Duration `yaml:"reload_interval" json:"reload_interval"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json or console
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Username: "postgres",
			Database: "cybersentinel",
			SSLMode:  "disable",
		},
		Kafka:  notify.DefaultKafkaConfig(),
		Engine: dlp.DefaultServiceConfig(),
		Policies: PolicyConfig{
			Directory:      "/etc/cybersentinel/policies",
			ReloadInterval: 0,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load reads configuration from an optional file, then applies
// environment overrides. A missing path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// loadFile decodes YAML or JSON based on the file extension.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML config %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (supported: .yaml, .yml, .json)", filepath.Ext(path))
	}

	return nil
}

// applyEnv overrides settings from CYBERSENTINEL_* environment variables.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "CYBERSENTINEL_HOST")
	setInt(&cfg.Server.Port, "CYBERSENTINEL_PORT")

	setBool(&cfg.Database.Enabled, "CYBERSENTINEL_DB_ENABLED")
	setString(&cfg.Database.Host, "CYBERSENTINEL_DB_HOST")
	setInt(&cfg.Database.Port, "CYBERSENTINEL_DB_PORT")
	setString(&cfg.Database.Username, "CYBERSENTINEL_DB_USERNAME")
	setString(&cfg.Database.Password, "CYBERSENTINEL_DB_PASSWORD")
	setString(&cfg.Database.Database, "CYBERSENTINEL_DB_NAME")
	setString(&cfg.Database.SSLMode, "CYBERSENTINEL_DB_SSL_MODE")

	setBool(&cfg.Kafka.Enabled, "CYBERSENTINEL_KAFKA_ENABLED")
	setString(&cfg.Kafka.BootstrapServers, "CYBERSENTINEL_KAFKA_BOOTSTRAP_SERVERS")
	setString(&cfg.Kafka.Topic, "CYBERSENTINEL_KAFKA_TOPIC")

	setString(&cfg.Policies.Directory, "CYBERSENTINEL_POLICY_DIR")
	setString(&cfg.Logging.Level, "CYBERSENTINEL_LOG_LEVEL")
	setString(&cfg.Logging.Format, "CYBERSENTINEL_LOG_FORMAT")

	setBool(&cfg.Tracing.Enabled, "CYBERSENTINEL_TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "CYBERSENTINEL_TRACING_ENDPOINT")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
