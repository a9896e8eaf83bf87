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
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks every startup failure caused by missing or malformed
// configuration. Callers classify with errors.Is.
var ErrConfiguration = errors.New("configuration error")

const (
	DefaultAddress = "0.0.0.0"
	DefaultPort    = 5555
)

// Config holds all configuration for the monitor process
type Config struct {
	// Broker Configuration
	Broker BrokerConfig `yaml:"broker"`

	// Dashboard server Configuration
	Server ServerConfig `yaml:"server"`

	// Stats reporter Configuration
	Stats StatsConfig `yaml:"stats"`

	// Logging Configuration
	Logging LoggingConfig `yaml:"logging"`
}

// BrokerConfig holds the Redis broker URL and connection policy. PoolSize
// caps the one connection pool shared by the inspector, the dashboard and the
// health check.
type BrokerConfig struct {
	URL           string        `yaml:"url" validate:"required"`
	MaxRetries    int           `yaml:"max_retries" validate:"min=1"`
	RetryInterval time.Duration `yaml:"retry_interval" validate:"min=0"`
	PoolSize      int           `yaml:"pool_size" validate:"min=1"`
	DialTimeout   time.Duration `yaml:"dial_timeout" validate:"gt=0"`
	SocketTimeout time.Duration `yaml:"socket_timeout" validate:"gt=0"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" validate:"min=0"`
}

// ServerConfig holds the dashboard listener configuration
type ServerConfig struct {
	Address            string   `yaml:"address" validate:"required"`
	Port               int      `yaml:"port" validate:"min=1,max=65535"`
	Auth               string   `yaml:"auth"`
	URLPrefix          string   `yaml:"url_prefix"`
	ReadOnly           bool     `yaml:"read_only"`
	PrometheusAddress  string   `yaml:"prometheus_address" validate:"omitempty,url"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" validate:"dive,url"`
}

// StatsConfig holds the optional queue stats reporter schedule
type StatsConfig struct {
	Schedule string `yaml:"schedule"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error fatal panic"`
	Format string `yaml:"format" validate:"oneof=json console"` // json, console
}

// ListenAddr returns the host:port the dashboard binds to.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// Defaults returns a Config populated with production defaults and no broker URL.
func Defaults() Config {
	return Config{
		Broker: BrokerConfig{
			MaxRetries:    10,
			RetryInterval: time.Second,
			PoolSize:      20,
			DialTimeout:   30 * time.Second,
			SocketTimeout: 30 * time.Second,
			IdleTimeout:   5 * time.Minute,
		},
		Server: ServerConfig{
			Address: DefaultAddress,
			Port:    DefaultPort,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LookupFunc resolves a single environment variable.
type LookupFunc func(key string) (string, bool)

// Load loads configuration from .env files, an optional YAML file and the
// process environment, in increasing order of precedence.
func Load(file string) (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	return LoadFrom(file, os.LookupEnv)
}

// LoadFrom builds the configuration using lookup instead of the process
// environment. An empty file skips the YAML layer.
func LoadFrom(file string, lookup LookupFunc) (*Config, error) {
	cfg := Defaults()

	if file != "" {
		if err := cfg.mergeFile(file); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) mergeFile(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, file, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: failed to parse config file %s: %v", ErrConfiguration, file, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	env := envReader{lookup: lookup}

	env.str("REDIS_URL", &c.Broker.URL)
	env.integer("BROKER_CONNECTION_MAX_RETRIES", &c.Broker.MaxRetries)
	env.duration("BROKER_CONNECTION_RETRY_INTERVAL", &c.Broker.RetryInterval)
	env.integer("REDIS_MAX_CONNECTIONS", &c.Broker.PoolSize)
	env.duration("BROKER_SOCKET_CONNECT_TIMEOUT", &c.Broker.DialTimeout)
	env.duration("BROKER_SOCKET_TIMEOUT", &c.Broker.SocketTimeout)
	env.duration("BROKER_IDLE_TIMEOUT", &c.Broker.IdleTimeout)

	env.str("FLOWER_ADDRESS", &c.Server.Address)
	env.integer("PORT", &c.Server.Port)
	env.str("FLOWER_AUTH", &c.Server.Auth)
	env.str("FLOWER_URL_PREFIX", &c.Server.URLPrefix)
	env.boolean("FLOWER_READ_ONLY", &c.Server.ReadOnly)
	env.str("FLOWER_PROMETHEUS_ADDRESS", &c.Server.PrometheusAddress)
	env.list("FLOWER_CORS_ORIGINS", &c.Server.CORSAllowedOrigins)

	env.str("FLOWER_STATS_SCHEDULE", &c.Stats.Schedule)

	env.str("LOG_LEVEL", &c.Logging.Level)
	env.str("LOG_FORMAT", &c.Logging.Format)

	return errors.Join(env.errs...)
}

// Validate checks field constraints and normalizes the URL prefix.
func (c *Config) Validate() error {
	c.Server.URLPrefix = normalizePrefix(c.Server.URLPrefix)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if c.Broker.URL == "" {
		return fmt.Errorf("%w: REDIS_URL is required", ErrConfiguration)
	}

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields: %s", ErrConfiguration, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// normalizePrefix turns "flower/", "/flower/" and "/flower" into "/flower".
func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

// envReader applies set environment variables onto config fields and
// collects parse errors so every bad variable is reported at once.
type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s must be an integer, got %q", ErrConfiguration, key, v))
		return
	}
	*dst = n
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s must be a boolean, got %q", ErrConfiguration, key, v))
		return
	}
	*dst = b
}

// duration accepts Go duration strings ("30s") or a bare number of seconds.
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s must be a duration, got %q", ErrConfiguration, key, v))
		return
	}
	*dst = d
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
