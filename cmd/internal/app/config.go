package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nitroshare/cmd/internal/persist"
)

// ErrConfig is returned when configuration is missing or invalid.
var ErrConfig = errors.New("invalid configuration")

// State backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Log formats.
const (
	LogFormatJSON   = "json"
	LogFormatPretty = "pretty"
)

// Config contains all runtime configuration.
//
// Values come from, in increasing precedence: defaults, the YAML file
// passed with --config, NITRO_* environment variables, command-line flags.
type Config struct {
	// APIURL is the base URL of the nitro_share backend.
	APIURL      string        `yaml:"api_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	State StateConfig `yaml:"state"`

	// Local gateway (serve).
	HTTPAddr          string        `yaml:"http_addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`
	FeedOrigins       []string      `yaml:"feed_origins"`
	FeedOriginRequire bool          `yaml:"feed_origin_required"`

	// RequireSealedState refuses to start unless persisted state is encrypted.
	RequireSealedState bool `yaml:"require_sealed_state"`
}

// StateConfig selects where session and configuration state is persisted.
type StateConfig struct {
	Backend string `yaml:"backend"`
	Codec   string `yaml:"codec"`

	// Dir is used by the file backend.
	Dir string `yaml:"dir"`

	// RedisURL and RedisPrefix are used by the redis backend.
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`

	// DatabaseURL and Namespace are used by the postgres backend.
	DatabaseURL string `yaml:"database_url"`
	Namespace   string `yaml:"namespace"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	DBMinConns  int32  `yaml:"db_min_conns"`

	// Passphrase enables at-rest encryption. It is never read from the
	// YAML file; set NITRO_STATE_PASSPHRASE instead.
	Passphrase string `yaml:"-"`
}

// DefaultConfig returns defaults suitable for a local, single-user client.
func DefaultConfig() Config {
	return Config{
		APIURL:      "http://localhost:8080",
		HTTPTimeout: 15 * time.Second,

		LogLevel:  "info",
		LogFormat: LogFormatJSON,

		State: StateConfig{
			Backend:     BackendFile,
			Codec:       persist.JSON.Name(),
			RedisPrefix: persist.DefaultRedisPrefix,
			Namespace:   "default",
			DBMaxConns:  4,
			DBMinConns:  0,
		},

		HTTPAddr:          "127.0.0.1:5180",
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		FeedOrigins:       []string{"http://localhost", "http://127.0.0.1"},
	}
}

// LoadConfig builds a Config from defaults, the optional YAML file at path
// and the environment, applies overrides in order, then validates it.
// Errors wrap ErrConfig.
func LoadConfig(path string, overrides ...func(*Config)) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	for _, o := range overrides {
		if o != nil {
			o(&cfg)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrConfig, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIURL = EnvString("NITRO_API_URL", c.APIURL)
	c.HTTPTimeout = EnvDuration("NITRO_HTTP_TIMEOUT", c.HTTPTimeout)

	c.LogLevel = EnvString("NITRO_LOG_LEVEL", c.LogLevel)
	c.LogFormat = EnvString("NITRO_LOG_FORMAT", c.LogFormat)

	c.State.Backend = EnvString("NITRO_STATE_BACKEND", c.State.Backend)
	c.State.Codec = EnvString("NITRO_STATE_CODEC", c.State.Codec)
	c.State.Dir = EnvString("NITRO_STATE_DIR", c.State.Dir)
	c.State.RedisURL = EnvString("NITRO_REDIS_URL", c.State.RedisURL)
	c.State.RedisPrefix = EnvString("NITRO_REDIS_PREFIX", c.State.RedisPrefix)
	c.State.DatabaseURL = EnvString("NITRO_DATABASE_URL", c.State.DatabaseURL)
	c.State.Namespace = EnvString("NITRO_STATE_NAMESPACE", c.State.Namespace)
	c.State.DBMaxConns = EnvInt32("NITRO_DB_MAX_CONNS", c.State.DBMaxConns)
	c.State.DBMinConns = EnvInt32("NITRO_DB_MIN_CONNS", c.State.DBMinConns)
	c.State.Passphrase = EnvString("NITRO_STATE_PASSPHRASE", c.State.Passphrase)

	c.HTTPAddr = EnvString("NITRO_HTTP_ADDR", c.HTTPAddr)
	c.ReadHeaderTimeout = EnvDuration("NITRO_HTTP_READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.IdleTimeout = EnvDuration("NITRO_HTTP_IDLE_TIMEOUT", c.IdleTimeout)
	c.MaxHeaderBytes = EnvInt("NITRO_HTTP_MAX_HEADER_BYTES", c.MaxHeaderBytes)
	c.FeedOrigins = EnvCSV("NITRO_FEED_ALLOWED_ORIGINS", c.FeedOrigins)
	c.FeedOriginRequire = EnvBool("NITRO_FEED_ORIGIN_REQUIRED", c.FeedOriginRequire)

	c.RequireSealedState = EnvBool("NITRO_REQUIRE_SEALED_STATE", c.RequireSealedState)
}

// Validate checks cross-field invariants and fills derived defaults.
func (c *Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.APIURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api url %q must be an absolute http(s) URL", ErrConfig, c.APIURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", ErrConfig)
	}

	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	switch c.LogFormat {
	case LogFormatJSON, LogFormatPretty:
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrConfig, c.LogFormat)
	}

	if _, err := persist.CodecByName(c.State.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
	switch c.State.Backend {
	case BackendFile:
		if c.State.Dir == "" {
			dir, err := persist.DefaultDir()
			if err != nil {
				return fmt.Errorf("%w: no state dir: %v", ErrConfig, err)
			}
			c.State.Dir = dir
		}
	case BackendRedis:
		if c.State.RedisURL == "" {
			return fmt.Errorf("%w: redis backend requires NITRO_REDIS_URL", ErrConfig)
		}
	case BackendPostgres:
		if c.State.DatabaseURL == "" {
			return fmt.Errorf("%w: postgres backend requires NITRO_DATABASE_URL", ErrConfig)
		}
		if c.State.DBMinConns > c.State.DBMaxConns {
			return fmt.Errorf("%w: db min conns exceeds max conns", ErrConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown state backend %q", ErrConfig, c.State.Backend)
	}

	return ValidateSecurityConfig(*c)
}
