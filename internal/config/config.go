package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ihi-server/ihi/internal/errors"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the file looked up when no path is given.
	ConfigFileName = "ihi.yaml"

	// EnvConfigPath names the environment variable holding a config path.
	EnvConfigPath = "IHI_CONFIG"

	DefaultAddr          = ":8080"
	DefaultReadTimeout   = 60 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultHeartbeat     = 30 * time.Second
	DefaultMaxQueue      = 256
	DefaultMaxPacketSize = 64 * 1024
	DefaultStoreDriver   = DriverMemory
	DefaultSQLiteDSN     = "ihi.db"
	DefaultRedisDSN      = "redis://localhost:6379/0"
	DefaultTable         = "ihi_attributes"
	DefaultSubjectPrefix = "ihi.events"
	DefaultNamespace     = "ihi"
	DefaultMetricsPath   = "/metrics"
	DefaultFlushInterval = time.Minute
	DefaultFlushTimeout  = 5 * time.Second
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
	DriverS3       = "s3"
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Events  EventsConfig  `yaml:"events"`
	Metrics MetricsConfig `yaml:"metrics"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`

	path string
}

// ServerConfig holds listener and per-connection limits.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	MaxSessions   int           `yaml:"max_sessions"`
	MaxQueue      int           `yaml:"max_queue"`
	MaxPacketSize int           `yaml:"max_packet_size"`
}

// StoreConfig selects and configures the attribute store.
type StoreConfig struct {
	Driver string `yaml:"driver"`

	// DSN is the sqlite database path, the postgres or mysql connection
	// string, or the redis URL. Prefix doubles as the redis key prefix.
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`

	// S3 driver settings.
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// EventsConfig configures the NATS side channel. An empty NATSURL disables
// publishing.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

// SessionConfig controls player persistence.
type SessionConfig struct {
	// FlushInterval is the period of the background flush. Zero disables it;
	// players are still flushed when their session closes.
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// New returns a Config with every default applied.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	c.Session.FlushInterval = DefaultFlushInterval
	return c
}

// LoadFile reads configuration from path.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").WithDetail(path)
		}
		return nil, errors.New("E101").Wrap(err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, err
	}
	cfg.path = path
	return cfg, nil
}

// Parse decodes YAML from r and applies defaults. Unknown keys are
// rejected. An empty document yields the defaults.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New("E101").Wrap(err)
	}

	cfg := &Config{Session: SessionConfig{FlushInterval: DefaultFlushInterval}}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.New("E101").Wrap(err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve picks the config path: the explicit flag value, then IHI_CONFIG,
// then ihi.yaml in the working directory if it exists. An empty result means
// run on defaults.
func Resolve(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName
	}
	return ""
}

// Load resolves the path with Resolve and loads it, or returns defaults if
// there is nothing to load.
func Load(flag string) (*Config, error) {
	path := Resolve(flag)
	if path == "" {
		return New(), nil
	}
	return LoadFile(path)
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// applyDefaults fills zero values. FlushInterval is left alone so an
// explicit 0 disables the ticker.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.Heartbeat == 0 {
		c.Server.Heartbeat = DefaultHeartbeat
	}
	if c.Server.MaxQueue == 0 {
		c.Server.MaxQueue = DefaultMaxQueue
	}
	if c.Server.MaxPacketSize == 0 {
		c.Server.MaxPacketSize = DefaultMaxPacketSize
	}

	c.Store.Driver = strings.ToLower(c.Store.Driver)
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.DSN == "" {
		switch c.Store.Driver {
		case DriverSQLite:
			c.Store.DSN = DefaultSQLiteDSN
		case DriverRedis:
			c.Store.DSN = DefaultRedisDSN
		}
	}
	if c.Store.Table == "" {
		c.Store.Table = DefaultTable
	}

	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = DefaultSubjectPrefix
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Session.FlushTimeout == 0 {
		c.Session.FlushTimeout = DefaultFlushTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("E102").WithDetailf(format, args...)
	}

	switch {
	case c.Server.ReadTimeout < 0, c.Server.WriteTimeout < 0, c.Server.Heartbeat < 0:
		return invalid("server timeouts must not be negative")
	case c.Server.MaxSessions < 0:
		return invalid("server.max_sessions must not be negative")
	case c.Server.MaxQueue < 0:
		return invalid("server.max_queue must not be negative")
	case c.Server.MaxPacketSize < 0:
		return invalid("server.max_packet_size must not be negative")
	case c.Session.FlushInterval < 0 || c.Session.FlushTimeout < 0:
		return invalid("session flush durations must not be negative")
	case !strings.HasPrefix(c.Metrics.Path, "/"):
		return invalid("metrics.path %q must start with /", c.Metrics.Path)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverMySQL, DriverRedis:
		if c.Store.DSN == "" {
			return invalid("store.dsn is required for the %s driver", c.Store.Driver)
		}
	case DriverS3:
		if c.Store.Bucket == "" {
			return invalid("store.bucket is required for the s3 driver")
		}
	default:
		return errors.New("E111").WithDetailf("%q", c.Store.Driver)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return invalid("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	return level, err
}

// Logger builds a slog logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
