package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AhmedYasen/download-manager/internal/bytesize"
	"github.com/AhmedYasen/download-manager/pkg/protocol"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "MANAGER_"

// Config defines configuration for the download manager daemon and CLI.
type Config struct {
	Addr            string        `yaml:"addr"`
	ActiveDownloads int           `yaml:"active_downloads"`
	DownloadPath    string        `yaml:"download_path"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	LockFile        string        `yaml:"lock_file"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Log             LogConfig     `yaml:"log"`
	HTTP            HTTPConfig    `yaml:"http"`
	Control         ControlConfig `yaml:"control"`
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTPConfig defines the outbound HTTP client.
type HTTPConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
}

// ControlConfig defines limits of the control endpoint.
type ControlConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxRequestSize int64         `yaml:"max_request_size"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Addr:            protocol.DefaultAddr,
		ActiveDownloads: 3,
		PollInterval:    time.Second,
		LockFile:        filepath.Join(os.TempDir(), "download-manager.lock"),
		ShutdownTimeout: 30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			MaxIdleConnsPerHost: 16,
		},
		Control: ControlConfig{
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			MaxRequestSize: 64 * 1024, // 64KiB
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	Addr            string            `yaml:"addr"`
	ActiveDownloads int               `yaml:"active_downloads"`
	DownloadPath    string            `yaml:"download_path"`
	PollInterval    string            `yaml:"poll_interval"`
	LockFile        string            `yaml:"lock_file"`
	ShutdownTimeout string            `yaml:"shutdown_timeout"`
	Log             LogConfig         `yaml:"log"`
	HTTP            yamlHTTPConfig    `yaml:"http"`
	Control         yamlControlConfig `yaml:"control"`
}

type yamlHTTPConfig struct {
	Timeout             string `yaml:"timeout"`
	MaxIdleConnsPerHost int    `yaml:"max_idle_conns_per_host"`
}

type yamlControlConfig struct {
	ReadTimeout    string `yaml:"read_timeout"`
	WriteTimeout   string `yaml:"write_timeout"`
	MaxRequestSize string `yaml:"max_request_size"`
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Addr != "" {
		cfg.Addr = yc.Addr
	}
	if yc.ActiveDownloads != 0 {
		cfg.ActiveDownloads = yc.ActiveDownloads
	}
	if yc.DownloadPath != "" {
		cfg.DownloadPath = yc.DownloadPath
	}
	if yc.LockFile != "" {
		cfg.LockFile = yc.LockFile
	}
	if yc.Log.Level != "" {
		cfg.Log.Level = yc.Log.Level
	}
	if yc.Log.Format != "" {
		cfg.Log.Format = yc.Log.Format
	}
	if yc.HTTP.MaxIdleConnsPerHost != 0 {
		cfg.HTTP.MaxIdleConnsPerHost = yc.HTTP.MaxIdleConnsPerHost
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"poll_interval", yc.PollInterval, &cfg.PollInterval},
		{"shutdown_timeout", yc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"http.timeout", yc.HTTP.Timeout, &cfg.HTTP.Timeout},
		{"control.read_timeout", yc.Control.ReadTimeout, &cfg.Control.ReadTimeout},
		{"control.write_timeout", yc.Control.WriteTimeout, &cfg.Control.WriteTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if yc.Control.MaxRequestSize != "" {
		size, err := bytesize.Parse(yc.Control.MaxRequestSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse control.max_request_size: %w", err)
		}
		cfg.Control.MaxRequestSize = size
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the MANAGER_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := getenv("ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("ACTIVE_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sACTIVE_DOWNLOADS: %w", EnvPrefix, err)
		}
		c.ActiveDownloads = n
	}
	if v := getenv("DOWNLOAD_PATH"); v != "" {
		c.DownloadPath = v
	}
	if v := getenv("LOCK_FILE"); v != "" {
		c.LockFile = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getenv("HTTP_MAX_IDLE_CONNS_PER_HOST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sHTTP_MAX_IDLE_CONNS_PER_HOST: %w", EnvPrefix, err)
		}
		c.HTTP.MaxIdleConnsPerHost = n
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"POLL_INTERVAL", &c.PollInterval},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
		{"HTTP_TIMEOUT", &c.HTTP.Timeout},
		{"CONTROL_READ_TIMEOUT", &c.Control.ReadTimeout},
		{"CONTROL_WRITE_TIMEOUT", &c.Control.WriteTimeout},
	}
	for _, d := range durations {
		v := getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, d.name, err)
		}
		*d.dst = parsed
	}

	if v := getenv("CONTROL_MAX_REQUEST_SIZE"); v != "" {
		size, err := bytesize.Parse(v)
		if err != nil {
			return fmt.Errorf("parse %sCONTROL_MAX_REQUEST_SIZE: %w", EnvPrefix, err)
		}
		c.Control.MaxRequestSize = size
	}

	return nil
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

// Validate validates the configuration for running the daemon.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("config: addr %q: %w", c.Addr, err)
	}
	if c.ActiveDownloads <= 0 {
		return errors.New("config: active_downloads must be positive")
	}
	if c.DownloadPath == "" {
		return errors.New("config: download_path is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll_interval must be positive")
	}
	if c.LockFile == "" {
		return errors.New("config: lock_file is required")
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("config: shutdown_timeout must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	if c.HTTP.Timeout < 0 {
		return errors.New("config: http.timeout must not be negative")
	}
	if c.Control.MaxRequestSize <= 0 {
		return errors.New("config: control.max_request_size must be positive")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Addr != "" {
		c.Addr = override.Addr
	}
	if override.ActiveDownloads != 0 {
		c.ActiveDownloads = override.ActiveDownloads
	}
	if override.DownloadPath != "" {
		c.DownloadPath = override.DownloadPath
	}
	if override.PollInterval != 0 {
		c.PollInterval = override.PollInterval
	}
	if override.LockFile != "" {
		c.LockFile = override.LockFile
	}
	if override.ShutdownTimeout != 0 {
		c.ShutdownTimeout = override.ShutdownTimeout
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.HTTP.Timeout != 0 {
		c.HTTP.Timeout = override.HTTP.Timeout
	}
	if override.HTTP.MaxIdleConnsPerHost != 0 {
		c.HTTP.MaxIdleConnsPerHost = override.HTTP.MaxIdleConnsPerHost
	}
	if override.Control.ReadTimeout != 0 {
		c.Control.ReadTimeout = override.Control.ReadTimeout
	}
	if override.Control.WriteTimeout != 0 {
		c.Control.WriteTimeout = override.Control.WriteTimeout
	}
	if override.Control.MaxRequestSize != 0 {
		c.Control.MaxRequestSize = override.Control.MaxRequestSize
	}
	return c
}
