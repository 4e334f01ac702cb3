package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// DefaultFile is the config file read when none is given.
const DefaultFile = "sws_http_config.ini"

var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config holds everything the relay needs at startup.
type Config struct {
	HTTP     HTTPConfig
	Upstream UpstreamConfig
}

// HTTPConfig is the [http] section.
type HTTPConfig struct {
	BindAddress string
	Port        int
	AuthKey     string
	StaticDir   string
}

// UpstreamConfig is the [obsws] section.
type UpstreamConfig struct {
	Host     string
	Port     int
	Password string
	Timeout  time.Duration
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			BindAddress: "0.0.0.0",
			Port:        4445,
			StaticDir:   "static",
		},
		Upstream: UpstreamConfig{
			Host:    "127.0.0.1",
			Port:    4444,
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads and validates the INI file at path. A relative static_dir is
// taken relative to the file's directory.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ResolveStaticDir(filepath.Dir(path))
	return cfg, nil
}

// ResolveStaticDir makes a relative StaticDir relative to base.
func (c *Config) ResolveStaticDir(base string) {
	if c.HTTP.StaticDir == "" || filepath.IsAbs(c.HTTP.StaticDir) {
		return
	}
	c.HTTP.StaticDir = filepath.Join(base, c.HTTP.StaticDir)
}

// Parse reads INI content. Keys that are absent keep their Default values.
func Parse(data []byte) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := Default()

	httpSec := file.Section("http")
	setString(httpSec, "bind_to_address", &cfg.HTTP.BindAddress)
	setString(httpSec, "authentication_key", &cfg.HTTP.AuthKey)
	setString(httpSec, "static_dir", &cfg.HTTP.StaticDir)
	if err := setInt(httpSec, "bind_to_port", &cfg.HTTP.Port); err != nil {
		return nil, err
	}

	obsws := file.Section("obsws")
	setString(obsws, "ws_address", &cfg.Upstream.Host)
	setString(obsws, "ws_password", &cfg.Upstream.Password)
	if err := setInt(obsws, "ws_port", &cfg.Upstream.Port); err != nil {
		return nil, err
	}
	if err := setDuration(obsws, "request_timeout", &cfg.Upstream.Timeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: bind_to_port %d out of range", ErrInvalidConfig, c.HTTP.Port)
	}
	if c.Upstream.Port < 1 || c.Upstream.Port > 65535 {
		return fmt.Errorf("%w: ws_port %d out of range", ErrInvalidConfig, c.Upstream.Port)
	}
	if c.Upstream.Host == "" {
		return fmt.Errorf("%w: ws_address is required", ErrInvalidConfig)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTP.BindAddress, strconv.Itoa(c.HTTP.Port))
}

func setString(sec *ini.Section, key string, dst *string) {
	if sec.HasKey(key) {
		*dst = strings.TrimSpace(sec.Key(key).String())
	}
}

func setInt(sec *ini.Section, key string, dst *int) error {
	if !sec.HasKey(key) {
		return nil
	}
	raw := strings.TrimSpace(sec.Key(key).String())
	if raw == "" {
		return nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, key, raw)
	}
	*dst = n
	return nil
}

func setDuration(sec *ini.Section, key string, dst *time.Duration) error {
	if !sec.HasKey(key) {
		return nil
	}
	raw := strings.TrimSpace(sec.Key(key).String())
	if raw == "" {
		return nil
	}

	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidConfig, key, raw)
	}
	*dst = d
	return nil
}
