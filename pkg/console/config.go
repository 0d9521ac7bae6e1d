// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

const (
	DefaultConsolePort = 29999
	DefaultConsoleHost = "localhost"

	BackendFilesystem = "filesystem"
	BackendContainerd = "containerd"

	// EnvPrefix prefixes every environment override, as in
	// LYCAON_CONSOLE_PORT.
	EnvPrefix = "lycaon"
)

// Config is the console configuration. It is built once at startup and
// passed to NewServer.
type Config struct {
	// ConsolePort falls back to DefaultConsolePort whenever the configured
	// value is missing or cannot be parsed. Zero picks an ephemeral port.
	ConsolePort int    `toml:"-"`
	ConsoleHost string `toml:"console_host"`

	// DataDir is the root that data/layers/<algorithm>:<digest> is
	// resolved against.
	DataDir             string `toml:"data_dir"`
	LayerBackend        string `toml:"layer_backend"`
	ContainerdSocket    string `toml:"containerd_socket"`
	ContainerdNamespace string `toml:"containerd_namespace"`
	// ReportLayerSize replaces the placeholder layer length with the
	// stored size.
	ReportLayerSize bool `toml:"report_layer_size"`

	// RequestTimeout bounds each call. Zero means no limit.
	RequestTimeout time.Duration `toml:"request_timeout"`
	// HTTPAddr enables the metrics and websocket listener when set.
	HTTPAddr string `toml:"http_addr"`

	LogLevel       string `toml:"log_level"`
	LogDevelopment bool   `toml:"log_development"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		ConsolePort:         DefaultConsolePort,
		ConsoleHost:         DefaultConsoleHost,
		DataDir:             ".",
		LayerBackend:        BackendFilesystem,
		ContainerdSocket:    "/run/containerd/containerd.sock",
		ContainerdNamespace: "moby",
		LogLevel:            "info",
	}
}

// Addr returns the console listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ConsoleHost, strconv.Itoa(c.ConsolePort))
}

// Validate checks settings that have no safe fallback.
func (c *Config) Validate() error {
	switch c.LayerBackend {
	case BackendFilesystem, BackendContainerd:
	default:
		return fmt.Errorf("unknown layer_backend %q", c.LayerBackend)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %v", c.RequestTimeout)
	}
	if c.ConsoleHost == "" {
		return errors.New("console_host must not be empty")
	}
	return nil
}

// LoadConfig builds a Config from defaults, the TOML file at path (if it
// exists) and LYCAON_* environment variables, in that order.
func LoadConfig(path string, log *zap.Logger) (*Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.loadFile(path, log); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(log); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type fileConfig struct {
	ConsolePort toml.Primitive `toml:"console_port"`
	Config
}

func (c *Config) loadFile(path string, log *zap.Logger) error {
	fc := fileConfig{Config: *c}
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("config file not found, using defaults", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	*c = fc.Config
	c.ConsolePort = DefaultConsolePort
	if md.IsDefined("console_port") {
		var port int64
		if err := md.PrimitiveDecode(fc.ConsolePort, &port); err != nil {
			log.Warn("invalid console_port, using default", zap.Error(err), zap.Int("default", DefaultConsolePort))
		} else {
			c.setPort(port, log)
		}
	}
	for _, k := range md.Undecoded() {
		if k.String() == "console_port" {
			continue
		}
		log.Warn("unknown config key", zap.String("key", k.String()))
	}
	return nil
}

// envConfig holds raw environment overrides. Values are strings so that a
// malformed value falls back instead of failing startup.
type envConfig struct {
	ConsolePort         string `envconfig:"CONSOLE_PORT"`
	ConsoleHost         string `envconfig:"CONSOLE_HOST"`
	DataDir             string `envconfig:"DATA_DIR"`
	LayerBackend        string `envconfig:"LAYER_BACKEND"`
	ContainerdSocket    string `envconfig:"CONTAINERD_SOCKET"`
	ContainerdNamespace string `envconfig:"CONTAINERD_NAMESPACE"`
	ReportLayerSize     string `envconfig:"REPORT_LAYER_SIZE"`
	RequestTimeout      string `envconfig:"REQUEST_TIMEOUT"`
	HTTPAddr            string `envconfig:"HTTP_ADDR"`
	LogLevel            string `envconfig:"LOG_LEVEL"`
	LogDevelopment      string `envconfig:"LOG_DEVELOPMENT"`
}

func (c *Config) loadEnv(log *zap.Logger) error {
	var env envConfig
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if env.ConsolePort != "" {
		port, err := strconv.ParseInt(env.ConsolePort, 10, 64)
		if err != nil {
			log.Warn("invalid LYCAON_CONSOLE_PORT, using default", zap.String("value", env.ConsolePort), zap.Int("default", DefaultConsolePort))
			c.ConsolePort = DefaultConsolePort
		} else {
			c.setPort(port, log)
		}
	}
	setString(&c.ConsoleHost, env.ConsoleHost)
	setString(&c.DataDir, env.DataDir)
	setString(&c.LayerBackend, env.LayerBackend)
	setString(&c.ContainerdSocket, env.ContainerdSocket)
	setString(&c.ContainerdNamespace, env.ContainerdNamespace)
	setString(&c.HTTPAddr, env.HTTPAddr)
	setString(&c.LogLevel, env.LogLevel)
	setBool(&c.ReportLayerSize, "LYCAON_REPORT_LAYER_SIZE", env.ReportLayerSize, log)
	setBool(&c.LogDevelopment, "LYCAON_LOG_DEVELOPMENT", env.LogDevelopment, log)
	if env.RequestTimeout != "" {
		d, err := time.ParseDuration(env.RequestTimeout)
		if err != nil {
			log.Warn("invalid LYCAON_REQUEST_TIMEOUT, ignoring", zap.String("value", env.RequestTimeout))
		} else {
			c.RequestTimeout = d
		}
	}
	return nil
}

func (c *Config) setPort(port int64, log *zap.Logger) {
	if port < 0 || port > 65535 {
		log.Warn("console_port out of range, using default", zap.Int64("port", port), zap.Int("default", DefaultConsolePort))
		c.ConsolePort = DefaultConsolePort
		return
	}
	c.ConsolePort = int(port)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, name, v string, log *zap.Logger) {
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("invalid "+name+", ignoring", zap.String("value", v))
		return
	}
	*dst = b
}
