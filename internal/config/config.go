package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the behaviour of the original ragdocs HTTP entry point.
const (
	DefaultHost                = "0.0.0.0"
	DefaultPort                = 3031
	DefaultInactivityThreshold = 30 * time.Minute
	DefaultCleanupInterval     = 5 * time.Minute
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultReadTimeout         = 30 * time.Second
	DefaultOutboxSize          = 256
	DefaultDispatchTimeout     = 30 * time.Second
	DefaultKeepAliveInterval   = 60 * time.Second
	DefaultEngineName          = "mcp-ragdocs"
	DefaultEngineVersion       = "1.0.0"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration that reads "30m"-style strings from JSON,
// YAML and environment variables.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Config is the gateway configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Session SessionConfig `json:"session" yaml:"session" envPrefix:"SESSION_"`
	Log     LogConfig     `json:"log" yaml:"log" envPrefix:"LOG_"`
	Engine  EngineConfig  `json:"engine" yaml:"engine" envPrefix:"ENGINE_"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host              string   `json:"host" yaml:"host" env:"HOST"`
	Port              int      `json:"port" yaml:"port" env:"PORT"`
	CORSOrigins       []string `json:"corsOrigins" yaml:"corsOrigins" env:"CORS_ORIGINS" envSeparator:","`
	ReadTimeout       Duration `json:"readTimeout" yaml:"readTimeout" env:"READ_TIMEOUT"`
	HeartbeatInterval Duration `json:"heartbeatInterval" yaml:"heartbeatInterval" env:"HEARTBEAT_INTERVAL"`
	KeepAliveInterval Duration `json:"keepAliveInterval" yaml:"keepAliveInterval" env:"KEEPALIVE_INTERVAL"`
	// WSOrigins lists origins accepted on /ws. Empty accepts any origin.
	WSOrigins []string `json:"wsOrigins" yaml:"wsOrigins" env:"WS_ORIGINS" envSeparator:","`
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	InactivityThreshold Duration `json:"inactivityThreshold" yaml:"inactivityThreshold" env:"INACTIVITY_THRESHOLD"`
	CleanupInterval     Duration `json:"cleanupInterval" yaml:"cleanupInterval" env:"CLEANUP_INTERVAL"`
	OutboxSize          int      `json:"outboxSize" yaml:"outboxSize" env:"OUTBOX_SIZE"`
	DispatchTimeout     Duration `json:"dispatchTimeout" yaml:"dispatchTimeout" env:"DISPATCH_TIMEOUT"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL"`
	Pretty bool   `json:"pretty" yaml:"pretty" env:"PRETTY"`
	File   bool   `json:"file" yaml:"file" env:"FILE"`
	Dir    string `json:"dir" yaml:"dir" env:"DIR"`
}

// EngineConfig names the backend MCP engine.
type EngineConfig struct {
	Name         string `json:"name" yaml:"name" env:"NAME"`
	Version      string `json:"version" yaml:"version" env:"VERSION"`
	Instructions string `json:"instructions" yaml:"instructions" env:"INSTRUCTIONS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              DefaultHost,
			Port:              DefaultPort,
			CORSOrigins:       []string{"*"},
			ReadTimeout:       Duration(DefaultReadTimeout),
			HeartbeatInterval: Duration(DefaultHeartbeatInterval),
			KeepAliveInterval: Duration(DefaultKeepAliveInterval),
		},
		Session: SessionConfig{
			InactivityThreshold: Duration(DefaultInactivityThreshold),
			CleanupInterval:     Duration(DefaultCleanupInterval),
			OutboxSize:          DefaultOutboxSize,
			DispatchTimeout:     Duration(DefaultDispatchTimeout),
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "/tmp",
		},
		Engine: EngineConfig{
			Name:    DefaultEngineName,
			Version: DefaultEngineVersion,
		},
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	positive := map[string]Duration{
		"server.heartbeatInterval":    c.Server.HeartbeatInterval,
		"server.keepAliveInterval":    c.Server.KeepAliveInterval,
		"session.inactivityThreshold": c.Session.InactivityThreshold,
		"session.cleanupInterval":     c.Session.CleanupInterval,
		"session.dispatchTimeout":     c.Session.DispatchTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.readTimeout must not be negative"))
	}
	if c.Session.OutboxSize <= 0 {
		errs = append(errs, fmt.Errorf("session.outboxSize must be positive, got %d", c.Session.OutboxSize))
	}
	if c.Engine.Name == "" {
		errs = append(errs, fmt.Errorf("engine.name must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
