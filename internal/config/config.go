// Package config loads the daemon configuration from an optional yaml file
// with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okabelabs/turnroom/internal/match"
)

// Duration is a yaml-friendly time.Duration accepting "30s" style strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full daemon configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	NATS   NATSConfig   `yaml:"nats"`
	Match  MatchConfig  `yaml:"match"`
	Games  GamesConfig  `yaml:"games"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port         string   `yaml:"port"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	IdleTimeout  Duration `yaml:"idle_timeout"`
}

// NATSConfig configures the JetStream event publisher. Disabled means events
// are logged instead of published.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// MatchConfig carries the default timing settings applied to new matches.
// Zero values fall through to the engine's own defaults.
type MatchConfig struct {
	InitialClock       Duration `yaml:"initial_clock"`
	GraceCredit        Duration `yaml:"grace_credit"`
	MinimumGraceCredit Duration `yaml:"minimum_grace_credit"`
	TickInterval       Duration `yaml:"tick_interval"`
	ReconnectionWindow Duration `yaml:"reconnection_window"`
	SeatOrder          string   `yaml:"seat_order"`
}

// GamesConfig selects which registered games are playable.
type GamesConfig struct {
	Enabled []string `yaml:"enabled"`
}

// Settings converts the match defaults into engine settings.
func (m MatchConfig) Settings() match.Settings {
	return match.Settings{
		InitialClock:       m.InitialClock.Std(),
		GraceCredit:        m.GraceCredit.Std(),
		MinimumGraceCredit: m.MinimumGraceCredit.Std(),
		TickInterval:       m.TickInterval.Std(),
		ReconnectionWindow: m.ReconnectionWindow.Std(),
		SeatOrder:          m.SeatOrder,
	}
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  Duration(10 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			StreamName:    "MATCH_EVENTS",
			SubjectPrefix: "match.events",
		},
		Games: GamesConfig{
			Enabled: []string{"tictactoe"},
		},
	}
}

// Load reads the yaml file at path (when non-empty) over the defaults, then
// applies environment overrides.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.StreamName = getEnv("NATS_STREAM", c.NATS.StreamName)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)

	c.Match.InitialClock = getEnvAsDuration("MATCH_INITIAL_CLOCK", c.Match.InitialClock)
	c.Match.GraceCredit = getEnvAsDuration("MATCH_GRACE_CREDIT", c.Match.GraceCredit)
	c.Match.MinimumGraceCredit = getEnvAsDuration("MATCH_MINIMUM_GRACE_CREDIT", c.Match.MinimumGraceCredit)
	c.Match.TickInterval = getEnvAsDuration("MATCH_TICK_INTERVAL", c.Match.TickInterval)
	c.Match.ReconnectionWindow = getEnvAsDuration("MATCH_RECONNECTION_WINDOW", c.Match.ReconnectionWindow)
	c.Match.SeatOrder = getEnv("MATCH_SEAT_ORDER", c.Match.SeatOrder)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue Duration) Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return Duration(duration)
		}
	}
	return defaultValue
}
