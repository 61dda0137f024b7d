// Package config reads the settings of the kappale command: built-in
// defaults, then the config.yml in the user config directory, then the
// environment (including a .env file in the working directory).
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		Log           LogConfig
		Engine        string        // log, midi or null
		MIDIPort      string        `yaml:"midiport"` // prefix of the MIDI output name
		MIDIVelocity  int           `yaml:"midivelocity"`
		Clock         string        // timer or audio
		Listen        string        // address for remote control
		WatchDebounce time.Duration `yaml:"watchdebounce"`
		LoadTimeout   time.Duration `yaml:"loadtimeout"`
		SaveFormat    string        `yaml:"saveformat"` // format hint used when saving
	}

	LogConfig struct {
		Level  string
		Format string // text or json
	}
)

const envPrefix = "KAPPALE_"

//go:embed config.yml
var defaultConfigYaml []byte

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	if err := decode(defaultConfigYaml, &c); err != nil {
		panic(fmt.Errorf("failed to unmarshal default config: %w", err))
	}
	return c
}

// Path returns where the config file of the user is.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("os.UserConfigDir failed: %w", err)
	}
	return filepath.Join(dir, "kappale", "config.yml"), nil
}

// Load reads the configuration from the config file of the user and the
// environment.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		path = ""
	}
	return LoadFile(path)
}

// LoadFile reads the configuration from the file at path, which may be
// missing, and the environment. Values from the environment win.
func LoadFile(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config failed: %w", err)
		default:
			if err := decode(data, &c); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	_ = godotenv.Load()
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func decode(data []byte, c *Config) error {
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	get := func(key, def string) string {
		if v := getenv(envPrefix + key); v != "" {
			return v
		}
		return def
	}
	c.Log.Level = get("LOG_LEVEL", c.Log.Level)
	c.Log.Format = get("LOG_FORMAT", c.Log.Format)
	c.Engine = get("ENGINE", c.Engine)
	c.MIDIPort = get("MIDI_PORT", c.MIDIPort)
	c.MIDIVelocity = parseIntOrDefault(getenv(envPrefix+"MIDI_VELOCITY"), c.MIDIVelocity)
	c.Clock = get("CLOCK", c.Clock)
	c.Listen = get("LISTEN", c.Listen)
	c.SaveFormat = get("SAVE_FORMAT", c.SaveFormat)
	c.WatchDebounce = parseDurationOrDefault(getenv(envPrefix+"WATCH_DEBOUNCE"), c.WatchDebounce)
	c.LoadTimeout = parseDurationOrDefault(getenv(envPrefix+"LOAD_TIMEOUT"), c.LoadTimeout)
}

func parseDurationOrDefault(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("could not parse duration, using default", "value", s, "default", defaultValue, "error", err)
		return defaultValue
	}
	return d
}

func parseIntOrDefault(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		slog.Warn("could not parse integer, using default", "value", s, "default", defaultValue, "error", err)
		return defaultValue
	}
	return i
}

func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q is not text or json", c.Log.Format)
	}
	switch c.Engine {
	case "log", "midi", "null":
	default:
		return fmt.Errorf("engine %q is not log, midi or null", c.Engine)
	}
	if c.MIDIVelocity < 1 || c.MIDIVelocity > 127 {
		return fmt.Errorf("MIDI velocity %d is not within [1, 127]", c.MIDIVelocity)
	}
	switch c.Clock {
	case "timer", "audio":
	default:
		return fmt.Errorf("clock %q is not timer or audio", c.Clock)
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.Log.Level, err)
	}
	return l, nil
}

// Logger returns a logger writing to w as configured.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
