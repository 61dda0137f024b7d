package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vsariola/kappale/config"
)

func TestDefault(t *testing.T) {
	c := config.Default()
	if c.Engine != "log" || c.Clock != "timer" || c.WatchDebounce != 100*time.Millisecond || c.LoadTimeout != 30*time.Second {
		t.Errorf("unexpected defaults %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "engine: midi\nmidiport: Synth\nwatchdebounce: 1s\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv("KAPPALE_MIDI_PORT", "Other")
	t.Setenv("KAPPALE_LOAD_TIMEOUT", "not a duration")
	t.Setenv("KAPPALE_CLOCK", "audio")
	t.Setenv("KAPPALE_MIDI_VELOCITY", "64")
	c, err := config.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	tests := []struct {
		name      string
		got, want any
	}{
		{"engine from file", c.Engine, "midi"},
		{"port from environment", c.MIDIPort, "Other"},
		{"clock from environment", c.Clock, "audio"},
		{"debounce from file", c.WatchDebounce, time.Second},
		{"bad duration keeps default", c.LoadTimeout, 30 * time.Second},
		{"log level from file", c.Log.Level, "debug"},
		{"log format default", c.Log.Format, "text"},
		{"velocity from environment", c.MIDIVelocity, 64},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, expected %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	c, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if c.Engine != config.Default().Engine {
		t.Errorf("missing file changed the engine to %q", c.Engine)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name, data, env string
	}{
		{name: "unknown key", data: "colour: red\n"},
		{name: "bad engine", data: "engine: jack\n"},
		{name: "bad clock from environment", env: "sundial"},
		{name: "bad level", data: "log:\n  level: loud\n"},
		{name: "velocity out of range", data: "midivelocity: 200\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			t.Setenv("KAPPALE_CLOCK", tt.env)
			if _, err := config.LoadFile(path); err == nil {
				t.Error("expected LoadFile to fail")
			}
		})
	}
}

func TestLogger(t *testing.T) {
	c := config.Default()
	c.Log.Level = "warn"
	c.Log.Format = "json"
	var buf bytes.Buffer
	logger := c.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("unexpected log output %q", out)
	}
}
