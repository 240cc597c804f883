package main

import (
	"bytes"
	"strings"
	"testing"

	"xattrfs/internal/config"
	"xattrfs/internal/logging"
)

func loadConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Setenv(config.EnvFuseDebug, "")

	var out bytes.Buffer
	flags := newFlags("xattrfs", &out)
	if err := flags.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	cfg, err := config.Load(flags)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func TestUsage(t *testing.T) {
	var out bytes.Buffer
	flags := newFlags("xattrfs", &out)
	flags.Usage()

	usage := out.String()
	if !strings.HasPrefix(usage, "Usage: xattrfs [flags] <source> <mountpoint>") {
		t.Errorf("Unexpected usage header: %q", usage)
	}
	if !strings.Contains(usage, "--show-sidecar") {
		t.Errorf("Usage should list flags: %q", usage)
	}
}

func TestConfigureLogging(t *testing.T) {
	defer logger.SetLevel(logging.LevelInfo)

	t.Run("Level", func(t *testing.T) {
		configureLogging(loadConfig(t, "--log-level", "warn", "/src", "/mnt"))
		if logger.Level() != logging.LevelWarn {
			t.Errorf("Expected WARN, got %v", logger.Level())
		}
	})

	t.Run("DebugRaisesToTrace", func(t *testing.T) {
		configureLogging(loadConfig(t, "--debug", "/src", "/mnt"))
		if logger.Level() != logging.LevelTrace {
			t.Errorf("Expected TRACE with --debug, got %v", logger.Level())
		}
	})
}
