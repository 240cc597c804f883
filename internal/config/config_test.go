package config

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xattrfs/internal/logging"
	"xattrfs/internal/xattr"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvFuseDebug, "")
	fs := pflag.NewFlagSet("xattrfs", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load(newFlags(t, "/src", "/mnt"))
	require.NoError(t, err)

	assert.Equal(t, "/src", cfg.Source)
	assert.Equal(t, "/mnt", cfg.Mountpoint)
	assert.Equal(t, logging.LevelInfo, cfg.Level())
	assert.Equal(t, "xattrfs", cfg.Mount.FSName)
	assert.False(t, cfg.Sidecar.Show)
	assert.EqualValues(t, xattr.DefaultMaxSidecarSize, cfg.Sidecar.MaxSize)
	assert.Equal(t, xattr.DefaultListMax, cfg.Xattr.ListMax)
	assert.Equal(t, xattr.DefaultLimits(), cfg.Limits())
	assert.Contains(t, cfg.Dump(), "source -> /src")
	assert.Contains(t, cfg.Dump(), "sidecar.show -> false")
}

func TestFlagsOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load(newFlags(t,
		"--source", "/data",
		"-m", "/mnt/x",
		"--show-sidecar",
		"--allow-other",
		"--log-level", "debug",
		"--fsname", "mine",
	))
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.Source)
	assert.Equal(t, "/mnt/x", cfg.Mountpoint)
	assert.True(t, cfg.Sidecar.Show)
	assert.True(t, cfg.Mount.AllowOther)
	assert.Equal(t, logging.LevelDebug, cfg.Level())
	assert.Equal(t, "mine", cfg.Mount.FSName)
}

func TestLoggingEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	t.Run("LogLevel", func(t *testing.T) {
		fs := newFlags(t, "/src", "/mnt")
		t.Setenv(EnvLogLevel, "DEBUG")
		cfg, err := Load(fs)
		require.NoError(t, err)
		assert.Equal(t, logging.LevelDebug, cfg.Level())
	})

	t.Run("FlagWins", func(t *testing.T) {
		fs := newFlags(t, "--log-level", "trace", "/src", "/mnt")
		t.Setenv(EnvLogLevel, "DEBUG")
		cfg, err := Load(fs)
		require.NoError(t, err)
		assert.Equal(t, logging.LevelTrace, cfg.Level())
	})

	t.Run("FuseDebug", func(t *testing.T) {
		fs := newFlags(t, "/src", "/mnt")
		t.Setenv(EnvFuseDebug, "1")
		cfg, err := Load(fs)
		require.NoError(t, err)
		assert.True(t, cfg.Debug)
	})

	t.Run("BadLevel", func(t *testing.T) {
		fs := newFlags(t, "/src", "/mnt")
		t.Setenv(EnvLogLevel, "loud")
		_, err := Load(fs)
		assert.Error(t, err)
	})
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "xattrfs.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
source: /from-file
mountpoint: /mnt/file
sidecar:
  show: true
xattr:
  nameMax: 127
  nameError: enametoolong
  enforceValueSize: "true"
`), 0o644))

	t.Run("YAML", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		cfg, err := Load(newFlags(t, "--config", yamlPath))
		require.NoError(t, err)

		assert.Equal(t, "/from-file", cfg.Source)
		assert.True(t, cfg.Sidecar.Show)

		limits := cfg.Limits()
		assert.Equal(t, 127, limits.NameMax)
		assert.Equal(t, syscall.ENAMETOOLONG, limits.NameErrno)
		assert.True(t, limits.EnforceValueSize)
	})

	t.Run("EnvAndFlagPrecedence", func(t *testing.T) {
		t.Setenv(EnvConfigPath, yamlPath)
		cfg, err := Load(newFlags(t, "--source", "/from-flag"))
		require.NoError(t, err)

		assert.Equal(t, "/from-flag", cfg.Source)
		assert.Equal(t, "/mnt/file", cfg.Mountpoint)
	})

	t.Run("JSON", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		jsonPath := filepath.Join(dir, "xattrfs.json")
		require.NoError(t, os.WriteFile(jsonPath,
			[]byte(`{"source": "/j", "mountpoint": "/m", "xattr": {"enforceValueSize": "false"}}`), 0o644))

		cfg, err := Load(newFlags(t, "-c", jsonPath))
		require.NoError(t, err)
		assert.Equal(t, "/j", cfg.Source)
		assert.False(t, cfg.Limits().EnforceValueSize)
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		_, err := Load(newFlags(t, "-c", filepath.Join(dir, "xattrfs.toml")))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Source:     "/src",
			Mountpoint: "/mnt",
			LogLevel:   "INFO",
			Sidecar:    SidecarConfig{MaxSize: 1024},
			Xattr: XattrConfig{
				ValueMax:         1024,
				ListMax:          1024,
				EnforceValueSize: "auto",
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing source", func(c *Config) { c.Source = "" }},
		{"missing mountpoint", func(c *Config) { c.Mountpoint = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad name error", func(c *Config) { c.Xattr.NameError = "e2big" }},
		{"bad enforcement", func(c *Config) { c.Xattr.EnforceValueSize = "sometimes" }},
		{"negative name max", func(c *Config) { c.Xattr.NameMax = -1 }},
		{"zero value max", func(c *Config) { c.Xattr.ValueMax = 0 }},
		{"zero list max", func(c *Config) { c.Xattr.ListMax = 0 }},
		{"zero sidecar size", func(c *Config) { c.Sidecar.MaxSize = 0 }},
	}

	base := valid()
	require.NoError(t, base.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
