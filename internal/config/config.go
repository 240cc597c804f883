// Package config loads xattrfs settings. Values are layered: built-in
// defaults, then an optional YAML or JSON file, then command-line flags the
// user actually passed.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"xattrfs/internal/logging"
	"xattrfs/internal/xattr"
)

//go:embed default.yaml
var defaultConfig []byte

// EnvConfigPath names the environment variable holding a config file path.
const EnvConfigPath = "XATTRFS_CONFIG"

// Environment variables read by the logging package, layered over the
// config file and under flags.
const (
	EnvLogLevel  = "LOG_LEVEL"
	EnvFuseDebug = "FUSE_DEBUG"
)

// Config is the complete daemon configuration.
type Config struct {
	dump string

	Source     string        `key:"source"`
	Mountpoint string        `key:"mountpoint"`
	LogLevel   string        `key:"logLevel"`
	Debug      bool          `key:"debug"`
	Mount      MountConfig   `key:"mount"`
	Sidecar    SidecarConfig `key:"sidecar"`
	Xattr      XattrConfig   `key:"xattr"`
}

// MountConfig holds FUSE mount options.
type MountConfig struct {
	FSName     string `key:"fsName"`
	AllowOther bool   `key:"allowOther"`
}

// SidecarConfig controls sidecar visibility and size.
type SidecarConfig struct {
	Show    bool  `key:"show"`
	MaxSize int64 `key:"maxSize"`
}

// XattrConfig overrides the platform attribute limits. Zero and empty
// values keep the platform default.
type XattrConfig struct {
	NameMax          int    `key:"nameMax"`
	NameError        string `key:"nameError"`
	ValueMax         int    `key:"valueMax"`
	EnforceValueSize string `key:"enforceValueSize"`
	ListMax          int    `key:"listMax"`
}

// Loader accumulates configuration layers.
type Loader struct {
	kf *koanf.Koanf
}

// NewLoader returns a loader holding the built-in defaults.
func NewLoader() (*Loader, error) {
	l := &Loader{kf: koanf.New(".")}
	if err := l.kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, errors.Wrap(err, "load default config")
	}
	return l, nil
}

// LoadFile merges a YAML or JSON file, chosen by extension.
func (l *Loader) LoadFile(path string) error {
	parser, err := parserFor(path)
	if err != nil {
		return err
	}
	if err := l.kf.Load(file.Provider(path), parser); err != nil {
		return errors.Wrapf(err, "load config file %s", path)
	}
	return nil
}

// Set overrides a single key.
func (l *Loader) Set(key string, value interface{}) error {
	return l.kf.Set(key, value)
}

// Print returns the merged configuration for debugging.
func (l *Loader) Print() string {
	return l.kf.Sprint()
}

// Config unmarshals and validates the merged layers.
func (l *Loader) Config() (*Config, error) {
	var c Config
	if err := l.kf.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "key"}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.dump = l.Print()
	return &c, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "yaml", "yml":
		return yaml.Parser(), nil
	case "json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"source":       "source",
	"mount":        "mountpoint",
	"log-level":    "logLevel",
	"debug":        "debug",
	"fsname":       "mount.fsName",
	"allow-other":  "mount.allowOther",
	"show-sidecar": "sidecar.show",
}

// RegisterFlags defines the flags ApplyFlags understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Config file (YAML or JSON), also $"+EnvConfigPath)
	fs.StringP("source", "s", "", "Source directory to expose")
	fs.StringP("mount", "m", "", "Mount point")
	fs.StringP("log-level", "l", "", "Log level (ERROR, WARN, INFO, DEBUG, TRACE)")
	fs.BoolP("debug", "d", false, "Log FUSE protocol messages")
	fs.String("fsname", "", "Filesystem name shown in the mount table")
	fs.Bool("allow-other", false, "Allow other users to access the mount")
	fs.Bool("show-sidecar", false, "Show .xattr sidecar files in directory listings")
}

// ApplyFlags copies every flag the user set on fs into the loader.
func (l *Loader) ApplyFlags(fs *pflag.FlagSet) error {
	var firstErr error
	fs.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || firstErr != nil {
			return
		}
		var value interface{} = f.Value.String()
		if f.Value.Type() == "bool" {
			b, err := strconv.ParseBool(f.Value.String())
			if err != nil {
				firstErr = errors.Wrapf(err, "flag --%s", f.Name)
				return
			}
			value = b
		}
		firstErr = l.Set(key, value)
	})
	return firstErr
}

// ApplyEnv copies $LOG_LEVEL and $FUSE_DEBUG into the loader when set.
func (l *Loader) ApplyEnv() error {
	if level := os.Getenv(EnvLogLevel); level != "" {
		if err := l.Set("logLevel", level); err != nil {
			return err
		}
	}
	if os.Getenv(EnvFuseDebug) != "" {
		return l.Set("debug", true)
	}
	return nil
}

// Load builds the configuration from defaults, the config file named by
// --config or $XATTRFS_CONFIG, the logging environment, and flags on fs.
// Positional arguments "<source> <mountpoint>" are accepted in place of
// the flags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := l.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := l.ApplyEnv(); err != nil {
		return nil, err
	}

	args := fs.Args()
	if len(args) > 0 {
		if err := l.Set("source", args[0]); err != nil {
			return nil, err
		}
	}
	if len(args) > 1 {
		if err := l.Set("mountpoint", args[1]); err != nil {
			return nil, err
		}
	}

	if err := l.ApplyFlags(fs); err != nil {
		return nil, err
	}
	return l.Config()
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	if c.Source == "" {
		return errors.New("source directory is required")
	}
	if c.Mountpoint == "" {
		return errors.New("mount point is required")
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if _, err := c.nameErrno(); err != nil {
		return err
	}
	if _, err := c.enforceValueSize(); err != nil {
		return err
	}
	if c.Xattr.NameMax < 0 || c.Xattr.NameMax > 65534 {
		return fmt.Errorf("xattr.nameMax %d out of range", c.Xattr.NameMax)
	}
	if c.Xattr.ValueMax <= 0 {
		return fmt.Errorf("xattr.valueMax must be positive")
	}
	if c.Xattr.ListMax <= 0 {
		return fmt.Errorf("xattr.listMax must be positive")
	}
	if c.Sidecar.MaxSize <= 0 {
		return fmt.Errorf("sidecar.maxSize must be positive")
	}
	return nil
}

// Dump returns the merged key/value layers the config was built from.
func (c *Config) Dump() string {
	return c.dump
}

// Level returns the parsed log level.
func (c *Config) Level() logging.LogLevel {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

func (c *Config) nameErrno() (syscall.Errno, error) {
	switch strings.ToLower(c.Xattr.NameError) {
	case "":
		return xattr.DefaultLimits().NameErrno, nil
	case "erange":
		return syscall.ERANGE, nil
	case "enametoolong":
		return syscall.ENAMETOOLONG, nil
	default:
		return 0, fmt.Errorf("xattr.nameError must be erange or enametoolong, got %q", c.Xattr.NameError)
	}
}

func (c *Config) enforceValueSize() (bool, error) {
	v := strings.ToLower(c.Xattr.EnforceValueSize)
	if v == "" || v == "auto" {
		return xattr.DefaultLimits().EnforceValueSize, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("xattr.enforceValueSize must be auto, true or false, got %q", c.Xattr.EnforceValueSize)
	}
	return b, nil
}

// Limits builds attribute limits from platform defaults and overrides.
func (c *Config) Limits() xattr.Limits {
	limits := xattr.DefaultLimits()
	if c.Xattr.NameMax > 0 {
		limits.NameMax = c.Xattr.NameMax
	}
	if errno, err := c.nameErrno(); err == nil {
		limits.NameErrno = errno
	}
	limits.ValueMax = c.Xattr.ValueMax
	if enforce, err := c.enforceValueSize(); err == nil {
		limits.EnforceValueSize = enforce
	}
	return limits
}

// StoreOptions returns the options for xattr.NewStore.
func (c *Config) StoreOptions() xattr.Options {
	return xattr.Options{
		Limits:         c.Limits(),
		MaxSidecarSize: c.Sidecar.MaxSize,
	}
}
