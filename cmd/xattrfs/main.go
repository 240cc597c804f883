package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"xattrfs/internal/config"
	"xattrfs/internal/fs"
	"xattrfs/internal/logging"
	"xattrfs/internal/source"
	"xattrfs/internal/xattr"

	"bazil.org/fuse"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

var (
	logger = logging.GetLogger()
)

// newFlags returns the command line flag set, printing usage to out.
func newFlags(name string, out io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ExitOnError)
	flags.SetOutput(out)
	flags.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [flags] <source> <mountpoint>\n\n", name)
		flags.PrintDefaults()
	}
	config.RegisterFlags(flags)
	return flags
}

// configureLogging applies the configured level. Debug mode forwards the
// FUSE protocol trace and raises the level so it is written.
func configureLogging(cfg *config.Config) {
	logger.SetLevel(cfg.Level())
	if cfg.Debug {
		logger.SetLevel(logging.LevelTrace)
		fuse.Debug = func(msg interface{}) {
			logger.Trace("fuse: %v", msg)
		}
	}
}

func main() {
	flags := newFlags(filepath.Base(os.Args[0]), os.Stderr)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		logger.Error("Invalid configuration: %v", err)
		flags.Usage()
		os.Exit(1)
	}

	configureLogging(cfg)

	logger.Info("Starting xattrfs...")
	logger.Debug("Source path: %s", cfg.Source)
	logger.Debug("Mount point: %s", cfg.Mountpoint)
	logger.Debug("Limits: %+v", cfg.Limits())
	logger.Debug("Configuration:\n%s", cfg.Dump())

	// Modes arriving from the kernel already have the caller's umask applied
	unix.Umask(0)

	src, err := source.NewDir(filepath.Clean(cfg.Source))
	if err != nil {
		logger.Error("Failed to open source directory: %v", err)
		os.Exit(1)
	}

	store := xattr.NewStore(src, cfg.StoreOptions())
	xfs := fs.NewXattrFS(src, store, fs.Options{
		FSName:      cfg.Mount.FSName,
		AllowOther:  cfg.Mount.AllowOther,
		ShowSidecar: cfg.Sidecar.Show,
		ListMax:     cfg.Xattr.ListMax,
	})

	logger.Debug("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cleanMount := filepath.Clean(cfg.Mountpoint)
	if err := xfs.Mount(cleanMount); err != nil {
		logger.Error("Mount failed: %v", err)
		os.Exit(1)
	}
	defer xfs.Close()

	logger.Info("Filesystem mounted and ready")

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v", sig)
		if err := xfs.Unmount(cleanMount); err != nil {
			logger.Error("Unmount error: %v", err)
		}
		if err := <-xfs.Done(); err != nil {
			logger.Error("FUSE server stopped with error: %v", err)
		}
	case err := <-xfs.Done():
		if err != nil {
			logger.Error("FUSE server stopped with error: %v", err)
		}
	}

	logger.Info("Clean shutdown complete")
}
