// Package source provides access to the real directory tree that backs the
// mount. It supplies the primitive file operations the attribute store is
// built on: whole-file reads, atomic replacement, delete, rename.
package source

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"xattrfs/internal/logging"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("source")
)

// Dir is a source directory. Every name passed to its methods is relative
// to the root and may not escape it.
type Dir struct {
	root string
}

// NewDir opens root, which must be an existing directory.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve source directory %s", root)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(err, "stat source directory")
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", abs)
	}

	dirLogger.Debug("Source directory: %s", abs)
	return &Dir{root: abs}, nil
}

// Root returns the absolute native path of the source directory.
func (d *Dir) Root() string {
	return d.root
}

// Full returns the native path of name.
func (d *Dir) Full(name string) string {
	return NewPath(name).FullPath(d.root)
}

// ReadFile returns the whole content of name.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(d.Full(name))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return data, nil
}

// WriteFileAtomic replaces name with data. The content is written to a
// temporary file in the same directory, synced, and renamed over name, so
// readers see either the old or the new content. The temporary name ends in
// the sidecar suffix, keeping it out of listings of the mount.
func (d *Dir) WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	full := d.Full(name)
	dir, base := filepath.Split(full)

	tmp, err := os.CreateTemp(dir, "."+base+".*.xattr")
	if err != nil {
		return errors.Wrapf(err, "create temporary file for %s", name)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", name)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "chmod %s", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", name)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return errors.Wrapf(err, "replace %s", name)
	}
	committed = true

	dirLogger.Trace("Wrote %d bytes to %s", len(data), name)
	return nil
}

// DeleteFile removes name.
func (d *Dir) DeleteFile(name string) error {
	if err := os.Remove(d.Full(name)); err != nil {
		return errors.Wrapf(err, "remove %s", name)
	}
	return nil
}

// RenameFile renames oldName to newName, replacing newName if it exists.
func (d *Dir) RenameFile(oldName, newName string) error {
	if err := os.Rename(d.Full(oldName), d.Full(newName)); err != nil {
		return errors.Wrapf(err, "rename %s", oldName)
	}
	return nil
}

// Exists reports whether name exists, without following a final symlink.
func (d *Dir) Exists(name string) bool {
	_, err := os.Lstat(d.Full(name))
	return err == nil
}

// Stat returns information about name, without following a final symlink.
func (d *Dir) Stat(name string) (os.FileInfo, error) {
	info, err := os.Lstat(d.Full(name))
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", name)
	}
	return info, nil
}
