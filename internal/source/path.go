package source

import (
	"path"
	"path/filepath"
	"strings"

	"xattrfs/internal/logging"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("path")
)

// Path is a location inside the source tree, stored slash-separated and
// relative to the source root. The root itself is the empty path.
type Path struct {
	path string
}

// NewPath creates a Path, cleaning it and stripping any leading slash.
func NewPath(p string) Path {
	cleaned := path.Clean("/" + filepath.ToSlash(p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	pathLogger.Trace("Creating new source path: %q -> %q", p, cleaned)
	return Path{path: cleaned}
}

// String returns the relative path; "" for the root.
func (p Path) String() string {
	return p.path
}

// Display returns the path as seen from the mount, always starting with /.
func (p Path) Display() string {
	return "/" + p.path
}

// FullPath returns the native path under sourceRoot.
func (p Path) FullPath(sourceRoot string) string {
	return filepath.Join(sourceRoot, filepath.FromSlash(p.path))
}

// Join returns the child called name.
func (p Path) Join(name string) Path {
	if p.path == "" {
		return NewPath(name)
	}
	return NewPath(p.path + "/" + name)
}

// IsRoot returns true for the source root
func (p Path) IsRoot() bool {
	return p.path == ""
}

// HasPrefix reports whether p is dir or lies beneath it.
func (p Path) HasPrefix(dir Path) bool {
	if dir.path == "" || p.path == dir.path {
		return true
	}
	return strings.HasPrefix(p.path, dir.path+"/")
}

// Rebase moves p from under oldDir to under newDir. p must satisfy
// p.HasPrefix(oldDir).
func (p Path) Rebase(oldDir, newDir Path) Path {
	rest := strings.TrimPrefix(strings.TrimPrefix(p.path, oldDir.path), "/")
	if rest == "" {
		return newDir
	}
	return newDir.Join(rest)
}
