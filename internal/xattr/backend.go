package xattr

import (
	"os"
	"path"
	"strings"
)

// SidecarSuffix is appended to a target's name to form its sidecar's name.
const SidecarSuffix = ".xattr"

// Backend is the real filesystem holding targets and sidecars. Paths are
// slash-separated and relative to the backend's root. Missing files are
// reported with errors matching os.ErrNotExist.
type Backend interface {
	ReadFile(name string) ([]byte, error)
	WriteFileAtomic(name string, data []byte, perm os.FileMode) error
	DeleteFile(name string) error
	RenameFile(oldName, newName string) error
	Exists(name string) bool
	Stat(name string) (os.FileInfo, error)
}

// CleanPath normalizes a target path to the form used as lock and sidecar
// key: slash-separated, relative, with the root as "".
func CleanPath(p string) string {
	cleaned := path.Clean("/" + p)
	return strings.TrimPrefix(cleaned, "/")
}

// SidecarPath returns the sidecar path for target. The root directory's
// sidecar is ".xattr" at the top of the source tree.
func SidecarPath(target string) string {
	return CleanPath(target) + SidecarSuffix
}

// IsSidecarName reports whether a directory entry name is a sidecar.
func IsSidecarName(name string) bool {
	return strings.HasSuffix(name, SidecarSuffix)
}
