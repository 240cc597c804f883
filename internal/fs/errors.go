// Package fs provides the FUSE view of a source directory with extended
// attributes stored in sidecar files.
//
// This file contains error translation for the kernel boundary.
package fs

import (
	"errors"
	"syscall"

	"xattrfs/internal/logging"
	"xattrfs/internal/xattr"

	"bazil.org/fuse"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrSidecarName indicates an attempt to create a name reserved for
	// sidecar files while they are hidden
	ErrSidecarName = errors.New("name is reserved for attribute sidecars")
)

// ToFuseError converts an error from the store, the lifecycle coordinator
// or the source filesystem into the errno FUSE sends back to the caller.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var fe fuse.Errno
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, ErrSidecarName) {
		return fuse.Errno(syscall.EPERM)
	}

	errno := xattr.Errno(err)
	if errno == syscall.EIO {
		errLogger.Debug("Returning EIO for: %v", err)
	} else {
		errLogger.Trace("Returning %v for: %v", errno, err)
	}
	return fuse.Errno(errno)
}
