package xattr

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

var (
	// ErrNoAttr indicates the named attribute is not present on the target
	ErrNoAttr = errors.New("no such attribute")

	// ErrExists indicates a create-only set found the attribute already present
	ErrExists = errors.New("attribute already exists")

	// ErrNotPermitted indicates a namespace the caller may never touch
	ErrNotPermitted = errors.New("attribute namespace not permitted")

	// ErrNotSupported indicates a namespace this store does not implement
	ErrNotSupported = errors.New("attribute namespace not supported")

	// ErrNameTooLong indicates the attribute name exceeds the platform limit
	ErrNameTooLong = errors.New("attribute name too long")

	// ErrValueTooLarge indicates the attribute value exceeds the size ceiling
	ErrValueTooLarge = errors.New("attribute value too large")

	// ErrSidecarTooLarge indicates a sidecar file exceeds the metadata ceiling
	ErrSidecarTooLarge = errors.New("sidecar file too large")

	// ErrCorrupt indicates sidecar content that cannot be decoded
	ErrCorrupt = errors.New("corrupt sidecar file")

	// ErrInvalidFlag indicates an unknown or contradictory set flag
	ErrInvalidFlag = errors.New("invalid set flag")
)

// sentinelErrno maps each sentinel to its POSIX error class. Name length
// is absent on purpose: its class is chosen by Limits.NameErrno.
var sentinelErrno = map[error]syscall.Errno{
	ErrNoAttr:          NoAttrErrno,
	ErrExists:          syscall.EEXIST,
	ErrNotPermitted:    syscall.EPERM,
	ErrNotSupported:    syscall.ENOTSUP,
	ErrValueTooLarge:   syscall.ENOSPC,
	ErrSidecarTooLarge: syscall.ENOSPC,
	ErrCorrupt:         syscall.EIO,
	ErrInvalidFlag:     syscall.EINVAL,
}

// Error describes a failed attribute operation. Errno is the error class
// reported to the kernel; it is zero when the failure came from the source
// filesystem, in which case the class is taken from Err unchanged.
type Error struct {
	Op    string        // Operation that failed (e.g., "setxattr")
	Path  string        // Target path, relative to the source root
	Key   string        // Attribute key, if any
	Errno syscall.Errno // Error class, zero for pass-through I/O errors
	Err   error         // Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	target := e.Path
	if target == "" {
		target = "/"
	}
	if e.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
	}
	return fmt.Sprintf("%s %s [%q]: %v", e.Op, target, e.Key, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match an Error directly against its errno class.
func (e *Error) Is(target error) bool {
	errno, ok := target.(syscall.Errno)
	return ok && e.Errno != 0 && e.Errno == errno
}

// Common operation names for consistent logging and error reporting
const (
	OpSet    = "setxattr"
	OpGet    = "getxattr"
	OpList   = "listxattr"
	OpRemove = "removexattr"
	OpUnlink = "unlink"
	OpRename = "rename"
	OpCreate = "create"
)

func newError(op, path, key string, err error) *Error {
	return &Error{
		Op:    op,
		Path:  path,
		Key:   key,
		Errno: sentinelErrno[err],
		Err:   err,
	}
}

// withContext attaches op, path and key to an Error produced without them.
// Errors of any other type are wrapped unchanged as pass-through failures.
func withContext(op, path, key string, err error) error {
	if err == nil {
		return nil
	}
	var xe *Error
	if errors.As(err, &xe) {
		out := *xe
		if out.Op == "" {
			out.Op = op
		}
		if out.Path == "" {
			out.Path = path
		}
		if out.Key == "" {
			out.Key = key
		}
		return &out
	}
	return &Error{Op: op, Path: path, Key: key, Err: err}
}

// Errno returns the POSIX error class for err. Attribute errors carry
// their own class; errors from the source filesystem keep their original
// errno; anything unrecognized is EIO.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var xe *Error
	if errors.As(err, &xe) && xe.Errno != 0 {
		return xe.Errno
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	for sentinel, errno := range sentinelErrno {
		if errors.Is(err, sentinel) {
			return errno
		}
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, os.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, os.ErrExist):
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}
