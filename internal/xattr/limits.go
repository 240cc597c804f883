package xattr

import (
	"fmt"
	"syscall"
)

const (
	// DefaultValueMax is the largest attribute value accepted (64 KiB).
	DefaultValueMax = 64 * 1024

	// DefaultListMax is the largest total size of a key listing, counting
	// one NUL terminator per key.
	DefaultListMax = 64 * 1024

	// DefaultMaxSidecarSize is the largest sidecar file the store will
	// load or write.
	DefaultMaxSidecarSize = 8 * 1024 * 1024
)

// Limits bounds attribute keys and values. The zero value is not useful;
// start from DefaultLimits.
type Limits struct {
	// NameMax is the longest permitted key, namespace and dot included.
	NameMax int
	// NameErrno is reported for keys longer than NameMax: ERANGE or
	// ENAMETOOLONG depending on platform convention.
	NameErrno syscall.Errno
	// ValueMax is the largest permitted value in bytes.
	ValueMax int
	// EnforceValueSize turns the ValueMax check on. Platforms whose kernel
	// already caps the payload leave it off.
	EnforceValueSize bool
}

// DefaultLimits returns the limits native to the build platform.
func DefaultLimits() Limits {
	return Limits{
		NameMax:          platformNameMax,
		NameErrno:        platformNameErrno,
		ValueMax:         DefaultValueMax,
		EnforceValueSize: platformEnforceValueSize,
	}
}

// ValidateKey checks key length.
func (l Limits) ValidateKey(key string) error {
	if len(key) > l.NameMax {
		return &Error{
			Key:   key,
			Errno: l.NameErrno,
			Err:   fmt.Errorf("%w: %d bytes, limit %d", ErrNameTooLong, len(key), l.NameMax),
		}
	}
	return nil
}

// ValidateValue checks value size when enforcement is on.
func (l Limits) ValidateValue(value []byte) error {
	if l.EnforceValueSize && len(value) > l.ValueMax {
		return &Error{
			Errno: syscall.ENOSPC,
			Err:   fmt.Errorf("%w: %d bytes, limit %d", ErrValueTooLarge, len(value), l.ValueMax),
		}
	}
	return nil
}
