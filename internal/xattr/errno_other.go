//go:build !linux && !darwin

package xattr

import "syscall"

// NoAttrErrno is the "no such attribute" class on this platform.
const NoAttrErrno = syscall.ENODATA
