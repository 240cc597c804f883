//go:build !linux && !darwin

package xattr

import "syscall"

const (
	platformNameMax          = 255
	platformNameErrno        = syscall.ERANGE
	platformEnforceValueSize = true
)
